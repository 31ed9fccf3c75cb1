package skill

// EventType is one SSE event name emitted during skill execution.
// Order within a run: message_start, interleaved
// tool/skill/analysis/content events, optional title_updated, then
// message_end.
type EventType string

const (
	EventMessageStart EventType = "message_start"
	EventToolCallStart EventType = "tool_call_start"
	EventToolCallEnd   EventType = "tool_call_end"
	EventSkillStart    EventType = "skill_start"
	EventSkillEnd      EventType = "skill_end"
	EventAnalysisStart EventType = "analysis_start"
	EventAnalysisDelta EventType = "analysis_delta"
	EventAnalysisEnd   EventType = "analysis_end"
	EventContentDelta  EventType = "content_delta"
	EventTitleUpdated  EventType = "title_updated"
	EventMessageEnd    EventType = "message_end"
	EventError         EventType = "error"
)

// FinishReason is message_end's terminal payload field.
type FinishReason string

const (
	FinishStop  FinishReason = "stop"
	FinishError FinishReason = "error"
)

// Event is one SSE frame. Payload is serialized with a permissive default
// stringifier at the transport boundary so UUIDs,
// timestamps, and arbitrary tool results never break the stream; this
// package only builds the Go value.
type Event struct {
	Type    EventType
	Payload any
}

// Emit is how executors push events to the SSE transport; the transport
// layer owns buffering/serialization.
type Emit func(Event)

func (e Emit) Safe(evt Event) {
	if e != nil {
		e(evt)
	}
}
