package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/llmclient"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/ragruntime"
	"github.com/mindatlas/backend/internal/shardqueue"
)

// maxAgentIterations bounds the tool-calling loop; hitting the cap emits a
// fallback warning instead of another round.
const maxAgentIterations = 10

const fallbackWarning = "I wasn't able to finish that within the allotted number of tool calls. Please try rephrasing your request."

// kbContextCap bounds the injected KB system message.
const kbContextCap = 4000

// KBSearchFunc issues the internal kb_search call against the retrieval
// service; it is the only caller allowed to invoke the reserved tool name.
type KBSearchFunc func(ctx context.Context, query string) (string, error)

// AgentRunner executes a skill in "agent" mode: a system
// prompt plus bound tools, with the model driving a bounded tool-calling
// loop until it emits a final answer with no further tool calls.
type AgentRunner struct {
	llmClient *llmclient.Client
	registry  *Registry
	prefetch  *ragruntime.Prefetch
	kbSearch  KBSearchFunc
	toolExec  *shardqueue.ShardExecutor
	log       zerolog.Logger
}

// NewAgentRunner wires toolExec as the dispatcher for one turn's tool calls:
// keyed by conversation ID, it keeps a single conversation's tool calls in
// submission order while letting concurrent conversations run in parallel
// across shards.
func NewAgentRunner(llmClient *llmclient.Client, registry *Registry, prefetch *ragruntime.Prefetch, kbSearch KBSearchFunc, toolExec *shardqueue.ShardExecutor, log zerolog.Logger) *AgentRunner {
	return &AgentRunner{
		llmClient: llmClient,
		registry:  registry,
		prefetch:  prefetch,
		kbSearch:  kbSearch,
		toolExec:  toolExec,
		log:       log.With().Str("component", "skill_agent").Logger(),
	}
}

// Run drives the agent loop to completion (or the iteration cap) and
// returns the final answer text. conversationID keys the tool-call
// dispatcher so this conversation's calls never reorder relative to each
// other even as other conversations' turns run concurrently.
func (a *AgentRunner) Run(ctx context.Context, s model.AssistantSkill, userInput string, history []ChatMessage, dbTools map[string]model.AssistantTool, now time.Time, conversationID uuid.UUID, emit Emit) (string, error) {
	emit.Safe(Event{Type: EventSkillStart, Payload: map[string]any{"skill": s.Name}})

	visibleNames := a.registry.VisibleNames(s.Tools, dbTools)
	systemPrompt := a.buildSystemPrompt(s, visibleNames, now)

	msgs := []ChatMessage{{Role: "system", Content: systemPrompt}}

	if s.KBConfig.Enabled && strings.TrimSpace(userInput) != "" && a.prefetch != nil && a.kbSearch != nil {
		kbText, err := a.prefetch.Call(ctx, func(pctx context.Context) (string, error) {
			return a.kbSearch(pctx, userInput)
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("kb prefetch failed or timed out, continuing without KB context")
		} else if kbText != "" {
			msgs = append(msgs, ChatMessage{Role: "system", Content: capText(kbText, kbContextCap)})
		}
	}

	for _, h := range history {
		if h.Role == "system" {
			continue
		}
		msgs = append(msgs, h)
	}
	msgs = append(msgs, ChatMessage{Role: "user", Content: userInput})

	toolDefs := a.buildToolDefs(visibleNames, dbTools)
	session := a.llmClient.NewAgentSession(toLLMMessages(msgs), toLLMToolDefs(toolDefs))

	for i := 0; i < maxAgentIterations; i++ {
		turn, err := session.Step(ctx, 0.7)
		if err != nil {
			emit.Safe(Event{Type: EventSkillEnd, Payload: map[string]any{"skill": s.Name, "error": err.Error()}})
			return "", err
		}
		if len(turn.ToolCalls) == 0 {
			answer, err := a.streamFinal(ctx, session, emit)
			emit.Safe(Event{Type: EventSkillEnd, Payload: map[string]any{"skill": s.Name}})
			return answer, err
		}
		for tc, result := range a.runToolCalls(ctx, conversationID, turn.ToolCalls, dbTools, emit) {
			session.AddToolResult(tc, result)
		}
	}

	a.log.Warn().Str("skill", s.Name).Msg("agent loop hit the iteration cap, emitting fallback warning")
	emit.Safe(Event{Type: EventContentDelta, Payload: map[string]any{"delta": fallbackWarning}})
	emit.Safe(Event{Type: EventSkillEnd, Payload: map[string]any{"skill": s.Name}})
	return fallbackWarning, nil
}

func (a *AgentRunner) streamFinal(ctx context.Context, session *llmclient.AgentSession, emit Emit) (string, error) {
	stream, errFn := session.StreamFinal(ctx)
	var b strings.Builder
	for delta := range stream {
		b.WriteString(delta.Content)
		emit.Safe(Event{Type: EventContentDelta, Payload: map[string]any{"delta": delta.Content}})
	}
	return b.String(), errFn()
}

// runToolCalls executes every tool call from one LLM turn and returns a
// map from call ID to result. When a shard executor is configured, calls
// are submitted keyed by conversationID: same-conversation calls still run
// in submission order (one shard, one goroutine), but a second SSE stream
// for a different conversation is never blocked behind this one's tool
// round. Without an executor (e.g. in tests) calls simply run sequentially.
func (a *AgentRunner) runToolCalls(ctx context.Context, conversationID uuid.UUID, calls []llmclient.ToolCall, dbTools map[string]model.AssistantTool, emit Emit) map[string]string {
	results := make(map[string]string, len(calls))
	if a.toolExec == nil {
		for _, tc := range calls {
			results[tc.ID] = a.invokeToolCall(ctx, tc, dbTools, emit)
		}
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	key := conversationID.String()
	for _, tc := range calls {
		tc := tc
		wg.Add(1)
		job := shardqueue.JobFunc(func(jctx context.Context) error {
			defer wg.Done()
			res := a.invokeToolCall(jctx, tc, dbTools, emit)
			mu.Lock()
			results[tc.ID] = res
			mu.Unlock()
			return nil
		})
		if err := a.toolExec.Submit(ctx, key, job); err != nil {
			wg.Done()
			mu.Lock()
			results[tc.ID] = toolErrorJSON(err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return results
}

func (a *AgentRunner) invokeToolCall(ctx context.Context, tc llmclient.ToolCall, dbTools map[string]model.AssistantTool, emit Emit) string {
	emit.Safe(Event{Type: EventToolCallStart, Payload: map[string]any{"tool": tc.Name, "call_id": tc.ID}})

	tool, ok := a.registry.Resolve(tc.Name, dbTools)
	if !ok {
		err := model.NewNotFoundError("tool_name", tc.Name)
		emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"tool": tc.Name, "call_id": tc.ID, "error": err.Error()}})
		return toolErrorJSON(err)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"tool": tc.Name, "call_id": tc.ID, "error": "invalid arguments json"}})
		return toolErrorJSON(fmt.Errorf("invalid arguments json"))
	}

	result, err := tool.Call(ctx, args)
	if err != nil {
		emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"tool": tc.Name, "call_id": tc.ID, "error": err.Error()}})
		return toolErrorJSON(err)
	}

	raw, _ := json.Marshal(result)
	emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"tool": tc.Name, "call_id": tc.ID}})
	return string(raw)
}

func toolErrorJSON(err error) string {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(raw)
}

func (a *AgentRunner) buildSystemPrompt(s model.AssistantSkill, visibleNames []string, now time.Time) string {
	var b strings.Builder
	if s.SystemPrompt != nil && *s.SystemPrompt != "" {
		b.WriteString(*s.SystemPrompt)
	} else {
		b.WriteString(s.Description)
	}
	b.WriteString(fmt.Sprintf("\n\nToday is %s (%s).", now.Format("2006-01-02"), now.Weekday()))
	if len(visibleNames) > 0 {
		b.WriteString("\nAvailable tools: ")
		b.WriteString(strings.Join(visibleNames, ", "))
	}
	if s.KBConfig.Enabled {
		b.WriteString("\nWhen you use retrieved knowledge-base context, cite it with [^n] markers matching the numbered references provided.")
	}
	return b.String()
}

func (a *AgentRunner) buildToolDefs(names []string, dbTools map[string]model.AssistantTool) []ResolvedTool {
	out := make([]ResolvedTool, 0, len(names))
	for _, name := range names {
		if t, ok := a.registry.Resolve(name, dbTools); ok {
			out = append(out, t)
		}
	}
	return out
}

func toLLMToolDefs(tools []ResolvedTool) []llmclient.ToolDef {
	out := make([]llmclient.ToolDef, 0, len(tools))
	for _, t := range tools {
		schema := t.Schema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, llmclient.ToolDef{Name: t.Name, Description: t.Description, Parameters: schema})
	}
	return out
}

func capText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
