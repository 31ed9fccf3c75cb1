package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
)

// StreamDelta is one incremental chunk of a streaming chat reply, mirrored
// from llmclient.StreamDelta so this package stays SDK-agnostic.
type StreamDelta struct{ Content string }

// LLM is the full surface the steps executor needs: one-shot completions
// (tool-arg generation, routing) and streaming completions (analysis and
// summary steps).
type LLM interface {
	Chat(ctx context.Context, msgs []ChatMessage, temperature float64) (string, error)
	ChatStream(ctx context.Context, msgs []ChatMessage, temperature float64) (<-chan StreamDelta, func() error)
}

// Executor runs a skill in "steps" mode: analysis, tool, and
// summary steps in order, threading a StepContext between them.
type Executor struct {
	llm      LLM
	registry *Registry
	log      zerolog.Logger
}

func NewExecutor(llm LLM, registry *Registry, log zerolog.Logger) *Executor {
	return &Executor{llm: llm, registry: registry, log: log.With().Str("component", "skill_executor").Logger()}
}

// Run executes every step of s.Steps in order and returns the rendered
// summary text. dbTools is the caller's pre-loaded AssistantTool catalogue
// (indexed by IndexToolsByName), used to resolve each tool step.
func (e *Executor) Run(ctx context.Context, s model.AssistantSkill, userInput, history string, dbTools map[string]model.AssistantTool, emit Emit) (string, error) {
	emit.Safe(Event{Type: EventSkillStart, Payload: map[string]any{"skill": s.Name}})

	sctx := NewStepContext(userInput, history)
	var traceEntries []map[string]any

	for _, step := range s.Steps {
		switch step.Type {
		case model.StepAnalysis:
			result, _, err := e.runAnalysis(ctx, step, sctx, emit)
			if err != nil {
				emit.Safe(Event{Type: EventSkillEnd, Payload: map[string]any{"skill": s.Name, "error": err.Error()}})
				return "", err
			}
			if step.IncludeInSummary {
				traceEntries = append(traceEntries, map[string]any{"step": step.StepOrder, "type": "analysis", "result": result})
			}

		case model.StepTool:
			result, toolErr := e.runTool(ctx, step, sctx, dbTools, emit)
			if step.IncludeInSummary {
				entry := map[string]any{"step": step.StepOrder, "type": "tool", "tool": toolNameOf(step)}
				if toolErr != nil {
					entry["status"] = "error"
					entry["error"] = toolErr.Error()
				} else {
					entry["status"] = "ok"
					entry["result"] = result
				}
				traceEntries = append(traceEntries, entry)
			}

		case model.StepSummary:
			summary, err := e.runSummary(ctx, s, traceEntries, emit)
			if err != nil {
				emit.Safe(Event{Type: EventSkillEnd, Payload: map[string]any{"skill": s.Name, "error": err.Error()}})
				return "", err
			}
			emit.Safe(Event{Type: EventSkillEnd, Payload: map[string]any{"skill": s.Name}})
			return summary, nil
		}
	}

	emit.Safe(Event{Type: EventSkillEnd, Payload: map[string]any{"skill": s.Name}})
	return "", nil
}

func toolNameOf(step model.AssistantSkillStep) string {
	if step.ToolName != nil {
		return *step.ToolName
	}
	return ""
}

// runAnalysis renders the step's instruction through the restricted
// template language, streams the model's reply, and (for output_mode=json)
// extracts and whitelists fields into the step context.
func (e *Executor) runAnalysis(ctx context.Context, step model.AssistantSkillStep, sctx *StepContext, emit Emit) (result, raw string, err error) {
	emit.Safe(Event{Type: EventAnalysisStart, Payload: map[string]any{"step": step.StepOrder}})

	instruction := ""
	if step.Instruction != nil {
		instruction = *step.Instruction
	}
	nodes := Parse(instruction)
	if verr := Validate(nodes, ValidateOpts{
		IsAnalysis:    true,
		CurrentStep:   step.StepOrder,
		AllowedFields: collectAllowedFields(sctx, step.StepOrder),
		JSONSteps:     sctx.JSONSteps(),
	}); verr != nil {
		return "", "", verr
	}
	rendered, rerr := RenderText(nodes, sctx.Lookup, false)
	if rerr != nil {
		return "", "", rerr
	}

	stream, errFn := e.llm.ChatStream(ctx, []ChatMessage{{Role: "user", Content: rendered}}, 0.2)
	var b strings.Builder
	for delta := range stream {
		b.WriteString(delta.Content)
		emit.Safe(Event{Type: EventAnalysisDelta, Payload: map[string]any{"step": step.StepOrder, "delta": delta.Content}})
	}
	if err := errFn(); err != nil {
		return "", "", err
	}
	raw = b.String()

	if step.OutputMode != nil && *step.OutputMode == model.OutputJSON {
		var obj map[string]any
		if uerr := json.Unmarshal([]byte(StripCodeFences(raw)), &obj); uerr != nil {
			// Missing or invalid json means no fields extracted, not a
			// hard failure.
			obj = map[string]any{}
		}
		filtered := FilterFields(obj, step.OutputFields)
		for k, v := range filtered {
			sctx.SetStepField(step.StepOrder, k, stringifyFieldValue(v))
		}
		result = raw
	} else {
		result = raw
	}

	sctx.SetStepResult(step.StepOrder, result, raw)
	emit.Safe(Event{Type: EventAnalysisEnd, Payload: map[string]any{"step": step.StepOrder}})
	return result, raw, nil
}

func stringifyFieldValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func collectAllowedFields(sctx *StepContext, currentStep int) map[int]map[string]bool {
	out := make(map[int]map[string]bool)
	for i := 1; i < currentStep; i++ {
		if fields := sctx.AllowedFields(i); fields != nil {
			out[i] = fields
		}
	}
	return out
}

// runTool builds the step's arguments per ArgsFrom, resolves the tool, and
// invokes it inside the caller's DB session boundary.
func (e *Executor) runTool(ctx context.Context, step model.AssistantSkillStep, sctx *StepContext, dbTools map[string]model.AssistantTool, emit Emit) (map[string]any, error) {
	name := toolNameOf(step)
	emit.Safe(Event{Type: EventToolCallStart, Payload: map[string]any{"step": step.StepOrder, "tool": name}})

	tool, ok := e.registry.Resolve(name, dbTools)
	if !ok {
		err := model.NewNotFoundError("tool_name", name)
		emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"step": step.StepOrder, "tool": name, "error": err.Error()}})
		return nil, err
	}

	args, err := e.buildToolArgs(ctx, step, sctx, tool)
	if err != nil {
		emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"step": step.StepOrder, "tool": name, "error": err.Error()}})
		return nil, err
	}

	result, err := tool.Call(ctx, args)
	if err != nil {
		emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"step": step.StepOrder, "tool": name, "error": err.Error()}})
		return nil, err
	}

	raw, _ := json.Marshal(result)
	sctx.SetStepResult(step.StepOrder, string(raw), string(raw))
	emit.Safe(Event{Type: EventToolCallEnd, Payload: map[string]any{"step": step.StepOrder, "tool": name}})
	return result, nil
}

func (e *Executor) buildToolArgs(ctx context.Context, step model.AssistantSkillStep, sctx *StepContext, tool ResolvedTool) (map[string]any, error) {
	source := model.ArgsFromContext
	if step.ArgsFrom != nil {
		source = *step.ArgsFrom
	}

	switch source {
	case model.ArgsFromJSON:
		tpl := ""
		if step.ArgsTemplate != nil {
			tpl = *step.ArgsTemplate
		}
		nodes := Parse(tpl)
		if verr := Validate(nodes, ValidateOpts{
			IsAnalysis:    false,
			CurrentStep:   step.StepOrder,
			AllowedFields: collectAllowedFields(sctx, step.StepOrder),
			JSONSteps:     sctx.JSONSteps(),
		}); verr != nil {
			return nil, verr
		}
		obj, err := RenderJSONObject(nodes, sctx.Lookup)
		if err != nil {
			return nil, err
		}
		return filterBySchema(obj, tool.Schema), nil

	case model.ArgsFromCustom:
		tpl := ""
		if step.ArgsTemplate != nil {
			tpl = *step.ArgsTemplate
		}
		nodes := Parse(tpl)
		prompt, err := RenderText(nodes, sctx.Lookup, false)
		if err != nil {
			return nil, err
		}
		return e.generateArgsViaLLM(ctx, prompt, tool)

	case model.ArgsFromPrevious, model.ArgsFromContext:
		source := sctx.userInput
		if last := sctx.LastStep(); last > 0 {
			if v, ok := sctx.Lookup(fmt.Sprintf("step%d_result", last)); ok {
				source = v
			}
		}
		prompt := fmt.Sprintf("Generate JSON arguments for tool %q from this source text:\n%s", tool.Name, source)
		return e.generateArgsViaLLM(ctx, prompt, tool)
	}
	return map[string]any{}, nil
}

func (e *Executor) generateArgsViaLLM(ctx context.Context, prompt string, tool ResolvedTool) (map[string]any, error) {
	reply, err := e.llm.Chat(ctx, []ChatMessage{
		{Role: "system", Content: "Respond with a single JSON object of tool arguments, no commentary."},
		{Role: "user", Content: prompt},
	}, 0)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), &obj); err != nil {
		return nil, model.NewValidationError("args", "model did not return a JSON object")
	}
	return filterBySchema(obj, tool.Schema), nil
}

func filterBySchema(args map[string]any, schema map[string]any) map[string]any {
	if schema == nil {
		return args
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return args
	}
	out := make(map[string]any, len(props))
	for k := range props {
		if v, ok := args[k]; ok {
			out[k] = v
		}
	}
	return out
}

// runSummary streams a user-visible recap built from the scrubbed/pruned
// trace.
func (e *Executor) runSummary(ctx context.Context, s model.AssistantSkill, trace []map[string]any, emit Emit) (string, error) {
	scrubbed := ScrubAndPrune(traceAsAny(trace))
	traceJSON, _ := json.Marshal(scrubbed)

	prompt := fmt.Sprintf("Summarize what skill %q just did for the user, in plain language, based on this execution trace:\n%s", s.Name, traceJSON)
	stream, errFn := e.llm.ChatStream(ctx, []ChatMessage{{Role: "user", Content: prompt}}, 0.3)

	var b strings.Builder
	for delta := range stream {
		b.WriteString(delta.Content)
		emit.Safe(Event{Type: EventContentDelta, Payload: map[string]any{"delta": delta.Content}})
	}
	if err := errFn(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func traceAsAny(trace []map[string]any) any {
	out := make([]any, len(trace))
	for i, t := range trace {
		out[i] = t
	}
	return out
}
