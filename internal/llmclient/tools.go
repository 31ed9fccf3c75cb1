package llmclient

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// ToolDef describes a callable tool offered to the model, independent of
// the SDK's param types.
type ToolDef struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the tool's arguments.
	Parameters map[string]any
}

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON, as returned by the model
}

// ToolTurn is one round of an agent loop: the assistant's own message
// (content and/or tool calls) so callers can append it verbatim to history
// before appending the tool results.
type ToolTurn struct {
	Content   string
	ToolCalls []ToolCall
}

func toSDKTools(tools []ToolDef) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		params := shared.FunctionParameters(t.Parameters)
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  params,
			},
		})
	}
	return out
}

// AppendAssistantTurn renders an assistant message (with tool calls) into
// the SDK's union param shape so a follow-up request can replay it, mirrored
// by AppendToolResult for each tool's reply.
func AppendAssistantTurn(msgs []openai.ChatCompletionMessageParamUnion, turn ToolTurn) []openai.ChatCompletionMessageParamUnion {
	asst := openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(turn.Content),
		},
	}
	for _, tc := range turn.ToolCalls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
}

func AppendToolResult(msgs []openai.ChatCompletionMessageParamUnion, toolCallID, content string) []openai.ChatCompletionMessageParamUnion {
	return append(msgs, openai.ChatCompletionMessageParamUnion{
		OfTool: &openai.ChatCompletionToolMessageParam{
			ToolCallID: toolCallID,
			Content: openai.ChatCompletionToolMessageParamContentUnion{
				OfString: param.NewOpt(content),
			},
		},
	})
}

// continueWithTools is a minimal continuation path used once a tool round-trip
// needs to replay raw SDK messages rather than the
// package's plain Message list, since tool results/assistant tool_calls
// have no analogue in the simpler Message shape.
func (c *Client) continueWithTools(ctx context.Context, raw []openai.ChatCompletionMessageParamUnion, tools []ToolDef, temperature float64) (ToolTurn, []openai.ChatCompletionMessageParamUnion, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.chatModel),
		Messages:    raw,
		Tools:       toSDKTools(tools),
		Temperature: param.NewOpt(temperature),
	})
	if err != nil {
		return ToolTurn{}, raw, err
	}
	if len(resp.Choices) == 0 {
		return ToolTurn{}, raw, fmt.Errorf("llmclient: no choices returned")
	}
	msg := resp.Choices[0].Message
	turn := ToolTurn{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return turn, AppendAssistantTurn(raw, turn), nil
}

// AgentSession threads raw SDK message history across Step calls so tool
// calls and results survive between rounds of the agent loop.
type AgentSession struct {
	client *Client
	raw    []openai.ChatCompletionMessageParamUnion
	tools  []ToolDef
}

func (c *Client) NewAgentSession(msgs []Message, tools []ToolDef) *AgentSession {
	return &AgentSession{client: c, raw: toSDKMessages(msgs), tools: tools}
}

// Step issues one round of the agent loop against the accumulated history.
func (s *AgentSession) Step(ctx context.Context, temperature float64) (ToolTurn, error) {
	turn, raw, err := s.client.continueWithTools(ctx, s.raw, s.tools, temperature)
	if err != nil {
		return ToolTurn{}, err
	}
	s.raw = raw
	return turn, nil
}

// AddToolResult appends a tool role message carrying one tool call's result.
func (s *AgentSession) AddToolResult(toolCallID, content string) {
	s.raw = AppendToolResult(s.raw, toolCallID, content)
}

// StreamFinal streams the final assistant answer once no more tool calls
// are requested.
func (s *AgentSession) StreamFinal(ctx context.Context) (<-chan StreamDelta, func() error) {
	out := make(chan StreamDelta)
	var streamErr error

	stream := s.client.sdk.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(s.client.chatModel),
		Messages:    s.raw,
		Temperature: param.NewOpt(temperatureDefault),
	})

	go func() {
		defer close(out)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				select {
				case out <- StreamDelta{Content: delta}:
				case <-ctx.Done():
					streamErr = ctx.Err()
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			streamErr = err
		}
	}()

	return out, func() error { return streamErr }
}

const temperatureDefault = 0.7
