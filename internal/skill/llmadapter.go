package skill

import (
	"context"

	"github.com/mindatlas/backend/internal/llmclient"
)

// LLMAdapter implements this package's LLM interface over the concrete
// OpenAI-compatible client, keeping internal/llmclient's SDK-backed types
// out of the router/executor's own surface.
type LLMAdapter struct{ client *llmclient.Client }

func NewLLMAdapter(c *llmclient.Client) *LLMAdapter { return &LLMAdapter{client: c} }

func (a *LLMAdapter) Chat(ctx context.Context, msgs []ChatMessage, temperature float64) (string, error) {
	return a.client.Chat(ctx, toLLMMessages(msgs), temperature)
}

func (a *LLMAdapter) ChatStream(ctx context.Context, msgs []ChatMessage, temperature float64) (<-chan StreamDelta, func() error) {
	deltas, errFn := a.client.ChatStream(ctx, toLLMMessages(msgs), temperature)
	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		for d := range deltas {
			out <- StreamDelta{Content: d.Content}
		}
	}()
	return out, errFn
}

func toLLMMessages(msgs []ChatMessage) []llmclient.Message {
	out := make([]llmclient.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llmclient.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
