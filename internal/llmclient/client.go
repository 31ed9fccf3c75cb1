// Package llmclient wraps the official OpenAI Go SDK for MindAtlas's
// OpenAI-compatible chat/embedding backend. Any backend speaking the
// OpenAI wire contract works; only base URL and key differ.
package llmclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Message is a role/content pair, independent of the SDK's param types so
// callers outside this package never import openai-go directly.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Client wraps an openai.Client bound to one base URL/key.
type Client struct {
	sdk         openai.Client
	chatModel   string
	embedModel  string
	rerankModel string
}

// New wires an OpenAI-compatible backend. baseURL is the bare host base;
// the /v1 path segment the wire contract requires is appended here so the
// same config value serves chat, embeddings, and rerank.
func New(baseURL, apiKey, chatModel, embedModel, rerankModel string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/v1"))
	}
	return &Client{
		sdk:         openai.NewClient(opts...),
		chatModel:   chatModel,
		embedModel:  embedModel,
		rerankModel: rerankModel,
	}
}

func toSDKMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Chat issues a non-streaming chat completion at temperature.
func (c *Client) Chat(ctx context.Context, msgs []Message, temperature float64) (string, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.chatModel),
		Messages:    toSDKMessages(msgs),
		Temperature: param.NewOpt(temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmclient: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamDelta is one incremental chunk of a streaming chat completion.
type StreamDelta struct {
	Content string
	Done    bool
}

// ChatStream issues a streaming chat completion. Deltas are pushed onto
// the returned channel, which is closed when the stream ends or ctx is
// canceled; the first error (if any) is returned after the channel closes.
func (c *Client) ChatStream(ctx context.Context, msgs []Message, temperature float64) (<-chan StreamDelta, func() error) {
	out := make(chan StreamDelta)
	var streamErr error

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.chatModel),
		Messages:    toSDKMessages(msgs),
		Temperature: param.NewOpt(temperature),
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

// Embed calls the embeddings endpoint for a batch of texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	inputs := make([]string, len(texts))
	copy(inputs, texts)

	resp, err := c.sdk.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
