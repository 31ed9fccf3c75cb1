// Package chat is the composition root for one assistant turn: it loads
// history, routes to a skill, runs that skill in whichever mode it
// declares, persists the resulting message, and drives auto-titling.
// Nothing in internal/skill imports this package; it imports skill.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/retrieval"
	"github.com/mindatlas/backend/internal/skill"
	"github.com/mindatlas/backend/internal/store"
)

// ConversationStore is the slice of ConversationRepo the runner needs.
type ConversationStore interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
	LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]model.Message, error)
	SetTitleIfEmpty(ctx context.Context, id uuid.UUID, title string) (bool, error)
}

// AssistantCatalogueStore is the slice of AssistantRepo the runner needs.
type AssistantCatalogueStore interface {
	ListTools(ctx context.Context) ([]model.AssistantTool, error)
	ListSkills(ctx context.Context) ([]model.AssistantSkill, error)
}

const historyWindow = 10

// Runner drives one chat turn end to end.
type Runner struct {
	conversations ConversationStore
	assistants    AssistantCatalogueStore
	router        *skill.Router
	executor      *skill.Executor
	agent         *skill.AgentRunner
	llm           skill.ChatLLM
	log           zerolog.Logger
}

func NewRunner(
	conversations ConversationStore,
	assistants AssistantCatalogueStore,
	router *skill.Router,
	executor *skill.Executor,
	agent *skill.AgentRunner,
	llm skill.ChatLLM,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		conversations: conversations,
		assistants:    assistants,
		router:        router,
		executor:      executor,
		agent:         agent,
		llm:           llm,
		log:           log.With().Str("component", "chat_runner").Logger(),
	}
}

// Turn runs one user message through routing and execution, persists both
// the user and assistant messages, and returns the assistant's reply text.
func (r *Runner) Turn(ctx context.Context, conversationID uuid.UUID, userInput string, emit skill.Emit) (string, error) {
	emit.Safe(skill.Event{Type: skill.EventMessageStart, Payload: map[string]any{"conversation_id": conversationID}})

	if err := r.conversations.AppendMessage(ctx, &model.Message{
		ID: uuid.New(), ConversationID: conversationID, Role: model.RoleUser, Content: userInput,
	}); err != nil {
		r.failStream(emit, err)
		return "", fmt.Errorf("chat: persist user message: %w", err)
	}

	dbTools, dbSkills, err := r.loadCatalogue(ctx)
	if err != nil {
		r.failStream(emit, err)
		return "", err
	}
	cat := skill.BuildCatalogue(dbSkills)

	history, err := r.loadHistory(ctx, conversationID)
	if err != nil {
		r.failStream(emit, err)
		return "", err
	}

	skillName := r.router.Route(ctx, cat, userInput)
	s, ok := cat.Get(skillName)
	if !ok {
		s, _ = cat.Get(skill.GeneralChatSkill)
	}

	answer, err := r.runSkill(ctx, s, userInput, history, dbTools, conversationID, emit)
	if err != nil {
		// Tools that already committed keep their effects; the stream just
		// terminates with an error frame.
		r.failStream(emit, err)
		return "", err
	}

	skillCalls, _ := json.Marshal([]map[string]string{{"skill": s.Name, "mode": string(s.Mode)}})
	if err := r.conversations.AppendMessage(ctx, &model.Message{
		ID: uuid.New(), ConversationID: conversationID, Role: model.RoleAssistant, Content: answer,
		SkillCalls: skillCalls,
	}); err != nil {
		r.log.Error().Err(err).Msg("failed to persist assistant message")
	}

	r.maybeSetTitle(ctx, conversationID, userInput, emit)

	emit.Safe(skill.Event{Type: skill.EventMessageEnd, Payload: map[string]any{"finish_reason": skill.FinishStop}})
	return answer, nil
}

var moderationPattern = regexp.MustCompile(`(?i)blocked|content_filter|policy|safety`)

// isModerationRejection detects an upstream content-moderation refusal by
// keyword; those surface to the user verbatim, with no fallback.
func isModerationRejection(err error) bool {
	return err != nil && moderationPattern.MatchString(err.Error())
}

func (r *Runner) failStream(emit skill.Emit, err error) {
	msg := "assistant turn failed"
	if isModerationRejection(err) {
		msg = "the model declined this request: " + err.Error()
	}
	emit.Safe(skill.Event{Type: skill.EventError, Payload: map[string]any{"message": msg}})
	emit.Safe(skill.Event{Type: skill.EventMessageEnd, Payload: map[string]any{"finish_reason": skill.FinishError}})
}

func (r *Runner) runSkill(ctx context.Context, s model.AssistantSkill, userInput string, history []skill.ChatMessage, dbTools map[string]model.AssistantTool, conversationID uuid.UUID, emit skill.Emit) (string, error) {
	if s.Mode == model.SkillModeAgent {
		return r.agent.Run(ctx, s, userInput, history, dbTools, time.Now(), conversationID, emit)
	}
	return r.executor.Run(ctx, s, userInput, flattenHistory(history), dbTools, emit)
}

func (r *Runner) loadCatalogue(ctx context.Context) (map[string]model.AssistantTool, []model.AssistantSkill, error) {
	tools, err := r.assistants.ListTools(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("chat: list tools: %w", err)
	}
	skills, err := r.assistants.ListSkills(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("chat: list skills: %w", err)
	}
	return skill.IndexToolsByName(tools), skills, nil
}

func (r *Runner) loadHistory(ctx context.Context, conversationID uuid.UUID) ([]skill.ChatMessage, error) {
	msgs, err := r.conversations.LastMessages(ctx, conversationID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}
	out := make([]skill.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			continue
		}
		out = append(out, skill.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out, nil
}

// flattenHistory renders history as plain text for the steps executor,
// which threads it through the template language as a single "history"
// variable rather than a structured message list.
func flattenHistory(history []skill.ChatMessage) string {
	var out string
	for _, h := range history {
		out += h.Role + ": " + h.Content + "\n"
	}
	return out
}

const autoTitlePrompt = "Generate a short title (5 words or fewer, no punctuation at the end) for a conversation that starts with this message:\n%s"

func (r *Runner) maybeSetTitle(ctx context.Context, conversationID uuid.UUID, userInput string, emit skill.Emit) {
	conv, err := r.conversations.Get(ctx, conversationID)
	if err != nil || conv == nil || conv.Title != "" {
		return
	}
	title, err := r.llm.Chat(ctx, []skill.ChatMessage{
		{Role: "user", Content: fmt.Sprintf(autoTitlePrompt, userInput)},
	}, 0.2)
	if err != nil {
		r.log.Warn().Err(err).Msg("auto-title generation failed")
		return
	}
	title = capText(skill.StripCodeFences(title), 50)
	ok, err := r.conversations.SetTitleIfEmpty(ctx, conversationID, title)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to persist auto-generated title")
		return
	}
	if ok {
		emit.Safe(skill.Event{Type: skill.EventTitleUpdated, Payload: map[string]any{"title": title}})
	}
}

func capText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// NewKBSearchTool adapts the retrieval service's Query operation into the
// skill package's reserved kb_search local tool.
func NewKBSearchTool(svc *retrieval.Service, mode ragkg.QueryMode, topK int) skill.LocalToolFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		q, _ := args["query"].(string)
		if q == "" {
			return nil, model.NewValidationError("query", "kb_search requires a non-empty query argument")
		}
		out, err := svc.Query(ctx, q, mode, topK)
		if err != nil {
			return nil, err
		}
		sources := make([]map[string]any, 0, len(out.Sources))
		for _, s := range out.Sources {
			sources = append(sources, map[string]any{
				"doc_id": s.DocID, "text": s.Text, "score": s.Score, "kind": s.Kind,
			})
		}
		return map[string]any{"answer": out.Answer, "sources": sources}, nil
	}
}

var createEntrySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":   map[string]any{"type": "string"},
		"summary": map[string]any{"type": "string"},
		"content": map[string]any{"type": "string"},
	},
	"required": []string{"title"},
}

// NewCreateEntryTool adapts the (out-of-scope) entry storage collaborator's
// write path into smart_capture's create_entry tool step.
func NewCreateEntryTool(writer store.EntryWriter) skill.LocalToolFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		title, _ := args["title"].(string)
		if title == "" {
			return nil, model.NewValidationError("title", "create_entry requires a non-empty title")
		}
		summary, _ := args["summary"].(string)
		content, _ := args["content"].(string)

		entry, err := writer.CreateEntry(ctx, title, summary, content)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": entry.ID.String(), "title": entry.Title}, nil
	}
}

// CreateEntryToolSchema lets the server wiring (internal/server) register
// create_entry with skill.Registry.RegisterLocal without duplicating the
// schema literal.
func CreateEntryToolSchema() map[string]any { return createEntrySchema }
