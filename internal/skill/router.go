package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ChatLLM is the narrow surface the router and steps/summary stages need
// from internal/llmclient, kept as an interface so tests can substitute a
// fake model.
type ChatLLM interface {
	Chat(ctx context.Context, msgs []ChatMessage, temperature float64) (string, error)
}

// ChatMessage mirrors llmclient.Message so this package doesn't import the
// SDK-backed client package directly.
type ChatMessage struct {
	Role    string
	Content string
}

type routeResponse struct {
	Skills []string `json:"skills"`
}

// Router implements the skill router: an LLM-based intent
// classifier that returns exactly one skill name, falling back to
// general_chat on any failure.
type Router struct {
	llm ChatLLM
	log zerolog.Logger
}

func NewRouter(llm ChatLLM, log zerolog.Logger) *Router {
	return &Router{llm: llm, log: log.With().Str("component", "skill_router").Logger()}
}

// Route prompts the LLM at temperature 0 with the catalogue and the user's
// utterance, and requires a `{"skills":[name]}` reply naming exactly one
// catalogue member. Parse failure, an unknown name, or a model error all
// fall back to general_chat.
func (r *Router) Route(ctx context.Context, cat *Catalogue, utterance string) string {
	prompt := r.buildPrompt(cat, utterance)
	reply, err := r.llm.Chat(ctx, []ChatMessage{
		{Role: "system", Content: "You are an intent router. Reply with strict JSON only."},
		{Role: "user", Content: prompt},
	}, 0)
	if err != nil {
		r.log.Warn().Err(err).Msg("router LLM call failed, falling back to general_chat")
		return GeneralChatSkill
	}

	var parsed routeResponse
	if err := json.Unmarshal([]byte(StripCodeFences(reply)), &parsed); err != nil || len(parsed.Skills) != 1 {
		r.log.Warn().Str("reply", reply).Msg("router reply did not parse to exactly one skill, falling back to general_chat")
		return GeneralChatSkill
	}

	name := parsed.Skills[0]
	if _, ok := cat.Get(name); !ok {
		r.log.Warn().Str("skill", name).Msg("router chose a skill outside the visible catalogue, falling back to general_chat")
		return GeneralChatSkill
	}
	return name
}

func (r *Router) buildPrompt(cat *Catalogue, utterance string) string {
	var b strings.Builder
	b.WriteString("Skill catalogue:\n")
	for name, desc := range cat.Descriptions() {
		fmt.Fprintf(&b, "- %s: %s\n", name, desc)
	}
	b.WriteString("\nUser message:\n")
	b.WriteString(utterance)
	b.WriteString("\n\nRespond with JSON: {\"skills\": [\"<one skill name from the catalogue above>\"]}")
	return b.String()
}
