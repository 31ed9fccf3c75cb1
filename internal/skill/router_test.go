package skill

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
)

type fakeChatLLM struct {
	reply string
	err   error
}

func (f fakeChatLLM) Chat(ctx context.Context, msgs []ChatMessage, temperature float64) (string, error) {
	return f.reply, f.err
}

func routeWith(t *testing.T, llm ChatLLM, dbSkills []model.AssistantSkill, utterance string) string {
	t.Helper()
	r := NewRouter(llm, zerolog.Nop())
	return r.Route(context.Background(), BuildCatalogue(dbSkills), utterance)
}

func TestRoute_PicksCatalogueSkill(t *testing.T) {
	got := routeWith(t, fakeChatLLM{reply: `{"skills":["smart_capture"]}`}, nil, "帮我记录一下今天学了 Python 装饰器")
	if got != "smart_capture" {
		t.Fatalf("Route() = %q, want smart_capture", got)
	}
}

func TestRoute_FallsBackOnModelError(t *testing.T) {
	got := routeWith(t, fakeChatLLM{err: errors.New("backend down")}, nil, "你好")
	if got != GeneralChatSkill {
		t.Fatalf("Route() = %q, want %q", got, GeneralChatSkill)
	}
}

func TestRoute_FallsBackOnUnparseableReply(t *testing.T) {
	for _, reply := range []string{
		"not json at all",
		`{"skills":[]}`,
		`{"skills":["a","b"]}`,
	} {
		got := routeWith(t, fakeChatLLM{reply: reply}, nil, "hello")
		if got != GeneralChatSkill {
			t.Errorf("Route(reply=%q) = %q, want %q", reply, got, GeneralChatSkill)
		}
	}
}

func TestRoute_FallsBackOnUnknownSkillName(t *testing.T) {
	got := routeWith(t, fakeChatLLM{reply: `{"skills":["no_such_skill"]}`}, nil, "hello")
	if got != GeneralChatSkill {
		t.Fatalf("Route() = %q, want %q", got, GeneralChatSkill)
	}
}

func TestRoute_StripsCodeFences(t *testing.T) {
	got := routeWith(t, fakeChatLLM{reply: "```json\n{\"skills\":[\"general_chat\"]}\n```"}, nil, "你好")
	if got != GeneralChatSkill {
		t.Fatalf("Route() = %q, want %q", got, GeneralChatSkill)
	}
}

func TestBuildCatalogue_DisabledDBRowHidesSystemSkill(t *testing.T) {
	cat := BuildCatalogue([]model.AssistantSkill{
		{Name: "smart_capture", IsSystem: true, Enabled: false},
	})
	if _, ok := cat.Get("smart_capture"); ok {
		t.Fatal("disabled DB row should hide the system skill")
	}
	if _, ok := cat.Get(GeneralChatSkill); !ok {
		t.Fatal("general_chat must survive")
	}
}

func TestBuildCatalogue_GeneralChatCannotBeDisabled(t *testing.T) {
	cat := BuildCatalogue([]model.AssistantSkill{
		{Name: GeneralChatSkill, IsSystem: true, Enabled: false},
	})
	if _, ok := cat.Get(GeneralChatSkill); !ok {
		t.Fatal("general_chat must stay selectable even when its DB row disables it")
	}
}

func TestBuildCatalogue_EnabledDBSkillIsAdded(t *testing.T) {
	cat := BuildCatalogue([]model.AssistantSkill{
		{Name: "weather_report", Enabled: true, Mode: model.SkillModeAgent},
		{Name: "hidden_skill", Enabled: false},
	})
	if _, ok := cat.Get("weather_report"); !ok {
		t.Fatal("enabled DB skill should be visible")
	}
	if _, ok := cat.Get("hidden_skill"); ok {
		t.Fatal("disabled DB skill should be hidden")
	}
}

func TestBuildCatalogue_DBOverrideReplacesSystemSkill(t *testing.T) {
	override := model.AssistantSkill{Name: "smart_capture", Description: "customized capture", IsSystem: true, Enabled: true}
	cat := BuildCatalogue([]model.AssistantSkill{override})
	s, ok := cat.Get("smart_capture")
	if !ok {
		t.Fatal("override should remain visible")
	}
	if s.Description != "customized capture" {
		t.Fatalf("Get() description = %q, want the DB override", s.Description)
	}
}
