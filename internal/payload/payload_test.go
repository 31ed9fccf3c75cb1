package payload

import (
	"strings"
	"testing"

	"github.com/mindatlas/backend/internal/model"
)

func strPtr(s string) *string { return &s }

func TestBuild_OmitsEmptySections(t *testing.T) {
	got := Build(Entry{
		Title:    "Trip to Kyoto",
		TypeName: "Journal",
		TypeCode: "journal",
	})
	want := "Title: Trip to Kyoto\nType: Journal (journal)"
	if got != want {
		t.Errorf("Build() = %q, want %q", got, want)
	}
}

func TestBuild_IncludesTagsSummaryAndContent(t *testing.T) {
	got := Build(Entry{
		Title:    "Trip to Kyoto",
		Summary:  strPtr("A short trip"),
		Content:  strPtr("Day one was rainy."),
		TypeName: "Journal",
		TypeCode: "journal",
		TagNames: []string{"travel", "japan"},
	})
	if !strings.Contains(got, "Tags: travel, japan") {
		t.Errorf("Build() missing tags line: %q", got)
	}
	if !strings.Contains(got, "Summary:\nA short trip") {
		t.Errorf("Build() missing summary section: %q", got)
	}
	if !strings.Contains(got, "Content:\nDay one was rainy.") {
		t.Errorf("Build() missing content section: %q", got)
	}
}

func TestBuild_WhitespaceOnlySummaryIsOmitted(t *testing.T) {
	got := Build(Entry{
		Title:    "Note",
		Summary:  strPtr("   \n  "),
		TypeName: "Note",
		TypeCode: "note",
	})
	if strings.Contains(got, "Summary:") {
		t.Errorf("Build() should omit whitespace-only summary: %q", got)
	}
}

func TestIndexable_DelegatesToModel(t *testing.T) {
	allEnabled := model.EntryType{GraphEnabled: true, AIEnabled: true, Enabled: true}
	if !Indexable(allEnabled) {
		t.Errorf("Indexable() = false, want true when all flags are set")
	}

	disabled := model.EntryType{GraphEnabled: true, AIEnabled: true, Enabled: false}
	if Indexable(disabled) {
		t.Errorf("Indexable() = true, want false for disabled type")
	}

	noAI := model.EntryType{GraphEnabled: true, AIEnabled: false, Enabled: true}
	if Indexable(noAI) {
		t.Errorf("Indexable() = true, want false when AI is disabled")
	}
}
