package retrieval

import (
	"testing"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/ragkg"
)

func TestBuildReferences_OrderAndDedup(t *testing.T) {
	entryA := uuid.New()
	entryB := uuid.New()

	sources := []Source{
		{DocID: entryA.String(), FilePath: entryA.String(), EntryID: &entryA, Kind: SourceKindEntry},
		{DocID: entryA.String(), FilePath: entryA.String(), EntryID: &entryA, Kind: SourceKindEntry}, // duplicate entry
		{DocID: entryB.String(), FilePath: entryB.String(), EntryID: &entryB, Kind: SourceKindEntry},
	}
	entities := []ragkg.Entity{{Name: "Go"}, {Name: "Postgres"}}
	relationships := []ragkg.Relationship{{Source: "Go", Type: "uses", Target: "Postgres"}}

	refs := buildReferences(sources, entities, relationships)

	if len(refs) != 5 {
		t.Fatalf("got %d references, want 5 (2 entries + 2 entities + 1 relationship)", len(refs))
	}
	for i, ref := range refs {
		if ref.Index != i+1 {
			t.Errorf("refs[%d].Index = %d, want %d", i, ref.Index, i+1)
		}
	}
	if refs[0].Kind != "entry" || refs[1].Kind != "entry" {
		t.Errorf("entries must come first, got kinds %q %q", refs[0].Kind, refs[1].Kind)
	}
	if refs[2].Kind != "entity" || refs[3].Kind != "entity" {
		t.Errorf("entities must follow entries")
	}
	if refs[4].Kind != "relationship" {
		t.Errorf("relationships must come last, got %q", refs[4].Kind)
	}
	if refs[4].Label != "Go|uses|Postgres" {
		t.Errorf("relationship label = %q", refs[4].Label)
	}
}

func TestBuildReferences_SkipsSourcesWithoutEntry(t *testing.T) {
	refs := buildReferences([]Source{{DocID: "not-a-uuid"}}, nil, nil)
	if len(refs) != 0 {
		t.Fatalf("got %d references, want 0", len(refs))
	}
}
