package retrieval

import (
	"testing"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/ragkg"
)

func TestFirstUUID_PlainUUID(t *testing.T) {
	id := uuid.New()
	got, ok := firstUUID(id.String())
	if !ok || got != id {
		t.Fatalf("firstUUID(%q) = %v, %v", id, got, ok)
	}
}

func TestFirstUUID_TakesFirstOfSepJoined(t *testing.T) {
	id := uuid.New()
	other := uuid.New()
	got, ok := firstUUID(id.String() + sepMarker + other.String())
	if !ok || got != id {
		t.Fatalf("firstUUID() = %v, %v, want %v", got, ok, id)
	}
}

func TestFirstUUID_StripsAttachmentPrefix(t *testing.T) {
	id := uuid.New()
	got, ok := firstUUID("attachment:" + id.String())
	if !ok || got != id {
		t.Fatalf("firstUUID() = %v, %v, want %v", got, ok, id)
	}
}

func TestFirstUUID_Invalid(t *testing.T) {
	if _, ok := firstUUID("not-a-uuid"); ok {
		t.Fatal("firstUUID() should reject a non-UUID string")
	}
}

func TestAttachmentIDFromFilePath(t *testing.T) {
	entryID := uuid.New()
	attID := uuid.New()
	got, ok := attachmentIDFromFilePath(entryID.String() + "/attachments/" + attID.String())
	if !ok || got != attID {
		t.Fatalf("attachmentIDFromFilePath() = %v, %v, want %v", got, ok, attID)
	}
}

func TestAttachmentIDFromFilePath_NoMarker(t *testing.T) {
	if _, ok := attachmentIDFromFilePath(uuid.New().String()); ok {
		t.Fatal("attachmentIDFromFilePath() should fail without /attachments/ marker")
	}
}

func TestCoerceScore(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{"float64", float64(0.5), 0.5, true},
		{"float32", float32(0.25), 0.25, true},
		{"int", 3, 3, true},
		{"int64", int64(7), 7, true},
		{"numeric string", "1.5", 1.5, true},
		{"bool rejected", true, 0, false},
		{"nil rejected", nil, 0, false},
		{"garbage string", "not-a-number", 0, false},
	}
	for _, tc := range cases {
		got, ok := CoerceScore(tc.in)
		if ok != tc.ok {
			t.Errorf("%s: CoerceScore() ok = %v, want %v", tc.name, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("%s: CoerceScore() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeSource_AttachmentPrefixedDocID(t *testing.T) {
	entryID := uuid.New()
	attID := uuid.New()
	raw := ragkg.Source{
		DocID:    "attachment:" + attID.String(),
		FilePath: entryID.String() + "/attachments/" + attID.String(),
		Score:    0.9,
	}
	out := NormalizeSource(raw)
	if out.Kind != SourceKindAttachment {
		t.Fatalf("NormalizeSource() kind = %v, want attachment", out.Kind)
	}
	if out.AttachmentID == nil || *out.AttachmentID != attID {
		t.Errorf("NormalizeSource() attachment id = %v, want %v", out.AttachmentID, attID)
	}
	if out.EntryID == nil || *out.EntryID != entryID {
		t.Errorf("NormalizeSource() entry id = %v, want %v", out.EntryID, entryID)
	}
}

func TestNormalizeSource_RecoversAttachmentFromFilePathAlone(t *testing.T) {
	entryID := uuid.New()
	attID := uuid.New()
	raw := ragkg.Source{
		DocID:    entryID.String(), // upstream lost the "attachment:" prefix
		FilePath: entryID.String() + "/attachments/" + attID.String(),
	}
	out := NormalizeSource(raw)
	if out.Kind != SourceKindAttachment {
		t.Fatalf("NormalizeSource() kind = %v, want attachment", out.Kind)
	}
	if out.AttachmentID == nil || *out.AttachmentID != attID {
		t.Errorf("NormalizeSource() attachment id = %v, want %v", out.AttachmentID, attID)
	}
}

func TestNormalizeSource_PlainEntry(t *testing.T) {
	entryID := uuid.New()
	raw := ragkg.Source{DocID: entryID.String(), FilePath: entryID.String()}
	out := NormalizeSource(raw)
	if out.Kind != SourceKindEntry {
		t.Fatalf("NormalizeSource() kind = %v, want entry", out.Kind)
	}
	if out.EntryID == nil || *out.EntryID != entryID {
		t.Errorf("NormalizeSource() entry id = %v, want %v", out.EntryID, entryID)
	}
}
