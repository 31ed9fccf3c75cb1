package retrieval

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/ragkg"
)

// SourceKind identifies what a normalized Source points back to.
type SourceKind string

const (
	SourceKindEntry      SourceKind = "entry"
	SourceKindAttachment SourceKind = "attachment"
)

// Source is a retrieval result after score coercion and doc_id/file_path
// decoration.
type Source struct {
	DocID        string
	FilePath     string
	Score        float64
	Text         string
	Kind         SourceKind
	EntryID      *uuid.UUID
	AttachmentID *uuid.UUID
}

const sepMarker = "<SEP>"

const attachmentDocIDPrefix = "attachment:"

// firstUUID extracts the leading UUID out of a possibly <SEP>-joined
// multi-value file_path field; only the first UUID is kept.
func firstUUID(filePath string) (uuid.UUID, bool) {
	first := filePath
	if idx := strings.Index(filePath, sepMarker); idx >= 0 {
		first = filePath[:idx]
	}
	first = strings.TrimPrefix(first, "attachment:")
	if idx := strings.Index(first, "/attachments/"); idx >= 0 {
		first = first[:idx]
	}
	id, err := uuid.Parse(strings.TrimSpace(first))
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// attachmentIDFromFilePath recovers an attachment UUID from a composite
// file_path ("{entry}/attachments/{attachment}") even if the doc_id lost
// its "attachment:" prefix upstream.
func attachmentIDFromFilePath(filePath string) (uuid.UUID, bool) {
	idx := strings.Index(filePath, "/attachments/")
	if idx < 0 {
		return uuid.UUID{}, false
	}
	rest := filePath[idx+len("/attachments/"):]
	if sepIdx := strings.Index(rest, sepMarker); sepIdx >= 0 {
		rest = rest[:sepIdx]
	}
	id, err := uuid.Parse(strings.TrimSpace(rest))
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// CoerceScore coerces a raw engine score (which may arrive as a string,
// number, or bool) into a float, rejecting NaN/Inf and booleans.
func CoerceScore(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		// bool, nil, and anything else are rejected.
		return 0, false
	}
}

// NormalizeSource decorates a raw engine source with kind/entry_id/
// attachment_id per the doc_id/file_path conventions.
func NormalizeSource(raw ragkg.Source) Source {
	out := Source{DocID: raw.DocID, FilePath: raw.FilePath, Score: raw.Score, Text: raw.Text}

	if strings.HasPrefix(raw.DocID, attachmentDocIDPrefix) {
		out.Kind = SourceKindAttachment
		if id, ok := firstUUID(strings.TrimPrefix(raw.DocID, attachmentDocIDPrefix)); ok {
			out.AttachmentID = &id
		}
		if id, ok := attachmentIDFromFilePath(raw.FilePath); ok {
			out.AttachmentID = &id
		}
		if id, ok := firstUUID(raw.FilePath); ok {
			out.EntryID = &id
		}
		return out
	}

	if id, ok := attachmentIDFromFilePath(raw.FilePath); ok {
		// The upstream engine lost the "attachment:" doc_id prefix; recover
		// attachment linkage from the file_path convention alone.
		out.Kind = SourceKindAttachment
		out.AttachmentID = &id
		if entryID, ok := firstUUID(raw.FilePath); ok {
			out.EntryID = &entryID
		}
		return out
	}

	out.Kind = SourceKindEntry
	if id, ok := firstUUID(raw.DocID); ok {
		out.EntryID = &id
	} else if id, ok := firstUUID(raw.FilePath); ok {
		out.EntryID = &id
	}
	return out
}
