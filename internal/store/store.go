// Package store defines the minimal persistence contracts MindAtlas's
// indexing pipeline needs from the entry/tag/type CRUD collaborator: only
// enough surface to read current entry state and type enablement flags
// when translating or guarding an outbox event.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
)

// EntryReader is the read contract the worker pool needs against the
// (out-of-scope) entry storage collaborator.
type EntryReader interface {
	// GetEntry returns the current entry, or ok=false if it has been deleted.
	GetEntry(ctx context.Context, id uuid.UUID) (entry *model.Entry, ok bool, err error)
	GetEntryType(ctx context.Context, id uuid.UUID) (*model.EntryType, error)
}

// EntryWriter is the minimal write surface the smart_capture skill's
// create_entry tool step needs against the (out-of-scope) entry storage
// collaborator.
type EntryWriter interface {
	CreateEntry(ctx context.Context, title, summary, content string) (*model.Entry, error)
}

// RelationTypeReader exposes enabled relation-type codes for the retrieval
// service's recommend_entry_relations prompt.
type RelationTypeReader interface {
	ListEnabledRelationTypes(ctx context.Context) ([]model.RelationType, error)
}

// RelationReader exposes the existing edges for an entry, so
// recommend_entry_relations can honor exclude_existing.
type RelationReader interface {
	// ListRelatedEntryIDs returns the set of entry IDs already connected to
	// entryID by a Relation, in either direction.
	ListRelatedEntryIDs(ctx context.Context, entryID uuid.UUID) (map[uuid.UUID]bool, error)
}

// AttachmentReader/Writer is the minimal attachment surface the attachment
// parse pipeline and attachment index worker need.
type AttachmentReader interface {
	// GetAttachment returns (nil, nil) if the attachment has been deleted.
	GetAttachment(ctx context.Context, id uuid.UUID) (*model.Attachment, error)
}

type AttachmentWriter interface {
	SetParseStatus(ctx context.Context, id uuid.UUID, status model.ParseStatus) error
	SetParsedText(ctx context.Context, id uuid.UUID, text string) error
}
