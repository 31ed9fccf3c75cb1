package ragkg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/ragruntime"
)

// Op mirrors outbox.Op without importing the outbox package, keeping this
// adapter usable independently of the Postgres-backed outbox.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// IndexRequest is the adapter's input.
type IndexRequest struct {
	Op      Op
	EntryID uuid.UUID
	// AttachmentID is set for attachment upsert/delete requests; its
	// doc_id/file_path follow the "attachment:{id}" convention instead of
	// the bare entry UUID.
	AttachmentID *uuid.UUID
	Payload      string // rendered document text (payload.Build output), required for upsert
}

// IndexResult is the adapter's output.
type IndexResult struct {
	OK        bool
	Retryable bool
	ErrorKind model.ErrorKind
	Detail    string
}

func ok() IndexResult { return IndexResult{OK: true} }

func failure(kind model.ErrorKind, retryable bool, detail string) IndexResult {
	return IndexResult{OK: false, Retryable: retryable, ErrorKind: kind, Detail: detail}
}

// Indexer translates IndexRequests into Engine calls through the RAG
// runtime host, enforcing the doc_id/file_path conventions and the
// feature-flag fast-skip.
type Indexer struct {
	runtime *ragruntime.Runtime[Engine]
	enabled bool
}

func NewIndexer(rt *ragruntime.Runtime[Engine], enabled bool) *Indexer {
	return &Indexer{runtime: rt, enabled: enabled}
}

// docID and filePath implement the conventions: entries use their bare
// UUID for both; attachments use "attachment:{id}" / "{entry}/attachments/{id}".
func docIDAndFilePath(req IndexRequest) (docID, filePath string) {
	if req.AttachmentID != nil {
		return "attachment:" + req.AttachmentID.String(), req.EntryID.String() + "/attachments/" + req.AttachmentID.String()
	}
	return req.EntryID.String(), req.EntryID.String()
}

// Dispatch runs req against the engine, via the RAG runtime's hard-timeout
// Submit/await.
func (ix *Indexer) Dispatch(ctx context.Context, req IndexRequest) IndexResult {
	if !ix.enabled {
		return ok()
	}

	docID, filePath := docIDAndFilePath(req)

	switch req.Op {
	case OpDelete:
		err := ix.runtime.Submit(ctx, func(rctx context.Context, engine Engine) error {
			return engine.DeleteByDocID(rctx, docID)
		})
		if err != nil {
			return classify(err)
		}
		return ok()

	case OpUpsert:
		if req.Payload == "" {
			return failure(model.ErrorKindPayload, false, "upsert requires non-empty payload text")
		}
		err := ix.runtime.Submit(ctx, func(rctx context.Context, engine Engine) error {
			return engine.Insert(rctx, req.Payload, docID, filePath)
		})
		if err != nil {
			return classify(err)
		}
		return ok()

	default:
		return failure(model.ErrorKindPayload, false, fmt.Sprintf("unknown op %q", req.Op))
	}
}

// classify maps a runtime/engine error to an IndexResult, honoring
// "payload/config errors are non-retryable".
func classify(err error) IndexResult {
	if ragruntime.IsTimeout(err) {
		// Timeouts aren't a distinct error_kind in the adapter's contract;
		// they are transient and retryable.
		return failure(model.ErrorKindTransient, true, err.Error())
	}

	var de *model.DependencyError
	if errors.As(err, &de) {
		return failure(de.Kind, de.Retryable, de.Error())
	}

	// Unclassified engine errors default to transient/retryable: the
	// engine is an opaque black box and most of its failures (network,
	// backend overload) are worth retrying.
	return failure(model.ErrorKindTransient, true, err.Error())
}
