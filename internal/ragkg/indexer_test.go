package ragkg

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/ragruntime"
)

func TestDocIDAndFilePath_Entry(t *testing.T) {
	entryID := uuid.New()
	docID, filePath := docIDAndFilePath(IndexRequest{EntryID: entryID})
	if docID != entryID.String() || filePath != entryID.String() {
		t.Errorf("docIDAndFilePath() = (%q, %q)", docID, filePath)
	}
}

func TestDocIDAndFilePath_Attachment(t *testing.T) {
	entryID := uuid.New()
	attID := uuid.New()
	docID, filePath := docIDAndFilePath(IndexRequest{EntryID: entryID, AttachmentID: &attID})
	if docID != "attachment:"+attID.String() {
		t.Errorf("docIDAndFilePath() docID = %q", docID)
	}
	if filePath != entryID.String()+"/attachments/"+attID.String() {
		t.Errorf("docIDAndFilePath() filePath = %q", filePath)
	}
}

func TestClassify_Timeout(t *testing.T) {
	result := classify(ragruntime.ErrTimeout)
	if !result.Retryable || result.ErrorKind != model.ErrorKindTransient {
		t.Errorf("classify(timeout) = %+v", result)
	}
}

func TestClassify_DependencyErrorPreservesKindAndRetryable(t *testing.T) {
	de := model.NewDependencyError(model.ErrorKindConfig, false, "bad config", errors.New("boom"))
	result := classify(de)
	if result.OK {
		t.Fatal("classify() should not report OK for an error")
	}
	if result.ErrorKind != model.ErrorKindConfig || result.Retryable {
		t.Errorf("classify(config error) = %+v, want non-retryable config", result)
	}
}

func TestClassify_UnknownErrorDefaultsToTransientRetryable(t *testing.T) {
	result := classify(errors.New("some opaque failure"))
	if !result.Retryable || result.ErrorKind != model.ErrorKindTransient {
		t.Errorf("classify(unknown) = %+v, want transient/retryable", result)
	}
}

func TestDispatch_DisabledSkipsEngine(t *testing.T) {
	ix := NewIndexer(nil, false)
	result := ix.Dispatch(context.Background(), IndexRequest{Op: OpUpsert, EntryID: uuid.New(), Payload: "x"})
	if !result.OK {
		t.Errorf("Dispatch() with enabled=false should short-circuit OK, got %+v", result)
	}
}

func TestDispatch_UpsertRequiresPayload(t *testing.T) {
	ix := &Indexer{enabled: true}
	result := ix.Dispatch(context.Background(), IndexRequest{Op: OpUpsert, EntryID: uuid.New()})
	if result.OK || result.Retryable {
		t.Errorf("Dispatch() with empty payload should be a non-retryable failure, got %+v", result)
	}
	if result.ErrorKind != model.ErrorKindPayload {
		t.Errorf("Dispatch() error kind = %v, want payload", result.ErrorKind)
	}
}
