// Package outbox implements the transactional outbox store:
// enqueue/claim/ack against the entry, attachment-index, and
// attachment-parse outbox tables, with the coalescing and staleness-guard
// policies the leased worker pool (internal/worker) depends on.
package outbox

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Op is the kind of indexing operation an outbox row represents.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Status is the outbox row lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusDead       Status = "dead"
)

// EntryRow is one row of entry_index_outbox.
type EntryRow struct {
	ID             int64
	EntryID        uuid.UUID
	Op             Op
	EntryUpdatedAt *time.Time
	Status         Status
	Attempts       int
	AvailableAt    time.Time
	LockedAt       *time.Time
	LockedBy       *string
	LastError      *string
	CreatedAt      time.Time
}

// AttachmentIndexRow is one row of attachment_index_outbox.
type AttachmentIndexRow struct {
	ID           int64
	AttachmentID uuid.UUID
	EntryID      uuid.UUID
	Op           Op
	Status       Status
	Attempts     int
	AvailableAt  time.Time
	LockedAt     *time.Time
	LockedBy     *string
	LastError    *string
}

// AttachmentParseRow is one row of attachment_parse_outbox.
type AttachmentParseRow struct {
	ID           int64
	AttachmentID uuid.UUID
	Status       Status
	Attempts     int
	AvailableAt  time.Time
	LockedAt     *time.Time
	LockedBy     *string
	LastError    *string
}

// EntryStore is the entry_index_outbox contract: enqueue runs inside the caller's business-write transaction,
// coalescing an active upsert for the same entry rather than duplicating it.
type EntryStore interface {
	// EnqueueUpsert coalesces into any active (pending|processing) upsert
	// for entryID: advances entry_updated_at, clears last_error, and pulls
	// available_at forward to now if it was in the future. Otherwise it
	// inserts a new pending row.
	EnqueueUpsert(ctx context.Context, entryID uuid.UUID, entryUpdatedAt time.Time) error
	EnqueueDelete(ctx context.Context, entryID uuid.UUID) error

	ClaimBatch(ctx context.Context, workerID string, n int, lockTTL time.Duration, maxAttempts int) ([]EntryRow, error)
	MarkSucceeded(ctx context.Context, id int64, workerID string) error
	MarkRetry(ctx context.Context, id int64, workerID string, availableAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, id int64, workerID string, lastErr string) error
	// MarkPending resets the row to pending/attempts=0, used for the
	// coalescing re-queue when an entry's signature changed mid-process.
	MarkPending(ctx context.Context, id int64, workerID string, availableAt time.Time) error
	// HasNewerActiveUpsert reports whether an active (pending|processing)
	// upsert row for entryID, other than excludeID, was created after
	// afterCreatedAt. The staleness guard uses this to decide
	// whether an outdated snapshot should be dropped (a newer row will
	// reprocess current state) or processed as-is (it's the only row).
	HasNewerActiveUpsert(ctx context.Context, entryID uuid.UUID, excludeID int64, afterCreatedAt time.Time) (bool, error)
}

// AttachmentIndexStore is the attachment_index_outbox analogue of EntryStore.
type AttachmentIndexStore interface {
	Enqueue(ctx context.Context, attachmentID, entryID uuid.UUID, op Op) error
	ClaimBatch(ctx context.Context, workerID string, n int, lockTTL time.Duration, maxAttempts int) ([]AttachmentIndexRow, error)
	MarkSucceeded(ctx context.Context, id int64, workerID string) error
	MarkRetry(ctx context.Context, id int64, workerID string, availableAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, id int64, workerID string, lastErr string) error
}

// AttachmentParseStore is the attachment_parse_outbox contract.
type AttachmentParseStore interface {
	Enqueue(ctx context.Context, attachmentID uuid.UUID) error
	ClaimBatch(ctx context.Context, workerID string, n int, lockTTL time.Duration, maxAttempts int) ([]AttachmentParseRow, error)
	MarkSucceeded(ctx context.Context, id int64, workerID string) error
	MarkRetry(ctx context.Context, id int64, workerID string, availableAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, id int64, workerID string, lastErr string) error
}

// Backoff computes delay = min(cap, base*2^(attempts-1)) + uniform(0, 10%
// of delay). attempts is the attempt count AFTER the row was claimed
// (i.e. >= 1).
func Backoff(attempts int, base, cap time.Duration, jitter func(max time.Duration) time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base << uint(attempts-1)
	if delay <= 0 || delay > cap {
		delay = cap
	}
	return delay + jitter(delay/10)
}

// DefaultJitter draws uniformly from [0, max) using math/rand; max<=0 yields 0.
func DefaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
