package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/outbox"
)

// maxLastErrorLen bounds what gets persisted into last_error so one huge
// upstream response body cannot bloat the outbox table.
const maxLastErrorLen = 4000

func truncateLastError(s string) string {
	if len(s) > maxLastErrorLen {
		return s[:maxLastErrorLen]
	}
	return s
}

// EntryOutboxRepo implements outbox.EntryStore against entry_index_outbox,
// following the coalescing and claim-query semantics.
type EntryOutboxRepo struct{ db *sql.DB }

func (r *EntryOutboxRepo) EnqueueUpsert(ctx context.Context, entryID uuid.UUID, entryUpdatedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, available_at FROM entry_index_outbox
		WHERE entry_id = $1 AND op = 'upsert' AND status IN ('pending','processing')
		FOR UPDATE
	`, entryID)
	var id int64
	var availableAt time.Time
	err = row.Scan(&id, &availableAt)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entry_index_outbox (entry_id, op, entry_updated_at, available_at)
			VALUES ($1, 'upsert', $2, now())
		`, entryID, entryUpdatedAt); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		newAvailableAt := availableAt
		if availableAt.After(time.Now()) {
			newAvailableAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE entry_index_outbox
			SET entry_updated_at = $2, last_error = NULL, available_at = $3, updated_at = now()
			WHERE id = $1
		`, id, entryUpdatedAt, newAvailableAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *EntryOutboxRepo) EnqueueDelete(ctx context.Context, entryID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entry_index_outbox (entry_id, op, available_at)
		VALUES ($1, 'delete', now())
	`, entryID)
	return err
}

const entryClaimQuery = `
	WITH claimed AS (
		SELECT id FROM entry_index_outbox
		WHERE attempts < $4
		  AND available_at <= now()
		  AND (status = 'pending' OR (status = 'processing' AND (locked_at IS NULL OR locked_at <= now() - ($3 || ' seconds')::interval)))
		ORDER BY available_at ASC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE entry_index_outbox e
	SET status = 'processing', locked_at = now(), locked_by = $1, attempts = attempts + 1, updated_at = now()
	FROM claimed
	WHERE e.id = claimed.id
	RETURNING e.id, e.entry_id, e.op, e.entry_updated_at, e.status, e.attempts, e.available_at, e.locked_at, e.locked_by, e.last_error, e.created_at
`

func (r *EntryOutboxRepo) ClaimBatch(ctx context.Context, workerID string, n int, lockTTL time.Duration, maxAttempts int) ([]outbox.EntryRow, error) {
	rows, err := r.db.QueryContext(ctx, entryClaimQuery, workerID, n, int(lockTTL.Seconds()), maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.EntryRow
	for rows.Next() {
		var row outbox.EntryRow
		var op string
		var status string
		var entryUpdatedAt, lockedAt sql.NullTime
		var lockedBy, lastError sql.NullString
		if err := rows.Scan(&row.ID, &row.EntryID, &op, &entryUpdatedAt, &status, &row.Attempts, &row.AvailableAt, &lockedAt, &lockedBy, &lastError, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Op = outbox.Op(op)
		row.Status = outbox.Status(status)
		if entryUpdatedAt.Valid {
			row.EntryUpdatedAt = &entryUpdatedAt.Time
		}
		if lockedAt.Valid {
			row.LockedAt = &lockedAt.Time
		}
		if lockedBy.Valid {
			row.LockedBy = &lockedBy.String
		}
		if lastError.Valid {
			row.LastError = &lastError.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// HasNewerActiveUpsert implements the staleness guard's "newer active
// upsert exists" predicate: an active (pending or processing) upsert row
// for entryID, other than excludeID, created after afterCreatedAt.
func (r *EntryOutboxRepo) HasNewerActiveUpsert(ctx context.Context, entryID uuid.UUID, excludeID int64, afterCreatedAt time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM entry_index_outbox
			WHERE entry_id = $1
			  AND id != $2
			  AND op = 'upsert'
			  AND status IN ('pending','processing')
			  AND created_at > $3
		)
	`, entryID, excludeID, afterCreatedAt).Scan(&exists)
	return exists, err
}

func (r *EntryOutboxRepo) MarkSucceeded(ctx context.Context, id int64, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE entry_index_outbox SET status = 'succeeded', updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID)
	return err
}

func (r *EntryOutboxRepo) MarkRetry(ctx context.Context, id int64, workerID string, availableAt time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE entry_index_outbox
		SET status = 'pending', available_at = $3, last_error = $4, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID, availableAt, truncateLastError(lastErr))
	return err
}

func (r *EntryOutboxRepo) MarkDead(ctx context.Context, id int64, workerID string, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE entry_index_outbox
		SET status = 'dead', last_error = $3, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID, truncateLastError(lastErr))
	return err
}

func (r *EntryOutboxRepo) MarkPending(ctx context.Context, id int64, workerID string, availableAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE entry_index_outbox
		SET status = 'pending', attempts = 0, available_at = $3, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID, availableAt)
	return err
}

// ListDead supports the operator CLI's `outbox ls`: rows that exhausted retries and need a human to look at them.
func (r *EntryOutboxRepo) ListDead(ctx context.Context, limit int) ([]outbox.EntryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, op, entry_updated_at, status, attempts, available_at, locked_at, locked_by, last_error, created_at
		FROM entry_index_outbox WHERE status = 'dead' ORDER BY updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.EntryRow
	for rows.Next() {
		var row outbox.EntryRow
		var op, status string
		var entryUpdatedAt, lockedAt sql.NullTime
		var lockedBy, lastError sql.NullString
		if err := rows.Scan(&row.ID, &row.EntryID, &op, &entryUpdatedAt, &status, &row.Attempts, &row.AvailableAt, &lockedAt, &lockedBy, &lastError, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Op = outbox.Op(op)
		row.Status = outbox.Status(status)
		if entryUpdatedAt.Valid {
			row.EntryUpdatedAt = &entryUpdatedAt.Time
		}
		if lockedAt.Valid {
			row.LockedAt = &lockedAt.Time
		}
		if lockedBy.Valid {
			row.LockedBy = &lockedBy.String
		}
		if lastError.Valid {
			row.LastError = &lastError.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Requeue forces a dead row back to pending for a fresh attempt cycle
// (`outbox requeue <id>`).
func (r *EntryOutboxRepo) Requeue(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE entry_index_outbox
		SET status = 'pending', attempts = 0, available_at = now(), last_error = NULL, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND status = 'dead'
	`, id)
	return err
}
