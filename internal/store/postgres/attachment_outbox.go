package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/outbox"
)

// AttachmentIndexOutboxRepo implements outbox.AttachmentIndexStore.
type AttachmentIndexOutboxRepo struct{ db *sql.DB }

func (r *AttachmentIndexOutboxRepo) Enqueue(ctx context.Context, attachmentID, entryID uuid.UUID, op outbox.Op) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attachment_index_outbox (attachment_id, entry_id, op, available_at)
		VALUES ($1, $2, $3, now())
	`, attachmentID, entryID, string(op))
	return err
}

const attachmentIndexClaimQuery = `
	WITH claimed AS (
		SELECT id FROM attachment_index_outbox
		WHERE attempts < $4
		  AND available_at <= now()
		  AND (status = 'pending' OR (status = 'processing' AND (locked_at IS NULL OR locked_at <= now() - ($3 || ' seconds')::interval)))
		ORDER BY available_at ASC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE attachment_index_outbox a
	SET status = 'processing', locked_at = now(), locked_by = $1, attempts = attempts + 1, updated_at = now()
	FROM claimed
	WHERE a.id = claimed.id
	RETURNING a.id, a.attachment_id, a.entry_id, a.op, a.status, a.attempts, a.available_at, a.locked_at, a.locked_by, a.last_error
`

func (r *AttachmentIndexOutboxRepo) ClaimBatch(ctx context.Context, workerID string, n int, lockTTL time.Duration, maxAttempts int) ([]outbox.AttachmentIndexRow, error) {
	rows, err := r.db.QueryContext(ctx, attachmentIndexClaimQuery, workerID, n, int(lockTTL.Seconds()), maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.AttachmentIndexRow
	for rows.Next() {
		var row outbox.AttachmentIndexRow
		var op, status string
		var lockedAt sql.NullTime
		var lockedBy, lastError sql.NullString
		if err := rows.Scan(&row.ID, &row.AttachmentID, &row.EntryID, &op, &status, &row.Attempts, &row.AvailableAt, &lockedAt, &lockedBy, &lastError); err != nil {
			return nil, err
		}
		row.Op = outbox.Op(op)
		row.Status = outbox.Status(status)
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

func (r *AttachmentIndexOutboxRepo) MarkSucceeded(ctx context.Context, id int64, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attachment_index_outbox SET status = 'succeeded', updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID)
	return err
}

func (r *AttachmentIndexOutboxRepo) MarkRetry(ctx context.Context, id int64, workerID string, availableAt time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attachment_index_outbox
		SET status = 'pending', available_at = $3, last_error = $4, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID, availableAt, truncateLastError(lastErr))
	return err
}

func (r *AttachmentIndexOutboxRepo) MarkDead(ctx context.Context, id int64, workerID string, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attachment_index_outbox
		SET status = 'dead', last_error = $3, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID, truncateLastError(lastErr))
	return err
}

// AttachmentParseOutboxRepo implements outbox.AttachmentParseStore.
type AttachmentParseOutboxRepo struct{ db *sql.DB }

func (r *AttachmentParseOutboxRepo) Enqueue(ctx context.Context, attachmentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attachment_parse_outbox (attachment_id, available_at)
		VALUES ($1, now())
	`, attachmentID)
	return err
}

const attachmentParseClaimQuery = `
	WITH claimed AS (
		SELECT id FROM attachment_parse_outbox
		WHERE attempts < $4
		  AND available_at <= now()
		  AND (status = 'pending' OR (status = 'processing' AND (locked_at IS NULL OR locked_at <= now() - ($3 || ' seconds')::interval)))
		ORDER BY available_at ASC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE attachment_parse_outbox p
	SET status = 'processing', locked_at = now(), locked_by = $1, attempts = attempts + 1, updated_at = now()
	FROM claimed
	WHERE p.id = claimed.id
	RETURNING p.id, p.attachment_id, p.status, p.attempts, p.available_at, p.locked_at, p.locked_by, p.last_error
`

func (r *AttachmentParseOutboxRepo) ClaimBatch(ctx context.Context, workerID string, n int, lockTTL time.Duration, maxAttempts int) ([]outbox.AttachmentParseRow, error) {
	rows, err := r.db.QueryContext(ctx, attachmentParseClaimQuery, workerID, n, int(lockTTL.Seconds()), maxAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.AttachmentParseRow
	for rows.Next() {
		var row outbox.AttachmentParseRow
		var status string
		var lockedAt sql.NullTime
		var lockedBy, lastError sql.NullString
		if err := rows.Scan(&row.ID, &row.AttachmentID, &status, &row.Attempts, &row.AvailableAt, &lockedAt, &lockedBy, &lastError); err != nil {
			return nil, err
		}
		row.Status = outbox.Status(status)
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

func (r *AttachmentParseOutboxRepo) MarkSucceeded(ctx context.Context, id int64, workerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attachment_parse_outbox SET status = 'succeeded', updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID)
	return err
}

func (r *AttachmentParseOutboxRepo) MarkRetry(ctx context.Context, id int64, workerID string, availableAt time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attachment_parse_outbox
		SET status = 'pending', available_at = $3, last_error = $4, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID, availableAt, truncateLastError(lastErr))
	return err
}

func (r *AttachmentParseOutboxRepo) MarkDead(ctx context.Context, id int64, workerID string, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attachment_parse_outbox
		SET status = 'dead', last_error = $3, locked_at = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND locked_by = $2
	`, id, workerID, truncateLastError(lastErr))
	return err
}
