package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mindatlas/backend/internal/model"
)

// ReportRepo implements report.WeeklyStore/MonthlyStore and the
// scheduler's AdvisoryLocker against the weekly_reports/monthly_reports
// tables.
type ReportRepo struct{ db *sql.DB }

// WithAdvisoryLock pins one connection, takes pg_advisory_lock(key), runs
// fn, and unlocks on the same connection. Session-level locks die with the
// connection, so a crashed holder never wedges the key.
func (r *ReportRepo) WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
	}()

	return fn(ctx)
}

func (r *ReportRepo) GetLatestWeekly(ctx context.Context) (*model.WeeklyReport, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, week_start, week_end, entry_count, status, content, attempts, last_error, generated_at, created_at
		FROM weekly_reports ORDER BY week_start DESC LIMIT 1
	`)
	rep, err := scanWeekly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rep, err
}

func (r *ReportRepo) ListWeekly(ctx context.Context, page, size int) ([]model.WeeklyReport, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM weekly_reports`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, week_start, week_end, entry_count, status, content, attempts, last_error, generated_at, created_at
		FROM weekly_reports ORDER BY week_start DESC OFFSET $1 LIMIT $2
	`, page*size, size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.WeeklyReport
	for rows.Next() {
		rep, err := scanWeekly(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rep)
	}
	return out, total, rows.Err()
}

func (r *ReportRepo) GetOrCreateWeekly(ctx context.Context, weekStart, weekEnd time.Time, entryCount int) (*model.WeeklyReport, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO weekly_reports (week_start, week_end, entry_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (week_start) DO UPDATE SET week_start = EXCLUDED.week_start
		RETURNING id, week_start, week_end, entry_count, status, content, attempts, last_error, generated_at, created_at
	`, weekStart, weekEnd, entryCount)
	return scanWeekly(row)
}

func (r *ReportRepo) SaveWeeklyResult(ctx context.Context, rep *model.WeeklyReport) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE weekly_reports
		SET status = $2, content = $3, attempts = $4, last_error = $5, generated_at = $6
		WHERE id = $1
	`, rep.ID, string(rep.Status), nullableRaw(rep.Content), rep.Attempts, rep.LastError, rep.GeneratedAt)
	return err
}

func (r *ReportRepo) GetLatestMonthly(ctx context.Context) (*model.MonthlyReport, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, month_start, month_end, entry_count, status, content, attempts, last_error, generated_at, created_at
		FROM monthly_reports ORDER BY month_start DESC LIMIT 1
	`)
	rep, err := scanMonthly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rep, err
}

func (r *ReportRepo) ListMonthly(ctx context.Context, page, size int) ([]model.MonthlyReport, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM monthly_reports`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, month_start, month_end, entry_count, status, content, attempts, last_error, generated_at, created_at
		FROM monthly_reports ORDER BY month_start DESC OFFSET $1 LIMIT $2
	`, page*size, size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.MonthlyReport
	for rows.Next() {
		rep, err := scanMonthly(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rep)
	}
	return out, total, rows.Err()
}

func (r *ReportRepo) GetOrCreateMonthly(ctx context.Context, monthStart, monthEnd time.Time, entryCount int) (*model.MonthlyReport, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO monthly_reports (month_start, month_end, entry_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (month_start) DO UPDATE SET month_start = EXCLUDED.month_start
		RETURNING id, month_start, month_end, entry_count, status, content, attempts, last_error, generated_at, created_at
	`, monthStart, monthEnd, entryCount)
	return scanMonthly(row)
}

func (r *ReportRepo) SaveMonthlyResult(ctx context.Context, rep *model.MonthlyReport) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE monthly_reports
		SET status = $2, content = $3, attempts = $4, last_error = $5, generated_at = $6
		WHERE id = $1
	`, rep.ID, string(rep.Status), nullableRaw(rep.Content), rep.Attempts, rep.LastError, rep.GeneratedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWeekly(row rowScanner) (*model.WeeklyReport, error) {
	var rep model.WeeklyReport
	var status string
	var content []byte
	var lastError sql.NullString
	var generatedAt sql.NullTime
	if err := row.Scan(&rep.ID, &rep.WeekStart, &rep.WeekEnd, &rep.EntryCount, &status, &content,
		&rep.Attempts, &lastError, &generatedAt, &rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.Status = model.ReportStatus(status)
	rep.Content = json.RawMessage(content)
	if lastError.Valid {
		rep.LastError = &lastError.String
	}
	if generatedAt.Valid {
		rep.GeneratedAt = &generatedAt.Time
	}
	return &rep, nil
}

func scanMonthly(row rowScanner) (*model.MonthlyReport, error) {
	var rep model.MonthlyReport
	var status string
	var content []byte
	var lastError sql.NullString
	var generatedAt sql.NullTime
	if err := row.Scan(&rep.ID, &rep.MonthStart, &rep.MonthEnd, &rep.EntryCount, &status, &content,
		&rep.Attempts, &lastError, &generatedAt, &rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.Status = model.ReportStatus(status)
	rep.Content = json.RawMessage(content)
	if lastError.Valid {
		rep.LastError = &lastError.String
	}
	if generatedAt.Valid {
		rep.GeneratedAt = &generatedAt.Time
	}
	return &rep, nil
}
