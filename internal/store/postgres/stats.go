package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
)

// StatsRepo backs the stats local tools and the heatmap endpoint.
type StatsRepo struct{ db *sql.DB }

func (r *StatsRepo) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	d := &model.DashboardStats{EntriesByType: map[string]int{}}

	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM entries`).Scan(&d.TotalEntries); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM tags`).Scan(&d.TotalTags); err != nil {
		return nil, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM entry_types`).Scan(&d.TotalTypes); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name, count(e.id)
		FROM entry_types t LEFT JOIN entries e ON e.type_id = t.id
		GROUP BY t.id, t.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		d.EntriesByType[name] = count
	}
	return d, rows.Err()
}

// Heatmap counts entries per day over [start, end], anchored by time_at
// for POINT entries and time_from for RANGE entries.
func (r *StatsRepo) Heatmap(ctx context.Context, start, end time.Time) ([]model.HeatmapCell, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, count(*) FROM (
			SELECT date(time_at) AS day FROM entries
			WHERE time_mode = 'POINT' AND date(time_at) BETWEEN $1 AND $2
			UNION ALL
			SELECT date(time_from) AS day FROM entries
			WHERE time_mode = 'RANGE' AND date(time_from) BETWEEN $1 AND $2
		) anchored
		GROUP BY day ORDER BY day
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HeatmapCell
	for rows.Next() {
		var cell model.HeatmapCell
		if err := rows.Scan(&cell.Date, &cell.Count); err != nil {
			return nil, err
		}
		out = append(out, cell)
	}
	return out, rows.Err()
}

// CountCreatedSince counts entries whose updated_at falls in the trailing
// window (the entries table has no creation timestamp), for the
// analyze_activity tool.
func (r *StatsRepo) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM entries WHERE updated_at >= $1`, since).Scan(&count)
	return count, err
}

// CountEntriesInRange implements report.EntryDigestReader: entries whose
// time anchor falls inside [start, end].
func (r *EntryRepo) CountEntriesInRange(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM entries
		WHERE (time_mode = 'POINT' AND date(time_at) BETWEEN $1 AND $2)
		   OR (time_mode = 'RANGE' AND date(time_from) BETWEEN $1 AND $2)
	`, start, end).Scan(&count)
	return count, err
}

// Tag names are aggregated with a unit-separator join rather than a
// Postgres array so scanning stays plain database/sql strings.
const entryDigestSelect = `
	SELECT e.id, e.title, t.name, t.code,
	       coalesce(e.summary, ''),
	       coalesce(e.content, ''),
	       coalesce(e.time_at, e.time_from),
	       coalesce(array_to_string(array_agg(tg.name) FILTER (WHERE tg.name IS NOT NULL), chr(31)), '')
	FROM entries e
	JOIN entry_types t ON t.id = e.type_id
	LEFT JOIN entry_tags et ON et.entry_id = e.id
	LEFT JOIN tags tg ON tg.id = et.tag_id
`

// ListEntryDigestsInRange implements report.EntryDigestReader.
func (r *EntryRepo) ListEntryDigestsInRange(ctx context.Context, start, end time.Time, limit int) ([]model.EntryDigest, error) {
	rows, err := r.db.QueryContext(ctx, entryDigestSelect+`
		WHERE (e.time_mode = 'POINT' AND date(e.time_at) BETWEEN $1 AND $2)
		   OR (e.time_mode = 'RANGE' AND date(e.time_from) BETWEEN $1 AND $2)
		GROUP BY e.id, t.id
		ORDER BY coalesce(e.time_at, e.time_from) DESC
		LIMIT $3
	`, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDigests(rows)
}

// GetEntryDigest backs the get_entry_detail local tool.
func (r *EntryRepo) GetEntryDigest(ctx context.Context, id uuid.UUID) (*model.EntryDigest, error) {
	rows, err := r.db.QueryContext(ctx, entryDigestSelect+`
		WHERE e.id = $1
		GROUP BY e.id, t.id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	digests, err := scanDigests(rows)
	if err != nil {
		return nil, err
	}
	if len(digests) == 0 {
		return nil, nil
	}
	return &digests[0], nil
}

// SearchEntries backs the search_entries local tool: keyword against
// title/content, optional type code and tag filters.
func (r *EntryRepo) SearchEntries(ctx context.Context, keyword, typeCode string, tagNames []string, limit int) ([]model.EntryDigest, error) {
	if limit < 1 {
		limit = 10
	} else if limit > 100 {
		limit = 100
	}

	query := entryDigestSelect + ` WHERE true`
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if keyword != "" {
		ph := next("%" + keyword + "%")
		query += ` AND (e.title ILIKE ` + ph + ` OR e.content ILIKE ` + ph + `)`
	}
	if typeCode != "" {
		query += ` AND t.code = ` + next(typeCode)
	}
	if len(tagNames) > 0 {
		var phs []string
		for _, name := range tagNames {
			phs = append(phs, next(name))
		}
		query += ` AND e.id IN (
			SELECT et2.entry_id FROM entry_tags et2 JOIN tags tg2 ON tg2.id = et2.tag_id
			WHERE tg2.name IN (` + strings.Join(phs, ", ") + `)
		)`
	}
	query += ` GROUP BY e.id, t.id ORDER BY e.updated_at DESC LIMIT ` + next(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDigests(rows)
}

func scanDigests(rows *sql.Rows) ([]model.EntryDigest, error) {
	var out []model.EntryDigest
	for rows.Next() {
		var d model.EntryDigest
		var timeAt sql.NullTime
		var joinedTags string
		if err := rows.Scan(&d.ID, &d.Title, &d.TypeName, &d.TypeCode, &d.Summary, &d.Content, &timeAt, &joinedTags); err != nil {
			return nil, err
		}
		if timeAt.Valid {
			d.TimeAt = &timeAt.Time
		}
		if joinedTags != "" {
			d.TagNames = strings.Split(joinedTags, "\x1f")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
