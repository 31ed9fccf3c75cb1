package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
)

// EntryRepo implements store.EntryReader against the entries/entry_types
// tables. Full entry/tag/type CRUD lives outside this module; besides the
// reads the indexing pipeline needs, this repo creates entries (CreateEntry)
// and serves the search and digest queries used by the chat tools and reports.
type EntryRepo struct{ db *sql.DB }

func (r *EntryRepo) GetEntry(ctx context.Context, id uuid.UUID) (*model.Entry, bool, error) {
	var e model.Entry
	var summary, content sql.NullString
	var timeMode string
	var timeAt, timeFrom, timeTo sql.NullTime
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, summary, content, type_id, time_mode, time_at, time_from, time_to, updated_at
		FROM entries WHERE id = $1
	`, id)
	if err := row.Scan(&e.ID, &e.Title, &summary, &content, &e.TypeID, &timeMode, &timeAt, &timeFrom, &timeTo, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if summary.Valid {
		e.Summary = &summary.String
	}
	if content.Valid {
		e.Content = &content.String
	}
	e.TimeMode = model.TimeMode(timeMode)
	if timeAt.Valid {
		e.TimeAt = &timeAt.Time
	}
	if timeFrom.Valid {
		e.TimeFrom = &timeFrom.Time
	}
	if timeTo.Valid {
		e.TimeTo = &timeTo.Time
	}

	tagRows, err := r.db.QueryContext(ctx, `SELECT tag_id FROM entry_tags WHERE entry_id = $1`, id)
	if err != nil {
		return nil, false, err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tagID uuid.UUID
		if err := tagRows.Scan(&tagID); err != nil {
			return nil, false, err
		}
		e.TagIDs = append(e.TagIDs, tagID)
	}
	if err := tagRows.Err(); err != nil {
		return nil, false, err
	}

	return &e, true, nil
}

func (r *EntryRepo) GetEntryType(ctx context.Context, id uuid.UUID) (*model.EntryType, error) {
	var t model.EntryType
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, color, icon, graph_enabled, ai_enabled, enabled
		FROM entry_types WHERE id = $1
	`, id)
	if err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Color, &t.Icon, &t.GraphEnabled, &t.AIEnabled, &t.Enabled); err != nil {
		return nil, err
	}
	return &t, nil
}

// defaultEntryTypeCode is the fallback entry type the create_entry tool
// step files new captures under when no type is specified. Entry type management itself stays out of scope; this
// only guarantees the FK target exists.
const defaultEntryTypeCode = "note"

// CreateEntry implements store.EntryWriter for smart_capture's create_entry
// tool step, filing the new entry under the default "note" type. The index
// outbox row is enqueued in the same transaction as the entry insert, so a
// created entry can never be missed by the indexing pipeline.
func (r *EntryRepo) CreateEntry(ctx context.Context, title, summary, content string) (*model.Entry, error) {
	typeID, err := r.ensureDefaultEntryType(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var e model.Entry
	row := tx.QueryRowContext(ctx, `
		INSERT INTO entries (title, summary, content, type_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
		RETURNING id, title, summary, content, type_id, time_mode, updated_at
	`, title, summary, content, typeID)

	var summaryVal, contentVal sql.NullString
	var timeMode string
	if err := row.Scan(&e.ID, &e.Title, &summaryVal, &contentVal, &e.TypeID, &timeMode, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if summaryVal.Valid {
		e.Summary = &summaryVal.String
	}
	if contentVal.Valid {
		e.Content = &contentVal.String
	}
	e.TimeMode = model.TimeMode(timeMode)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entry_index_outbox (entry_id, op, entry_updated_at, available_at)
		VALUES ($1, 'upsert', $2, now())
	`, e.ID, e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EntryRepo) ensureDefaultEntryType(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	row := r.db.QueryRowContext(ctx, `SELECT id FROM entry_types WHERE code = $1`, defaultEntryTypeCode)
	if err := row.Scan(&id); err == nil {
		return id, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return uuid.UUID{}, err
	}

	row = r.db.QueryRowContext(ctx, `
		INSERT INTO entry_types (code, name) VALUES ($1, 'Note')
		ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
		RETURNING id
	`, defaultEntryTypeCode)
	if err := row.Scan(&id); err != nil {
		return uuid.UUID{}, err
	}
	return id, nil
}

// RelationTypeRepo implements store.RelationTypeReader.
type RelationTypeRepo struct{ db *sql.DB }

func (r *RelationTypeRepo) ListEnabledRelationTypes(ctx context.Context) ([]model.RelationType, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, directed, enabled FROM relation_types WHERE enabled = true ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RelationType
	for rows.Next() {
		var rt model.RelationType
		if err := rows.Scan(&rt.ID, &rt.Code, &rt.Name, &rt.Directed, &rt.Enabled); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// RelationRepo implements store.RelationReader against relations.
type RelationRepo struct{ db *sql.DB }

func (r *RelationRepo) ListRelatedEntryIDs(ctx context.Context, entryID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT from_entry_id, to_entry_id FROM relations
		WHERE from_entry_id = $1 OR to_entry_id = $1
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uuid.UUID]bool{}
	for rows.Next() {
		var from, to uuid.UUID
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		if from == entryID {
			out[to] = true
		} else {
			out[from] = true
		}
	}
	return out, rows.Err()
}
