package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
)

// ConversationRepo persists conversations/messages for the assistant chat
// path.
type ConversationRepo struct{ db *sql.DB }

func (r *ConversationRepo) Create(ctx context.Context) (*model.Conversation, error) {
	var c model.Conversation
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO conversations DEFAULT VALUES RETURNING id, title, created_at, updated_at
	`)
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	var c model.Conversation
	row := r.db.QueryRowContext(ctx, `SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`, id)
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// SetTitleIfEmpty implements the auto-title generation's "only if the
// conversation has no title" guard atomically.
func (r *ConversationRepo) SetTitleIfEmpty(ctx context.Context, id uuid.UUID, title string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1 AND title = ''
	`, id, title)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *ConversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_results, skill_calls, analysis)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		nullableRaw(msg.ToolCalls), nullableRaw(msg.ToolResults), nullableRaw(msg.SkillCalls), nullableRaw(msg.Analysis))
	return err
}

// LastMessages returns up to n most recent messages in chronological order
// (oldest first), excluding role=system.
func (r *ConversationRepo) LastMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, tool_calls, tool_results, skill_calls, analysis, created_at
		FROM messages
		WHERE conversation_id = $1 AND role <> 'system'
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var toolCalls, toolResults, skillCalls, analysis []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &toolCalls, &toolResults, &skillCalls, &analysis, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.ToolCalls = json.RawMessage(toolCalls)
		m.ToolResults = json.RawMessage(toolResults)
		m.SkillCalls = json.RawMessage(skillCalls)
		m.Analysis = json.RawMessage(analysis)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullableRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
