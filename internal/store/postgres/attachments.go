package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
)

// AttachmentRepo implements store.AttachmentReader/Writer and
// attachment.AttachmentCreator against the attachments table.
type AttachmentRepo struct{ db *sql.DB }

func (r *AttachmentRepo) GetAttachment(ctx context.Context, id uuid.UUID) (*model.Attachment, error) {
	var a model.Attachment
	var parseStatus string
	var parsedText sql.NullString
	row := r.db.QueryRowContext(ctx, `
		SELECT id, entry_id, file_path, original_filename, content_type, size, parse_status, parsed_text, index_to_knowledge_graph
		FROM attachments WHERE id = $1
	`, id)
	if err := row.Scan(&a.ID, &a.EntryID, &a.FilePath, &a.OriginalFilename, &a.ContentType, &a.Size, &parseStatus, &parsedText, &a.IndexToKnowledgeGraph); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.ParseStatus = model.ParseStatus(parseStatus)
	if parsedText.Valid {
		a.ParsedText = &parsedText.String
	}
	return &a, nil
}

func (r *AttachmentRepo) SetParseStatus(ctx context.Context, id uuid.UUID, status model.ParseStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE attachments SET parse_status = $2 WHERE id = $1`, id, string(status))
	return err
}

func (r *AttachmentRepo) SetParsedText(ctx context.Context, id uuid.UUID, text string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE attachments SET parsed_text = $2 WHERE id = $1`, id, text)
	return err
}

// CreateAttachment inserts the metadata row and enqueues the parse outbox
// event in one transaction, so an attachment can never exist without its
// pending parse intent (or vice versa).
func (r *AttachmentRepo) CreateAttachment(ctx context.Context, att *model.Attachment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attachments (id, entry_id, file_path, original_filename, content_type, size, parse_status, index_to_knowledge_graph)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, att.ID, att.EntryID, att.FilePath, att.OriginalFilename, att.ContentType, att.Size, string(att.ParseStatus), att.IndexToKnowledgeGraph); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attachment_parse_outbox (attachment_id, available_at) VALUES ($1, now())
	`, att.ID); err != nil {
		return err
	}
	return tx.Commit()
}
