package attachment

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/objectstore"
)

// UnsupportedContentTypeError signals a pre-upload validation failure when
// indexing was requested for a file type the pipeline can't parse.
type UnsupportedContentTypeError struct{ ContentType string }

func (e *UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("unsupported content type for indexing: %s", e.ContentType)
}

// TooLargeError signals a pre-upload size-limit rejection (HTTP 413).
type TooLargeError struct {
	SizeBytes, LimitBytes int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("attachment size %d exceeds limit %d bytes", e.SizeBytes, e.LimitBytes)
}

// supportedForIndexing lists the content types the attachment parser
// accepts when indexing is requested.
var supportedForIndexing = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
	"text/markdown":   true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// ValidateUpload enforces the pre-upload checks: size ceiling, and a
// parseable content type when indexing was requested.
func ValidateUpload(contentType string, size, maxFileSizeMB int64, requestIndexing bool) error {
	if limit := maxFileSizeMB * 1024 * 1024; size > limit {
		return &TooLargeError{SizeBytes: size, LimitBytes: limit}
	}
	if requestIndexing && !supportedForIndexing[contentType] {
		return &UnsupportedContentTypeError{ContentType: contentType}
	}
	return nil
}

// Uploader persists an attachment's bytes to the object store and its
// metadata row, best-effort deleting the uploaded object when the DB
// write fails.
type Uploader struct {
	objects objectstore.Client
	writer  AttachmentCreator
	log     zerolog.Logger
}

// AttachmentCreator is the metadata-write side of the upload path.
type AttachmentCreator interface {
	CreateAttachment(ctx context.Context, att *model.Attachment) error
}

func NewUploader(objects objectstore.Client, writer AttachmentCreator, log zerolog.Logger) *Uploader {
	return &Uploader{objects: objects, writer: writer, log: log}
}

func (u *Uploader) Upload(ctx context.Context, entryID uuid.UUID, filename, contentType string, size int64, body io.Reader, indexToKG bool) (*model.Attachment, error) {
	att := &model.Attachment{
		ID:                    uuid.New(),
		EntryID:               entryID,
		OriginalFilename:      filename,
		ContentType:           contentType,
		Size:                  size,
		ParseStatus:           model.ParseStatusPending,
		IndexToKnowledgeGraph: indexToKG,
	}
	att.FilePath = entryID.String() + "/attachments/" + att.ID.String()

	if err := u.objects.Put(ctx, att.FilePath, body, size, contentType); err != nil {
		return nil, fmt.Errorf("attachment upload: object store put: %w", err)
	}

	if err := u.writer.CreateAttachment(ctx, att); err != nil {
		if delErr := u.objects.Delete(ctx, att.FilePath); delErr != nil {
			u.log.Warn().Err(delErr).Str("file_path", att.FilePath).Msg("best-effort object cleanup after failed attachment write also failed")
		}
		return nil, fmt.Errorf("attachment upload: persist metadata: %w", err)
	}

	return att, nil
}
