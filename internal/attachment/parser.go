// Package attachment implements the attachment parse pipeline:
// a worker mirroring internal/worker's leased-poll shape against
// AttachmentParseOutbox, downloading via the object store and delegating
// text extraction to an opaque Parser.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/clock"
	"github.com/mindatlas/backend/internal/config"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/objectstore"
	"github.com/mindatlas/backend/internal/outbox"
	"github.com/mindatlas/backend/internal/store"
)

// ParseError signals whether a parse failure should be retried.
type ParseError struct {
	Retryable bool
	Message   string
}

func (e *ParseError) Error() string { return e.Message }

// Parser extracts text from a downloaded file. Concrete implementations
// shell out to Docling or an equivalent opaque extraction backend; this
// package only depends on the interface.
type Parser interface {
	Parse(ctx context.Context, path, contentType string) (string, error)
}

// Worker runs the attachment_parse_outbox pipeline.
type Worker struct {
	store       outbox.AttachmentParseStore
	attachments store.AttachmentReader
	writer      store.AttachmentWriter
	index       outbox.AttachmentIndexStore
	objects     objectstore.Client
	parser      Parser
	cfg         config.PipelineConfig
	id          string
	log         zerolog.Logger
}

func NewWorker(st outbox.AttachmentParseStore, attachments store.AttachmentReader, writer store.AttachmentWriter, index outbox.AttachmentIndexStore, objects objectstore.Client, parser Parser, cfg config.PipelineConfig, log zerolog.Logger) *Worker {
	id := identity()
	return &Worker{
		store: st, attachments: attachments, writer: writer, index: index, objects: objects, parser: parser, cfg: cfg,
		id:  id,
		log: log.With().Str("pipeline", "attachment_parse").Str("worker", id).Logger(),
	}
}

func identity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Dur("poll_interval", w.cfg.PollInterval()).Int("batch_size", w.cfg.BatchSize).Msg("attachment parse worker starting")
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("attachment parse worker stopping")
			return nil
		case <-ticker.C:
			if err := w.processBatch(context.Background()); err != nil {
				w.log.Error().Err(err).Msg("attachment parse worker batch failed")
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	rows, err := w.store.ClaimBatch(ctx, w.id, w.cfg.BatchSize, w.cfg.LockTTL(), w.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	batchSize.Observe(float64(len(rows)))
	for _, row := range rows {
		w.processRow(ctx, row)
	}
	return nil
}

func (w *Worker) processRow(ctx context.Context, row outbox.AttachmentParseRow) {
	logger := w.log.With().Int64("outbox_id", row.ID).Str("attachment_id", row.AttachmentID.String()).Logger()

	att, err := w.attachments.GetAttachment(ctx, row.AttachmentID)
	if err != nil {
		w.ackRetry(ctx, row, err.Error())
		return
	}
	if att == nil {
		// Attachment deleted underneath us: nothing to parse, drop cleanly.
		if err := w.store.MarkSucceeded(ctx, row.ID, w.id); err != nil {
			logger.Error().Err(err).Msg("mark succeeded (attachment gone) failed")
		}
		rowsProcessed.WithLabelValues("attachment_gone_drop").Inc()
		return
	}

	if err := w.writer.SetParseStatus(ctx, att.ID, model.ParseStatusProcessing); err != nil {
		w.ackRetry(ctx, row, err.Error())
		return
	}

	text, perr := w.parseAttachment(ctx, att)
	if perr != nil {
		var pe *ParseError
		if errors.As(perr, &pe) {
			if pe.Retryable && row.Attempts < w.cfg.MaxAttempts {
				w.ackRetry(ctx, row, pe.Message)
				return
			}
			w.fail(ctx, row, att.ID, pe.Message)
			return
		}
		// Anything that is not a ParseError counts as retryable.
		if row.Attempts < w.cfg.MaxAttempts {
			w.ackRetry(ctx, row, perr.Error())
			return
		}
		w.fail(ctx, row, att.ID, perr.Error())
		return
	}

	if err := w.writer.SetParsedText(ctx, att.ID, text); err != nil {
		w.ackRetry(ctx, row, err.Error())
		return
	}
	if err := w.writer.SetParseStatus(ctx, att.ID, model.ParseStatusCompleted); err != nil {
		w.ackRetry(ctx, row, err.Error())
		return
	}

	if att.IndexToKnowledgeGraph {
		if err := w.index.Enqueue(ctx, att.ID, att.EntryID, outbox.OpUpsert); err != nil {
			logger.Error().Err(err).Msg("enqueue attachment index upsert failed")
		}
	}

	if err := w.store.MarkSucceeded(ctx, row.ID, w.id); err != nil {
		logger.Error().Err(err).Msg("mark succeeded failed")
	}
	rowsProcessed.WithLabelValues("succeeded").Inc()
}

func (w *Worker) fail(ctx context.Context, row outbox.AttachmentParseRow, attachmentID uuid.UUID, detail string) {
	if err := w.writer.SetParseStatus(ctx, attachmentID, model.ParseStatusFailed); err != nil {
		w.log.Error().Err(err).Msg("set parse status failed (dead-letter path)")
	}
	if err := w.store.MarkDead(ctx, row.ID, w.id, detail); err != nil {
		w.log.Error().Err(err).Msg("mark dead failed")
	}
	rowsProcessed.WithLabelValues("dead").Inc()
}

func (w *Worker) ackRetry(ctx context.Context, row outbox.AttachmentParseRow, errMsg string) {
	delay := outbox.Backoff(row.Attempts, w.cfg.BackoffBase(), w.cfg.BackoffCap(), outbox.DefaultJitter)
	if err := w.store.MarkRetry(ctx, row.ID, w.id, clock.Now().Add(delay), errMsg); err != nil {
		w.log.Error().Err(err).Int64("outbox_id", row.ID).Msg("mark retry failed")
	}
	rowsProcessed.WithLabelValues("retry").Inc()
}

// parseAttachment downloads the object to a temp file and runs the parser.
func (w *Worker) parseAttachment(ctx context.Context, att *model.Attachment) (string, error) {
	body, err := w.objects.Get(ctx, att.FilePath)
	if err != nil {
		return "", &ParseError{Retryable: true, Message: err.Error()}
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "mindatlas-attachment-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, body); err != nil {
		return "", &ParseError{Retryable: true, Message: err.Error()}
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	return w.parser.Parse(ctx, tmp.Name(), att.ContentType)
}
