package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/clock"
	"github.com/mindatlas/backend/internal/config"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/outbox"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/store"
)

// AttachmentIndexWorker runs the attachment_index_outbox pipeline: the
// entry worker's claim/ack loop applied to attachments, without the
// coalescing/staleness guard since attachments are parsed once and indexed
// once per op.
type AttachmentIndexWorker struct {
	store       outbox.AttachmentIndexStore
	attachments store.AttachmentReader
	indexer     *ragkg.Indexer
	cfg         config.PipelineConfig
	id          string
	log         zerolog.Logger
}

func NewAttachmentIndexWorker(st outbox.AttachmentIndexStore, attachments store.AttachmentReader, indexer *ragkg.Indexer, cfg config.PipelineConfig, log zerolog.Logger) *AttachmentIndexWorker {
	return &AttachmentIndexWorker{store: st, attachments: attachments, indexer: indexer, cfg: cfg, id: Identity(), log: log.With().Str("pipeline", "attachment_index").Str("worker", Identity()).Logger()}
}

func (w *AttachmentIndexWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("poll_interval", w.cfg.PollInterval()).Int("batch_size", w.cfg.BatchSize).Msg("attachment index worker starting")
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("attachment index worker stopping")
			return nil
		case <-ticker.C:
			if err := w.processBatch(context.Background()); err != nil {
				w.log.Error().Err(err).Msg("attachment index worker batch failed")
			}
		}
	}
}

func (w *AttachmentIndexWorker) processBatch(ctx context.Context) error {
	rows, err := w.store.ClaimBatch(ctx, w.id, w.cfg.BatchSize, w.cfg.LockTTL(), w.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	batchSize.WithLabelValues("attachment_index").Observe(float64(len(rows)))
	for _, row := range rows {
		w.processRow(ctx, row)
	}
	return nil
}

func (w *AttachmentIndexWorker) processRow(ctx context.Context, row outbox.AttachmentIndexRow) {
	logger := w.log.With().Int64("outbox_id", row.ID).Str("attachment_id", row.AttachmentID.String()).Logger()

	attID := row.AttachmentID
	req := ragkg.IndexRequest{Op: ragkg.Op(row.Op), EntryID: row.EntryID, AttachmentID: &attID}

	if row.Op == outbox.OpUpsert {
		att, err := w.attachments.GetAttachment(ctx, row.AttachmentID)
		if err != nil {
			w.ackRetry(ctx, row, err.Error())
			return
		}
		switch {
		case att == nil:
			// Disable/missing translation: the attachment was deleted
			// underneath us; rewrite to a delete so the KG is cleaned up.
			req.Op = ragkg.OpDelete
		case !att.IndexToKnowledgeGraph || att.ParseStatus != model.ParseStatusCompleted || att.ParsedText == nil:
			logger.Debug().Msg("dropping attachment upsert: not indexable or not parsed yet")
			if err := w.store.MarkSucceeded(ctx, row.ID, w.id); err != nil {
				logger.Error().Err(err).Msg("mark succeeded (not-indexable drop) failed")
			}
			rowsProcessed.WithLabelValues("attachment_index", "not_indexable_drop").Inc()
			return
		default:
			req.Payload = *att.ParsedText
		}
	}

	result := w.indexer.Dispatch(ctx, req)
	w.ack(ctx, row, result)
}

func (w *AttachmentIndexWorker) ack(ctx context.Context, row outbox.AttachmentIndexRow, result ragkg.IndexResult) {
	logger := w.log.With().Int64("outbox_id", row.ID).Logger()

	if result.OK {
		if err := w.store.MarkSucceeded(ctx, row.ID, w.id); err != nil {
			logger.Error().Err(err).Msg("mark succeeded failed")
		}
		rowsProcessed.WithLabelValues("attachment_index", "succeeded").Inc()
		return
	}

	if result.Retryable && row.Attempts < w.cfg.MaxAttempts {
		w.ackRetry(ctx, row, result.Detail)
		return
	}

	if err := w.store.MarkDead(ctx, row.ID, w.id, result.Detail); err != nil {
		logger.Error().Err(err).Msg("mark dead failed")
	}
	rowsProcessed.WithLabelValues("attachment_index", "dead").Inc()
}

func (w *AttachmentIndexWorker) ackRetry(ctx context.Context, row outbox.AttachmentIndexRow, errMsg string) {
	delay := outbox.Backoff(row.Attempts, w.cfg.BackoffBase(), w.cfg.BackoffCap(), outbox.DefaultJitter)
	if err := w.store.MarkRetry(ctx, row.ID, w.id, clock.Now().Add(delay), errMsg); err != nil {
		w.log.Error().Err(err).Int64("outbox_id", row.ID).Msg("mark retry failed")
	}
	rowsProcessed.WithLabelValues("attachment_index", "retry").Inc()
}
