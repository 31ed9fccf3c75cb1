// Package worker implements the leased worker pool: one
// goroutine per pipeline polling its outbox table, claiming a batch,
// processing rows sequentially, and acking success/retry/dead — following
// the same poll-ticker-leaseBatch-handle-markDone/markFailed shape the
// memory service's outbox worker uses.
package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/clock"
	"github.com/mindatlas/backend/internal/config"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/outbox"
	"github.com/mindatlas/backend/internal/payload"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/store"
)

// Identity returns this worker's lease identity, hostname:pid.
func Identity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// EntryWorker runs the entry_index_outbox pipeline.
type EntryWorker struct {
	store   outbox.EntryStore
	entries store.EntryReader
	indexer *ragkg.Indexer
	cfg     config.PipelineConfig
	id      string
	log     zerolog.Logger
}

func NewEntryWorker(st outbox.EntryStore, entries store.EntryReader, indexer *ragkg.Indexer, cfg config.PipelineConfig, log zerolog.Logger) *EntryWorker {
	return &EntryWorker{store: st, entries: entries, indexer: indexer, cfg: cfg, id: Identity(), log: log.With().Str("pipeline", "entry_index").Str("worker", Identity()).Logger()}
}

// Run polls until ctx is canceled, then returns once the in-flight batch
// finishes draining.
func (w *EntryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("poll_interval", w.cfg.PollInterval()).Int("batch_size", w.cfg.BatchSize).Msg("entry worker starting")
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("entry worker stopping")
			return nil
		case <-ticker.C:
			if err := w.processBatch(context.Background()); err != nil {
				w.log.Error().Err(err).Msg("entry worker batch failed")
			}
		}
	}
}

func (w *EntryWorker) processBatch(ctx context.Context) error {
	rows, err := w.store.ClaimBatch(ctx, w.id, w.cfg.BatchSize, w.cfg.LockTTL(), w.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	batchSize.WithLabelValues("entry").Observe(float64(len(rows)))
	for _, row := range rows {
		w.processRow(ctx, row)
	}
	return nil
}

func (w *EntryWorker) processRow(ctx context.Context, row outbox.EntryRow) {
	logger := w.log.With().Int64("outbox_id", row.ID).Str("entry_id", row.EntryID.String()).Logger()

	entry, exists, err := w.entries.GetEntry(ctx, row.EntryID)
	if err != nil {
		w.ackRetry(ctx, row, err.Error())
		return
	}

	// Staleness guard: a newer active upsert for the same entry already
	// supersedes this event; drop it rather than re-indexing stale content.
	if !exists && row.Op == outbox.OpUpsert {
		// Entry gone entirely: disable/missing translation rewrites the
		// upsert to a delete so the KG gets cleaned up.
		row.Op = outbox.OpDelete
	} else if exists && row.EntryUpdatedAt != nil && row.EntryUpdatedAt.Before(entry.UpdatedAt) {
		// entry.updated_at moved past this row's snapshot. Only drop it if a
		// newer active upsert for the same entry will reprocess current
		// state; otherwise this row is the only one in flight
		// (e.g. a tag/time-only change bumped updated_at without enqueuing
		// an upsert per the signature policy) and must still be processed
		// against current entry state.
		newerExists, err := w.store.HasNewerActiveUpsert(ctx, row.EntryID, row.ID, row.CreatedAt)
		if err != nil {
			w.ackRetry(ctx, row, err.Error())
			return
		}
		if newerExists {
			logger.Debug().Msg("dropping stale upsert: newer active upsert exists for this entry")
			if err := w.store.MarkSucceeded(ctx, row.ID, w.id); err != nil {
				logger.Error().Err(err).Msg("mark succeeded (stale drop) failed")
			}
			rowsProcessed.WithLabelValues("entry", "stale_drop").Inc()
			return
		}
	}

	req := ragkg.IndexRequest{Op: ragkg.Op(row.Op), EntryID: row.EntryID}

	if row.Op == outbox.OpUpsert {
		// Disable/missing translation: non-indexable type also becomes a delete.
		if exists {
			etype, err := w.entries.GetEntryType(ctx, entry.TypeID)
			if err != nil {
				w.ackRetry(ctx, row, err.Error())
				return
			}
			if !payload.Indexable(*etype) {
				req.Op = ragkg.OpDelete
			} else {
				var summary, content *string
				if entry.Summary != nil {
					summary = entry.Summary
				}
				if entry.Content != nil {
					content = entry.Content
				}
				req.Payload = payload.Build(payload.Entry{
					Title:    entry.Title,
					Summary:  summary,
					Content:  content,
					TypeName: etype.Name,
					TypeCode: etype.Code,
				})
			}
		}
	}

	result := w.indexer.Dispatch(ctx, req)
	w.ack(ctx, row, result, entry)
}

func (w *EntryWorker) ack(ctx context.Context, row outbox.EntryRow, result ragkg.IndexResult, entry *model.Entry) {
	logger := w.log.With().Int64("outbox_id", row.ID).Logger()

	if result.OK {
		// Coalescing re-queue: if the entry's indexable signature changed
		// again while this event was being processed, re-arm the same row
		// instead of letting EnqueueUpsert create a second active row.
		if row.Op == outbox.OpUpsert && entry != nil {
			fresh, exists, err := w.entries.GetEntry(ctx, row.EntryID)
			if err == nil && exists && fresh.Signature() != entry.Signature() {
				if err := w.store.MarkPending(ctx, row.ID, w.id, clock.Now()); err != nil {
					logger.Error().Err(err).Msg("mark pending (coalescing requeue) failed")
				}
				rowsProcessed.WithLabelValues("entry", "coalesced_requeue").Inc()
				return
			}
		}
		if err := w.store.MarkSucceeded(ctx, row.ID, w.id); err != nil {
			logger.Error().Err(err).Msg("mark succeeded failed")
		}
		rowsProcessed.WithLabelValues("entry", "succeeded").Inc()
		return
	}

	if result.Retryable && row.Attempts < w.cfg.MaxAttempts {
		w.ackRetry(ctx, row, result.Detail)
		return
	}

	if err := w.store.MarkDead(ctx, row.ID, w.id, result.Detail); err != nil {
		logger.Error().Err(err).Msg("mark dead failed")
	}
	rowsProcessed.WithLabelValues("entry", "dead").Inc()
}

func (w *EntryWorker) ackRetry(ctx context.Context, row outbox.EntryRow, errMsg string) {
	delay := outbox.Backoff(row.Attempts, w.cfg.BackoffBase(), w.cfg.BackoffCap(), outbox.DefaultJitter)
	if err := w.store.MarkRetry(ctx, row.ID, w.id, clock.Now().Add(delay), errMsg); err != nil {
		w.log.Error().Err(err).Int64("outbox_id", row.ID).Msg("mark retry failed")
	}
	rowsProcessed.WithLabelValues("entry", "retry").Inc()
}
