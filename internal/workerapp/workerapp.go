// Package workerapp is the background-worker composition root: it wires
// config, Postgres, the object store, the Docling/LightRAG sidecar
// adapters, the three leased worker pools, and the report scheduler, then runs them to ground
// until SIGINT/SIGTERM, following the memory service's outbox-worker
// goroutine-per-pipeline shutdown shape.
package workerapp

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindatlas/backend/internal/attachment"
	"github.com/mindatlas/backend/internal/config"
	"github.com/mindatlas/backend/internal/llmclient"
	"github.com/mindatlas/backend/internal/objectstore"
	"github.com/mindatlas/backend/internal/platform/logger"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/ragruntime"
	"github.com/mindatlas/backend/internal/report"
	"github.com/mindatlas/backend/internal/scheduler"
	"github.com/mindatlas/backend/internal/skill"
	"github.com/mindatlas/backend/internal/store/postgres"
	"github.com/mindatlas/backend/internal/worker"
)

// Run loads configuration, wires every pipeline, and blocks until all
// pipelines have drained their current batch following a shutdown signal.
func Run() error {
	log := logger.New("mindatlas-worker")

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("workerapp: load config: %w", err)
	}

	st, err := postgres.New(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("workerapp: connect postgres: %w", err)
	}
	defer st.Close()

	if err := postgres.Migrate(st.DB()); err != nil {
		return fmt.Errorf("workerapp: migrate schema: %w", err)
	}

	objects, err := objectstore.NewS3Store(context.Background(), objectstore.S3Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("workerapp: build object store: %w", err)
	}

	engine := ragkg.NewHTTPEngine(http.DefaultClient, cfg.RAGKGBaseURL)
	rt := ragruntime.New[ragkg.Engine](engine, time.Duration(cfg.RAGJobTimeoutSec)*time.Second, cfg.RAGMaxConcurrency*4)
	rt.Start()
	defer rt.Stop()

	indexer := ragkg.NewIndexer(rt, cfg.LightRAGEnabled && cfg.LightRAGWorkerEnabled)
	parser := attachment.NewDoclingParser(http.DefaultClient, cfg.DoclingBaseURL)

	entryWorker := worker.NewEntryWorker(st.EntryOutbox, st.Entries, indexer, cfg.EntryOutbox, log)
	attachmentIndexWorker := worker.NewAttachmentIndexWorker(st.AttachmentIndex, st.Attachments, indexer, cfg.AttachmentIndex, log)

	var runners []func(context.Context) error
	runners = append(runners, entryWorker.Run, attachmentIndexWorker.Run)

	if cfg.DoclingWorkerEnabled {
		parseWorker := attachment.NewWorker(st.AttachmentParse, st.Attachments, st.Attachments, st.AttachmentIndex, objects, parser, cfg.AttachmentParse, log)
		runners = append(runners, parseWorker.Run)
	}

	if cfg.SchedulerEnabled {
		llm := skill.NewLLMAdapter(llmclient.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMChatModel, cfg.LLMEmbedModel, cfg.LLMRerankModel))
		weekly := report.NewWeeklyService(st.Reports, st.Entries, llm, log)
		monthly := report.NewMonthlyService(st.Reports, st.Entries, llm, log)
		sched := scheduler.New(weekly, monthly, st.Reports, log)
		runners = append(runners, sched.Run)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		run := run
		g.Go(func() error { return run(gctx) })
	}

	log.Info().Int("pipelines", len(runners)).Msg("worker pipelines started")
	return g.Wait()
}
