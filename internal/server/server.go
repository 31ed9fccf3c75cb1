// Package server is the HTTP API composition root: it wires config,
// Postgres, the LLM/rerank/KG/retrieval collaborators, the skill engine,
// and the chat runner into one *http.Server, following the same
// config-then-store-then-router-then-ListenAndServe shape the memory
// service's own cmd/memory-service main uses.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/attachment"
	"github.com/mindatlas/backend/internal/chat"
	"github.com/mindatlas/backend/internal/config"
	"github.com/mindatlas/backend/internal/httpapi"
	"github.com/mindatlas/backend/internal/llmclient"
	"github.com/mindatlas/backend/internal/objectstore"
	"github.com/mindatlas/backend/internal/platform/logger"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/ragruntime"
	"github.com/mindatlas/backend/internal/remotetool"
	"github.com/mindatlas/backend/internal/report"
	"github.com/mindatlas/backend/internal/retrieval"
	"github.com/mindatlas/backend/internal/shardqueue"
	"github.com/mindatlas/backend/internal/skill"
	"github.com/mindatlas/backend/internal/store/postgres"
)

// Run loads configuration, wires every collaborator, and serves HTTP until
// SIGINT/SIGTERM, draining in-flight requests before returning.
func Run() error {
	log := logger.New("mindatlas-server")

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("server: load config: %w", err)
	}

	st, err := postgres.New(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("server: connect postgres: %w", err)
	}
	defer st.Close()

	if err := postgres.Migrate(st.DB()); err != nil {
		return fmt.Errorf("server: migrate schema: %w", err)
	}

	llm := llmclient.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMChatModel, cfg.LLMEmbedModel, cfg.LLMRerankModel)

	var rerank retrieval.RerankFunc
	if cfg.LLMRerankModel != "" {
		reranker := llmclient.NewReranker(http.DefaultClient, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMRerankModel, false)
		rerank = func(ctx context.Context, query string, docs []string, topN int) ([]int, error) {
			results, err := llmclient.RerankChunked(ctx, reranker, query, docs, 0, topN)
			if err != nil {
				return nil, err
			}
			order := make([]int, 0, len(results))
			for _, r := range results {
				order = append(order, r.Index)
			}
			return order, nil
		}
	}

	engine := ragkg.NewHTTPEngine(http.DefaultClient, cfg.RAGKGBaseURL)
	runtime := ragruntime.New[ragkg.Engine](engine, time.Duration(cfg.RAGJobTimeoutSec)*time.Second, cfg.RAGMaxConcurrency*4)
	runtime.Start()
	defer runtime.Stop()

	retrievalSvc := retrieval.NewService(runtime, st.RelationTypes, st.Relations, st.Entries, retrieval.Config{
		MaxConcurrency: cfg.RAGMaxConcurrency,
		HardTimeout:    time.Duration(cfg.RAGJobTimeoutSec) * time.Second,
		CacheTTL:       time.Duration(cfg.RAGCacheTTLSec) * time.Second,
		CacheMaxSize:   cfg.RAGCacheMaxSize,
		EnableRerank:   cfg.LLMRerankModel != "",
		Rerank:         rerank,
	})

	invoker := remotetool.New(http.DefaultClient, nil)
	registry := skill.NewRegistry(invoker)
	registry.RegisterLocal("create_entry", "Create a new knowledge-base entry from raw content.", chat.CreateEntryToolSchema(), chat.NewCreateEntryTool(st.Entries))
	registry.RegisterLocal("search_entries", "Search entries by keyword, type code, or tags.", chat.SearchEntriesToolSchema(), chat.NewSearchEntriesTool(st.Entries))
	registry.RegisterLocal("get_entry_detail", "Fetch one entry's full content, type, and tags by id.", chat.GetEntryDetailToolSchema(), chat.NewGetEntryDetailTool(st.Entries))
	registry.RegisterLocal("get_statistics", "Summarize totals: entries, tags, types, entries per type.", chat.GetStatisticsToolSchema(), chat.NewGetStatisticsTool(st.Stats))
	registry.RegisterLocal("analyze_activity", "Count entries over a trailing week/month/year window.", chat.AnalyzeActivityToolSchema(), chat.NewAnalyzeActivityTool(st.Stats))
	registry.RegisterLocal("kb_relation_recommendations", "Recommend knowledge-graph relations for an entry.", chat.RelationRecommendationsToolSchema(), chat.NewRelationRecommendationsTool(retrievalSvc))
	registry.RegisterKBSearch(chat.NewKBSearchTool(retrievalSvc, ragkg.ModeHybrid, 10))

	chatLLM := skill.NewLLMAdapter(llm)
	router := skill.NewRouter(chatLLM, log)
	executor := skill.NewExecutor(chatLLM, registry, log)

	toolExecCfg := shardqueue.Config{Shards: 8, QueueSize: 256, EnqueueTimeout: 2 * time.Second}
	toolExec := shardqueue.NewShardExecutor(toolExecCfg)
	defer toolExec.Close()

	prefetch := ragruntime.NewPrefetch(time.Duration(cfg.KBPrefetchTimeoutMS) * time.Millisecond)
	kbSearch := func(ctx context.Context, query string) (string, error) {
		out, err := retrievalSvc.Query(ctx, query, ragkg.ModeHybrid, 5)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.WriteString(out.Answer)
		for _, ref := range out.References {
			fmt.Fprintf(&b, "\n[^%d] %s: %s", ref.Index, ref.Kind, ref.Label)
		}
		return b.String(), nil
	}
	agentRunner := skill.NewAgentRunner(llm, registry, prefetch, kbSearch, toolExec, log)

	runner := chat.NewRunner(st.Conversations, st.Assistant, router, executor, agentRunner, chatLLM, log)

	objects, err := objectstore.NewS3Store(context.Background(), objectstore.S3Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("server: build object store: %w", err)
	}
	uploader := attachment.NewUploader(objects, st.Attachments, log)

	weeklyReports := report.NewWeeklyService(st.Reports, st.Entries, chatLLM, log)
	monthlyReports := report.NewMonthlyService(st.Reports, st.Entries, chatLLM, log)

	mux := httpapi.NewRouter(httpapi.RouterDeps{
		Runner:        runner,
		Conversations: st.Conversations,
		Retrieval:     retrievalSvc,
		EntryOutbox:   st.EntryOutbox,
		Assistant:     st.Assistant,
		Uploader:      uploader,
		MaxFileSizeMB: int64(cfg.MaxFileSizeMB),
		Weekly:        weeklyReports,
		Monthly:       monthlyReports,
		Stats:         st.Stats,
		Log:           log,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serveUntilSignal(httpServer, log)
}

func serveUntilSignal(httpServer *http.Server, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("http server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, draining http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}
