// Package config loads MindAtlas's process configuration from environment
// variables prefixed MINDATLAS_, following the same envconfig + validation
// pattern the memory service uses for its own Config.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// PipelineConfig tunes one leased worker pool: poll interval, claim batch
// size, attempt ceiling, and lease TTL.
type PipelineConfig struct {
	PollIntervalMS int `envconfig:"POLL_INTERVAL_MS"`
	BatchSize      int `envconfig:"BATCH_SIZE"`
	MaxAttempts    int `envconfig:"MAX_ATTEMPTS"`
	LockTTLSec     int `envconfig:"LOCK_TTL_SEC"`
	BackoffBaseSec int `envconfig:"BACKOFF_BASE_SEC"`
	BackoffCapSec  int `envconfig:"BACKOFF_CAP_SEC"`
}

func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

func (p PipelineConfig) LockTTL() time.Duration {
	return time.Duration(p.LockTTLSec) * time.Second
}

func (p PipelineConfig) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseSec) * time.Second
}

func (p PipelineConfig) BackoffCap() time.Duration {
	return time.Duration(p.BackoffCapSec) * time.Second
}

// Config holds the whole of MindAtlas's process configuration.
type Config struct {
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// Feature gates.
	LightRAGEnabled       bool `envconfig:"LIGHTRAG_ENABLED" default:"true"`
	LightRAGWorkerEnabled bool `envconfig:"LIGHTRAG_WORKER_ENABLED" default:"true"`
	DoclingWorkerEnabled  bool `envconfig:"DOCLING_WORKER_ENABLED" default:"true"`
	SchedulerEnabled      bool `envconfig:"SCHEDULER_ENABLED" default:"true"`

	EntryOutbox     PipelineConfig `envconfig:"ENTRY_OUTBOX"`
	AttachmentIndex PipelineConfig `envconfig:"ATTACHMENT_INDEX"`
	AttachmentParse PipelineConfig `envconfig:"ATTACHMENT_PARSE"`

	// RAG runtime tuning.
	RAGJobTimeoutSec   int    `envconfig:"RAG_JOB_TIMEOUT_SEC" default:"30"`
	RAGMaxConcurrency  int    `envconfig:"RAG_MAX_CONCURRENCY" default:"8"`
	RAGCacheTTLSec     int    `envconfig:"RAG_CACHE_TTL_SEC" default:"60"`
	RAGCacheMaxSize    int    `envconfig:"RAG_CACHE_MAX_SIZE" default:"512"`
	RAGEmbeddingDim    int    `envconfig:"RAG_EMBEDDING_DIM" default:"1536"`
	RAGSummaryLanguage string `envconfig:"RAG_SUMMARY_LANGUAGE" default:"en"`

	KBPrefetchTimeoutMS int `envconfig:"KB_PREFETCH_TIMEOUT_MS" default:"2000"`

	// RAGKGBaseURL addresses the LightRAG sidecar the RAG runtime host talks
	// to through internal/ragkg.HTTPEngine.
	RAGKGBaseURL string `envconfig:"RAGKG_BASE_URL" default:"http://localhost:9621"`

	// DoclingBaseURL addresses the Docling sidecar internal/attachment's
	// Parser implementation talks to, mirroring the RAGKGBaseURL pattern
	// above.
	DoclingBaseURL string `envconfig:"DOCLING_BASE_URL" default:"http://localhost:9622"`

	// Neo4j and the LightRAG process's own OpenAI-compatible wiring are
	// environment-backed at the sidecar, not here; MindAtlas only needs the
	// sidecar's HTTP address.

	// OpenAI-compatible LLM/embedding backend.
	LLMBaseURL     string `envconfig:"LLM_BASE_URL" default:"https://api.openai.com"`
	LLMAPIKey      string `envconfig:"LLM_API_KEY" default:""`
	LLMChatModel   string `envconfig:"LLM_CHAT_MODEL" default:"gpt-4o-mini"`
	LLMEmbedModel  string `envconfig:"LLM_EMBED_MODEL" default:"text-embedding-3-small"`
	LLMRerankModel string `envconfig:"LLM_RERANK_MODEL" default:""`

	MaxFileSizeMB int `envconfig:"MAX_FILE_SIZE_MB" default:"50"`

	// Object store (MinIO or any S3-compatible endpoint).
	S3Endpoint     string `envconfig:"S3_ENDPOINT" default:""`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket       string `envconfig:"S3_BUCKET" default:"mindatlas-attachments"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY" default:""`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"true"`
}

func (c Config) pipelineDefaults(p PipelineConfig, pollMS, batch, attempts, lockTTL, base, cap int) PipelineConfig {
	if p.PollIntervalMS <= 0 {
		p.PollIntervalMS = pollMS
	}
	if p.BatchSize <= 0 {
		p.BatchSize = batch
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = attempts
	}
	if p.LockTTLSec <= 0 {
		p.LockTTLSec = lockTTL
	}
	if p.BackoffBaseSec <= 0 {
		p.BackoffBaseSec = base
	}
	if p.BackoffCapSec <= 0 {
		p.BackoffCapSec = cap
	}
	return p
}

// ResolveDefaults fills in the per-pipeline backoff defaults: entry
// pipeline base=2s cap=60s, attachment pipelines base=5s cap=300s.
func (c *Config) ResolveDefaults() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	c.EntryOutbox = c.pipelineDefaults(c.EntryOutbox, 1000, 100, 8, 300, 2, 60)
	c.AttachmentIndex = c.pipelineDefaults(c.AttachmentIndex, 2000, 50, 8, 300, 5, 300)
	c.AttachmentParse = c.pipelineDefaults(c.AttachmentParse, 2000, 20, 5, 600, 5, 300)
	return nil
}

// New parses MINDATLAS_-prefixed environment variables into a Config.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("MINDATLAS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Bool("lightrag_enabled", cfg.LightRAGEnabled).
		Bool("lightrag_worker_enabled", cfg.LightRAGWorkerEnabled).
		Bool("docling_worker_enabled", cfg.DoclingWorkerEnabled).
		Int("http_port", cfg.HTTPPort).
		Str("llm_base_url", cfg.LLMBaseURL).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a Config with every default resolved, bypassing the
// Postgres-DSN requirement.
func NewForTesting() *Config {
	cfg := &Config{
		PostgresDSN:           "postgres://test",
		HTTPPort:              8080,
		LightRAGEnabled:       true,
		LightRAGWorkerEnabled: true,
		DoclingWorkerEnabled:  true,
		SchedulerEnabled:      true,
		RAGJobTimeoutSec:      30,
		RAGMaxConcurrency:     8,
		RAGCacheTTLSec:        60,
		RAGCacheMaxSize:       512,
		RAGEmbeddingDim:       1536,
		RAGSummaryLanguage:    "en",
		KBPrefetchTimeoutMS:   2000,
		RAGKGBaseURL:          "http://localhost:9621",
		DoclingBaseURL:        "http://localhost:9622",
		LLMBaseURL:            "https://api.openai.com",
		LLMChatModel:          "gpt-4o-mini",
		LLMEmbedModel:         "text-embedding-3-small",
		MaxFileSizeMB:         50,
		S3Region:              "us-east-1",
		S3Bucket:              "mindatlas-attachments",
		S3UsePathStyle:        true,
	}
	_ = cfg.ResolveDefaults()
	return cfg
}
