// Package retrieval implements the retrieval service: query,
// recall_sources, graph_recall_with_context, get_graph_data, and
// recommend_entry_relations, each bounded by a semaphore + hard timeout and
// optionally backed by a TTL-LRU cache.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/ragkg"
	"github.com/mindatlas/backend/internal/ragruntime"
	"github.com/mindatlas/backend/internal/store"
)

// RerankFunc reorders candidate documents by relevance, returning original
// indices ordered best-first. Optional; nil leaves vector-store order alone.
type RerankFunc func(ctx context.Context, query string, docs []string, topN int) ([]int, error)

// Config tunes the service's shared concurrency/timeout/cache knobs.
type Config struct {
	MaxConcurrency int
	HardTimeout    time.Duration
	CacheTTL       time.Duration
	CacheMaxSize   int
	EnableRerank   bool
	Rerank         RerankFunc
}

// Service implements the five retrieval operations against the RAG runtime.
type Service struct {
	runtime   *ragruntime.Runtime[ragkg.Engine]
	relTypes  store.RelationTypeReader
	relations store.RelationReader
	entries   store.EntryReader
	cfg       Config

	sem        semaphore
	queryCache *cache[QueryOutput]
	graphCache *cache[GraphData]
}

func NewService(rt *ragruntime.Runtime[ragkg.Engine], relTypes store.RelationTypeReader, relations store.RelationReader, entries store.EntryReader, cfg Config) *Service {
	return &Service{
		runtime:    rt,
		relTypes:   relTypes,
		relations:  relations,
		entries:    entries,
		cfg:        cfg,
		sem:        newSemaphore(cfg.MaxConcurrency),
		queryCache: newCache[QueryOutput](cfg.CacheTTL, cfg.CacheMaxSize),
		graphCache: newCache[GraphData](cfg.CacheTTL, cfg.CacheMaxSize),
	}
}

// withBudget acquires the semaphore and enforces the hard timeout around fn.
func (s *Service) withBudget(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.sem.acquire(ctx); err != nil {
		return model.NewTimeoutError("retrieval: semaphore acquire")
	}
	defer s.sem.release()

	timeoutCtx, cancel := context.WithTimeout(ctx, s.cfg.HardTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(timeoutCtx) }()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		return model.NewTimeoutError("retrieval call")
	}
}

// QueryMetadata accompanies Query's answer.
type QueryMetadata struct {
	Mode      ragkg.QueryMode
	TopK      int
	LatencyMS int64
	CacheHit  bool
}

// Reference is one numbered citation item for [^n] markers in assistant
// answers: entries first, then entities, then relationships.
type Reference struct {
	Index   int
	Kind    string // "entry" | "entity" | "relationship"
	Label   string
	EntryID *uuid.UUID
}

// QueryOutput is query()'s return shape.
type QueryOutput struct {
	Answer     string
	Sources    []Source
	References []Reference
	Metadata   QueryMetadata
}

func cacheKey(parts ...string) string { return strings.Join(parts, "\x1f") }

// Query issues query_llm then supplements sources from the vector store
// directly.
func (s *Service) Query(ctx context.Context, q string, mode ragkg.QueryMode, topK int) (QueryOutput, error) {
	key := cacheKey("query", q, string(mode), strconv.Itoa(topK))
	if cached, ok := s.queryCache.get(key); ok {
		cached.Metadata.CacheHit = true
		return cached, nil
	}

	start := time.Now()
	var out QueryOutput
	err := s.withBudget(ctx, func(ctx context.Context) error {
		return s.runtime.Submit(ctx, func(rctx context.Context, engine ragkg.Engine) error {
			res, err := engine.QueryLLM(rctx, q, ragkg.QueryParam{
				Mode: mode, TopK: topK, ChunkTopK: topK, Stream: false, EnableRerank: s.cfg.EnableRerank,
			})
			if err != nil {
				return err
			}
			sources, err := engine.ChunksVDBQuery(rctx, q, topK)
			if err != nil {
				return err
			}
			out.Answer = res.Answer
			for _, raw := range sources {
				out.Sources = append(out.Sources, NormalizeSource(raw))
			}
			out.References = buildReferences(out.Sources, res.Entities, res.Relationships)
			return nil
		})
	})
	if err != nil {
		return QueryOutput{}, err
	}

	out.Metadata = QueryMetadata{Mode: mode, TopK: topK, LatencyMS: time.Since(start).Milliseconds(), CacheHit: false}
	s.queryCache.put(key, out)
	return out, nil
}

// RecallSources is the vector-only path (no LLM) for cheap relevance lookups.
func (s *Service) RecallSources(ctx context.Context, q string, mode ragkg.QueryMode, topK int) ([]Source, error) {
	var out []Source
	err := s.withBudget(ctx, func(ctx context.Context) error {
		return s.runtime.Submit(ctx, func(rctx context.Context, engine ragkg.Engine) error {
			sources, err := engine.ChunksVDBQuery(rctx, q, topK)
			if err != nil {
				return err
			}
			for _, raw := range sources {
				out = append(out, NormalizeSource(raw))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.maybeRerank(ctx, q, out, topK), nil
}

// maybeRerank reorders sources through the configured rerank backend;
// failures leave the vector-store order untouched.
func (s *Service) maybeRerank(ctx context.Context, q string, sources []Source, topN int) []Source {
	if s.cfg.Rerank == nil || len(sources) < 2 {
		return sources
	}
	docs := make([]string, len(sources))
	for i, src := range sources {
		docs[i] = src.Text
	}
	order, err := s.cfg.Rerank(ctx, q, docs, topN)
	if err != nil {
		return sources
	}
	reordered := make([]Source, 0, len(order))
	for _, idx := range order {
		if idx >= 0 && idx < len(sources) {
			reordered = append(reordered, sources[idx])
		}
	}
	if len(reordered) == 0 {
		return sources
	}
	return reordered
}

// buildReferences numbers the citation list: one reference per distinct
// source EntryID (sources without one are skipped), then entities, then
// relationships.
func buildReferences(sources []Source, entities []ragkg.Entity, relationships []ragkg.Relationship) []Reference {
	var refs []Reference
	seen := map[string]bool{}
	n := 0
	for _, src := range sources {
		if src.EntryID == nil || seen[src.EntryID.String()] {
			continue
		}
		seen[src.EntryID.String()] = true
		n++
		id := *src.EntryID
		refs = append(refs, Reference{Index: n, Kind: "entry", Label: src.FilePath, EntryID: &id})
	}
	for _, e := range entities {
		n++
		refs = append(refs, Reference{Index: n, Kind: "entity", Label: e.Name})
	}
	for _, r := range relationships {
		n++
		refs = append(refs, Reference{Index: n, Kind: "relationship", Label: r.Source + "|" + r.Type + "|" + r.Target})
	}
	return refs
}

// GraphContext is graph_recall_with_context's return shape.
type GraphContext struct {
	Chunks        []Source
	Entities      []ragkg.Entity
	Relationships []ragkg.Relationship
}

func (s *Service) GraphRecallWithContext(ctx context.Context, q string, mode ragkg.QueryMode, topK, chunkTopK, maxTokens int) (GraphContext, error) {
	var out GraphContext
	err := s.withBudget(ctx, func(ctx context.Context) error {
		return s.runtime.Submit(ctx, func(rctx context.Context, engine ragkg.Engine) error {
			res, err := engine.QueryLLM(rctx, q, ragkg.QueryParam{
				Mode: mode, TopK: topK, ChunkTopK: chunkTopK, OnlyNeedContext: true, MaxTokens: maxTokens,
			})
			if err != nil {
				return err
			}
			for _, raw := range res.Chunks {
				out.Chunks = append(out.Chunks, NormalizeSource(raw))
			}
			out.Entities = res.Entities
			out.Relationships = res.Relationships
			return nil
		})
	})
	return out, err
}

// GraphNode/GraphLink/GraphData are get_graph_data's normalized output shape.
type GraphNode struct {
	ID          string
	Label       string
	TypeID      *uuid.UUID
	TypeName    string
	Color       string
	EntityID    string
	EntityType  string
	Description string
	EntryID     *uuid.UUID
	EntryTitle  string
}

type GraphLink struct {
	ID          string
	Source      string
	Target      string
	Label       string
	Description string
	Keywords    string
	EntryID     *uuid.UUID
	EntryTitle  string
}

type GraphData struct {
	Nodes []GraphNode
	Links []GraphLink
}

func (s *Service) GetGraphData(ctx context.Context, nodeLabel string, maxDepth, maxNodes int) (GraphData, error) {
	if maxDepth > 10 {
		maxDepth = 10
	}
	if maxNodes > 5000 {
		maxNodes = 5000
	}

	key := cacheKey("graph", nodeLabel, strconv.Itoa(maxDepth), strconv.Itoa(maxNodes))
	if cached, ok := s.graphCache.get(key); ok {
		return cached, nil
	}

	var raw ragkg.GraphData
	err := s.withBudget(ctx, func(ctx context.Context) error {
		return s.runtime.Submit(ctx, func(rctx context.Context, engine ragkg.Engine) error {
			var err error
			raw, err = engine.GetKnowledgeGraph(rctx, nodeLabel, maxDepth, maxNodes)
			return err
		})
	})
	if err != nil {
		return GraphData{}, err
	}

	out := GraphData{}
	for _, n := range raw.Nodes {
		node := GraphNode{
			ID: n.ID, Label: n.Label, EntityID: n.ID, EntityType: n.EntityType,
			Description: n.Description, TypeName: n.EntityType, Color: ColorFor(n.EntityType),
		}
		if id, ok := firstUUID(n.FilePath); ok {
			node.EntryID = &id
		}
		out.Nodes = append(out.Nodes, node)
	}
	for _, e := range raw.Edges {
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%s|%s|%s", e.Source, e.Label, e.Target)
		}
		link := GraphLink{ID: id, Source: e.Source, Target: e.Target, Label: e.Label, Description: e.Description, Keywords: e.Keywords}
		if entryID, ok := firstUUID(e.FilePath); ok {
			link.EntryID = &entryID
		}
		out.Links = append(out.Links, link)
	}

	s.graphCache.put(key, out)
	return out, nil
}

// RecommendedRelation is one recommend_entry_relations result item.
type RecommendedRelation struct {
	TargetEntryID uuid.UUID
	RelationType  string
	Score         float64
}

type relationCandidate struct {
	RelationType string  `json:"relationType"`
	Relevance    float64 `json:"relevance"`
}

// RecommendEntryRelations builds a prompt embedding the entry text plus
// enabled relation-type codes, runs a single query_llm to get both
// retrieval context and a JSON answer, then extracts candidate entry UUIDs
// from the returned context and scores them from the JSON answer.
func (s *Service) RecommendEntryRelations(ctx context.Context, entryID uuid.UUID, mode ragkg.QueryMode, limit int, minScore float64, excludeExisting bool, includeRelationType bool) ([]RecommendedRelation, error) {
	if limit > 100 {
		limit = 100
	}
	threshold := minScore
	if threshold < 0.30 {
		threshold = 0.30
	}

	entry, exists, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.NewNotFoundError("entry_id", entryID.String())
	}

	relTypes, err := s.relTypes.ListEnabledRelationTypes(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(relTypes))
	for _, rt := range relTypes {
		codes = append(codes, rt.Code)
	}

	prompt := buildRelationPrompt(entry, codes)

	var res ragkg.QueryResult
	err = s.withBudget(ctx, func(ctx context.Context) error {
		return s.runtime.Submit(ctx, func(rctx context.Context, engine ragkg.Engine) error {
			var err error
			res, err = engine.QueryLLM(rctx, prompt, ragkg.QueryParam{Mode: mode, TopK: limit, ChunkTopK: limit})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	// Extract candidate entry UUIDs from chunks/entities/relationships' file_path.
	candidateIDs := map[uuid.UUID]bool{}
	for _, c := range res.Chunks {
		if id, ok := firstUUID(c.FilePath); ok {
			candidateIDs[id] = true
		}
	}
	for _, e := range res.Entities {
		if id, ok := firstUUID(e.FilePath); ok {
			candidateIDs[id] = true
		}
	}
	for _, r := range res.Relationships {
		if id, ok := firstUUID(r.FilePath); ok {
			candidateIDs[id] = true
		}
	}

	var existingTargets map[uuid.UUID]bool
	if excludeExisting {
		existingTargets, err = s.relations.ListRelatedEntryIDs(ctx, entryID)
		if err != nil {
			return nil, err
		}
	}

	scored := parseRelationAnswer(res.Answer)

	// Max-wins per target: if the JSON answer names the same target twice,
	// keep the highest relevance.
	best := map[uuid.UUID]relationCandidate{}
	for idStr, cand := range scored {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		if existing, ok := best[id]; !ok || cand.Relevance > existing.Relevance {
			best[id] = cand
		}
	}

	var out []RecommendedRelation
	for id := range candidateIDs {
		if id == entryID {
			continue // drop self-references
		}
		if excludeExisting && existingTargets[id] {
			continue // already related to entryID
		}
		target, exists, err := s.entries.GetEntry(ctx, id)
		if err != nil || !exists || target.Deleted {
			continue // drop deleted entries
		}
		cand, ok := best[id]
		score := 0.0
		relType := ""
		if ok {
			score = cand.Relevance
			relType = cand.RelationType
		}
		if score < threshold {
			continue
		}
		item := RecommendedRelation{TargetEntryID: id, Score: score}
		if includeRelationType {
			item.RelationType = relType
		}
		out = append(out, item)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TargetEntryID.String() < out[j].TargetEntryID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func buildRelationPrompt(entry *model.Entry, relationTypeCodes []string) string {
	var b strings.Builder
	b.WriteString("Entry title: ")
	b.WriteString(entry.Title)
	if entry.Summary != nil {
		b.WriteString("\nSummary: ")
		b.WriteString(*entry.Summary)
	}
	if entry.Content != nil {
		b.WriteString("\nContent: ")
		b.WriteString(*entry.Content)
	}
	b.WriteString("\nAvailable relation types: ")
	b.WriteString(strings.Join(relationTypeCodes, ", "))
	b.WriteString("\nRespond with a JSON object mapping candidate entry UUIDs to {relationType, relevance}.")
	return b.String()
}

// parseRelationAnswer parses the LLM's JSON answer for
// {entryUUID: {relationType, relevance}}. Malformed or non-JSON answers
// yield no scored candidates, so every candidate falls below the
// relevance threshold and the result comes back empty.
func parseRelationAnswer(answer string) map[string]relationCandidate {
	text := strings.TrimSpace(answer)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var out map[string]relationCandidate
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return map[string]relationCandidate{}
	}
	return out
}
