// Package ragkg defines the opaque knowledge-graph engine contract
// MindAtlas indexes into, and the idempotent adapter that translates
// IndexRequests into engine calls. The engine itself (LightRAG or
// equivalent) is treated as a black box reached through the RAG runtime
// host (internal/ragruntime); this package never talks to it directly.
package ragkg

import "context"

// Engine is the minimal surface the indexer adapter and retrieval service
// need from the underlying RAG/KG library. All calls are expected to run
// on the single RAG runtime goroutine.
type Engine interface {
	Insert(ctx context.Context, text string, docID, filePath string) error
	DeleteByDocID(ctx context.Context, docID string) error

	QueryLLM(ctx context.Context, q string, p QueryParam) (QueryResult, error)
	GetKnowledgeGraph(ctx context.Context, nodeLabel string, maxDepth, maxNodes int) (GraphData, error)
	// ChunksVDBQuery is the vector-only path recall_sources and query's
	// source-supplementing step use.
	ChunksVDBQuery(ctx context.Context, q string, topK int) ([]Source, error)
}

// QueryMode mirrors the RAG library's retrieval modes.
type QueryMode string

const (
	ModeNaive  QueryMode = "naive"
	ModeLocal  QueryMode = "local"
	ModeGlobal QueryMode = "global"
	ModeHybrid QueryMode = "hybrid"
	ModeMix    QueryMode = "mix"
)

// QueryParam mirrors the RAG library's QueryParam.
type QueryParam struct {
	Mode             QueryMode
	TopK             int
	ChunkTopK        int
	Stream           bool
	EnableRerank     bool
	OnlyNeedContext  bool
	MaxTokens        int
}

// Source is one retrieved chunk/entity/relationship before MindAtlas's
// normalization step decorates it with kind/entry_id/attachment_id.
type Source struct {
	DocID    string
	FilePath string
	Score    float64
	Text     string
}

// QueryResult is query_llm's raw return: an answer plus the context it was
// grounded on.
type QueryResult struct {
	Answer        string
	Chunks        []Source
	Entities      []Entity
	Relationships []Relationship
}

// Entity and Relationship are the graph-context building blocks query_llm
// returns when OnlyNeedContext is set.
type Entity struct {
	Name        string
	Type        string
	Description string
	FilePath    string
}

type Relationship struct {
	Source      string
	Target      string
	Type        string
	Description string
	Keywords    string
	FilePath    string
}

// GraphData is get_knowledge_graph's raw return, before normalization into
// the {nodes,links} shape retrieval.GetGraphData exposes.
type GraphData struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

type GraphNode struct {
	ID          string
	Label       string
	EntityType  string
	Description string
	FilePath    string
}

type GraphEdge struct {
	ID          string
	Source      string
	Target      string
	Label       string
	Description string
	Keywords    string
	FilePath    string
}
