package ragkg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mindatlas/backend/internal/httpx"
)

// HTTPEngine implements Engine against a LightRAG sidecar process: the
// LightRAG library itself is Python/asyncio-based and opaque to us, so the
// Go side reaches it the same way the retrieval
// service's LLM backend is reached — an HTTP boundary, kept thin enough
// that the RAG runtime host (internal/ragruntime), not this client, is
// what actually enforces single-threaded access to the engine.
//
// The sidecar is expected to expose one endpoint per Engine method, mirroring
// LightRAG's own ainsert/adelete_by_doc_id/query_llm/get_knowledge_graph/
// chunks_vdb.query surface one-for-one.
type HTTPEngine struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPEngine builds an Engine that calls the LightRAG sidecar at baseURL.
func NewHTTPEngine(httpClient *http.Client, baseURL string) *HTTPEngine {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPEngine{httpClient: httpClient, baseURL: baseURL}
}

func (e *HTTPEngine) do(ctx context.Context, path string, reqBody, respBody any) error {
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return httpx.NewNetworkError(fmt.Sprintf("ragkg %s", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return httpx.ClassifyHTTPError(resp.StatusCode, string(body), fmt.Errorf("ragkg %s: http %d", path, resp.StatusCode))
	}
	if respBody == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

type insertRequest struct {
	Text      string   `json:"text"`
	IDs       []string `json:"ids"`
	FilePaths []string `json:"file_paths"`
}

// Insert mirrors LightRAG's ainsert(text, ids=[...], file_paths=[...]).
func (e *HTTPEngine) Insert(ctx context.Context, text string, docID, filePath string) error {
	return e.do(ctx, "/ainsert", insertRequest{Text: text, IDs: []string{docID}, FilePaths: []string{filePath}}, nil)
}

type deleteRequest struct {
	DocID string `json:"doc_id"`
}

// DeleteByDocID mirrors adelete_by_doc_id(id); deleting an absent doc is a
// no-op success.
func (e *HTTPEngine) DeleteByDocID(ctx context.Context, docID string) error {
	return e.do(ctx, "/adelete_by_doc_id", deleteRequest{DocID: docID}, nil)
}

type queryLLMRequest struct {
	Query           string    `json:"query"`
	Mode            QueryMode `json:"mode"`
	TopK            int       `json:"top_k"`
	ChunkTopK       int       `json:"chunk_top_k"`
	Stream          bool      `json:"stream"`
	EnableRerank    bool      `json:"enable_rerank"`
	OnlyNeedContext bool      `json:"only_need_context"`
	MaxTokens       int       `json:"max_tokens,omitempty"`
}

type sourceWire struct {
	DocID    string  `json:"doc_id"`
	FilePath string  `json:"file_path"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

type queryLLMResponse struct {
	Answer   string       `json:"answer"`
	Chunks   []sourceWire `json:"chunks"`
	Entities []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
		FilePath    string `json:"file_path"`
	} `json:"entities"`
	Relationships []struct {
		Source      string `json:"source"`
		Target      string `json:"target"`
		Type        string `json:"type"`
		Description string `json:"description"`
		Keywords    string `json:"keywords"`
		FilePath    string `json:"file_path"`
	} `json:"relationships"`
}

// QueryLLM mirrors LightRAG's query_llm(q, QueryParam(...)).
func (e *HTTPEngine) QueryLLM(ctx context.Context, q string, p QueryParam) (QueryResult, error) {
	var resp queryLLMResponse
	req := queryLLMRequest{
		Query: q, Mode: p.Mode, TopK: p.TopK, ChunkTopK: p.ChunkTopK,
		Stream: p.Stream, EnableRerank: p.EnableRerank,
		OnlyNeedContext: p.OnlyNeedContext, MaxTokens: p.MaxTokens,
	}
	if err := e.do(ctx, "/query_llm", req, &resp); err != nil {
		return QueryResult{}, err
	}

	out := QueryResult{Answer: resp.Answer}
	for _, c := range resp.Chunks {
		out.Chunks = append(out.Chunks, Source{DocID: c.DocID, FilePath: c.FilePath, Score: c.Score, Text: c.Text})
	}
	for _, en := range resp.Entities {
		out.Entities = append(out.Entities, Entity{Name: en.Name, Type: en.Type, Description: en.Description, FilePath: en.FilePath})
	}
	for _, rel := range resp.Relationships {
		out.Relationships = append(out.Relationships, Relationship{
			Source: rel.Source, Target: rel.Target, Type: rel.Type,
			Description: rel.Description, Keywords: rel.Keywords, FilePath: rel.FilePath,
		})
	}
	return out, nil
}

type graphRequest struct {
	NodeLabel string `json:"node_label"`
	MaxDepth  int    `json:"max_depth"`
	MaxNodes  int    `json:"max_nodes"`
}

type graphResponse struct {
	Nodes []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		EntityType  string `json:"entity_type"`
		Description string `json:"description"`
		FilePath    string `json:"file_path"`
	} `json:"nodes"`
	Edges []struct {
		ID          string `json:"id"`
		Source      string `json:"source"`
		Target      string `json:"target"`
		Label       string `json:"label"`
		Description string `json:"description"`
		Keywords    string `json:"keywords"`
		FilePath    string `json:"file_path"`
	} `json:"edges"`
}

// GetKnowledgeGraph mirrors get_knowledge_graph(label, depth, max_nodes).
func (e *HTTPEngine) GetKnowledgeGraph(ctx context.Context, nodeLabel string, maxDepth, maxNodes int) (GraphData, error) {
	var resp graphResponse
	if err := e.do(ctx, "/get_knowledge_graph", graphRequest{NodeLabel: nodeLabel, MaxDepth: maxDepth, MaxNodes: maxNodes}, &resp); err != nil {
		return GraphData{}, err
	}

	out := GraphData{}
	for _, n := range resp.Nodes {
		out.Nodes = append(out.Nodes, GraphNode{ID: n.ID, Label: n.Label, EntityType: n.EntityType, Description: n.Description, FilePath: n.FilePath})
	}
	for _, ed := range resp.Edges {
		out.Edges = append(out.Edges, GraphEdge{ID: ed.ID, Source: ed.Source, Target: ed.Target, Label: ed.Label, Description: ed.Description, Keywords: ed.Keywords, FilePath: ed.FilePath})
	}
	return out, nil
}

type chunksVDBRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// ChunksVDBQuery mirrors chunks_vdb.query(q, top_k): the vector-only path
// recall_sources and query's source-supplementing step use.
func (e *HTTPEngine) ChunksVDBQuery(ctx context.Context, q string, topK int) ([]Source, error) {
	var resp []sourceWire
	if err := e.do(ctx, "/chunks_vdb_query", chunksVDBRequest{Query: q, TopK: topK}, &resp); err != nil {
		return nil, err
	}
	out := make([]Source, 0, len(resp))
	for _, s := range resp {
		out = append(out, Source{DocID: s.DocID, FilePath: s.FilePath, Score: s.Score, Text: s.Text})
	}
	return out, nil
}
