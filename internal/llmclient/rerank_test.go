package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRerank_StandardShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req standardRerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "outbox" || len(req.Documents) != 3 {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.4},
				{"index": 1, "relevance_score": 0.7},
			},
		})
	}))
	defer srv.Close()

	rr := NewReranker(srv.Client(), srv.URL, "key", "rerank-model", false)
	results, err := rr.Rerank(context.Background(), "outbox", []string{"a", "b", "c"}, 3)
	if err != nil {
		t.Fatalf("Rerank(): %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	wantOrder := []int{2, 1, 0}
	for i, want := range wantOrder {
		if results[i].Index != want {
			t.Errorf("results[%d].Index = %d, want %d", i, results[i].Index, want)
		}
	}
}

func TestRerank_AliyunShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req aliyunRerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Input.Query != "tags" || req.Parameters.ReturnDocuments {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"results": []map[string]any{
					{"index": 1, "relevance_score": 0.8},
					{"index": 0, "relevance_score": 0.3},
				},
			},
		})
	}))
	defer srv.Close()

	rr := NewReranker(srv.Client(), srv.URL, "", "rerank-model", true)
	results, err := rr.Rerank(context.Background(), "tags", []string{"x", "y"}, 2)
	if err != nil {
		t.Fatalf("Rerank(): %v", err)
	}
	if len(results) != 2 || results[0].Index != 1 {
		t.Fatalf("normalized results = %+v, want index 1 first", results)
	}
}

// RerankChunked splits long documents and keeps the max chunk score per
// original document.
func TestRerankChunked_MaxScorePerDoc(t *testing.T) {
	scoreByChunk := map[string]float64{
		"aaaa": 0.2, "aabb": 0.9, // doc 0's two chunks
		"cccc": 0.5, // doc 1's single chunk
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req standardRerankRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		results := make([]map[string]any, 0, len(req.Documents))
		for i, doc := range req.Documents {
			results = append(results, map[string]any{"index": i, "relevance_score": scoreByChunk[doc]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	rr := NewReranker(srv.Client(), srv.URL, "", "rerank-model", false)
	results, err := RerankChunked(context.Background(), rr, "q", []string{"aaaaaabb", "cccc"}, 4, 2)
	if err != nil {
		t.Fatalf("RerankChunked(): %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Index != 0 || results[0].RelevanceScore != 0.9 {
		t.Fatalf("results[0] = %+v, want doc 0 at its max chunk score 0.9", results[0])
	}
	if results[1].Index != 1 || results[1].RelevanceScore != 0.5 {
		t.Fatalf("results[1] = %+v", results[1])
	}
}

func TestChat_SendsMessagesAndReadsReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "pong"}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "test-model", "embed-model", "")
	reply, err := c.Chat(context.Background(), []Message{
		{Role: "system", Content: "you are a test"},
		{Role: "user", Content: "ping"},
	}, 0)
	if err != nil {
		t.Fatalf("Chat(): %v", err)
	}
	if reply != "pong" {
		t.Fatalf("Chat() = %q", reply)
	}
}

func TestEmbed_ReturnsVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{0.1, 0.2}},
				{"embedding": []float64{0.3, 0.4}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "chat-model", "embed-model", "")
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed(): %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 || vecs[1][1] != 0.4 {
		t.Fatalf("Embed() = %v", vecs)
	}
}
