package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// RerankResult is one normalized rerank hit: the original document index
// and its relevance score, whichever wire shape the backend spoke.
type RerankResult struct {
	Index          int
	RelevanceScore float64
}

// Reranker calls an OpenAI-compatible or Aliyun-style rerank endpoint over
// stdlib net/http: rerank has no SDK coverage in openai-go, and the two
// wire shapes it must speak are bespoke enough that reaching for
// a generic HTTP library would add nothing a raw client doesn't already do.
type Reranker struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	aliyunMode bool
}

func NewReranker(httpClient *http.Client, baseURL, apiKey, model string, aliyunMode bool) *Reranker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Reranker{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey, model: model, aliyunMode: aliyunMode}
}

type standardRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type standardRerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

type aliyunRerankRequest struct {
	Model string `json:"model"`
	Input struct {
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	} `json:"input"`
	Parameters struct {
		TopN            int  `json:"top_n"`
		ReturnDocuments bool `json:"return_documents"`
	} `json:"parameters"`
}

type aliyunRerankResponse struct {
	Output struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	} `json:"output"`
}

// Rerank scores documents against query and returns results sorted by
// descending relevance.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	var body []byte
	var err error

	if r.aliyunMode {
		req := aliyunRerankRequest{Model: r.model}
		req.Input.Query = query
		req.Input.Documents = documents
		req.Parameters.TopN = topN
		req.Parameters.ReturnDocuments = false
		body, err = json.Marshal(req)
	} else {
		body, err = json.Marshal(standardRerankRequest{Model: r.model, Query: query, Documents: documents, TopN: topN})
	}
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("llmclient: rerank request failed with status %d", resp.StatusCode)
	}

	var results []RerankResult
	if r.aliyunMode {
		var parsed aliyunRerankResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, err
		}
		for _, res := range parsed.Output.Results {
			results = append(results, RerankResult{Index: res.Index, RelevanceScore: res.RelevanceScore})
		}
	} else {
		var parsed standardRerankResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, err
		}
		for _, res := range parsed.Results {
			results = append(results, RerankResult{Index: res.Index, RelevanceScore: res.RelevanceScore})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].RelevanceScore > results[j].RelevanceScore })
	return results, nil
}

// RerankChunked reranks long documents by local chunking then taking the
// max score per original doc index.
func RerankChunked(ctx context.Context, rr *Reranker, query string, docs []string, chunkSize, topN int) ([]RerankResult, error) {
	if chunkSize <= 0 {
		return rr.Rerank(ctx, query, docs, topN)
	}

	var chunks []string
	owner := make([]int, 0)
	for docIdx, doc := range docs {
		for start := 0; start < len(doc); start += chunkSize {
			end := start + chunkSize
			if end > len(doc) {
				end = len(doc)
			}
			chunks = append(chunks, doc[start:end])
			owner = append(owner, docIdx)
		}
	}

	chunkResults, err := rr.Rerank(ctx, query, chunks, len(chunks))
	if err != nil {
		return nil, err
	}

	best := make(map[int]float64)
	for _, cr := range chunkResults {
		docIdx := owner[cr.Index]
		if cr.RelevanceScore > best[docIdx] {
			best[docIdx] = cr.RelevanceScore
		}
	}

	out := make([]RerankResult, 0, len(best))
	for idx, score := range best {
		out = append(out, RerankResult{Index: idx, RelevanceScore: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
