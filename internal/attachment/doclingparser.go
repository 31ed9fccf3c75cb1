package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mindatlas/backend/internal/httpx"
)

// DoclingParser implements Parser against a Docling sidecar process.
// Docling is a Python library, reached the same way the KG engine is: an
// HTTP boundary around a single-purpose extraction endpoint.
type DoclingParser struct {
	httpClient *http.Client
	baseURL    string
}

func NewDoclingParser(httpClient *http.Client, baseURL string) *DoclingParser {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DoclingParser{httpClient: httpClient, baseURL: baseURL}
}

type parseResponse struct {
	Text      string `json:"text"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error"`
}

// Parse uploads the file at path and returns the extracted plain text.
// Retryable failures (per the sidecar's own classification) surface as a
// *ParseError so the worker's retry/dead-letter policy applies uniformly.
func (p *DoclingParser) Parse(ctx context.Context, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	if _, err := io.Copy(&body, f); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/parse", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &ParseError{Retryable: true, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		classified := httpx.ClassifyHTTPError(resp.StatusCode, string(raw), fmt.Errorf("docling parse: http %d", resp.StatusCode))
		return "", &ParseError{Retryable: !httpx.IsIrrecoverable(classified), Message: classified.Error()}
	}

	var out parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ParseError{Retryable: true, Message: err.Error()}
	}
	if out.Error != "" {
		return "", &ParseError{Retryable: out.Retryable, Message: out.Error}
	}
	return out.Text, nil
}
