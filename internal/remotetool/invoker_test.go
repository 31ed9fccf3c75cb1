package remotetool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mindatlas/backend/internal/model"
)

// Loopback literals are blocked by design, so the request-construction
// tests drive buildRequest directly and send through the test server's own
// client instead of going through Invoke's guard.
func TestBuildRequest_JSONBodyWithWrapperAndAuth(t *testing.T) {
	var gotAuth string
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	inv := New(srv.Client(), nil)
	cfg := model.RemoteToolConfig{
		EndpointURL:    srv.URL,
		Method:         "POST",
		BodyType:       model.BodyJSON,
		BodyContent:    `{"city":"{{city}}"}`,
		PayloadWrapper: "payload",
		Auth:           model.AuthBearer,
		BearerToken:    "tok",
		TimeoutSec:     5,
	}
	req, err := inv.buildRequest(context.Background(), cfg, map[string]any{"city": `Par"is`})
	if err != nil {
		t.Fatalf("buildRequest(): %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do(): %v", err)
	}
	defer resp.Body.Close()

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	inner, ok := gotBody["payload"]
	if !ok {
		t.Fatalf("body missing payload wrapper: %v", gotBody)
	}
	var payload map[string]string
	if err := json.Unmarshal(inner, &payload); err != nil {
		t.Fatalf("wrapped payload is not JSON: %v", err)
	}
	if payload["city"] != `Par"is` {
		t.Errorf("city = %q, want the quote to survive JSON escaping", payload["city"])
	}
}

func TestBuildRequest_GetSerializesArgsIntoQuery(t *testing.T) {
	inv := New(nil, nil)
	cfg := model.RemoteToolConfig{
		EndpointURL: "https://api.example.com/search?fixed=1",
		Method:      "GET",
		QueryParams: map[string]string{"from": "config"},
	}
	req, err := inv.buildRequest(context.Background(), cfg, map[string]any{
		"q":     "golang",
		"limit": 5,
	})
	if err != nil {
		t.Fatalf("buildRequest(): %v", err)
	}
	q := req.URL.Query()
	if q.Get("fixed") != "1" || q.Get("from") != "config" {
		t.Errorf("existing query params must survive: %v", q)
	}
	if q.Get("q") != "golang" {
		t.Errorf("q = %q", q.Get("q"))
	}
	if q.Get("limit") != "5" {
		t.Errorf("non-string args must be JSON-encoded into the query, got %q", q.Get("limit"))
	}
}

func TestInvoke_SSRFBlockedEndpointNeverSendsHTTP(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	inv := New(srv.Client(), nil)
	cfg := model.RemoteToolConfig{
		EndpointURL: "http://169.254.169.254/latest/meta-data/",
		Method:      "GET",
		TimeoutSec:  1,
	}
	_, err := inv.Invoke(context.Background(), cfg, nil)
	var ssrf *model.SSRFError
	if !errors.As(err, &ssrf) {
		t.Fatalf("Invoke() = %v, want SSRF rejection", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("no outbound HTTP may happen for a blocked endpoint, saw %d requests", hits.Load())
	}
}

func TestRenderJSONBody_FallsBackToArgsWhenTemplateEmpty(t *testing.T) {
	raw, err := renderJSONBody("", map[string]any{"a": 1, "b": "two"})
	if err != nil {
		t.Fatalf("renderJSONBody(): %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if parsed["b"] != "two" {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestRenderJSONBody_RejectsBrokenTemplate(t *testing.T) {
	_, err := renderJSONBody(`{"a": {{a}}`, map[string]any{"a": "x"})
	if err == nil {
		t.Fatal("expected error for a template that renders to invalid JSON")
	}
}
