package remotetool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mindatlas/backend/internal/httpx"
	"github.com/mindatlas/backend/internal/model"
)

// Invoker performs SSRF-guarded, templated HTTP calls against a
// RemoteToolConfig.
type Invoker struct {
	client   *http.Client
	resolver Resolver
}

func New(client *http.Client, resolver Resolver) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Invoker{client: client, resolver: resolver}
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// renderTemplate substitutes {{var}} placeholders from args. When
// jsonEscape is set, substituted values are JSON-string-escaped so a
// template embedded in quoted JSON positions stays well-formed.
func renderTemplate(tpl string, args map[string]string, jsonEscape bool) string {
	return varPattern.ReplaceAllStringFunc(tpl, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		val, ok := args[name]
		if !ok {
			return m
		}
		if jsonEscape {
			b, _ := json.Marshal(val)
			// Strip the surrounding quotes json.Marshal adds for a bare string.
			return string(b[1 : len(b)-1])
		}
		return val
	})
}

// stringifyArgs prepares arg values for query-string serialization: strings
// pass through unchanged, every other value is JSON-encoded (so
// numbers/bools/objects survive).
func stringifyArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprintf("%v", v)
			continue
		}
		out[k] = string(b)
	}
	return out
}

// Invoke validates the endpoint against the SSRF guard, builds the request
// per cfg.Method/BodyType, sends it, and returns the raw response body.
func (inv *Invoker) Invoke(ctx context.Context, cfg model.RemoteToolConfig, args map[string]any) ([]byte, error) {
	if err := ValidateURL(ctx, cfg.EndpointURL, inv.resolver); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout < time.Second {
		timeout = time.Second
	}

	var result []byte
	op := func() error {
		req, err := inv.buildRequest(ctx, cfg, args)
		if err != nil {
			return backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req = req.WithContext(callCtx)

		resp, err := inv.client.Do(req)
		if err != nil {
			return httpx.NewNetworkError(fmt.Sprintf("remote tool %q", cfg.EndpointURL), err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 400 {
			cerr := httpx.ClassifyHTTPError(resp.StatusCode, excerpt(body), fmt.Errorf("remote tool %q: http %d", cfg.EndpointURL, resp.StatusCode))
			if httpx.IsIrrecoverable(cerr) {
				return backoff.Permanent(cerr)
			}
			return cerr
		}
		result = body
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func excerpt(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

func (inv *Invoker) buildRequest(ctx context.Context, cfg model.RemoteToolConfig, args map[string]any) (*http.Request, error) {
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	var req *http.Request
	var err error

	switch method {
	case http.MethodGet, http.MethodDelete:
		endpoint, qerr := mergeQuery(cfg.EndpointURL, cfg.QueryParams, stringifyArgs(args))
		if qerr != nil {
			return nil, qerr
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	default:
		endpoint, qerr := mergeQuery(cfg.EndpointURL, cfg.QueryParams, nil)
		if qerr != nil {
			return nil, qerr
		}
		body, contentType, berr := inv.buildBody(cfg, args)
		if berr != nil {
			return nil, berr
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, body)
		if err == nil && contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
	}
	if err != nil {
		return nil, err
	}

	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	applyAuth(req, cfg)
	return req, nil
}

func mergeQuery(endpoint string, fixed map[string]string, extra map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", model.NewValidationError("endpoint_url", "not a valid URL")
	}
	q := u.Query()
	for k, v := range fixed {
		q.Set(k, v)
	}
	for k, v := range extra {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func applyAuth(req *http.Request, cfg model.RemoteToolConfig) {
	switch cfg.Auth {
	case model.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
	case model.AuthBasic:
		req.SetBasicAuth(cfg.BasicUser, cfg.BasicPass)
	case model.AuthAPIKey:
		if cfg.APIKeyHeader != "" {
			req.Header.Set(cfg.APIKeyHeader, cfg.APIKeyValue)
		}
	}
}

// buildBody constructs the request body per cfg.BodyType.
func (inv *Invoker) buildBody(cfg model.RemoteToolConfig, args map[string]any) (io.Reader, string, error) {
	strArgs := stringifyArgs(args)

	switch cfg.BodyType {
	case model.BodyNone, "":
		return nil, "", nil

	case model.BodyFormData:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range strArgs {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil

	case model.BodyURLEncoded:
		form := url.Values{}
		for k, v := range strArgs {
			form.Set(k, v)
		}
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil

	case model.BodyJSON:
		raw, err := renderJSONBody(cfg.BodyContent, args)
		if err != nil {
			return nil, "", err
		}
		if cfg.PayloadWrapper != "" {
			wrapped, err := json.Marshal(map[string]json.RawMessage{cfg.PayloadWrapper: raw})
			if err != nil {
				return nil, "", err
			}
			raw = wrapped
		}
		return bytes.NewReader(raw), "application/json", nil

	case model.BodyXML:
		rendered := renderTemplate(cfg.BodyContent, xmlEscapeArgs(strArgs), false)
		return strings.NewReader(rendered), "application/xml", nil

	case model.BodyRaw:
		rendered := renderTemplate(cfg.BodyContent, strArgs, false)
		return strings.NewReader(rendered), "text/plain", nil

	default:
		return nil, "", model.NewValidationError("body_type", fmt.Sprintf("unsupported body type %q", cfg.BodyType))
	}
}

// renderJSONBody renders cfg.BodyContent (a JSON document with {{var}}
// placeholders in quoted positions) if set, otherwise marshals args
// directly; the result must parse back as valid JSON.
func renderJSONBody(tpl string, args map[string]any) (json.RawMessage, error) {
	if strings.TrimSpace(tpl) == "" {
		return json.Marshal(args)
	}
	strArgs := stringifyArgs(args)
	rendered := renderTemplate(tpl, strArgs, true)
	var probe any
	if err := json.Unmarshal([]byte(rendered), &probe); err != nil {
		return nil, model.NewValidationError("body_content", "rendered body is not valid JSON")
	}
	return json.RawMessage(rendered), nil
}

func xmlEscapeArgs(args map[string]string) map[string]string {
	out := make(map[string]string, len(args))
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	for k, v := range args {
		out[k] = replacer.Replace(v)
	}
	return out
}
