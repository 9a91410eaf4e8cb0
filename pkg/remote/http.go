package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/version"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	AgentID string

	Retry RetryPolicy

	// RateLimit is the sustained request rate per second; zero disables
	// limiting.
	RateLimit float64
	RateBurst int

	// Client overrides the underlying HTTP client.
	Client *http.Client
}

// HTTPClient talks to an archival-memory REST service:
//
//	GET  {base}/v1/agents/{agent}/archival-memory?search=&limit=
//	POST {base}/v1/agents/{agent}/archival-memory  {"text": "...", "tags": ["..."]}
type HTTPClient struct {
	endpoint string
	apiKey   string
	retry    RetryPolicy
	client   *http.Client
	limiter  *rate.Limiter
	log      logger.Logger
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type passage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (p passage) record() memory.RemoteRecord {
	r := memory.RemoteRecord{ID: p.ID, Text: p.Text, CreatedAt: p.CreatedAt}
	if len(p.Tags) > 0 {
		r.Label = p.Tags[0]
	}
	return r
}

type createRequest struct {
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg HTTPConfig, log logger.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("remote: agent ID is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if log == nil {
		log = logger.Global()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/v1/agents/" + url.PathEscape(cfg.AgentID) + "/archival-memory",
		apiKey:   cfg.APIKey,
		retry:    cfg.Retry,
		client:   cfg.Client,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log.With("component", "remote", "backend", "http"),
	}, nil
}

// Search implements Client.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int) ([]memory.RemoteRecord, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("limit", strconv.Itoa(limit))
	return c.list(ctx, "search", params)
}

// List implements Client.
func (c *HTTPClient) List(ctx context.Context, limit int) ([]memory.RemoteRecord, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	return c.list(ctx, "list", params)
}

func (c *HTTPClient) list(ctx context.Context, op string, params url.Values) ([]memory.RemoteRecord, error) {
	return withRetry(ctx, c.retry, op, func(ctx context.Context) ([]memory.RemoteRecord, error) {
		var passages []passage
		if err := c.do(ctx, http.MethodGet, params, nil, &passages); err != nil {
			return nil, err
		}
		out := make([]memory.RemoteRecord, len(passages))
		for i, p := range passages {
			out[i] = p.record()
		}
		return out, nil
	})
}

// Create implements Client. The service may answer with the created passage
// or a list of passages; the first ID is returned.
func (c *HTTPClient) Create(ctx context.Context, rec memory.Record) (string, error) {
	body := createRequest{Text: rec.FullText(), Tags: []string{label(rec)}}
	return withRetry(ctx, c.retry, "create", func(ctx context.Context) (string, error) {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodPost, nil, body, &raw); err != nil {
			return "", err
		}
		return createdID(raw)
	})
}

func createdID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var ps []passage
		if err := json.Unmarshal(raw, &ps); err != nil {
			return "", permanent(fmt.Errorf("decode create response: %w", err))
		}
		if len(ps) == 0 || ps[0].ID == "" {
			return "", permanent(fmt.Errorf("create response carried no id"))
		}
		return ps[0].ID, nil
	}
	var p passage
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", permanent(fmt.Errorf("decode create response: %w", err))
	}
	if p.ID == "" {
		return "", permanent(fmt.Errorf("create response carried no id"))
	}
	return p.ID, nil
}

func (c *HTTPClient) do(ctx context.Context, method string, params url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	target := c.endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return permanent(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return statusErr
		}
		return permanent(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Close implements Client.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
