// Package backend talks to the facility management REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

const maxBodyBytes = 8 << 20

// Recorder receives request outcomes, typically for metrics.
type Recorder interface {
	ObserveFetch(resource, outcome string, elapsed time.Duration)
}

// Config configures a Client. BaseURL and Token identify the tenant and are never read
// from anywhere else.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Retries    int
	RetryWait  time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Recorder   Recorder
}

// Client issues list and mutation requests against one tenant.
type Client struct {
	base     *url.URL
	token    string
	http     *http.Client
	retries  int
	wait     time.Duration
	ua       string
	recorder Recorder
	logger   *slog.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend: base url required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: unsupported scheme %q", base.Scheme)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 250 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "facilitydesk"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:     base,
		token:    cfg.Token,
		http:     httpClient,
		retries:  cfg.Retries,
		wait:     cfg.RetryWait,
		ua:       cfg.UserAgent,
		recorder: cfg.Recorder,
		logger:   logger,
	}, nil
}

// BaseURL returns the tenant base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL resolves a resource path such as "pms/assets" to "<base>/pms/assets.json".
func (c *Client) URL(resource string, query url.Values) string {
	path := strings.Trim(resource, "/")
	if !strings.HasSuffix(path, ".json") {
		path += ".json"
	}
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Get performs a GET with the configured retries and returns the response body.
// Only transport failures and 5xx responses are retried.
func (c *Client) Get(ctx context.Context, resource string, query url.Values) ([]byte, error) {
	target := c.URL(resource, query)
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("backend retry",
				slog.String("resource", resource),
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			select {
			case <-ctx.Done():
				return nil, &listing.FetchError{Resource: resource, Err: ctx.Err()}
			case <-time.After(c.wait):
			}
		}
		body, err := c.send(ctx, http.MethodGet, resource, target, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var fe *listing.FetchError
		if !errors.As(err, &fe) || !fe.Temporary() || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Mutation is a write against the backend.
type Mutation struct {
	Method string
	Path   string
	Body   any
}

// Do sends a mutation once. Mutations are never retried.
func (c *Client) Do(ctx context.Context, m Mutation) (json.RawMessage, error) {
	switch m.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("backend: unsupported mutation method %q", m.Method)
	}
	var payload io.Reader
	if m.Body != nil {
		raw, err := json.Marshal(m.Body)
		if err != nil {
			return nil, fmt.Errorf("backend: encode body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}
	body, err := c.send(ctx, m.Method, m.Path, c.URL(m.Path, nil), payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) send(ctx context.Context, method, resource, target string, payload io.Reader) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, &listing.FetchError{Resource: resource, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(resource, "transport_error", start)
		return nil, &listing.FetchError{Resource: resource, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observe(resource, "transport_error", start)
		return nil, &listing.FetchError{Resource: resource, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(resource, fmt.Sprintf("http_%dxx", resp.StatusCode/100), start)
		return nil, &listing.FetchError{Resource: resource, Status: resp.StatusCode, Message: serverMessage(body)}
	}
	c.observe(resource, "ok", start)
	return body, nil
}

func (c *Client) observe(resource, outcome string, start time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveFetch(resource, outcome, time.Since(start))
	}
}

// serverMessage extracts a human readable message from an error body.
func serverMessage(body []byte) string {
	var payload struct {
		Error   any `json:"error"`
		Message any `json:"message"`
		Errors  any `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []any{payload.Message, payload.Error, payload.Errors} {
			if msg := flatten(candidate); msg != "" {
				return msg
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func flatten(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := flatten(t[k]); s != "" {
				parts = append(parts, k+" "+s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
