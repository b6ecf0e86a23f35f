// Package apiclient is the shared HTTP client every backend repository is
// built on. It injects the session's bearer token and, on a 401, refreshes
// the token once and retries before forcing a logout.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/console/internal/platform/telemetry"
)

const maxResponseBytes = 4 << 20

// TokenSource supplies bearer tokens for the caller identified by ctx.
type TokenSource interface {
	// Token returns the current access token, or "" when signed out.
	Token(ctx context.Context) string
	// Refresh obtains and stores a new access token.
	Refresh(ctx context.Context) (string, error)
	// Logout drops the stored credentials after an unrecoverable 401.
	Logout(ctx context.Context)
}

// Request describes one backend call. Body is JSON-encoded when non-nil.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  zerolog.Logger
	metrics *telemetry.Provider
}

type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *telemetry.Provider) Option {
	return func(c *Client) { c.metrics = m }
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource wires the token source after construction. The session
// token source itself needs a client for the refresh call, so main builds
// the client first.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Do performs an authenticated call. A 401 triggers exactly one refresh and
// retry; a failed refresh or a second 401 logs the session out and returns
// ErrUnauthorized.
func (c *Client) Do(ctx context.Context, r Request, out interface{}) error {
	payload, err := encodeBody(r.Body)
	if err != nil {
		return err
	}

	var token string
	if c.tokens != nil {
		token = c.tokens.Token(ctx)
	}

	status, body, err := c.send(ctx, r, payload, token)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized {
		return c.finish(r, status, body, out)
	}

	if c.tokens == nil {
		return fmt.Errorf("%s %s: %w", r.Method, r.Path, ErrUnauthorized)
	}

	fresh, err := c.tokens.Refresh(ctx)
	if err != nil || fresh == "" {
		c.metrics.TokenRefresh("failed")
		c.logger.Warn().Err(err).Str("path", r.Path).Msg("token refresh failed, logging out")
		c.tokens.Logout(ctx)
		return fmt.Errorf("%s %s: %w", r.Method, r.Path, ErrUnauthorized)
	}
	c.metrics.TokenRefresh("ok")

	status, body, err = c.send(ctx, r, payload, fresh)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.logger.Warn().Str("path", r.Path).Msg("still unauthorized after refresh, logging out")
		c.tokens.Logout(ctx)
		return fmt.Errorf("%s %s: %w", r.Method, r.Path, ErrUnauthorized)
	}
	return c.finish(r, status, body, out)
}

// DoAnonymous performs a call without a bearer token and without the
// refresh-and-retry behaviour. Used by the auth endpoints themselves.
func (c *Client) DoAnonymous(ctx context.Context, r Request, out interface{}) error {
	payload, err := encodeBody(r.Body)
	if err != nil {
		return err
	}
	status, body, err := c.send(ctx, r, payload, "")
	if err != nil {
		return err
	}
	return c.finish(r, status, body, out)
}

func encodeBody(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return b, nil
}

func (c *Client) send(ctx context.Context, r Request, payload []byte, token string) (int, []byte, error) {
	u := c.baseURL + "/" + strings.TrimLeft(r.Path, "/")
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resource := resourceOf(r.Path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(resource, 0, time.Since(start))
		c.logger.Error().Err(err).Str("resource", resource).Str("method", r.Method).Msg("backend request failed")
		return 0, nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveBackend(resource, resp.StatusCode, time.Since(start))
	if err != nil {
		return 0, nil, fmt.Errorf("read response %s %s: %w", r.Method, r.Path, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) finish(r Request, status int, body []byte, out interface{}) error {
	if status < 200 || status > 299 {
		apiErr := &APIError{
			StatusCode: status,
			Method:     r.Method,
			Path:       r.Path,
			Message:    errorMessage(status, body),
		}
		if apiErr.Temporary() {
			c.logger.Warn().Str("resource", resourceOf(r.Path)).Int("status", status).Msg("backend error")
		}
		return apiErr
	}
	if out == nil || status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", r.Method, r.Path, err)
	}
	return nil
}

// resourceOf maps "/patients/42" to "patients" for metric labels.
func resourceOf(path string) string {
	p := strings.Trim(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}
