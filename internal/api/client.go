// Package api is the HTTP client for the Sharkbox forum backend.
//
// Paged endpoints return page.Page values already normalized, so callers
// never see the difference between a Spring-style page envelope and a bare
// JSON array.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/sharkbox/internal/logging"
	"github.com/abelbrown/sharkbox/internal/model"
	"github.com/abelbrown/sharkbox/internal/otel"
	"github.com/abelbrown/sharkbox/internal/page"
)

const userAgent = "sharkbox-cli/1.0 (+https://github.com/abelbrown/sharkbox)"

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// TokenProvider supplies the bearer token for outgoing requests. An empty
// token with a nil error means "not signed in"; the request is sent without
// an Authorization header.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client

	Tokens TokenProvider

	// OnUnauthorized runs when a request that carried a token is rejected
	// with 401. The session is stale at that point.
	OnUnauthorized func()

	// RequestsPerSecond and Burst shape outgoing traffic. Zero means the
	// defaults (10/s, burst 5).
	RequestsPerSecond float64
	Burst             int

	Events *otel.Logger
}

// Client talks to the forum REST API. Safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	tokens   TokenProvider
	onUnauth func()
	limiter  *rate.Limiter
	events   *otel.Logger
}

// New builds a Client. BaseURL must be absolute.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	rps, burst := opts.RequestsPerSecond, opts.Burst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 5
	}

	events := opts.Events
	if events == nil {
		events = otel.NewNullLogger()
	}

	return &Client{
		base:     base,
		http:     hc,
		tokens:   opts.Tokens,
		onUnauth: opts.OnUnauthorized,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		events:   events,
	}, nil
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string { return c.base.String() }

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

// do performs one request. body, when non-nil, is sent as JSON. The raw
// response body is returned for 2xx responses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	target := c.base.String() + path
	if q := query.Encode(); q != "" {
		target += "?" + q
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	authenticated := false
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		switch {
		case err != nil:
			logging.WithPrefix("api").Warn("token unavailable, sending anonymously", "err", err)
		case token != "":
			req.Header.Set("Authorization", "Bearer "+token)
			authenticated = true
		}
	}

	var detail map[string]any
	if otel.TraceEnabled() {
		detail = map[string]any{"query": query.Encode(), "auth": authenticated}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindAPIError, Comp: "api",
			Method: method, Path: path, Dur: time.Since(start), Err: err.Error(), Extra: detail})
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	ev := otel.Event{Level: otel.LevelInfo, Kind: otel.KindAPIRequest, Comp: "api",
		Method: method, Path: path, Status: resp.StatusCode, Extra: detail}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{
			Method:        method,
			Path:          path,
			Code:          resp.StatusCode,
			Body:          strings.TrimSpace(string(snippet)),
			Authenticated: authenticated,
		}
		ev.Level, ev.Kind, ev.Err, ev.Dur = otel.LevelWarn, otel.KindAPIError, serr.Error(), time.Since(start)
		c.events.Emit(ev)
		if resp.StatusCode == http.StatusUnauthorized && authenticated && c.onUnauth != nil {
			logging.WithPrefix("api").Info("token rejected, clearing session", "path", path)
			c.onUnauth()
		}
		return nil, serr
	}

	data, err := io.ReadAll(resp.Body)
	ev.Dur = time.Since(start)
	ev.Count = len(data)
	c.events.Emit(ev)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	return data, nil
}

// getJSON decodes a 2xx response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.sendJSON(ctx, http.MethodGet, path, nil, out)
}

// sendJSON validates and sends body, decoding a non-empty response into out.
func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	if body != nil {
		if err := model.Validate(body); err != nil {
			return err
		}
	}
	data, err := c.do(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// getPage fetches one page of a paged collection and normalizes it.
func getPage[T any](ctx context.Context, c *Client, path string, number, size int, sort []string) (page.Page[T], error) {
	if size <= 0 {
		size = page.DefaultSize
	}
	if number < 0 {
		number = 0
	}
	data, err := c.do(ctx, http.MethodGet, path, page.Query(number, size, sort), nil)
	if err != nil {
		return page.Page[T]{}, err
	}
	return page.Normalize[T](data, number, size), nil
}

// IsUnauthorized reports whether err means the session is no longer valid.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
