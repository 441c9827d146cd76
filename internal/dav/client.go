// Package dav is the HTTP transport for WebDAV and Graph calls against the
// server under test. It sends exactly the request it is given and returns
// the raw response; status codes are never turned into errors here.
package dav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-webdav"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "davharness/0.1"

// HTTPClient is the subset of *http.Client used by Client.
type HTTPClient = webdav.HTTPClient

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit paces outgoing requests to at most rps per second.
// Zero or negative disables pacing.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Client issues requests against one server. It holds no per-scenario
// state and performs no retries: every call is exactly one HTTP exchange.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	userAgent  string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Client for baseURL (e.g. "https://localhost:9200").
func NewClient(baseURL string, httpClient HTTPClient, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  defaultUserAgent,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the absolute URL for a resolved request path.
func (c *Client) URL(path string) string {
	if path == "" {
		return c.baseURL
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// Do executes req and returns the raw response with its body fully read.
// Transport failures (connection refused, timeouts) are returned wrapped;
// any HTTP status, including 4xx/5xx, is a successful Do.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	target := req.URL
	if target == "" {
		target = c.URL(req.Path)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("dav: waiting for rate limiter: %w", err)
		}
	}

	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("dav: creating %s request: %w", req.Method, err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	hc := c.httpClient
	if !req.Credentials.IsZero() {
		hc = webdav.HTTPClientWithBasicAuth(c.httpClient, req.Credentials.Username, req.Credentials.Password)
	}

	start := time.Now()

	resp, err := hc.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("method", req.Method),
			slog.String("url", target),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("dav: %s %s: %w", req.Method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dav: reading %s %s response: %w", req.Method, target, err)
	}

	elapsed := time.Since(start)

	c.logger.Debug("request completed",
		slog.String("method", req.Method),
		slog.String("url", target),
		slog.String("user", req.Credentials.Username),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", elapsed),
	)

	return &Response{
		Method:     req.Method,
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Duration:   elapsed,
	}, nil
}
