package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tonimelisma/davharness/internal/dav"
)

// DefaultRoot is the Graph API root relative to the server base URL.
const DefaultRoot = "graph/v1.0"

// Retry schedule for throttled and failing Graph calls.
const (
	maxRetries    = 4
	baseBackoff   = 500 * time.Millisecond
	maxBackoff    = 30 * time.Second
	jitterPercent = 25
)

// Doer sends one HTTP exchange. Satisfied by *dav.Client, so Graph calls
// share its rate limiter and request logging.
type Doer interface {
	Do(ctx context.Context, req *dav.Request) (*dav.Response, error)
	URL(path string) string
}

// Client is a Graph API client. Every call names the acting user's
// credentials; the client itself holds none.
type Client struct {
	doer   Doer
	root   string
	logger *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Graph client. root is the API root relative to the
// server base URL; empty means DefaultRoot.
func NewClient(doer Doer, root string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if root == "" {
		root = DefaultRoot
	}

	return &Client{
		doer:      doer,
		root:      "/" + strings.Trim(root, "/"),
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// Do executes a Graph request. path is appended to the API root. A JSON
// body sets Content-Type. Non-2xx responses come back as *Error after
// retryable statuses have been retried.
func (c *Client) Do(ctx context.Context, creds dav.Credentials, method, path string, header http.Header, body []byte) (*dav.Response, error) {
	req := &dav.Request{
		Method:      method,
		Path:        c.root + path,
		Header:      dav.CloneHeader(header),
		Body:        body,
		Credentials: creds,
	}

	if body != nil {
		req.Header.Set(dav.HeaderContentType, "application/json")
	}

	schedule := newBackoff()
	idempotent := isIdempotent(method)

	for attempt := 0; ; attempt++ {
		resp, err := c.doer.Do(ctx, req)

		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
		case err != nil && !idempotent:
			// The request may have been applied; resending could repeat it.
			return nil, fmt.Errorf("graph: %s %s: %w", method, path, err)
		case err == nil && resp.Success():
			return resp, nil
		case err == nil && !shouldRetry(idempotent, resp):
			return nil, c.statusError(method, path, resp, attempt)
		}

		wait, stop := schedule.Next()
		if stop {
			if err != nil {
				return nil, fmt.Errorf("graph: %s %s failed after %d retries: %w", method, path, maxRetries, err)
			}

			return nil, c.statusError(method, path, resp, attempt)
		}

		attrs := []any{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
		}

		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		} else {
			wait = retryAfter(resp, wait)
			attrs = append(attrs, slog.Int("status", resp.StatusCode))
		}

		c.logger.Warn("retrying graph request", append(attrs, slog.Duration("backoff", wait))...)

		if sleepErr := c.sleepFunc(ctx, wait); sleepErr != nil {
			return nil, fmt.Errorf("graph: request canceled: %w", sleepErr)
		}
	}
}

// statusError converts a non-2xx response into an *Error.
func (c *Client) statusError(method, path string, resp *dav.Response, attempt int) error {
	if attempt > 0 {
		c.logger.Error("request failed after retries",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempts", attempt+1),
		)
	}

	return newError(path, resp.StatusCode, resp.Header.Get(dav.HeaderRequestID), strings.TrimSpace(string(resp.Body)))
}

// isIdempotent reports whether resending method cannot repeat a side
// effect.
func isIdempotent(method string) bool {
	return method != http.MethodPost && method != http.MethodPatch
}

// shouldRetry reports whether a failed response may be resent. A
// non-idempotent request is resent only when the server said it did not
// process it: 429 or 503 with Retry-After.
func shouldRetry(idempotent bool, resp *dav.Response) bool {
	if idempotent {
		return isRetryable(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return resp.Header.Get("Retry-After") != ""
	default:
		return false
	}
}

// newBackoff returns the retry schedule: exponential from baseBackoff,
// capped at maxBackoff, with jitter, allowing maxRetries waits.
func newBackoff() retry.Backoff {
	b := retry.NewExponential(baseBackoff)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithJitterPercent(jitterPercent, b)

	return retry.WithMaxRetries(maxRetries, b)
}

// retryAfter prefers the Retry-After seconds of a 429 or 503 over the
// scheduled wait.
func retryAfter(resp *dav.Response, wait time.Duration) time.Duration {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return wait
	}

	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return wait
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
