// Package graph is a client for the server's libre-graph endpoints used to
// manage spaces and to look up space ids and share synchronization state.
// Unlike the WebDAV layer, Graph calls are control-plane setup: non-2xx
// responses become errors and throttling/5xx are retried with backoff.
package graph

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Status classes. Every non-2xx *Error matches one of these with
// errors.Is when the status has a class.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrThrottled    = errors.New("graph: throttled")
	ErrServerError  = errors.New("graph: server error")
)

// Harness-level outcomes. A 404 on a drive or on the share listing is
// reported as one of these as well as ErrNotFound; the lookups return
// them when the poll budget runs out.
var (
	ErrSpaceNotFound  = errors.New("graph: space not found")
	ErrShareNotSynced = errors.New("graph: share not synchronized")
)

var statusClasses = map[int]error{
	http.StatusBadRequest:      ErrBadRequest,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusConflict:        ErrConflict,
	http.StatusTooManyRequests: ErrThrottled,
}

// scopedErrors refine a status for the endpoint it came from, keyed by
// path prefix.
var scopedErrors = []struct {
	prefix string
	status int
	err    error
}{
	{prefix: "/drives/", status: http.StatusNotFound, err: ErrSpaceNotFound},
	{prefix: "/me/drive/sharedWithMe", status: http.StatusNotFound, err: ErrShareNotSynced},
}

// Error is a non-2xx Graph response.
type Error struct {
	StatusCode int
	RequestID  string
	Message    string
	// Err is the most specific sentinel: an endpoint outcome such as
	// ErrSpaceNotFound, or the status class.
	Err error
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes both the specific sentinel and the status class.
func (e *Error) Unwrap() []error {
	class := classifyStatus(e.StatusCode)

	switch {
	case e.Err == nil && class == nil:
		return nil
	case e.Err == nil || e.Err == class:
		return []error{class}
	case class == nil:
		return []error{e.Err}
	default:
		return []error{e.Err, class}
	}
}

// newError builds the *Error for a response to path.
func newError(path string, code int, requestID, message string) *Error {
	e := &Error{
		StatusCode: code,
		RequestID:  requestID,
		Message:    message,
		Err:        classifyStatus(code),
	}

	for _, s := range scopedErrors {
		if s.status == code && strings.HasPrefix(path, s.prefix) {
			e.Err = s.err
			break
		}
	}

	return e
}

// classifyStatus maps a status code to its class, or nil.
func classifyStatus(code int) error {
	if err, ok := statusClasses[code]; ok {
		return err
	}

	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return nil
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
