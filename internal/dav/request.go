package dav

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// WebDAV methods not defined in net/http.
const (
	MethodPropfind  = "PROPFIND"
	MethodProppatch = "PROPPATCH"
	MethodMkcol     = "MKCOL"
	MethodMove      = "MOVE"
	MethodCopy      = "COPY"
)

// Request and response headers dictated by the server under test.
const (
	HeaderDestination   = "Destination"
	HeaderOverwrite     = "Overwrite"
	HeaderDepth         = "Depth"
	HeaderOCChunked     = "OC-Chunked"
	HeaderOCTotalLength = "OC-Total-Length"
	HeaderOCChecksum    = "OC-Checksum"
	HeaderOCLazyOps     = "OC-LazyOps"
	HeaderOCMtime       = "X-OC-Mtime"
	HeaderOCJobStatus   = "OC-JobStatus-Location"
	HeaderOCETag        = "OC-ETag"
	HeaderOCFileID      = "OC-FileId"
	HeaderRequestID     = "X-Request-Id"
	HeaderPurge         = "Purge"
	HeaderContentType   = "Content-Type"
)

// Header values.
const (
	ChunkedEnabled         = "1"
	LazyOpsEnabled         = "true"
	ContentTypeXML         = "application/xml; charset=utf-8"
	ContentTypeOctetStream = "application/octet-stream"
	overwriteTrue          = "T"
	overwriteFalse         = "F"
)

// Credentials are the basic-auth pair sent with a request. The zero value
// sends no Authorization header (public links).
type Credentials struct {
	Username string
	Password string
}

// IsZero reports whether no credentials are set.
func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

// Request is one HTTP call. Path is relative to the client base URL; URL,
// when set, is used verbatim instead. Body is a byte slice rather than a
// reader so the same Request can be re-issued by a poller.
type Request struct {
	Method      string
	Path        string
	URL         string
	Header      http.Header
	Body        []byte
	Credentials Credentials
}

// Response is the raw outcome of a request. It is never interpreted by
// this package: a 404 is a Response, not an error.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Success reports whether the status code is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// BodyReader returns a fresh reader over the response body.
func (r *Response) BodyReader() io.Reader {
	return bytes.NewReader(r.Body)
}

func (r *Response) String() string {
	return fmt.Sprintf("%s %s -> %d (%d bytes)", r.Method, r.URL, r.StatusCode, len(r.Body))
}

// OverwriteValue renders the Overwrite header value.
func OverwriteValue(overwrite bool) string {
	if overwrite {
		return overwriteTrue
	}

	return overwriteFalse
}

// MtimeValue renders an X-OC-Mtime header value in Unix epoch seconds.
func MtimeValue(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// SetMtime sets X-OC-Mtime on h when t is non-zero.
func SetMtime(h http.Header, t time.Time) {
	if !t.IsZero() {
		h.Set(HeaderOCMtime, MtimeValue(t))
	}
}

// CloneHeader returns a copy of h that is safe to mutate, never nil.
func CloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}

	return h.Clone()
}
