// Package chunk drives the two chunked-upload protocols of the server under
// test: the legacy scheme (one PUT per chunk, implicit assembly on the last
// chunk) and the session scheme (MKCOL, PUT per chunk, explicit MOVE of the
// virtual .file node). States are explicit so tests can assert on them.
//
// Protocol misuse (chunks before MKCOL, inconsistent chunk counts) is sent
// to the server as-is. The observable failure is part of what the harness
// exercises, so it is logged and reflected in the state, never prevented.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davpath"
)

// Sentinel errors. These are caller contract violations; server-side
// failures come back as responses.
var (
	ErrWrongProtocol       = errors.New("chunk: operation not valid for this protocol")
	ErrTotalChunksRequired = errors.New("chunk: total chunk count required")
	ErrInvalidIndex        = errors.New("chunk: invalid chunk index")
	ErrNoPendingAssembly   = errors.New("chunk: no asynchronous assembly pending")
	ErrInvalidProtocol     = errors.New("chunk: invalid protocol")
	ErrInvalidTransferID   = errors.New("chunk: invalid legacy transfer id")
)

// virtualFileNode is the node under an upload session that the assembling
// MOVE targets.
const virtualFileNode = ".file"

// Protocol identifies the chunking scheme.
type Protocol int

// Chunking protocols.
const (
	ProtocolLegacy Protocol = iota + 1
	ProtocolTusLike
)

func (p Protocol) String() string {
	switch p {
	case ProtocolLegacy:
		return "legacy"
	case ProtocolTusLike:
		return "session"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

// ParseProtocol accepts "legacy"/"old"/"v1" and "session"/"new"/"v2".
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "old", "v1":
		return ProtocolLegacy, nil
	case "session", "new", "v2", "tus":
		return ProtocolTusLike, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidProtocol, s)
	}
}

// Doer sends one request. Satisfied by *dav.Client.
type Doer interface {
	Do(ctx context.Context, req *dav.Request) (*dav.Response, error)
	URL(path string) string
}

// Deps are the collaborators a Session issues requests through.
type Deps struct {
	Doer        Doer
	Resolver    *davpath.Resolver
	Credentials dav.Credentials
	Logger      *slog.Logger
}

// Session is one chunked upload in flight. Owner names the actor whose
// credentials the session was started with.
type Session struct {
	ID          string
	Owner       string
	Protocol    Protocol
	TotalChunks int
	Destination davpath.Target
	CreatedAt   time.Time

	state        State
	received     map[int]struct{}
	jobStatusURL string

	deps Deps
}

// ValidateLegacyID checks a caller-chosen legacy transfer id. The id is
// embedded in "<name>-chunking-<id>-<total>-<index>", which servers split
// on dashes, so it must not contain '-' or '/'. Empty is allowed and
// means a generated id.
func ValidateLegacyID(id string) error {
	if strings.ContainsAny(id, "-/") {
		return fmt.Errorf("%w: %q must not contain '-' or '/'", ErrInvalidTransferID, id)
	}

	return nil
}

// NewLegacy starts a legacy chunked upload. An empty id generates a
// numeric transfer id; totalChunks may be zero and is then taken from the
// first chunk.
func NewLegacy(deps Deps, dest davpath.Target, id string, totalChunks int) *Session {
	if id == "" {
		id = strconv.FormatUint(uint64(uuid.New().ID()), 10)
	}

	return newSession(deps, dest, id, ProtocolLegacy, totalChunks, StateOpen)
}

// NewTusLike prepares a session-based upload. Nothing is sent until Open.
// An empty id generates a UUID.
func NewTusLike(deps Deps, dest davpath.Target, id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}

	return newSession(deps, dest, id, ProtocolTusLike, 0, StateNew)
}

func newSession(deps Deps, dest davpath.Target, id string, p Protocol, total int, initial State) *Session {
	if deps.Resolver == nil {
		deps.Resolver = davpath.NewResolver()
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Session{
		ID:          id,
		Protocol:    p,
		TotalChunks: total,
		Destination: dest,
		CreatedAt:   time.Now().UTC(),
		state:       initial,
		received:    make(map[int]struct{}),
		deps:        deps,
	}
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// Received returns the indices of successfully uploaded chunks, sorted.
func (s *Session) Received() []int {
	out := make([]int, 0, len(s.received))
	for i := range s.received {
		out = append(out, i)
	}

	sort.Ints(out)

	return out
}

// JobStatusURL returns the asynchronous assembly status location, if any.
func (s *Session) JobStatusURL() string {
	return s.jobStatusURL
}

func (s *Session) setState(next State, reason string) {
	if s.state == next {
		return
	}

	s.deps.Logger.Info("upload session state changed",
		slog.String("session_id", s.ID),
		slog.String("protocol", s.Protocol.String()),
		slog.String("from", s.state.String()),
		slog.String("to", next.String()),
		slog.String("reason", reason),
	)

	s.state = next
}

func (s *Session) do(ctx context.Context, method, path string, header http.Header, body []byte) (*dav.Response, error) {
	if header == nil {
		header = make(http.Header)
	}

	return s.deps.Doer.Do(ctx, &dav.Request{
		Method:      method,
		Path:        path,
		Header:      header,
		Body:        body,
		Credentials: s.deps.Credentials,
	})
}

// destinationPath resolves the final resource under the destination's
// own addressing mode.
func (s *Session) destinationPath() (string, error) {
	p, err := s.deps.Resolver.ResolveTarget(s.Destination, davpath.KindFiles)
	if err != nil {
		return "", fmt.Errorf("chunk: resolving destination: %w", err)
	}

	return strings.TrimRight(p, "/"), nil
}
