package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davpath"
	"github.com/tonimelisma/davharness/internal/poll"
)

// Job status values reported for asynchronous assembly.
const (
	JobStatusStarted  = "started"
	JobStatusFinished = "finished"
	JobStatusError    = "error"
)

// AssembleOptions tune the assembling MOVE. Nil Overwrite omits the
// header; zero Mtime omits X-OC-Mtime.
type AssembleOptions struct {
	Overwrite   *bool
	TotalLength *int64
	Checksum    string
	LazyOps     bool
	Mtime       time.Time
	Header      http.Header
}

// JobStatus is the body served at the OC-JobStatus-Location.
type JobStatus struct {
	Status       string `json:"status"`
	ID           string `json:"id,omitempty"`
	ETag         string `json:"etag,omitempty"`
	FileID       string `json:"fileId,omitempty"`
	ErrorCode    int    `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ParseJobStatus decodes a job status body.
func ParseJobStatus(body []byte) (JobStatus, error) {
	var js JobStatus
	if err := json.Unmarshal(body, &js); err != nil {
		return JobStatus{}, fmt.Errorf("chunk: decoding job status: %w", err)
	}

	return js, nil
}

// uploadsPath resolves a node under the session's upload collection. The
// collection only exists under the new DAV root, whatever the
// destination's mode; only the principal is taken from the destination.
func (s *Session) uploadsPath(elem string) (string, error) {
	principal := s.Destination.Principal
	if principal == "" || !s.Destination.Mode.IsUserMode() {
		principal = s.deps.Credentials.Username
	}

	p := s.ID
	if elem != "" {
		p += "/" + elem
	}

	path, err := s.deps.Resolver.Resolve(davpath.Descriptor{Principal: principal, Path: p}, davpath.ModeNewUser, davpath.KindUploads)
	if err != nil {
		return "", fmt.Errorf("chunk: resolving upload collection: %w", err)
	}

	return path, nil
}

func (s *Session) requireTusLike(op string) error {
	if s.Protocol != ProtocolTusLike {
		return fmt.Errorf("%w: %s on %s session", ErrWrongProtocol, op, s.Protocol)
	}

	return nil
}

// Open creates the upload collection with MKCOL.
func (s *Session) Open(ctx context.Context) (*dav.Response, error) {
	if err := s.requireTusLike("open"); err != nil {
		return nil, err
	}

	path, err := s.uploadsPath("")
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, dav.MethodMkcol, path, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.Success() && s.state == StateNew {
		s.setState(StateCreated, "upload collection created")
	}

	return resp, nil
}

// UploadChunk PUTs chunk index into the upload collection. A chunk sent
// before Open goes out anyway and leaves the session New.
func (s *Session) UploadChunk(ctx context.Context, index int, content []byte, header http.Header) (*dav.Response, error) {
	if err := s.requireTusLike("upload chunk"); err != nil {
		return nil, err
	}

	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	if s.state == StateNew {
		s.deps.Logger.Warn("chunk uploaded before upload collection was created",
			slog.String("session_id", s.ID),
			slog.Int("index", index),
		)
	}

	path, err := s.uploadsPath(strconv.Itoa(index))
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodPut, path, dav.CloneHeader(header), content)
	if err != nil {
		return nil, err
	}

	if !resp.Success() {
		return resp, nil
	}

	s.received[index] = struct{}{}

	if s.state == StateCreated {
		s.setState(StateChunksUploading, "first chunk accepted")
	}

	return resp, nil
}

// Assemble MOVEs the virtual .file node onto the destination, which is
// resolved in its own mode and sent as an absolute URL. 201/204 assemble
// the file; 202 with lazy ops leaves the session Assembling until
// AwaitAssembly observes the job; any other status orphans the chunks.
func (s *Session) Assemble(ctx context.Context, opts AssembleOptions) (*dav.Response, error) {
	if err := s.requireTusLike("assemble"); err != nil {
		return nil, err
	}

	src, err := s.uploadsPath(virtualFileNode)
	if err != nil {
		return nil, err
	}

	dst, err := s.destinationPath()
	if err != nil {
		return nil, err
	}

	header := dav.CloneHeader(opts.Header)
	header.Set(dav.HeaderDestination, s.deps.Doer.URL(dst))

	if opts.Overwrite != nil {
		header.Set(dav.HeaderOverwrite, dav.OverwriteValue(*opts.Overwrite))
	}

	if opts.TotalLength != nil {
		header.Set(dav.HeaderOCTotalLength, strconv.FormatInt(*opts.TotalLength, 10))
	}

	if opts.Checksum != "" {
		header.Set(dav.HeaderOCChecksum, opts.Checksum)
	}

	if opts.LazyOps {
		header.Set(dav.HeaderOCLazyOps, dav.LazyOpsEnabled)
	}

	if !opts.Mtime.IsZero() {
		dav.SetMtime(header, opts.Mtime)
	}

	prev := s.state
	s.setState(StateAssembling, "assembly requested")

	resp, err := s.do(ctx, dav.MethodMove, src, header, nil)
	if err != nil {
		s.state = prev
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusAccepted && opts.LazyOps && resp.Header.Get(dav.HeaderOCJobStatus) == "":
		// Nothing to poll: the outcome of the assembly cannot be observed.
		s.deps.Logger.Warn("lazy assembly accepted without a job status location",
			slog.String("session_id", s.ID),
			slog.String("header", dav.HeaderOCJobStatus),
		)
		s.setState(StateStalled, "move returned 202 without "+dav.HeaderOCJobStatus)
	case resp.StatusCode == http.StatusAccepted && opts.LazyOps:
		s.jobStatusURL = resp.Header.Get(dav.HeaderOCJobStatus)
		s.deps.Logger.Info("assembly continues asynchronously",
			slog.String("session_id", s.ID),
			slog.String("job_status", s.jobStatusURL),
		)
	case resp.Success():
		s.setState(StateAssembled, fmt.Sprintf("move returned %d", resp.StatusCode))
	default:
		s.setState(StateOrphaned, fmt.Sprintf("move returned %d", resp.StatusCode))
	}

	return resp, nil
}

// AwaitAssembly polls the job status location of a lazy assembly until
// the job finishes or fails. The policy's Accept is replaced. The last
// job status response is returned.
func (s *Session) AwaitAssembly(ctx context.Context, p *poll.Poller, policy poll.Policy[*dav.Response]) (*dav.Response, error) {
	if err := s.requireTusLike("await assembly"); err != nil {
		return nil, err
	}

	if s.state != StateAssembling || s.jobStatusURL == "" {
		return nil, ErrNoPendingAssembly
	}

	req := &dav.Request{Method: http.MethodGet, Credentials: s.deps.Credentials}
	if strings.HasPrefix(s.jobStatusURL, "http://") || strings.HasPrefix(s.jobStatusURL, "https://") {
		req.URL = s.jobStatusURL
	} else {
		req.Path = s.jobStatusURL
	}

	var last JobStatus

	policy.Accept = func(r *dav.Response) bool {
		if !r.Success() {
			return false
		}

		js, err := ParseJobStatus(r.Body)
		if err != nil {
			return false
		}

		last = js

		return js.Status == JobStatusFinished || js.Status == JobStatusError
	}

	res, err := poll.Until(ctx, p, "upload job status", policy, func(ctx context.Context) (*dav.Response, error) {
		return s.deps.Doer.Do(ctx, req)
	})
	if err != nil {
		return res.Value, err
	}

	switch last.Status {
	case JobStatusFinished:
		s.setState(StateAssembled, "job finished")
	case JobStatusError:
		s.setState(StateOrphaned, "job failed: "+last.ErrorMessage)
	}

	return res.Value, nil
}

// Cancel deletes the upload collection and its chunks.
func (s *Session) Cancel(ctx context.Context) (*dav.Response, error) {
	if err := s.requireTusLike("cancel"); err != nil {
		return nil, err
	}

	path, err := s.uploadsPath("")
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.Success() {
		s.setState(StateCanceled, "upload collection deleted")
	}

	return resp, nil
}
