package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/dav"
)

// ChunkedOptions tune PutChunked. Chunks takes precedence over ChunkSize.
// Order lists chunk indices in sending order; nil sends 0..N-1. Overwrite,
// Checksum, LazyOps and Mtime apply to the assembling MOVE of the session
// protocol; Mtime is also sent with legacy chunks.
type ChunkedOptions struct {
	Protocol  chunk.Protocol
	Chunks    int
	ChunkSize int
	Order     []int
	SessionID string

	Overwrite *bool
	Checksum  string
	LazyOps   bool
	Mtime     time.Time
	Header    http.Header
}

// ChunkedResult carries every response of a chunked upload. Final is the
// representative one: the last chunk PUT for the legacy protocol, the
// assembling MOVE (or the failing MKCOL) for the session protocol. Job is
// the last job status response of a lazy assembly.
type ChunkedResult struct {
	Session *chunk.Session
	Chunks  []*dav.Response
	Final   *dav.Response
	Job     *dav.Response
}

// StartLegacyUpload begins a legacy chunked upload to ref and tracks it in
// the scenario state. Nothing is sent yet.
func (c *Client) StartLegacyUpload(ctx context.Context, ref Ref, totalChunks int, id string) (*chunk.Session, error) {
	if err := chunk.ValidateLegacyID(id); err != nil {
		return nil, err
	}

	t, creds, err := c.target(ctx, ref)
	if err != nil {
		return nil, err
	}

	sess := chunk.NewLegacy(c.chunkDeps(creds), t, id, totalChunks)
	sess.Owner = ref.Actor
	c.state.AddSession(sess)

	return sess, nil
}

// StartSessionUpload prepares a session upload to ref and tracks it. The
// caller opens it; chunks sent before Open are sent regardless.
func (c *Client) StartSessionUpload(ctx context.Context, ref Ref, id string) (*chunk.Session, error) {
	t, creds, err := c.target(ctx, ref)
	if err != nil {
		return nil, err
	}

	sess := chunk.NewTusLike(c.chunkDeps(creds), t, id)
	sess.Owner = ref.Actor
	c.state.AddSession(sess)

	return sess, nil
}

// Session returns a tracked upload session.
func (c *Client) Session(id string) (*chunk.Session, bool) {
	return c.state.Session(id)
}

// Release stops tracking sess once it is assembled or canceled. Orphaned
// and stalled sessions stay tracked so they can still be canceled.
func (c *Client) Release(sess *chunk.Session) {
	switch sess.State() {
	case chunk.StateAssembled, chunk.StateCanceled:
		c.state.RemoveSession(sess.ID)
	}
}

// AwaitAssembly polls a lazy assembly with the client's retry policy.
func (c *Client) AwaitAssembly(ctx context.Context, sess *chunk.Session) (*dav.Response, error) {
	resp, err := sess.AwaitAssembly(ctx, c.poller, c.policy(nil))
	if err != nil {
		return resp, err
	}

	c.Release(sess)

	return resp, nil
}

// PutChunked uploads content to ref split into chunks with the chosen
// protocol.
func (c *Client) PutChunked(ctx context.Context, ref Ref, content []byte, opts ChunkedOptions) (*ChunkedResult, error) {
	parts, err := splitContent(content, opts)
	if err != nil {
		return nil, err
	}

	order, err := chunkOrder(len(parts), opts.Order)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("chunked upload",
		slog.String("path", ref.Path),
		slog.String("protocol", protocolOrDefault(opts.Protocol).String()),
		slog.Int("chunks", len(parts)),
		slog.Int("bytes", len(content)),
	)

	if protocolOrDefault(opts.Protocol) == chunk.ProtocolLegacy {
		return c.putLegacy(ctx, ref, parts, order, opts)
	}

	return c.putSession(ctx, ref, content, parts, order, opts)
}

func protocolOrDefault(p chunk.Protocol) chunk.Protocol {
	if p == 0 {
		return chunk.ProtocolLegacy
	}

	return p
}

func splitContent(content []byte, opts ChunkedOptions) ([][]byte, error) {
	switch {
	case opts.Chunks > 0:
		return chunk.Split(content, opts.Chunks)
	case opts.ChunkSize > 0:
		return chunk.SplitBySize(content, opts.ChunkSize)
	default:
		return nil, fmt.Errorf("resource: %w: neither chunk count nor chunk size given", chunk.ErrTotalChunksRequired)
	}
}

// chunkOrder validates a caller-supplied order. Repeats are allowed so a
// chunk can be re-sent; indices outside 0..n-1 are not.
func chunkOrder(n int, order []int) ([]int, error) {
	if len(order) == 0 {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}

		return order, nil
	}

	for _, i := range order {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("resource: %w: %d not in 0..%d", chunk.ErrInvalidIndex, i, n-1)
		}
	}

	return order, nil
}

func (c *Client) putLegacy(ctx context.Context, ref Ref, parts [][]byte, order []int, opts ChunkedOptions) (*ChunkedResult, error) {
	sess, err := c.StartLegacyUpload(ctx, ref, len(parts), opts.SessionID)
	if err != nil {
		return nil, err
	}

	header := dav.CloneHeader(opts.Header)
	if !opts.Mtime.IsZero() {
		dav.SetMtime(header, opts.Mtime)
	}

	res := &ChunkedResult{Session: sess}

	for _, i := range order {
		resp, err := sess.UploadLegacyChunk(ctx, chunk.LegacyChunk{
			Index:   i,
			Total:   len(parts),
			Content: parts[i],
			Header:  header,
		})
		if err != nil {
			return res, err
		}

		res.Chunks = append(res.Chunks, resp)
		res.Final = resp

		if !resp.Success() {
			break
		}
	}

	c.Release(sess)

	return res, nil
}

func (c *Client) putSession(
	ctx context.Context, ref Ref, content []byte, parts [][]byte, order []int, opts ChunkedOptions,
) (*ChunkedResult, error) {
	sess, err := c.StartSessionUpload(ctx, ref, opts.SessionID)
	if err != nil {
		return nil, err
	}

	res := &ChunkedResult{Session: sess}

	resp, err := sess.Open(ctx)
	if err != nil {
		return res, err
	}

	if !resp.Success() {
		res.Final = resp
		return res, nil
	}

	for _, i := range order {
		resp, err := sess.UploadChunk(ctx, i, parts[i], opts.Header)
		if err != nil {
			return res, err
		}

		res.Chunks = append(res.Chunks, resp)

		if !resp.Success() {
			res.Final = resp
			return res, nil
		}
	}

	total := int64(len(content))

	res.Final, err = sess.Assemble(ctx, chunk.AssembleOptions{
		Overwrite:   opts.Overwrite,
		TotalLength: &total,
		Checksum:    opts.Checksum,
		LazyOps:     opts.LazyOps,
		Mtime:       opts.Mtime,
	})
	if err != nil {
		return res, err
	}

	if sess.JobStatusURL() != "" && sess.State() == chunk.StateAssembling {
		res.Job, err = c.AwaitAssembly(ctx, sess)
		if err != nil {
			return res, err
		}
	}

	c.Release(sess)

	return res, nil
}
