package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/davharness/internal/dav"
)

// LegacyChunk is one PUT of the legacy protocol. Total zero means the
// session's chunk count.
type LegacyChunk struct {
	Index   int
	Total   int
	Content []byte
	Header  http.Header
}

// legacyChunkPath appends the chunk naming suffix the server parses:
// {name}-chunking-{transfer id}-{total}-{index}.
func legacyChunkPath(base, id string, total, index int) string {
	return fmt.Sprintf("%s-chunking-%s-%d-%d", base, id, total, index)
}

// UploadLegacyChunk PUTs one legacy chunk. The session becomes Assembled
// on the successful PUT that completes the index set 0..N-1. A total that
// disagrees with earlier chunks is still sent; the session is marked
// Stalled because the server will never assemble it.
func (s *Session) UploadLegacyChunk(ctx context.Context, c LegacyChunk) (*dav.Response, error) {
	if s.Protocol != ProtocolLegacy {
		return nil, fmt.Errorf("%w: legacy chunk on %s session", ErrWrongProtocol, s.Protocol)
	}

	total := c.Total
	if total == 0 {
		total = s.TotalChunks
	}

	if total <= 0 {
		return nil, ErrTotalChunksRequired
	}

	if c.Index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, c.Index)
	}

	if s.TotalChunks == 0 {
		s.TotalChunks = total
	}

	if total != s.TotalChunks {
		s.deps.Logger.Warn("legacy chunk count differs from session",
			slog.String("session_id", s.ID),
			slog.Int("session_total", s.TotalChunks),
			slog.Int("chunk_total", total),
		)
		s.setState(StateStalled, "inconsistent chunk count")
	}

	if c.Index >= total {
		s.deps.Logger.Warn("legacy chunk index outside chunk count",
			slog.String("session_id", s.ID),
			slog.Int("index", c.Index),
			slog.Int("total", total),
		)
	}

	base, err := s.destinationPath()
	if err != nil {
		return nil, err
	}

	header := dav.CloneHeader(c.Header)
	header.Set(dav.HeaderOCChunked, dav.ChunkedEnabled)

	resp, err := s.do(ctx, http.MethodPut, legacyChunkPath(base, s.ID, total, c.Index), header, c.Content)
	if err != nil {
		return nil, err
	}

	if s.state == StateOpen {
		s.setState(StateChunksUploading, "first chunk sent")
	}

	if !resp.Success() {
		return resp, nil
	}

	s.received[c.Index] = struct{}{}

	if s.state == StateChunksUploading && s.complete() {
		s.setState(StateAssembled, "last chunk accepted")
	}

	return resp, nil
}

// complete reports whether every index in 0..TotalChunks-1 was received.
func (s *Session) complete() bool {
	if s.TotalChunks <= 0 {
		return false
	}

	for i := range s.TotalChunks {
		if _, ok := s.received[i]; !ok {
			return false
		}
	}

	return true
}
