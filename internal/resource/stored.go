package resource

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/scenario"
)

// Sentinel errors for stored values.
var (
	ErrPropertyUnavailable = errors.New("resource: property not returned")
	ErrNotStored           = errors.New("resource: no stored value")
)

// Key returns the scenario key values for ref are remembered under.
func Key(ref Ref) scenario.Key {
	return scenario.Key{User: ref.Actor, Space: ref.Space, Path: ref.Path}
}

// property reads one property of ref with a depth-0 PROPFIND. The
// response is returned alongside so callers can report it.
func (c *Client) property(ctx context.Context, ref Ref, prop string, name xml.Name) (string, *dav.Response, error) {
	resp, err := c.Propfind(ctx, ref, dav.DepthZero, []string{prop})
	if err != nil {
		return "", nil, err
	}

	if resp.StatusCode != http.StatusMultiStatus {
		return "", resp, fmt.Errorf("%w: %s on %s: status %d", ErrPropertyUnavailable, prop, ref.Path, resp.StatusCode)
	}

	ms, err := dav.ParseMultistatus(resp.Body)
	if err != nil {
		return "", resp, fmt.Errorf("resource: %s on %s: %w", prop, ref.Path, err)
	}

	first, ok := ms.First()
	if !ok {
		return "", resp, fmt.Errorf("%w: %s on %s: empty multistatus", ErrPropertyUnavailable, prop, ref.Path)
	}

	v := first.Value(name)
	if v == "" {
		return "", resp, fmt.Errorf("%w: %s on %s", ErrPropertyUnavailable, prop, ref.Path)
	}

	return v, resp, nil
}

// StoreETag reads and remembers the etag of ref.
func (c *Client) StoreETag(ctx context.Context, ref Ref) (string, *dav.Response, error) {
	etag, resp, err := c.property(ctx, ref, "d:getetag", dav.PropETag)
	if err != nil {
		return "", resp, err
	}

	c.state.SetETag(Key(ref), etag)
	c.logger.Debug("stored etag", slog.String("path", ref.Path), slog.String("etag", etag))

	return etag, resp, nil
}

// ETagChanged reports whether the current etag of ref differs from the
// stored one.
func (c *Client) ETagChanged(ctx context.Context, ref Ref) (bool, error) {
	stored, ok := c.state.ETag(Key(ref))
	if !ok {
		return false, fmt.Errorf("%w: etag of %s", ErrNotStored, ref.Path)
	}

	current, _, err := c.property(ctx, ref, "d:getetag", dav.PropETag)
	if err != nil {
		return false, err
	}

	return current != stored, nil
}

// StoreFileID reads and remembers the file id of ref.
func (c *Client) StoreFileID(ctx context.Context, ref Ref) (string, *dav.Response, error) {
	id, resp, err := c.property(ctx, ref, "oc:fileid", dav.PropFileID)
	if err != nil {
		return "", resp, err
	}

	c.state.SetFileID(Key(ref), id)
	c.logger.Debug("stored file id", slog.String("path", ref.Path), slog.String("file_id", id))

	return id, resp, nil
}

// FileIDMatches reports whether the current file id of ref equals the one
// stored for storedAs. The two differ after a move or rename.
func (c *Client) FileIDMatches(ctx context.Context, ref, storedAs Ref) (bool, error) {
	stored, ok := c.state.FileID(Key(storedAs))
	if !ok {
		return false, fmt.Errorf("%w: file id of %s", ErrNotStored, storedAs.Path)
	}

	current, _, err := c.property(ctx, ref, "oc:fileid", dav.PropFileID)
	if err != nil {
		return false, err
	}

	return current == stored, nil
}
