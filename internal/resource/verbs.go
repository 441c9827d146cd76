package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davpath"
	"github.com/tonimelisma/davharness/internal/poll"
)

// MoveOptions tune MOVE and COPY. Nil Overwrite omits the header.
type MoveOptions struct {
	Overwrite *bool
	Header    http.Header
}

// Propfind issues PROPFIND with the named properties ("d:getetag",
// "oc:fileid", ...). No properties leaves the body empty. Depth infinity is
// sent even when the server is known to refuse it.
func (c *Client) Propfind(ctx context.Context, ref Ref, depth dav.Depth, props []string) (*dav.Response, error) {
	if depth == "" {
		depth = dav.DepthOne
	}

	if depth == dav.DepthInfinity && !c.state.InfiniteDepth() {
		c.logger.Warn("sending depth infinity while infinite depth is disabled",
			slog.String("actor", ref.Actor),
			slog.String("path", ref.Path),
		)
	}

	body, err := dav.PropfindBody(props)
	if err != nil {
		return nil, fmt.Errorf("resource: propfind: %w", err)
	}

	header := make(http.Header)
	header.Set(dav.HeaderDepth, string(depth))
	header.Set(dav.HeaderContentType, dav.ContentTypeXML)

	return c.send(ctx, ref, dav.MethodPropfind, header, body)
}

// PropfindUntil re-issues Propfind until accept holds or the attempt
// budget runs out, returning the last response either way. Each attempt
// resolves ref again, so a space id learned mid-poll is picked up.
func (c *Client) PropfindUntil(
	ctx context.Context, ref Ref, depth dav.Depth, props []string, accept func(*dav.Response) bool,
) (*dav.Response, error) {
	res, err := poll.Until(ctx, c.poller, "propfind "+ref.Path, c.policy(accept),
		func(ctx context.Context) (*dav.Response, error) {
			return c.Propfind(ctx, ref, depth, props)
		})

	return res.Value, err
}

// Get downloads ref.
func (c *Client) Get(ctx context.Context, ref Ref, header http.Header) (*dav.Response, error) {
	return c.send(ctx, ref, http.MethodGet, header, nil)
}

// GetUntil re-issues Get until accept holds or attempts run out.
func (c *Client) GetUntil(ctx context.Context, ref Ref, header http.Header, accept func(*dav.Response) bool) (*dav.Response, error) {
	res, err := poll.Until(ctx, c.poller, "get "+ref.Path, c.policy(accept),
		func(ctx context.Context) (*dav.Response, error) {
			return c.Get(ctx, ref, header)
		})

	return res.Value, err
}

// PutOptions tune a single PUT. Zero Mtime omits X-OC-Mtime.
type PutOptions struct {
	Mtime  time.Time
	Header http.Header
}

// Put uploads content in one request.
func (c *Client) Put(ctx context.Context, ref Ref, content []byte, opts PutOptions) (*dav.Response, error) {
	header := dav.CloneHeader(opts.Header)
	if !opts.Mtime.IsZero() {
		dav.SetMtime(header, opts.Mtime)
	}

	return c.send(ctx, ref, http.MethodPut, header, content)
}

// PutFile uploads the local file at localPath in one request.
func (c *Client) PutFile(ctx context.Context, ref Ref, localPath string, opts PutOptions) (*dav.Response, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("resource: reading %s: %w", localPath, err)
	}

	return c.Put(ctx, ref, content, opts)
}

// Mkcol creates a collection.
func (c *Client) Mkcol(ctx context.Context, ref Ref, header http.Header) (*dav.Response, error) {
	return c.send(ctx, ref, dav.MethodMkcol, header, nil)
}

// Delete removes ref. Deleting an absent resource returns the server's
// own status.
func (c *Client) Delete(ctx context.Context, ref Ref, header http.Header) (*dav.Response, error) {
	return c.send(ctx, ref, http.MethodDelete, header, nil)
}

// Move moves src to dst. dst is resolved under its own mode, independent
// of the source's.
func (c *Client) Move(ctx context.Context, src, dst Ref, opts MoveOptions) (*dav.Response, error) {
	return c.transfer(ctx, dav.MethodMove, src, dst, opts)
}

// Copy copies src to dst. dst is resolved under its own mode.
func (c *Client) Copy(ctx context.Context, src, dst Ref, opts MoveOptions) (*dav.Response, error) {
	return c.transfer(ctx, dav.MethodCopy, src, dst, opts)
}

func (c *Client) transfer(ctx context.Context, method string, src, dst Ref, opts MoveOptions) (*dav.Response, error) {
	if dst.Actor == "" {
		dst.Actor = src.Actor
	}

	dstPath, err := c.Resolve(ctx, dst, davpath.KindFiles)
	if err != nil {
		return nil, fmt.Errorf("resource: %s destination: %w", method, err)
	}

	header := dav.CloneHeader(opts.Header)
	header.Set(dav.HeaderDestination, c.doer.URL(dstPath))

	if opts.Overwrite != nil {
		header.Set(dav.HeaderOverwrite, dav.OverwriteValue(*opts.Overwrite))
	}

	return c.send(ctx, src, method, header, nil)
}
