// Package resource is the façade test steps call: every WebDAV verb
// against a logical resource reference, resolved through the active
// addressing mode, with uploads optionally split into chunk sessions and
// reads optionally polled until the server has caught up.
//
// Verbs return the raw response. A 404 or 412 is a *dav.Response, not an
// error; errors are reserved for transport failures and caller mistakes.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/davharness/internal/chunk"
	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davpath"
	"github.com/tonimelisma/davharness/internal/graph"
	"github.com/tonimelisma/davharness/internal/poll"
	"github.com/tonimelisma/davharness/internal/scenario"
)

// ErrNoSpaceService is returned when a space operation is requested but
// the client was built without a Graph service.
var ErrNoSpaceService = errors.New("resource: no space service configured")

// CredentialProvider maps an actor name to its basic-auth pair.
type CredentialProvider interface {
	Credentials(actor string) (dav.Credentials, error)
}

// SpaceService is the slice of the Graph API the client needs.
// Satisfied by *graph.Service.
type SpaceService interface {
	SpaceID(ctx context.Context, creds dav.Credentials, name string) (string, error)
	CreateSpace(ctx context.Context, creds dav.Credentials, name string, quota int64) (*graph.Space, error)
	DisableSpace(ctx context.Context, creds dav.Credentials, id string) error
	DeleteSpace(ctx context.Context, creds dav.Credentials, id string) error
}

// Ref names a resource the way a test step does. Actor selects the
// credentials; an empty actor sends none. Mode zero means the scenario's
// active mode. Principal defaults to the actor's username in user modes
// and is the share token in public mode. SpaceID, when set, bypasses the
// space-name lookup.
type Ref struct {
	Actor     string
	Principal string
	Space     string
	SpaceID   string
	Path      string
	Mode      davpath.Mode
}

// Config collects the client's collaborators. State and Doer are
// required; the rest have usable zero values.
type Config struct {
	Doer        chunk.Doer
	Resolver    *davpath.Resolver
	State       *scenario.State
	Credentials CredentialProvider
	Spaces      SpaceService
	Poller      *poll.Poller
	MaxAttempts int
	Delay       time.Duration
	Logger      *slog.Logger
}

// Client issues WebDAV requests for refs.
type Client struct {
	doer        chunk.Doer
	resolver    *davpath.Resolver
	state       *scenario.State
	creds       CredentialProvider
	spaces      SpaceService
	poller      *poll.Poller
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		doer:        cfg.Doer,
		resolver:    cfg.Resolver,
		state:       cfg.State,
		creds:       cfg.Credentials,
		spaces:      cfg.Spaces,
		poller:      cfg.Poller,
		maxAttempts: cfg.MaxAttempts,
		delay:       cfg.Delay,
		logger:      cfg.Logger,
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.resolver == nil {
		c.resolver = davpath.NewResolver()
	}

	if c.poller == nil {
		c.poller = poll.New(c.logger)
	}

	if c.maxAttempts < 1 {
		c.maxAttempts = poll.DefaultMaxAttempts
	}

	if c.delay <= 0 {
		c.delay = poll.DefaultDelay
	}

	return c
}

// State returns the scenario state the client reads and records into.
func (c *Client) State() *scenario.State {
	return c.state
}

func (c *Client) credentials(actor string) (dav.Credentials, error) {
	if actor == "" || c.creds == nil {
		return dav.Credentials{}, nil
	}

	creds, err := c.creds.Credentials(actor)
	if err != nil {
		return dav.Credentials{}, fmt.Errorf("resource: credentials for %q: %w", actor, err)
	}

	return creds, nil
}

// target turns ref into a resolver target, filling in the principal and,
// in spaces mode, the space id.
func (c *Client) target(ctx context.Context, ref Ref) (davpath.Target, dav.Credentials, error) {
	creds, err := c.credentials(ref.Actor)
	if err != nil {
		return davpath.Target{}, dav.Credentials{}, err
	}

	mode := ref.Mode
	if !mode.Valid() {
		mode = c.state.Mode()
	}

	d := davpath.Descriptor{
		Principal: ref.Principal,
		Space:     ref.Space,
		SpaceID:   ref.SpaceID,
		Path:      ref.Path,
	}

	if d.Principal == "" && mode.IsUserMode() {
		d.Principal = creds.Username
	}

	if mode == davpath.ModeSpaceID && d.SpaceID == "" {
		id, err := c.spaceID(ctx, ref.Actor, creds, ref.Space)
		if err != nil {
			return davpath.Target{}, dav.Credentials{}, err
		}

		d.SpaceID = id
	}

	return davpath.Target{Mode: mode, Descriptor: d}, creds, nil
}

// spaceID resolves a space name through the scenario cache, then the
// Graph listing. Without a space service the name is left for the
// resolver, which treats non-well-known names as ids.
func (c *Client) spaceID(ctx context.Context, actor string, creds dav.Credentials, name string) (string, error) {
	if name == "" {
		name = davpath.SpacePersonal
	}

	if id, ok := c.state.SpaceID(actor, name); ok {
		return id, nil
	}

	if c.spaces == nil {
		return "", nil
	}

	id, err := c.spaces.SpaceID(ctx, creds, name)
	if err != nil {
		return "", fmt.Errorf("resource: resolving space %q: %w", name, err)
	}

	c.state.SetSpaceID(actor, name, id)

	c.logger.Debug("resolved space id",
		slog.String("actor", actor),
		slog.String("space", name),
		slog.String("space_id", id),
	)

	return id, nil
}

// Resolve returns the request path for ref under kind.
func (c *Client) Resolve(ctx context.Context, ref Ref, kind davpath.Kind) (string, error) {
	t, _, err := c.target(ctx, ref)
	if err != nil {
		return "", err
	}

	return c.resolver.ResolveTarget(t, kind)
}

func (c *Client) send(ctx context.Context, ref Ref, method string, header http.Header, body []byte) (*dav.Response, error) {
	t, creds, err := c.target(ctx, ref)
	if err != nil {
		return nil, err
	}

	p, err := c.resolver.ResolveTarget(t, davpath.KindFiles)
	if err != nil {
		return nil, fmt.Errorf("resource: %s: %w", method, err)
	}

	return c.doer.Do(ctx, &dav.Request{
		Method:      method,
		Path:        p,
		Header:      dav.CloneHeader(header),
		Body:        body,
		Credentials: creds,
	})
}

func (c *Client) chunkDeps(creds dav.Credentials) chunk.Deps {
	return chunk.Deps{
		Doer:        c.doer,
		Resolver:    c.resolver,
		Credentials: creds,
		Logger:      c.logger,
	}
}

// ChunkDeps returns the collaborators restored sessions of actor bind to.
func (c *Client) ChunkDeps(actor string) (chunk.Deps, error) {
	creds, err := c.credentials(actor)
	if err != nil {
		return chunk.Deps{}, err
	}

	return c.chunkDeps(creds), nil
}

func (c *Client) policy(accept func(*dav.Response) bool) poll.Policy[*dav.Response] {
	return poll.Policy[*dav.Response]{
		MaxAttempts: c.maxAttempts,
		Delay:       c.delay,
		Accept:      accept,
	}
}
