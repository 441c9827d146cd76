package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/davpath"
	"github.com/tonimelisma/davharness/internal/graph"
	"github.com/tonimelisma/davharness/internal/poll"
	"github.com/tonimelisma/davharness/internal/resource"
	"github.com/tonimelisma/davharness/internal/scenario"
)

// Harness holds the clients and the persisted scenario state for one CLI
// invocation. Every command that talks to the server opens one, and Close
// writes the state back so the next invocation continues the scenario.
type Harness struct {
	Resource *resource.Client
	Graph    *graph.Service
	Doer     *dav.Client

	store  *scenario.Store
	logger *slog.Logger

	// mode and infiniteDepth are the values saved on Close. Flag and
	// environment overrides change only the live state.
	mode          davpath.Mode
	infiniteDepth bool
}

// openHarness builds the clients described by cc.Cfg and restores the
// scenario state from the state database.
func openHarness(ctx context.Context, cc *CLIContext) (*Harness, error) {
	cfg := cc.Cfg

	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	store, err := scenario.OpenStore(ctx, cfg.StatePath, cc.Logger)
	if err != nil {
		return nil, err
	}

	h, err := newHarness(ctx, cc, store, &http.Client{Timeout: cfg.RequestTimeout})
	if err != nil {
		store.Close()
		return nil, err
	}

	return h, nil
}

// newHarness wires clients over httpClient and restores state from store.
func newHarness(ctx context.Context, cc *CLIContext, store *scenario.Store, httpClient dav.HTTPClient) (*Harness, error) {
	cfg, logger := cc.Cfg, cc.Logger

	doer := dav.NewClient(cfg.Server.BaseURL, httpClient, logger,
		dav.WithUserAgent(cfg.Network.UserAgent),
		dav.WithRateLimit(cfg.Network.MaxRequestsPerSecond),
	)

	poller := poll.New(logger)
	gc := graph.NewClient(doer, cfg.Server.GraphRoot, logger)
	svc := graph.NewService(gc, graph.NewLookup(gc, poller, cfg.Poll.MaxAttempts, cfg.PollDelay))

	state := scenario.NewState(cfg.Mode)
	state.SetInfiniteDepth(cfg.Server.InfiniteDepth)

	client := resource.New(resource.Config{
		Doer:        doer,
		Resolver:    davpath.NewResolver(cfg.ResolverOptions()...),
		State:       state,
		Credentials: cfg.Config,
		Spaces:      svc,
		Poller:      poller,
		MaxAttempts: cfg.Poll.MaxAttempts,
		Delay:       cfg.PollDelay,
		Logger:      logger,
	})

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	if !snap.Mode.Valid() {
		// Fresh database: keep the configured mode.
		snap.Mode = cfg.Mode
		snap.InfiniteDepth = cfg.Server.InfiniteDepth
	}

	if err := state.Restore(snap, client.ChunkDeps); err != nil {
		return nil, fmt.Errorf("restoring scenario state: %w", err)
	}

	persistedMode, persistedDepth := state.Mode(), state.InfiniteDepth()

	// An explicit --dav-path or --infinite-depth wins over the persisted
	// scenario for this invocation only.
	if cc.ModeOverride {
		state.SetMode(cfg.Mode)
	}

	if cc.DepthOverride {
		state.SetInfiniteDepth(cfg.Server.InfiniteDepth)
	}

	logger.Debug("scenario restored",
		slog.String("mode", state.Mode().String()),
		slog.Int("sessions", len(state.Sessions())),
		slog.Int("created_spaces", len(state.CreatedSpaces())),
	)

	return &Harness{
		Resource: client,
		Graph:    svc,
		Doer:     doer,
		store:    store,
		logger:   logger,

		mode:          persistedMode,
		infiniteDepth: persistedDepth,
	}, nil
}

// State is shorthand for the scenario state.
func (h *Harness) State() *scenario.State {
	return h.Resource.State()
}

// SetMode changes the addressing mode for this invocation and for the
// rest of the scenario.
func (h *Harness) SetMode(m davpath.Mode) {
	h.State().SetMode(m)
	h.mode = m
}

// SetInfiniteDepth changes the infinite-depth toggle for this invocation
// and for the rest of the scenario.
func (h *Harness) SetInfiniteDepth(enabled bool) {
	h.State().SetInfiniteDepth(enabled)
	h.infiniteDepth = enabled
}

// Close saves the scenario state and closes the store. A save failure is
// reported even if the command itself failed. The saved mode and depth
// are the persisted ones, never a per-invocation override.
func (h *Harness) Close(ctx context.Context) error {
	snap := h.State().Snapshot()
	snap.Mode = h.mode
	snap.InfiniteDepth = h.infiniteDepth

	saveErr := h.store.Save(context.WithoutCancel(ctx), snap)
	if saveErr != nil {
		saveErr = fmt.Errorf("saving scenario state: %w", saveErr)
	}

	return errors.Join(saveErr, h.store.Close())
}

// withHarness opens a Harness, runs fn, and always saves the state.
func withHarness(ctx context.Context, fn func(h *Harness) error) (err error) {
	cc := mustCLIContext(ctx)

	h, err := openHarness(ctx, cc)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, h.Close(ctx))
	}()

	return fn(h)
}
