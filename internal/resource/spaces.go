package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/davharness/internal/graph"
	"github.com/tonimelisma/davharness/internal/scenario"
)

// cleanupWorkers bounds concurrent space teardown.
const cleanupWorkers = 4

// CreateSpace provisions a project space as actor, caches its id and
// records it for Cleanup.
func (c *Client) CreateSpace(ctx context.Context, actor, name string, quota int64) (*graph.Space, error) {
	if c.spaces == nil {
		return nil, ErrNoSpaceService
	}

	creds, err := c.credentials(actor)
	if err != nil {
		return nil, err
	}

	sp, err := c.spaces.CreateSpace(ctx, creds, name, quota)
	if err != nil {
		return nil, fmt.Errorf("resource: creating space %q: %w", name, err)
	}

	c.state.AddCreatedSpace(scenario.CreatedSpace{ID: sp.ID, Name: name, Owner: actor})
	c.state.SetSpaceID(actor, name, sp.ID)

	c.logger.Info("space created",
		slog.String("space", name),
		slog.String("space_id", sp.ID),
		slog.String("owner", actor),
	)

	return sp, nil
}

// RemoveSpace disables and then purges the space called name.
func (c *Client) RemoveSpace(ctx context.Context, actor, name string) error {
	if c.spaces == nil {
		return ErrNoSpaceService
	}

	creds, err := c.credentials(actor)
	if err != nil {
		return err
	}

	id, err := c.spaceID(ctx, actor, creds, name)
	if err != nil {
		return err
	}

	if err := c.teardown(ctx, scenario.CreatedSpace{ID: id, Name: name, Owner: actor}); err != nil {
		return err
	}

	c.state.ForgetSpace(name)

	return nil
}

func (c *Client) teardown(ctx context.Context, sp scenario.CreatedSpace) error {
	creds, err := c.credentials(sp.Owner)
	if err != nil {
		return err
	}

	if err := c.spaces.DisableSpace(ctx, creds, sp.ID); err != nil && !errors.Is(err, graph.ErrNotFound) {
		return fmt.Errorf("resource: disabling space %q: %w", sp.Name, err)
	}

	if err := c.spaces.DeleteSpace(ctx, creds, sp.ID); err != nil && !errors.Is(err, graph.ErrNotFound) {
		return fmt.Errorf("resource: purging space %q: %w", sp.Name, err)
	}

	c.logger.Info("space removed", slog.String("space", sp.Name), slog.String("space_id", sp.ID))

	return nil
}

// Cleanup tears down every space created during the scenario and resets
// the scenario state. Teardown failures do not stop other spaces from
// being removed; they are joined into the returned error and the state is
// kept so a second Cleanup can retry.
func (c *Client) Cleanup(ctx context.Context) error {
	created := c.state.CreatedSpaces()

	if len(created) > 0 && c.spaces == nil {
		return ErrNoSpaceService
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)

	g.SetLimit(cleanupWorkers)

	for _, sp := range created {
		g.Go(func() error {
			if err := c.teardown(ctx, sp); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers report through errs

	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("scenario cleanup incomplete", slog.Int("failed", len(errs)))
		return err
	}

	c.state.Reset()
	c.logger.Debug("scenario cleaned up", slog.Int("spaces", len(created)))

	return nil
}
