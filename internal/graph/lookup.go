package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/davharness/internal/dav"
	"github.com/tonimelisma/davharness/internal/poll"
)

// Well-known space names that match by drive type instead of by name.
const (
	SpaceNamePersonal = "personal"
	SpaceNameShares   = "Shares"
)

// Lookup resolves space names to ids through the drive listing. Freshly
// created spaces, users and shares take a while to show up, so every
// lookup polls.
type Lookup struct {
	client      *Client
	poller      *poll.Poller
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

// NewLookup creates a Lookup polling at most maxAttempts times.
func NewLookup(client *Client, poller *poll.Poller, maxAttempts int, delay time.Duration) *Lookup {
	return &Lookup{
		client:      client,
		poller:      poller,
		maxAttempts: maxAttempts,
		delay:       delay,
		logger:      client.logger,
	}
}

// MatchSpace reports whether sp is the space called name. "personal"
// matches the personal drive and "Shares" the virtual shares drive; any
// other name matches a space of that display name. Trashed spaces never
// match.
func MatchSpace(sp Space, name string) bool {
	if sp.Trashed {
		return false
	}

	switch name {
	case SpaceNamePersonal:
		return sp.DriveType == DriveTypePersonal
	case SpaceNameShares:
		return sp.DriveType == DriveTypeVirtual
	default:
		return sp.Name == name
	}
}

func findSpace(spaces []Space, name string) (Space, bool) {
	for _, sp := range spaces {
		if MatchSpace(sp, name) {
			return sp, true
		}
	}

	return Space{}, false
}

// WaitForSpace polls the drive listing until name is present and not
// trashed. A 401 while the user propagates counts as not yet visible.
func (l *Lookup) WaitForSpace(ctx context.Context, creds dav.Credentials, name string) (Space, error) {
	policy := poll.Policy[[]Space]{
		MaxAttempts: l.maxAttempts,
		Delay:       l.delay,
		Accept: func(spaces []Space) bool {
			_, ok := findSpace(spaces, name)
			return ok
		},
	}

	res, err := poll.Until(ctx, l.poller, "space "+name, policy, func(ctx context.Context) ([]Space, error) {
		spaces, err := l.client.Spaces(ctx, creds)
		if errors.Is(err, ErrUnauthorized) {
			l.logger.Debug("drive listing unauthorized, user not yet propagated",
				slog.String("user", creds.Username),
			)

			return nil, nil
		}

		return spaces, err
	})
	if err != nil {
		return Space{}, err
	}

	sp, ok := findSpace(res.Value, name)
	if !ok {
		return Space{}, fmt.Errorf("%w: %q for %s after %d attempts", ErrSpaceNotFound, name, creds.Username, res.Attempts)
	}

	return sp, nil
}

// SpaceID returns the id of the space called name.
func (l *Lookup) SpaceID(ctx context.Context, creds dav.Credentials, name string) (string, error) {
	sp, err := l.WaitForSpace(ctx, creds, name)
	if err != nil {
		return "", err
	}

	return sp.ID, nil
}

// WaitForShareSynced polls sharedWithMe until the share called name is
// present with @client.synchronize set.
func (l *Lookup) WaitForShareSynced(ctx context.Context, creds dav.Credentials, name string) (SharedItem, error) {
	find := func(items []SharedItem) (SharedItem, bool) {
		for _, it := range items {
			if it.Name == name && it.Synchronize {
				return it, true
			}
		}

		return SharedItem{}, false
	}

	policy := poll.Policy[[]SharedItem]{
		MaxAttempts: l.maxAttempts,
		Delay:       l.delay,
		Accept: func(items []SharedItem) bool {
			_, ok := find(items)
			return ok
		},
	}

	res, err := poll.Until(ctx, l.poller, "share "+name, policy, func(ctx context.Context) ([]SharedItem, error) {
		return l.client.SharedWithMe(ctx, creds)
	})
	if err != nil {
		return SharedItem{}, err
	}

	item, ok := find(res.Value)
	if !ok {
		return SharedItem{}, fmt.Errorf("%w: %q for %s after %d attempts", ErrShareNotSynced, name, creds.Username, res.Attempts)
	}

	return item, nil
}

// WaitForSpaceGone polls the drive listing until no untrashed space called
// name is left.
func (l *Lookup) WaitForSpaceGone(ctx context.Context, creds dav.Credentials, name string) error {
	policy := poll.Policy[[]Space]{
		MaxAttempts: l.maxAttempts,
		Delay:       l.delay,
		Accept: func(spaces []Space) bool {
			_, ok := findSpace(spaces, name)
			return !ok
		},
	}

	res, err := poll.Until(ctx, l.poller, "space gone "+name, policy, func(ctx context.Context) ([]Space, error) {
		return l.client.Spaces(ctx, creds)
	})
	if err != nil {
		return err
	}

	if !res.Accepted {
		return fmt.Errorf("graph: space %q still listed for %s after %d attempts", name, creds.Username, res.Attempts)
	}

	return nil
}

// Service bundles the Graph client with its polled lookups.
type Service struct {
	*Client
	*Lookup
}

// NewService combines c and l.
func NewService(c *Client, l *Lookup) *Service {
	return &Service{Client: c, Lookup: l}
}
