// Package poll re-issues reads against an eventually consistent server
// until an acceptance predicate holds or a bounded attempt budget runs out.
// Attempts are strictly sequential; the poller never fabricates a result,
// it hands back whatever the last real call returned.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Defaults observed against the server under test. Callers normally take
// these from configuration.
const (
	DefaultMaxAttempts = 10
	DefaultDelay       = 1 * time.Second
)

// ErrInvalidPolicy is returned for policies with MaxAttempts < 1 or a
// negative delay.
var ErrInvalidPolicy = errors.New("poll: invalid retry policy")

// Policy bounds a poll. Accept decides whether an observed value is good
// enough; a nil Accept accepts the first value.
type Policy[T any] struct {
	MaxAttempts int
	Delay       time.Duration
	Accept      func(T) bool
}

// Validate checks the policy invariants.
func (p Policy[T]) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts %d < 1", ErrInvalidPolicy, p.MaxAttempts)
	}

	if p.Delay < 0 {
		return fmt.Errorf("%w: negative delay %s", ErrInvalidPolicy, p.Delay)
	}

	return nil
}

// backoff returns a constant schedule that allows MaxAttempts-1 waits.
func (p Policy[T]) backoff() retry.Backoff {
	delay := p.Delay
	constant := retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	})

	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), constant) //nolint:gosec // validated >= 1
}

// Result is the outcome of a poll: the last observed value, how many
// times the operation ran and whether the last value was accepted.
type Result[T any] struct {
	Value    T
	Attempts int
	Accepted bool
}

// Operation performs one complete request cycle.
type Operation[T any] func(ctx context.Context) (T, error)

// Poller runs polls. The zero value is not usable; use New.
type Poller struct {
	logger *slog.Logger

	// sleepFunc waits between attempts. Tests replace it with a fake clock.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a Poller that sleeps with a real timer.
func New(logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{logger: logger, sleepFunc: timeSleep}
}

// WithSleep returns a copy of p using sleep between attempts.
func (p *Poller) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Poller {
	cp := *p
	cp.sleepFunc = sleep

	return &cp
}

// Until runs op until policy.Accept holds or the attempt budget is spent.
// An error from op ends the poll immediately and is returned unchanged:
// transport failures are not staleness.
func Until[T any](ctx context.Context, p *Poller, name string, policy Policy[T], op Operation[T]) (Result[T], error) {
	if err := policy.Validate(); err != nil {
		return Result[T]{}, err
	}

	schedule := policy.backoff()

	var res Result[T]

	for {
		value, err := op(ctx)
		res.Attempts++

		if err != nil {
			return res, err
		}

		res.Value = value
		res.Accepted = policy.Accept == nil || policy.Accept(value)

		if res.Accepted {
			if res.Attempts > 1 {
				p.logger.Debug("poll converged",
					slog.String("poll", name),
					slog.Int("attempts", res.Attempts),
				)
			}

			return res, nil
		}

		delay, stop := schedule.Next()
		if stop {
			p.logger.Warn("poll exhausted attempts",
				slog.String("poll", name),
				slog.Int("attempts", res.Attempts),
			)

			return res, nil
		}

		p.logger.Debug("poll not yet acceptable, retrying",
			slog.String("poll", name),
			slog.Int("attempt", res.Attempts),
			slog.Duration("delay", delay),
		)

		if err := p.sleepFunc(ctx, delay); err != nil {
			return res, fmt.Errorf("poll: %s: %w", name, err)
		}
	}
}

// timeSleep waits for d or until ctx is done.
func timeSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
