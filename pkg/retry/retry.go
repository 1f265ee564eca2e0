package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	wonton "github.com/deepnoodle-ai/wonton/retry"

	"github.com/papercomputeco/streamline/pkg/logger"
)

// Timer schedules backoff waits. Tests replace it to observe delays without
// sleeping.
type Timer = wonton.Timer

// Final marks err so that Do returns it at once, unwrapped, whatever the
// policy says about it.
func Final(err error) error {
	return wonton.MarkPermanent(err)
}

type doConfig struct {
	timer   Timer
	logger  *slog.Logger
	onRetry func(attempt int, err error, delay time.Duration)
}

// DoOption configures Do.
type DoOption func(*doConfig)

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(t Timer) DoOption {
	return func(c *doConfig) {
		c.timer = t
	}
}

// WithLogger sets the logger for retry and exhaustion messages.
func WithLogger(l *slog.Logger) DoOption {
	return func(c *doConfig) {
		c.logger = l
	}
}

// WithOnRetry registers a hook called before each backoff wait. attempt is
// the 0-based index of the attempt that failed.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) DoOption {
	return func(c *doConfig) {
		c.onRetry = fn
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget of p runs out. attempt is 0-based and there is no wait after
// the final attempt.
//
// Exhaustion is reported as *ExhaustedError, cancellation of ctx as ctx.Err(),
// and any other error unchanged. An invalid policy fails before fn is called.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error), opts ...DoOption) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}

	c := &doConfig{}
	for _, opt := range opts {
		opt(c)
	}
	log := logger.OrNop(c.logger)

	next := 0
	call := func() (T, error) {
		attempt := next
		next++
		return fn(ctx, attempt)
	}

	wopts := []wonton.Option{
		wonton.WithMaxAttempts(p.MaxAttempts),
		wonton.WithDelayFunc(func(failed int, _ *wonton.Config) time.Duration {
			return p.DelayFor(failed - 1)
		}),
		wonton.WithRetryIf(func(err error) bool {
			return !wonton.IsPermanent(err) && p.ShouldRetry(next-1, err)
		}),
		wonton.WithOnRetry(func(failed int, err error, delay time.Duration) {
			log.Warn("attempt failed, retrying",
				"attempt", failed,
				"delay", delay,
				"error", err,
			)
			if c.onRetry != nil {
				c.onRetry(failed-1, err, delay)
			}
		}),
	}
	if c.timer != nil {
		wopts = append(wopts, wonton.WithTimer(c.timer))
	}

	v, err := wonton.Do(ctx, call, wopts...)
	if err == nil {
		return v, nil
	}
	return zero, settle(ctx, p, err, log)
}

// settle maps the library's retry error onto the errors Do documents.
func settle(ctx context.Context, p Policy, err error, log *slog.Logger) error {
	last, attempts := err, 1

	var rerr *wonton.Error
	if errors.As(err, &rerr) {
		last, attempts = rerr.Last, rerr.Attempts
	}

	var final wonton.Permanent
	if errors.As(last, &final) {
		return final.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !p.IsRetryable(last) {
		return last
	}

	log.Error("giving up", "attempts", attempts, "error", last)
	return &ExhaustedError{Attempts: attempts, Cause: last}
}
