// Package retry runs idempotent operations with backoff and a pluggable retry condition.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shpitdev/contact-enricher/internal/resilience/backoff"
	"github.com/shpitdev/contact-enricher/internal/util"
)

// Operation is a unit of work that is safe to repeat. The only way to build one is
// Idempotent, so every retried call site states that guarantee explicitly.
type Operation[T any] interface {
	Run(ctx context.Context) (T, error)
	idempotent()
}

type idempotentFunc[T any] func(ctx context.Context) (T, error)

func (f idempotentFunc[T]) Run(ctx context.Context) (T, error) { return f(ctx) }

func (idempotentFunc[T]) idempotent() {}

// Idempotent declares fn safe to repeat and adapts it to Operation.
func Idempotent[T any](fn func(ctx context.Context) (T, error)) Operation[T] {
	return idempotentFunc[T](fn)
}

// Policy is the per-use-case retry budget.
type Policy struct {
	// Name identifies the preset in logs and metrics.
	Name        string
	MaxAttempts int
	Backoff     backoff.Policy
	// Retryable nil means DefaultCondition.
	Retryable Condition
}

// RetryError wraps the final failure once an operation is abandoned, either because the
// condition rejected the error or because attempts ran out.
type RetryError struct {
	Operation string
	Attempts  int
	LastErr   error
}

func (e *RetryError) Error() string {
	if e == nil {
		return "retry error"
	}
	return fmt.Sprintf("%s: giving up after %d attempt(s): %v", e.Operation, e.Attempts, e.LastErr)
}

func (e *RetryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.LastErr
}

// Attempt describes one finished try, passed to observers.
type Attempt struct {
	Operation   string
	Policy      string
	Number      int
	MaxAttempts int
	Err         error
	WillRetry   bool
	Delay       time.Duration
	Elapsed     time.Duration
}

// Executor holds the process-side collaborators of retries: logging, sleeping and
// observation. It is safe for concurrent use; each Execute call is independent.
type Executor struct {
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	observer func(Attempt)
}

type Option func(*Executor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSleeper replaces the timer-based sleep. Tests use it to skip real waits.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithObserver registers a hook called after every attempt.
func WithObserver(fn func(Attempt)) Option {
	return func(e *Executor) { e.observer = fn }
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "retry")
	return e
}

// NoWait returns a sleeper that returns immediately unless ctx is done.
func NoWait() func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs op until it succeeds, the condition rejects an error, attempts run out or
// ctx is done. Every failure is returned as *RetryError.
func Execute[T any](ctx context.Context, e *Executor, p Policy, operation string, op Operation[T]) (T, error) {
	if e == nil {
		e = NewExecutor()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	cond := p.Retryable
	if cond == nil {
		cond = DefaultCondition
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				err = fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, &RetryError{Operation: operation, Attempts: attempt - 1, LastErr: err}
		}

		start := time.Now()
		out, err := op.Run(ctx)
		elapsed := time.Since(start)
		if err == nil {
			e.observe(Attempt{Operation: operation, Policy: p.Name, Number: attempt, MaxAttempts: maxAttempts, Elapsed: elapsed})
			if attempt > 1 {
				e.logger.Debug("operation succeeded after retry", "operation", operation, "attempt", attempt)
			}
			return out, nil
		}
		lastErr = err

		willRetry := attempt < maxAttempts && cond(err)
		var delay time.Duration
		if willRetry {
			delay = p.Backoff.Delay(attempt)
		}
		e.observe(Attempt{
			Operation:   operation,
			Policy:      p.Name,
			Number:      attempt,
			MaxAttempts: maxAttempts,
			Err:         err,
			WillRetry:   willRetry,
			Delay:       delay,
			Elapsed:     elapsed,
		})

		if !willRetry {
			e.logger.Error("operation failed",
				"operation", operation,
				"policy", p.Name,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"kind", KindOf(err).String(),
				"error", util.RedactSecrets(err.Error()),
			)
			return zero, &RetryError{Operation: operation, Attempts: attempt, LastErr: err}
		}

		e.logger.Warn("operation attempt failed, retrying",
			"operation", operation,
			"policy", p.Name,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", util.RedactSecrets(err.Error()),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return zero, &RetryError{
				Operation: operation,
				Attempts:  attempt,
				LastErr:   fmt.Errorf("%w (last error: %v)", err, lastErr),
			}
		}
	}
	// Unreachable: the final attempt always returns above.
	return zero, &RetryError{Operation: operation, Attempts: maxAttempts, LastErr: lastErr}
}

func (e *Executor) observe(a Attempt) {
	if e.observer != nil {
		e.observer(a)
	}
}
