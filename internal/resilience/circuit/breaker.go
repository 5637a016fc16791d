// Package circuit implements per-dependency circuit breakers.
package circuit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned without calling the dependency while a breaker is open, or while
// a half-open probe is already in flight.
var ErrOpen = errors.New("circuit open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of a breaker's state.
type Snapshot struct {
	Name            string    `json:"name"`
	State           State     `json:"-"`
	StateName       string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
	Threshold       int       `json:"threshold"`
	RecoveryTime    string    `json:"recovery_time"`
}

// Transition is reported to observers on every state change.
type Transition struct {
	Name string
	From State
	To   State
}

// Breaker guards one named dependency. The mutex is held only around state checks and
// transitions, never across the wrapped call.
type Breaker struct {
	name      string
	threshold int
	recovery  time.Duration
	isFailure func(error) bool
	now       func() time.Time
	logger    *slog.Logger
	onChange  func(Transition)
	onReject  func(name string)

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	probeInFlight bool
}

type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures that opens the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithRecoveryTime sets how long the breaker stays open before allowing a probe.
func WithRecoveryTime(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.recovery = d
		}
	}
}

// WithFailurePredicate decides which errors count against the dependency. Errors it
// rejects are returned to the caller but leave the breaker untouched.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.isFailure = fn
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStateChange registers a hook called after each transition, outside the lock.
func WithStateChange(fn func(Transition)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithRejectHook registers a hook called for every short-circuited call.
func WithRejectHook(fn func(name string)) Option {
	return func(b *Breaker) { b.onReject = fn }
}

// New creates a closed breaker. Defaults: threshold 5, recovery 1 minute, every error
// counts as a failure.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: 5,
		recovery:  time.Minute,
		isFailure: func(error) bool { return true },
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "circuit", "breaker", name)
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state without triggering the lazy open -> half-open check.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:            b.name,
		State:           b.state,
		StateName:       b.state.String(),
		FailureCount:    b.failures,
		LastFailureTime: b.lastFailure,
		Threshold:       b.threshold,
		RecoveryTime:    b.recovery.String(),
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.lastFailure = time.Time{}
	b.probeInFlight = false
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

// Execute runs op through the breaker. While open it returns ErrOpen without calling op.
func Execute[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	probe, err := b.acquire()
	if err != nil {
		return zero, err
	}
	out, opErr := op(ctx)
	b.release(ctx, probe, opErr)
	return out, opErr
}

// Do is Execute for operations without a result.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// acquire decides whether a call may proceed. probe reports whether the caller holds the
// single half-open slot.
func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.recovery {
			b.mu.Unlock()
			b.reject()
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return true, nil
	case StateHalfOpen:
		if b.probeInFlight {
			b.mu.Unlock()
			b.reject()
			return false, ErrOpen
		}
		b.probeInFlight = true
		b.mu.Unlock()
		return true, nil
	default:
		b.mu.Unlock()
		return false, nil
	}
}

func (b *Breaker) release(ctx context.Context, probe bool, opErr error) {
	// Caller cancellation says nothing about the dependency.
	canceled := ctx.Err() != nil && errors.Is(opErr, ctx.Err())
	neutral := opErr != nil && (canceled || !b.isFailure(opErr))

	b.mu.Lock()
	from := b.state
	if probe {
		b.probeInFlight = false
	}
	switch {
	case neutral:
		// Half-open stays half-open so the next caller may probe.
	case opErr == nil:
		b.failures = 0
		if b.state == StateHalfOpen && probe {
			b.state = StateClosed
		}
	default:
		b.failures++
		switch b.state {
		case StateHalfOpen:
			if probe {
				b.state = StateOpen
				b.lastFailure = b.now()
			}
		case StateClosed:
			if b.failures >= b.threshold {
				b.state = StateOpen
				b.lastFailure = b.now()
			}
		}
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
		if to == StateOpen {
			b.logger.Warn("circuit opened", "failures", failures, "recovery", b.recovery)
		}
	}
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	b.logger.Info("circuit state change", "from", from.String(), "to", to.String())
	if b.onChange != nil {
		b.onChange(Transition{Name: b.name, From: from, To: to})
	}
}

func (b *Breaker) reject() {
	if b.onReject != nil {
		b.onReject(b.name)
	}
}
