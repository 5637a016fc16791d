package circuit_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreaker_InitialState(t *testing.T) {
	b := circuit.New("test")
	assert.Equal(t, circuit.StateClosed, b.State())
	assert.Equal(t, "test", b.Name())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := circuit.New("test", circuit.WithFailureThreshold(3), circuit.WithClock(clock.Now))

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	assert.Equal(t, circuit.StateClosed, b.State())

	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	assert.Equal(t, circuit.StateOpen, b.State())

	snap := b.Snapshot()
	assert.Equal(t, 3, snap.FailureCount)
	assert.Equal(t, clock.Now(), snap.LastFailureTime)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	b := circuit.New("test", circuit.WithFailureThreshold(3))

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	require.NoError(t, b.Do(ctx, succeed))
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	assert.Equal(t, circuit.StateClosed, b.State())

	_ = b.Do(ctx, fail)
	assert.Equal(t, circuit.StateOpen, b.State())
}

func TestBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	var rejected atomic.Int32
	b := circuit.New("test",
		circuit.WithFailureThreshold(1),
		circuit.WithRecoveryTime(time.Minute),
		circuit.WithClock(clock.Now),
		circuit.WithRejectHook(func(string) { rejected.Add(1) }),
	)
	_ = b.Do(ctx, fail)
	require.Equal(t, circuit.StateOpen, b.State())

	clock.Advance(59 * time.Second)
	calls := 0
	err := b.Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, 0, calls)
	assert.Equal(t, int32(1), rejected.Load())
	assert.Equal(t, circuit.StateOpen, b.State())
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithRecoveryTime(time.Minute), circuit.WithClock(clock.Now))
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	require.Equal(t, circuit.StateOpen, b.State())

	clock.Advance(time.Minute)
	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, circuit.StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailureCount)
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithRecoveryTime(time.Minute), circuit.WithClock(clock.Now))
	_ = b.Do(ctx, fail)

	clock.Advance(2 * time.Minute)
	require.ErrorIs(t, b.Do(ctx, fail), errBoom)
	assert.Equal(t, circuit.StateOpen, b.State())
	assert.Equal(t, clock.Now(), b.Snapshot().LastFailureTime, "probe failure restarts the recovery window")

	clock.Advance(30 * time.Second)
	require.ErrorIs(t, b.Do(ctx, succeed), circuit.ErrOpen)
}

func TestBreaker_HalfOpenAllowsExactlyOneProbe(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	b := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithRecoveryTime(time.Minute), circuit.WithClock(clock.Now))
	_ = b.Do(ctx, fail)
	clock.Advance(time.Minute)

	probeStarted := make(chan struct{})
	releaseProbe := make(chan struct{})
	probeDone := make(chan error, 1)
	go func() {
		probeDone <- b.Do(ctx, func(context.Context) error {
			close(probeStarted)
			<-releaseProbe
			return nil
		})
	}()
	<-probeStarted
	assert.Equal(t, circuit.StateHalfOpen, b.State())

	var invoked atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Do(ctx, func(context.Context) error {
				invoked.Add(1)
				return nil
			})
			assert.ErrorIs(t, err, circuit.ErrOpen)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(0), invoked.Load())

	close(releaseProbe)
	require.NoError(t, <-probeDone)
	assert.Equal(t, circuit.StateClosed, b.State())
}

func TestBreaker_CancellationIsNeutral(t *testing.T) {
	b := circuit.New("test", circuit.WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, circuit.StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailureCount)
}

func TestBreaker_FailurePredicate(t *testing.T) {
	ignored := errors.New("ignored")
	b := circuit.New("test",
		circuit.WithFailureThreshold(1),
		circuit.WithFailurePredicate(func(err error) bool { return !errors.Is(err, ignored) }),
	)
	require.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return ignored }), ignored)
	assert.Equal(t, circuit.StateClosed, b.State())
}

func TestBreaker_StateChangeHook(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	var got []circuit.Transition
	b := circuit.New("dep",
		circuit.WithFailureThreshold(1),
		circuit.WithRecoveryTime(time.Second),
		circuit.WithClock(clock.Now),
		circuit.WithStateChange(func(tr circuit.Transition) { got = append(got, tr) }),
	)
	_ = b.Do(ctx, fail)
	clock.Advance(time.Second)
	_ = b.Do(ctx, succeed)

	assert.Equal(t, []circuit.Transition{
		{Name: "dep", From: circuit.StateClosed, To: circuit.StateOpen},
		{Name: "dep", From: circuit.StateOpen, To: circuit.StateHalfOpen},
		{Name: "dep", From: circuit.StateHalfOpen, To: circuit.StateClosed},
	}, got)
}

func TestBreaker_Reset(t *testing.T) {
	b := circuit.New("test", circuit.WithFailureThreshold(1))
	_ = b.Do(context.Background(), fail)
	require.Equal(t, circuit.StateOpen, b.State())

	b.Reset()
	assert.Equal(t, circuit.StateClosed, b.State())
	require.NoError(t, b.Do(context.Background(), succeed))
}

func TestExecute_ReturnsValue(t *testing.T) {
	b := circuit.New("test")
	v, err := circuit.Execute(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
