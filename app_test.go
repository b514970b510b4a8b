package ledapp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/st-keller/indy-led-app/idle"
	"github.com/st-keller/indy-led-app/standard"
	"github.com/st-keller/indy-led-app/update"
)

func testConfig() Config {
	return Config{Name: "indy-sim-led-display", Version: "test", Heartbeat: update.Fast}
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	app, err := New(testConfig(), opts...)
	require.NoError(t, err)
	return app
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Version: "1", Heartbeat: update.Slow})
	assert.ErrorContains(t, err, "Name required")

	_, err = New(Config{Name: "x", Heartbeat: update.Slow})
	assert.ErrorContains(t, err, "Version required")

	_, err = New(Config{Name: "x", Version: "1"})
	assert.ErrorContains(t, err, "Heartbeat invalid")
}

func TestRegisterUserLoopBeforeFirstInvocation(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.RegisterUserLoop(idle.Loop))
	assert.Equal(t, []string{UserLoopName}, app.registry.Names())
	assert.False(t, app.Running())

	stats := app.registry.Stats()
	require.Len(t, stats, 1)
	assert.Zero(t, stats[0].Invocations)

	assert.Error(t, app.RegisterUserLoop(idle.Loop))
	assert.Error(t, app.Register("nil", nil))
}

func TestRunWithoutLoops(t *testing.T) {
	app := newTestApp(t)
	assert.ErrorIs(t, app.Run(context.Background()), ErrNoLoops)
}

func TestRunInvokesRepeatedly(t *testing.T) {
	for _, n := range []int{1, 10, 1000} {
		app := newTestApp(t)
		idler := idle.New(idle.WithSleeper(func(time.Duration) {}))

		var calls int
		require.NoError(t, app.Register(UserLoopName, func(context.Context) error {
			idler.Loop()
			calls++
			if calls == n {
				return ErrStop
			}
			return nil
		}))

		require.NoError(t, app.Run(context.Background()))

		assert.Equal(t, n, calls)
		stats := app.registry.Stats()
		require.Len(t, stats, 1)
		assert.Equal(t, uint64(n), stats[0].Invocations)
		assert.Zero(t, stats[0].Failures)
		assert.False(t, app.Running())
	}
}

func TestStopWaitsForUserLoop(t *testing.T) {
	app := newTestApp(t)
	idler := idle.New(idle.WithDelay(time.Millisecond))

	var calls atomic.Int64
	require.NoError(t, app.RegisterUserLoop(func() {
		idler.Loop()
		calls.Add(1)
	}))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 5*time.Second, time.Millisecond)
	app.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.False(t, app.Running())

	// Stop on a stopped app is a no-op
	app.Stop()
}

func TestContextCancelIsNotFailure(t *testing.T) {
	app := newTestApp(t)
	started := make(chan struct{})
	var once sync.Once

	require.NoError(t, app.Register("blocking", func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	<-started
	cancel()
	require.NoError(t, <-done)

	stats := app.registry.Stats()
	assert.Equal(t, uint64(1), stats[0].Invocations)
	assert.Zero(t, stats[0].Failures)
}

func TestAlreadyRunning(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Register("blocking", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(t, app.Running, 5*time.Second, time.Millisecond)
	assert.ErrorIs(t, app.Run(context.Background()), ErrAlreadyRunning)

	app.Stop()
	require.NoError(t, <-done)
}

func TestBackoffOnFailureAndPanic(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	var waits []time.Duration
	app := newTestApp(t,
		WithLogger(zap.New(core)),
		WithSleep(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}),
	)

	boom := errors.New("boom")
	steps := []func() error{
		func() error { return boom },
		func() error { return boom },
		func() error { return boom },
		func() error { panic("sketch unreachable") },
		func() error { return nil },
		func() error { return boom },
		func() error { return ErrStop },
	}
	var i int
	require.NoError(t, app.Register(UserLoopName, func(context.Context) error {
		step := steps[i]
		i++
		return step()
	}))

	require.NoError(t, app.Run(context.Background()))

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		3 * time.Second,
		5 * time.Second,
		1 * time.Second,
	}, waits)

	stats := app.registry.Stats()
	assert.Equal(t, uint64(7), stats[0].Invocations)
	assert.Equal(t, uint64(5), stats[0].Failures)

	failed := logs.FilterMessage("loop failed, retrying with backoff").All()
	require.Len(t, failed, 5)
	assert.Contains(t, failed[3].ContextMap()["error"], "sketch unreachable")
	assert.Equal(t, 1, logs.FilterMessage("loop requested stop").Len())
}

func TestBackoffCancelledWait(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Register(UserLoopName, func(context.Context) error {
		return errors.New("always")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		s := app.registry.Stats()
		return len(s) == 1 && s[0].Failures >= 1
	}, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("backoff wait ignored cancellation")
	}
}

func TestBackoffDuration(t *testing.T) {
	want := []time.Duration{1, 2, 3, 5, 11, 23, 47, 59, 59}
	for i, w := range want {
		assert.Equal(t, w*time.Second, backoffDuration(i), "index %d", i)
	}
	assert.Equal(t, time.Second, backoffDuration(-1))
}

func TestHeartbeat(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := newTestApp(t, WithLogger(zap.New(core)))
	require.NoError(t, app.RegisterUserLoop(func() {}))
	app.registry.RecordResult(UserLoopName, time.Second, nil)

	app.Heartbeat()

	entries := logs.FilterMessage("app heartbeat").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "app", entries[0].LoggerName)
	assert.Equal(t, map[string]uint64{UserLoopName: 1}, entries[0].ContextMap()["invocations"])
	assert.Equal(t, uint64(1), app.registry.Stats()[0].Invocations)
}

func TestStatus(t *testing.T) {
	recent := standard.NewRecentLogs(10)
	logger := zap.New(recent.Core(zap.InfoLevel))
	app := newTestApp(t, WithLogger(logger), WithRecentLogs(recent))
	require.NoError(t, app.RegisterUserLoop(func() {}))
	logger.Info("hello")

	status := app.Status()
	assert.Equal(t, "status", status.Type)
	assert.Len(t, status.Checksum, 64)

	data := status.Data.(map[string]interface{})
	assert.Equal(t, false, data["running"])
	assert.Contains(t, data, "service")
	assert.Contains(t, data, "recent_logs")

	app.registry.RecordResult(UserLoopName, time.Second, nil)
	assert.NotEqual(t, status.Checksum, app.Status().Checksum)
}

func TestMetricsObserved(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.Register(UserLoopName, func(context.Context) error { return ErrStop }))
	require.NoError(t, app.Run(context.Background()))

	families, err := app.Metrics().Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "ledapp_loop_invocations_total" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
