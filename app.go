package ledapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/st-keller/indy-led-app/component"
	"github.com/st-keller/indy-led-app/metrics"
	"github.com/st-keller/indy-led-app/registry"
	"github.com/st-keller/indy-led-app/standard"
	"github.com/st-keller/indy-led-app/types"
	"github.com/st-keller/indy-led-app/update"
)

// UserLoopName is the registration name used by RegisterUserLoop.
const UserLoopName = "user_loop"

// MaxBackoff caps the wait after a failed invocation.
const MaxBackoff = 59 * time.Second

var (
	// ErrNoLoops is returned by Run when nothing was registered.
	ErrNoLoops = errors.New("no loop registered")
	// ErrAlreadyRunning is returned by Run when the app already runs.
	ErrAlreadyRunning = errors.New("app already running")
	// ErrStop can be returned by a loop to stop the whole app without failure.
	ErrStop = errors.New("app stop requested")
)

// Config holds app configuration.
type Config struct {
	Name      string          // App name (e.g., "indy-sim-led-display")
	Version   string          // App version (e.g., "1.0.0")
	Heartbeat update.Interval // Liveness record cadence
}

// Validate checks if all required config fields are present.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("Name required")
	}
	if c.Version == "" {
		return fmt.Errorf("Version required")
	}
	if !c.Heartbeat.Valid() {
		return fmt.Errorf("Heartbeat invalid: %s", c.Heartbeat)
	}
	return nil
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecentLogs includes the given recent logs in the status document.
func WithRecentLogs(logs *standard.RecentLogs) Option {
	return func(a *App) {
		a.logs = logs
	}
}

// WithMetrics sets the loop collectors. Defaults to a fresh metrics.Loops.
func WithMetrics(m *metrics.Loops) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithSleep replaces the backoff wait. fn must return early with an error
// when ctx is done.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *App) {
		if fn != nil {
			a.sleep = fn
		}
	}
}

// App hosts the registered loops.
type App struct {
	config   Config
	registry *registry.Registry
	logger   *zap.Logger
	logs     *standard.RecentLogs
	metrics  *metrics.Loops
	info     *standard.ServiceInfo
	sleep    func(ctx context.Context, d time.Duration) error

	// Run state
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Heartbeat System state
	heartbeatTimer *time.Timer
}

// New creates a new app host.
func New(config Config, opts ...Option) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{
		config:   config,
		registry: registry.New(),
		logger:   zap.NewNop(),
		info:     standard.AutoDetect(config.Name, config.Version),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.metrics == nil {
		app.metrics = metrics.New()
	}
	app.logger = app.logger.Named("app")

	return app, nil
}

// Register registers a named loop. Registration is allowed before and
// while the app runs, but loops added during Run start with the next Run.
func (a *App) Register(name string, loop types.LoopFunc) error {
	if err := a.registry.Register(name, loop); err != nil {
		return err
	}
	a.logger.Debug("loop registered", zap.String("loop", name))
	return nil
}

// RegisterUserLoop registers fn as the app's user loop.
func (a *App) RegisterUserLoop(fn types.UserLoop) error {
	return a.Register(UserLoopName, types.FromUserLoop(fn))
}

// Metrics returns the loop collectors.
func (a *App) Metrics() *metrics.Loops {
	return a.metrics
}

// Running reports whether Run is in progress.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Run invokes every registered loop repeatedly until ctx is done, Stop is
// called or a loop returns ErrStop. A clean stop returns nil.
func (a *App) Run(ctx context.Context) error {
	names := a.registry.Names()

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(names) == 0 {
		a.mu.Unlock()
		return ErrNoLoops
	}
	ctx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel
	a.done = make(chan struct{})
	a.startHeartbeatSystem()
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.stopHeartbeatSystem()
		close(a.done)
		a.mu.Unlock()
		cancel()
	}()

	a.logger.Info("app started",
		zap.String("name", a.config.Name),
		zap.String("version", a.config.Version),
		zap.String("instance_id", a.info.InstanceID),
		zap.String("service_type", string(a.info.ServiceType)),
		zap.Strings("loops", names),
		zap.Stringer("heartbeat", a.config.Heartbeat),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		loop, ok := a.registry.Loop(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			return a.runLoop(gctx, name, loop)
		})
	}

	err := g.Wait()
	if errors.Is(err, ErrStop) {
		err = nil
	}

	a.logger.Info("app stopped", zap.String("name", a.config.Name))
	return err
}

// Stop cancels a running Run and waits for it to return. The in-flight
// invocation of a plain user loop is allowed to finish.
func (a *App) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
}

// Status returns the status document of the app.
func (a *App) Status() component.Component {
	data := map[string]interface{}{
		"service": a.info.GetData(),
		"running": a.Running(),
		"loops":   a.registry.Stats(),
	}
	if a.logs != nil {
		data["recent_logs"] = a.logs.GetData()
	}
	return component.New("status", data)
}

// ============================================================================
// LOOP SYSTEM
// ============================================================================

// runLoop invokes loop until ctx is done. Only ErrStop leaves it with an error.
func (a *App) runLoop(ctx context.Context, name string, loop types.LoopFunc) error {
	backoffIndex := 0

	for ctx.Err() == nil {
		start := time.Now()
		a.registry.RecordStart(name, start)

		err := invoke(ctx, loop)
		took := time.Since(start)

		// Cancellation surfacing from the loop is shutdown, not failure.
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			err = nil
		}

		if errors.Is(err, ErrStop) {
			a.registry.RecordResult(name, took, nil)
			a.metrics.Observe(name, took, nil)
			a.logger.Info("loop requested stop", zap.String("loop", name))
			return ErrStop
		}

		a.registry.RecordResult(name, took, err)
		a.metrics.Observe(name, took, err)

		if err == nil {
			backoffIndex = 0
			continue
		}

		wait := backoffDuration(backoffIndex)
		backoffIndex++

		a.logger.Error("loop failed, retrying with backoff",
			zap.String("loop", name),
			zap.Error(err),
			zap.Int("attempt", backoffIndex),
			zap.Duration("retry_in", wait),
		)
		if err := a.sleep(ctx, wait); err != nil {
			return nil
		}
	}
	return nil
}

// invoke calls loop and turns a panic into an error.
func invoke(ctx context.Context, loop types.LoopFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop panicked: %v", r)
		}
	}()
	return loop(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ============================================================================
// HEARTBEAT SYSTEM
// ============================================================================

// startHeartbeatSystem arms the heartbeat timer. Callers hold a.mu.
func (a *App) startHeartbeatSystem() {
	a.heartbeatTimer = time.AfterFunc(a.config.Heartbeat.Duration(), a.onHeartbeatFire)
}

// stopHeartbeatSystem disarms the heartbeat timer. Callers hold a.mu.
func (a *App) stopHeartbeatSystem() {
	if a.heartbeatTimer != nil {
		a.heartbeatTimer.Stop()
		a.heartbeatTimer = nil
	}
}

// onHeartbeatFire is called when heartbeat timer fires.
func (a *App) onHeartbeatFire() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	a.Heartbeat()

	a.mu.Lock()
	if a.running && a.heartbeatTimer != nil {
		a.heartbeatTimer.Reset(a.config.Heartbeat.Duration())
	}
	a.mu.Unlock()
}

// Heartbeat logs one liveness record. It does not touch loop state.
func (a *App) Heartbeat() {
	invocations := make(map[string]uint64)
	failures := make(map[string]uint64)
	for _, s := range a.registry.Stats() {
		invocations[s.Name] = s.Invocations
		failures[s.Name] = s.Failures
	}

	a.logger.Info("app heartbeat",
		zap.String("instance_id", a.info.InstanceID),
		zap.Duration("uptime", time.Since(a.info.StartTime).Truncate(time.Second)),
		zap.Any("invocations", invocations),
		zap.Any("failures", failures),
	)
}

// ============================================================================
// BACKOFF SYSTEM
// ============================================================================

// Prime number sequence for backoff.
var backoffPrimes = []int{1, 2, 3, 5, 11, 23, 47, 61}

// backoffDuration returns the wait after the index-th consecutive failure.
func backoffDuration(index int) time.Duration {
	if index < 0 {
		index = 0
	}
	if index >= len(backoffPrimes) {
		return MaxBackoff
	}

	d := time.Duration(backoffPrimes[index]) * time.Second
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}
