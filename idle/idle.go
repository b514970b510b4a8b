// Package idle provides the placeholder loop of the LED display app.
//
// Race data reaches the sketch through the router directly:
//
//	backend -> arduino-router -> sketch (indy/raceUpdate)
//
// The app host still needs a loop to run, so this one only waits.
package idle

import (
	"context"
	"fmt"
	"io"
	"time"
)

// DefaultDelay is the pause of one loop invocation.
const DefaultDelay = time.Second

// StatusLine is printed per invocation when a status writer is configured.
const StatusLine = "Indy Sim LED Display running..."

// Loop pauses for DefaultDelay and returns. It has the shape the host
// expects for a user loop.
func Loop() {
	time.Sleep(DefaultDelay)
}

// Idler is a configurable idle loop.
type Idler struct {
	delay  time.Duration
	sleep  func(time.Duration)
	status io.Writer
}

// Option configures an Idler.
type Option func(*Idler)

// WithDelay overrides DefaultDelay. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(i *Idler) {
		if d > 0 {
			i.delay = d
		}
	}
}

// WithSleeper replaces time.Sleep in Loop.
func WithSleeper(fn func(time.Duration)) Option {
	return func(i *Idler) {
		if fn != nil {
			i.sleep = fn
		}
	}
}

// WithStatusPrint enables the per-invocation status line on w.
func WithStatusPrint(w io.Writer) Option {
	return func(i *Idler) {
		i.status = w
	}
}

// New creates an Idler. Without options it behaves exactly like Loop.
func New(opts ...Option) *Idler {
	i := &Idler{
		delay: DefaultDelay,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Delay returns the configured pause.
func (i *Idler) Delay() time.Duration {
	return i.delay
}

// Loop pauses for the configured delay.
func (i *Idler) Loop() {
	i.sleep(i.delay)
	i.printStatus()
}

// Run pauses for the configured delay or until ctx is done, whichever
// comes first. Cancellation is not an error.
func (i *Idler) Run(ctx context.Context) error {
	t := time.NewTimer(i.delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
	}
	i.printStatus()
	return nil
}

func (i *Idler) printStatus() {
	if i.status == nil {
		return
	}
	// Best effort, the loop never fails.
	_, _ = fmt.Fprintln(i.status, StatusLine)
}
