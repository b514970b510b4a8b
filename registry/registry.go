// Package registry keeps the loops registered with the app host and their run statistics.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/st-keller/indy-led-app/types"
)

// ErrDuplicate is returned when a loop name is registered twice.
var ErrDuplicate = errors.New("loop already registered")

// Registry manages loop registrations.
type Registry struct {
	mu sync.RWMutex

	// entries: loop name -> entry
	entries map[string]*entry
}

type entry struct {
	loop  types.LoopFunc
	stats LoopStats
}

// LoopStats describes how a loop has been running.
type LoopStats struct {
	Name         string        `json:"name"`
	Invocations  uint64        `json:"invocations"`
	Failures     uint64        `json:"failures"`
	Running      bool          `json:"running"`
	LastStart    time.Time     `json:"last_start,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastError    string        `json:"last_error,omitempty"`
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a loop under name.
func (r *Registry) Register(name string, loop types.LoopFunc) error {
	if name == "" {
		return fmt.Errorf("loop name required")
	}
	if loop == nil {
		return fmt.Errorf("loop %s: func required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[name] != nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}

	r.entries[name] = &entry{
		loop:  loop,
		stats: LoopStats{Name: name},
	}
	return nil
}

// Loop returns the loop registered under name.
func (r *Registry) Loop(name string) (types.LoopFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.entries[name]
	if e == nil {
		return nil, false
	}
	return e.loop, true
}

// Names returns the registered loop names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered loops.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RecordStart marks the beginning of an invocation.
func (r *Registry) RecordStart(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.entries[name]; e != nil {
		e.stats.Running = true
		e.stats.LastStart = at
	}
}

// RecordResult marks the end of an invocation. A nil err clears LastError.
func (r *Registry) RecordResult(name string, took time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entries[name]
	if e == nil {
		return
	}

	e.stats.Running = false
	e.stats.Invocations++
	e.stats.LastDuration = took
	if err != nil {
		e.stats.Failures++
		e.stats.LastError = err.Error()
	} else {
		e.stats.LastError = ""
	}
}

// Stats returns a snapshot of all loop statistics, sorted by name.
func (r *Registry) Stats() []LoopStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LoopStats, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
