// Package types defines the loop shapes the app host accepts.
package types

import "context"

// UserLoop is the plain loop callable: no inputs, no result.
// The host invokes it again as soon as it returns.
type UserLoop func()

// LoopFunc is the context-aware loop shape. Returning an error makes the
// host back off before the next invocation.
type LoopFunc func(ctx context.Context) error

// FromUserLoop adapts a UserLoop to a LoopFunc. The context is not observed
// by fn, so cancellation takes effect once fn returns.
func FromUserLoop(fn UserLoop) LoopFunc {
	if fn == nil {
		return nil
	}
	return func(context.Context) error {
		fn()
		return nil
	}
}
