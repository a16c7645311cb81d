// File: internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context canceled when either parent is done. The
// session context carries the CDP target, so it must stay the value parent;
// the secondary context contributes only its cancellation.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation signal.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps ctx's values (including the CDP
// connection) but is not canceled when ctx is. Used for cleanup actions that
// must outlive a canceled operation.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
