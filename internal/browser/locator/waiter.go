// File: internal/browser/locator/waiter.go
package locator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// transitionStablePolls is how many consecutive identical reads a changed URL
// must survive before the transition counts as settled. Client-side redirects
// bounce through intermediate URLs; debouncing filters those out.
const transitionStablePolls = 3

// AwaitTransition reports whether the page moved off referenceURL within
// maxWait. It is true once the URL differs from the reference and holds
// steady across consecutive polls, or as soon as any of the marker selectors
// becomes visible. False means no settled transition was observed; it is a
// weak signal, not an error.
func (r *Resolver) AwaitTransition(ctx context.Context, referenceURL string, maxWait time.Duration, markers ...string) bool {
	deadline := time.Now().Add(maxWait)
	lastURL := referenceURL
	stable := 0

	for {
		for _, marker := range markers {
			visible, err := r.probe.Visible(ctx, marker)
			if err == nil && visible {
				r.log.Debug("Transition marker appeared.", zap.String("marker", marker))
				return true
			}
		}

		current, err := r.probe.CurrentURL(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			r.log.Debug("URL poll failed during transition wait.", zap.Error(err))
		} else if current != referenceURL {
			if current == lastURL {
				stable++
				if stable >= transitionStablePolls {
					r.log.Debug("Page transition settled.",
						zap.String("from", referenceURL),
						zap.String("to", current))
					return true
				}
			} else {
				stable = 0
				lastURL = current
				r.log.Debug("URL changed, debouncing.", zap.String("url", current))
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			r.log.Debug("No page transition before deadline.",
				zap.String("reference_url", referenceURL))
			return false
		}
		wait := r.transitionPoll
		if wait > remaining {
			wait = remaining
		}
		if sleepCtx(ctx, wait) != nil {
			return false
		}
	}
}
