// File: internal/browser/locator/resolver.go
package locator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound reports that no candidate matched within the spec's full
// budget. It is an expected outcome, not a transport failure; callers decide
// whether it is fatal.
var ErrNotFound = errors.New("locator: no candidate matched")

const (
	defaultPollInterval = 250 * time.Millisecond
	maxBackoffUnits     = 8
	clickableBackoff    = 2
)

// Probe is the minimal page surface the resolver needs. A browser session
// satisfies it; tests use a scripted fake.
type Probe interface {
	Visible(ctx context.Context, selector string) (bool, error)
	Clickable(ctx context.Context, selector string) (bool, error)
	CurrentURL(ctx context.Context) (string, error)
}

// Resolved identifies the element a resolution found: the selector that hit
// and the page URL it hit on. The handle is the selector itself; it is only
// valid while the page stays on PageURL.
type Resolved struct {
	Name     string
	Selector string
	PageURL  string
	Attempts int
}

// Resolver walks ordered selector cascades against a live page. All waiting
// is bounded sleep-and-repoll; nothing blocks indefinitely.
type Resolver struct {
	probe Probe
	log   *zap.Logger

	// Tunable for tests; production uses the defaults.
	pollInterval   time.Duration
	backoffUnit    time.Duration
	transitionPoll time.Duration
}

// NewResolver builds a resolver over the given page probe.
func NewResolver(probe Probe, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		probe:          probe,
		log:            logger.Named("locator"),
		pollInterval:   defaultPollInterval,
		backoffUnit:    time.Second,
		transitionPoll: 500 * time.Millisecond,
	}
}

// Resolve finds the first visible element among the spec's candidates.
// Returns ErrNotFound after the full rounds-times-candidates budget; a
// context error aborts early.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (*Resolved, error) {
	return r.resolve(ctx, spec, r.probe.Visible, false)
}

// ResolveClickable is Resolve gated on interactability: the element must be
// visible and not disabled.
func (r *Resolver) ResolveClickable(ctx context.Context, spec Spec) (*Resolved, error) {
	return r.resolve(ctx, spec, r.probe.Clickable, true)
}

type checkFunc func(ctx context.Context, selector string) (bool, error)

func (r *Resolver) resolve(ctx context.Context, spec Spec, check checkFunc, clickable bool) (*Resolved, error) {
	rounds := spec.MaxRounds
	if rounds < 1 {
		rounds = 1
	}
	perCandidate := spec.PerCandidateTimeout
	if perCandidate <= 0 {
		perCandidate = 3 * time.Second
	}

	startURL, err := r.probe.CurrentURL(ctx)
	if err != nil {
		startURL = ""
	}

	attempts := 0
	for round := 1; round <= rounds; round++ {
		r.log.Debug("Resolution round starting.",
			zap.String("element", spec.Name),
			zap.Int("round", round),
			zap.Int("max_rounds", rounds))

		for _, selector := range spec.Candidates {
			attempts++
			hit, err := r.tryCandidate(ctx, selector, perCandidate, check)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				r.log.Debug("Candidate probe errored.",
					zap.String("element", spec.Name),
					zap.String("selector", selector),
					zap.Error(err))
				continue
			}
			if !hit {
				continue
			}

			// A navigation during the candidate window invalidates the hit;
			// accept only matches confirmed against the page we are on now.
			pageURL, uerr := r.probe.CurrentURL(ctx)
			if uerr != nil {
				pageURL = startURL
			}
			if pageURL != startURL {
				startURL = pageURL
				again, aerr := check(ctx, selector)
				if aerr != nil || !again {
					r.log.Debug("Hit discarded, page changed mid-resolution.",
						zap.String("element", spec.Name),
						zap.String("selector", selector),
						zap.String("page_url", pageURL))
					continue
				}
			}

			r.log.Debug("Element resolved.",
				zap.String("element", spec.Name),
				zap.String("selector", selector),
				zap.Int("attempts", attempts))
			return &Resolved{
				Name:     spec.Name,
				Selector: selector,
				PageURL:  pageURL,
				Attempts: attempts,
			}, nil
		}

		if round < rounds {
			wait := r.roundBackoff(round, clickable)
			r.log.Debug("Round exhausted, backing off.",
				zap.String("element", spec.Name),
				zap.Int("round", round),
				zap.Duration("backoff", wait))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	r.log.Warn("Element not found after full budget.",
		zap.String("element", spec.Name),
		zap.Int("attempts", attempts))
	return nil, ErrNotFound
}

// roundBackoff returns the inter-round wait: exponential with a ceiling for
// plain resolution, flat for the clickable variant.
func (r *Resolver) roundBackoff(round int, clickable bool) time.Duration {
	if clickable {
		return clickableBackoff * r.backoffUnit
	}
	units := 1 << round
	if units > maxBackoffUnits {
		units = maxBackoffUnits
	}
	return time.Duration(units) * r.backoffUnit
}

// tryCandidate repolls one selector until it matches or its window closes.
func (r *Resolver) tryCandidate(ctx context.Context, selector string, timeout time.Duration, check checkFunc) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		hit, err := check(ctx, selector)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := r.pollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return false, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
