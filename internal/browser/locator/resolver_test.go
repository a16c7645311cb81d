// File: internal/browser/locator/resolver_test.go
package locator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeProbe scripts page state for the resolver. onCheck runs under the
// probe's lock before each visibility read, so scripts can flip state based
// on per-selector call counts.
type fakeProbe struct {
	mu      sync.Mutex
	visible map[string]bool
	enabled map[string]bool
	calls   map[string]int
	url     string
	urlSeq  []string
	onCheck func(f *fakeProbe, selector string)
}

func newFakeProbe(url string) *fakeProbe {
	return &fakeProbe{
		visible: make(map[string]bool),
		enabled: make(map[string]bool),
		calls:   make(map[string]int),
		url:     url,
	}
}

func (f *fakeProbe) Visible(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[selector]++
	if f.onCheck != nil {
		f.onCheck(f, selector)
	}
	return f.visible[selector], nil
}

func (f *fakeProbe) Clickable(_ context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[selector]++
	if f.onCheck != nil {
		f.onCheck(f, selector)
	}
	return f.visible[selector] && f.enabled[selector], nil
}

func (f *fakeProbe) CurrentURL(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.urlSeq) > 0 {
		next := f.urlSeq[0]
		f.urlSeq = f.urlSeq[1:]
		return next, nil
	}
	return f.url, nil
}

func (f *fakeProbe) checkCount(selector string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[selector]
}

// newTestResolver shrinks the wait tunables so full multi-round budgets run
// in milliseconds.
func newTestResolver(t *testing.T, probe Probe) *Resolver {
	r := NewResolver(probe, zaptest.NewLogger(t))
	r.pollInterval = time.Millisecond
	r.backoffUnit = time.Millisecond
	r.transitionPoll = time.Millisecond
	return r
}

// instantSpec gives each candidate a single check per round. A nanosecond
// window always expires before the second poll, which makes attempt counts
// deterministic.
func instantSpec(name string, rounds int, candidates ...string) Spec {
	return Spec{
		Name:                name,
		Candidates:          candidates,
		MaxRounds:           rounds,
		PerCandidateTimeout: time.Nanosecond,
	}
}

func TestResolveFirstCandidateWins(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	probe.visible["#primary"] = true
	r := newTestResolver(t, probe)

	got, err := r.Resolve(context.Background(), instantSpec("email_input", 3, "#primary", "#fallback"))
	require.NoError(t, err)
	assert.Equal(t, "email_input", got.Name)
	assert.Equal(t, "#primary", got.Selector)
	assert.Equal(t, "https://signup.test/email", got.PageURL)
	assert.Equal(t, 1, got.Attempts)
	assert.Zero(t, probe.checkCount("#fallback"), "later candidates should not be probed after a hit")
}

func TestResolveFallsThroughCandidates(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	probe.visible["#third"] = true
	r := newTestResolver(t, probe)

	got, err := r.Resolve(context.Background(), instantSpec("email_input", 2, "#first", "#second", "#third"))
	require.NoError(t, err)
	assert.Equal(t, "#third", got.Selector)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, 1, probe.checkCount("#first"))
	assert.Equal(t, 1, probe.checkCount("#second"))
}

func TestResolveNotFoundAfterFullBudget(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	r := newTestResolver(t, probe)

	got, err := r.Resolve(context.Background(), instantSpec("email_input", 3, "#a", "#b"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
	assert.Equal(t, 3, probe.checkCount("#a"), "every candidate gets one try per round")
	assert.Equal(t, 3, probe.checkCount("#b"))
}

func TestResolveSecondRoundSuccess(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	probe.onCheck = func(f *fakeProbe, selector string) {
		if selector == "#late" && f.calls[selector] == 2 {
			f.visible[selector] = true
		}
	}
	r := newTestResolver(t, probe)

	got, err := r.Resolve(context.Background(), instantSpec("name_input", 3, "#late"))
	require.NoError(t, err)
	assert.Equal(t, "#late", got.Selector)
	assert.Equal(t, 2, got.Attempts, "hit should land in the second round")
}

func TestResolveDiscardsStalePageHit(t *testing.T) {
	probe := newFakeProbe("")
	probe.urlSeq = []string{"https://signup.test/step1", "https://signup.test/step2"}
	probe.url = "https://signup.test/step2"
	probe.visible["#field"] = true
	probe.onCheck = func(f *fakeProbe, selector string) {
		switch f.calls[selector] {
		case 2:
			// The re-check after the navigation must see the element gone.
			f.visible[selector] = false
		case 3:
			f.visible[selector] = true
		}
	}
	r := newTestResolver(t, probe)

	got, err := r.Resolve(context.Background(), instantSpec("email_input", 2, "#field"))
	require.NoError(t, err)
	assert.Equal(t, "#field", got.Selector)
	assert.Equal(t, "https://signup.test/step2", got.PageURL,
		"hit must be confirmed against the page the browser is on now")
	assert.Equal(t, 2, got.Attempts, "stale hit discarded, fresh hit in round two")
	assert.Equal(t, 3, probe.checkCount("#field"))
}

func TestResolveClickableGatesOnEnabled(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	probe.visible["#disabled"] = true
	probe.enabled["#disabled"] = false
	probe.visible["#ready"] = true
	probe.enabled["#ready"] = true
	r := newTestResolver(t, probe)

	got, err := r.ResolveClickable(context.Background(), instantSpec("next_button", 2, "#disabled", "#ready"))
	require.NoError(t, err)
	assert.Equal(t, "#ready", got.Selector)
	assert.Equal(t, 2, got.Attempts)
}

func TestResolveContextCancel(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	r := newTestResolver(t, probe)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	spec := Spec{
		Name:                "email_input",
		Candidates:          []string{"#never"},
		MaxRounds:           5,
		PerCandidateTimeout: time.Second,
	}
	got, err := r.Resolve(ctx, spec)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, got)
}

func TestAwaitTransitionStableURL(t *testing.T) {
	probe := newFakeProbe("https://signup.test/verified")
	probe.urlSeq = []string{
		"https://signup.test/email",
		"https://signup.test/verified",
		"https://signup.test/verified",
		"https://signup.test/verified",
		"https://signup.test/verified",
	}
	r := newTestResolver(t, probe)

	moved := r.AwaitTransition(context.Background(), "https://signup.test/email", 500*time.Millisecond)
	assert.True(t, moved)
}

func TestAwaitTransitionIgnoresFlappingURL(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	probe.urlSeq = []string{
		"https://signup.test/a",
		"https://signup.test/b",
		"https://signup.test/a",
		"https://signup.test/b",
		"https://signup.test/a",
		"https://signup.test/b",
	}
	r := newTestResolver(t, probe)

	moved := r.AwaitTransition(context.Background(), "https://signup.test/email", 25*time.Millisecond)
	assert.False(t, moved, "a URL that never holds steady is not a settled transition")
}

func TestAwaitTransitionMarkerShortCircuit(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	probe.visible[".registration-complete"] = true
	r := newTestResolver(t, probe)

	moved := r.AwaitTransition(context.Background(), "https://signup.test/email", 500*time.Millisecond, ".registration-complete")
	assert.True(t, moved, "a visible marker settles the transition even with the URL unchanged")
}

func TestAwaitTransitionTimesOut(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	r := newTestResolver(t, probe)

	start := time.Now()
	moved := r.AwaitTransition(context.Background(), "https://signup.test/email", 20*time.Millisecond)
	assert.False(t, moved)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAwaitTransitionContextCanceled(t *testing.T) {
	probe := newFakeProbe("https://signup.test/email")
	r := newTestResolver(t, probe)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	moved := r.AwaitTransition(ctx, "https://signup.test/email", time.Minute)
	assert.False(t, moved)
}
