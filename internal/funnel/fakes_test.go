// File: internal/funnel/fakes_test.go
package funnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
	"github.com/xkilldash9x/enroll-cli/internal/records"
)

// fakePage records browser interactions and serves scripted element text.
type fakePage struct {
	mu        sync.Mutex
	url       string
	texts     map[string]string
	typed     map[string]string
	cleared   []string
	clicked   []string
	navigated []string
	banner    string
	navErr    error
	clickErr  map[string]error
	typeErr   map[string]error
}

func newFakePage() *fakePage {
	return &fakePage{
		texts:    make(map[string]string),
		typed:    make(map[string]string),
		clickErr: make(map[string]error),
		typeErr:  make(map[string]error),
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navErr != nil {
		return p.navErr
	}
	p.navigated = append(p.navigated, url)
	p.url = url
	return nil
}

func (p *fakePage) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.clickErr[selector]; err != nil {
		return err
	}
	p.clicked = append(p.clicked, selector)
	return nil
}

func (p *fakePage) Clear(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, selector)
	return nil
}

func (p *fakePage) Type(_ context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.typeErr[selector]; err != nil {
		return err
	}
	p.typed[selector] = text
	return nil
}

func (p *fakePage) Text(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[selector], nil
}

func (p *fakePage) ShowBanner(_ context.Context, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banner = message
	return nil
}

func (p *fakePage) clickedSelectors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

func (p *fakePage) typedValue(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

// fakeResolver serves elements keyed by spec name. Roles absent from the
// present map resolve as not found.
type fakeResolver struct {
	mu          sync.Mutex
	present     map[string]string
	errs        map[string]error
	resolves    []string
	transition  bool
	transitions int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		present: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (r *fakeResolver) serve(role locator.Role, selector string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.present[string(role)] = selector
}

func (r *fakeResolver) drop(role locator.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.present, string(role))
}

func (r *fakeResolver) Resolve(_ context.Context, spec locator.Spec) (*locator.Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves = append(r.resolves, spec.Name)
	if err, ok := r.errs[spec.Name]; ok {
		return nil, err
	}
	if sel, ok := r.present[spec.Name]; ok {
		return &locator.Resolved{Name: spec.Name, Selector: sel, Attempts: 1}, nil
	}
	return nil, fmt.Errorf("element %q: %w", spec.Name, locator.ErrNotFound)
}

func (r *fakeResolver) ResolveClickable(ctx context.Context, spec locator.Spec) (*locator.Resolved, error) {
	return r.Resolve(ctx, spec)
}

func (r *fakeResolver) AwaitTransition(context.Context, string, time.Duration, ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions++
	return r.transition
}

func (r *fakeResolver) resolveCount(role locator.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, name := range r.resolves {
		if name == string(role) {
			n++
		}
	}
	return n
}

// fakeMailbox scripts session lifecycle and mail delivery.
type fakeMailbox struct {
	mu          sync.Mutex
	session     *mailbox.Session
	createErr   error
	restoreOK   bool
	restoreErr  error
	restored    []string
	password    string
	mails       []*mailbox.Mail
	waitErrs    []error
	waitCalls   int
	createCalls int
}

func newFakeMailbox(address string) *fakeMailbox {
	return &fakeMailbox{
		session: &mailbox.Session{ID: "sess-test", Address: address},
	}
}

func (m *fakeMailbox) CreateSession(context.Context, string) (*mailbox.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.session, nil
}

func (m *fakeMailbox) RestoreSession(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored = append(m.restored, sessionID)
	return m.restoreOK, m.restoreErr
}

func (m *fakeMailbox) Session() *mailbox.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *fakeMailbox) SetPassword(password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.password = password
}

// WaitForMail pops the next scripted delivery; an exhausted script times
// out the same way an empty mailbox does.
func (m *fakeMailbox) WaitForMail(ctx context.Context, timeout time.Duration) (*mailbox.Mail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitCalls++
	if len(m.waitErrs) > 0 {
		err := m.waitErrs[0]
		m.waitErrs = m.waitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(m.mails) == 0 {
		return nil, mailbox.ErrWaitTimeout
	}
	next := m.mails[0]
	m.mails = m.mails[1:]
	return next, nil
}

func (m *fakeMailbox) deliver(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mails = append(m.mails, &mailbox.Mail{
		ID:       fmt.Sprintf("mail-%d", len(m.mails)+1),
		FromAddr: "no-reply@signup.example",
		Subject:  "Your verification code",
		Text:     body,
	})
}

// fakeSink collects journal records in memory.
type fakeSink struct {
	mu   sync.Mutex
	recs []records.Record
	err  error
}

func (s *fakeSink) Append(rec records.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *fakeSink) all() []records.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]records.Record(nil), s.recs...)
}
