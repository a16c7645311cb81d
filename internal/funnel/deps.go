// File: internal/funnel/deps.go

// Package funnel drives the registration flow itself: filling steps,
// acquiring the emailed verification code, parking at the manual image
// challenge and classifying the outcome afterwards. Browser, mailbox and
// journal are injected behind narrow interfaces so the whole flow is
// testable without a live browser or provider.
package funnel

import (
	"context"
	"time"

	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
	"github.com/xkilldash9x/enroll-cli/internal/records"
)

// Page is the slice of the browser session the funnel drives. Implemented
// by browser.Session.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Text(ctx context.Context, selector string) (string, error)
	ShowBanner(ctx context.Context, message string) error
}

// Resolver finds elements through the selector cascades. Implemented by
// locator.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, spec locator.Spec) (*locator.Resolved, error)
	ResolveClickable(ctx context.Context, spec locator.Spec) (*locator.Resolved, error)
	AwaitTransition(ctx context.Context, referenceURL string, maxWait time.Duration, markers ...string) bool
}

// Mailbox is the slice of the disposable-mail client the funnel needs.
// Implemented by mailbox.Client.
type Mailbox interface {
	CreateSession(ctx context.Context, preferSuffix string) (*mailbox.Session, error)
	RestoreSession(ctx context.Context, sessionID string) (bool, error)
	Session() *mailbox.Session
	SetPassword(password string)
	WaitForMail(ctx context.Context, timeout time.Duration) (*mailbox.Mail, error)
}

// RecordSink receives journal entries at flow milestones. Implemented by
// records.Journal; a nil sink disables journaling.
type RecordSink interface {
	Append(rec records.Record) error
}
