// File: internal/funnel/steps.go

package funnel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
)

// Filler executes the individual form steps of the signup flow. Every
// required element goes through the resolver's full cascade before the step
// is declared blocked.
type Filler struct {
	page           Page
	resolver       Resolver
	log            *zap.Logger
	transitionWait time.Duration
}

// NewFiller wires a filler over a page and resolver. transitionWait bounds
// the post-advance wait for a page change; zero disables the wait entirely.
func NewFiller(page Page, resolver Resolver, logger *zap.Logger, transitionWait time.Duration) *Filler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filler{
		page:           page,
		resolver:       resolver,
		log:            logger.Named("filler"),
		transitionWait: transitionWait,
	}
}

// AcceptCookies clicks the consent banner when one is present. The banner
// is optional on most deployments, so absence is not an error.
func (f *Filler) AcceptCookies(ctx context.Context) bool {
	res, err := f.resolver.ResolveClickable(ctx, locator.MustLookup(locator.RoleCookieAccept))
	if err != nil {
		f.log.Debug("No cookie consent banner found.", zap.Error(err))
		return false
	}
	if err := f.page.Click(ctx, res.Selector); err != nil {
		f.log.Warn("Failed to click cookie consent.", zap.Error(err))
		return false
	}
	f.log.Info("Cookie consent accepted.", zap.String("selector", res.Selector))
	return true
}

// FillEmail enters the disposable address and advances.
func (f *Filler) FillEmail(ctx context.Context, email string) error {
	if _, err := f.fillField(ctx, "email", locator.RoleEmailInput, email); err != nil {
		return err
	}
	return f.advance(ctx, "email", locator.RoleEmailNext)
}

// FillName enters the display name and advances.
func (f *Filler) FillName(ctx context.Context, name string) error {
	if _, err := f.fillField(ctx, "name", locator.RoleNameInput, name); err != nil {
		return err
	}
	return f.advance(ctx, "name", locator.RoleNameNext)
}

// FillVerification enters the emailed code and submits it. Unlike the other
// steps the immediate result is classified: a visible error banner means the
// code was rejected, a page change means it was accepted, and neither is a
// weak accept.
func (f *Filler) FillVerification(ctx context.Context, code string) error {
	if _, err := f.fillField(ctx, "verification", locator.RoleVerificationInput, code); err != nil {
		return err
	}

	btn, err := f.resolver.ResolveClickable(ctx, locator.MustLookup(locator.RoleVerifyButton))
	if err != nil {
		return f.stepError("verification", "submit control", err)
	}
	if err := f.page.Click(ctx, btn.Selector); err != nil {
		return fmt.Errorf("step verification: clicking submit: %w", err)
	}

	// An error banner appearing is as decisive as a page change, so its
	// candidates double as transition markers here.
	errSpec := locator.MustLookup(locator.RoleErrorMarker)
	moved := f.resolver.AwaitTransition(ctx, btn.PageURL, f.transitionWait, errSpec.Candidates...)

	if res, probeErr := f.resolver.Resolve(ctx, errSpec); probeErr == nil {
		msg := f.markerText(ctx, res.Selector)
		f.log.Warn("Verification code rejected.", zap.String("message", msg))
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrCodeRejected, msg)
		}
		return ErrCodeRejected
	}

	if !moved {
		f.log.Warn("No page change after code submit, treating as accepted.")
	}
	return nil
}

// FillPassword enters the password into both fields and stops. The advance
// control is deliberately never clicked: the next artifact on the page is
// the image challenge, which belongs to the operator.
func (f *Filler) FillPassword(ctx context.Context, password string) error {
	if _, err := f.fillField(ctx, "password", locator.RolePasswordInput, password); err != nil {
		return err
	}
	if _, err := f.fillField(ctx, "password confirmation", locator.RoleConfirmPassword, password); err != nil {
		return err
	}
	f.log.Info("Password fields completed, leaving submission to the operator.")
	return nil
}

// DetectChallenge reports whether the image challenge is visible. The
// result is informational only.
func (f *Filler) DetectChallenge(ctx context.Context) bool {
	_, err := f.resolver.Resolve(ctx, locator.MustLookup(locator.RoleChallenge))
	return err == nil
}

// fillField resolves a step's input through the full cascade, then clears
// and types into it.
func (f *Filler) fillField(ctx context.Context, step string, role locator.Role, value string) (*locator.Resolved, error) {
	res, err := f.resolver.Resolve(ctx, locator.MustLookup(role))
	if err != nil {
		return nil, f.stepError(step, "input", err)
	}
	if err := f.page.Clear(ctx, res.Selector); err != nil {
		return nil, fmt.Errorf("step %s: clearing input: %w", step, err)
	}
	if err := f.page.Type(ctx, res.Selector, value); err != nil {
		return nil, fmt.Errorf("step %s: typing value: %w", step, err)
	}
	f.log.Debug("Step input filled.",
		zap.String("step", step),
		zap.String("selector", res.Selector))
	return res, nil
}

// advance clicks the step's forward control and waits for a page change as
// a weak acceptance signal. A missing transition is logged, not fatal,
// since some steps validate client side without navigating.
func (f *Filler) advance(ctx context.Context, step string, role locator.Role) error {
	btn, err := f.resolver.ResolveClickable(ctx, locator.MustLookup(role))
	if err != nil {
		return f.stepError(step, "advance control", err)
	}
	if err := f.page.Click(ctx, btn.Selector); err != nil {
		return fmt.Errorf("step %s: clicking advance control: %w", step, err)
	}
	if f.transitionWait > 0 {
		if !f.resolver.AwaitTransition(ctx, btn.PageURL, f.transitionWait) {
			f.log.Debug("No page transition observed after advancing.", zap.String("step", step))
		}
	}
	return nil
}

// stepError distinguishes an exhausted cascade, which blocks the flow, from
// plain interaction failures.
func (f *Filler) stepError(step, what string, err error) error {
	if errors.Is(err, locator.ErrNotFound) {
		return fmt.Errorf("step %s: %s: %w: %w", step, what, ErrStepBlocked, err)
	}
	return fmt.Errorf("step %s: resolving %s: %w", step, what, err)
}

func (f *Filler) markerText(ctx context.Context, selector string) string {
	text, err := f.page.Text(ctx, selector)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
