// File: internal/funnel/verification.go

package funnel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
)

const (
	defaultVerificationRounds = 3
	defaultRoundWait          = 5 * time.Minute
)

// Acquirer obtains the emailed verification code. Each round blocks on the
// mailbox for up to roundWait; a round that saw no mail at all triggers the
// page's resend control before the next round. Mail that arrives without a
// usable code does not end the round, the remaining time keeps ticking.
type Acquirer struct {
	mail      Mailbox
	page      Page
	resolver  Resolver
	log       *zap.Logger
	rounds    int
	roundWait time.Duration
	resend    bool
}

// NewAcquirer builds an acquirer. rounds and roundWait fall back to 3 and
// five minutes when unset. resendEnabled gates the between-round resend
// click.
func NewAcquirer(mail Mailbox, page Page, resolver Resolver, logger *zap.Logger, rounds int, roundWait time.Duration, resendEnabled bool) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rounds <= 0 {
		rounds = defaultVerificationRounds
	}
	if roundWait <= 0 {
		roundWait = defaultRoundWait
	}
	return &Acquirer{
		mail:      mail,
		page:      page,
		resolver:  resolver,
		log:       logger.Named("acquirer"),
		rounds:    rounds,
		roundWait: roundWait,
		resend:    resendEnabled,
	}
}

// AcquireCode blocks until a verification code arrives or every round is
// exhausted, in which case ErrNoCode is returned. Provider errors are fatal
// here; the transport below has already retried them.
func (a *Acquirer) AcquireCode(ctx context.Context) (string, error) {
	for round := 1; round <= a.rounds; round++ {
		a.log.Info("Waiting for verification mail.",
			zap.Int("round", round),
			zap.Int("rounds", a.rounds),
			zap.Duration("round_wait", a.roundWait))

		deadline := time.Now().Add(a.roundWait)
		sawMail := false

		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}

			mail, err := a.mail.WaitForMail(ctx, remaining)
			if err != nil {
				if errors.Is(err, mailbox.ErrWaitTimeout) {
					break
				}
				return "", fmt.Errorf("waiting for verification mail: %w", err)
			}

			sawMail = true
			if code, ok := ExtractCode(mail); ok {
				a.log.Info("Verification code extracted.",
					zap.String("mail_id", mail.ID),
					zap.String("from", mail.FromAddr),
					zap.Int("round", round))
				return code, nil
			}
			a.log.Debug("Mail carried no usable code, still waiting.",
				zap.String("mail_id", mail.ID),
				zap.String("subject", mail.Subject))
		}

		if round < a.rounds && !sawMail {
			if a.resend {
				a.requestResend(ctx)
			} else {
				a.log.Debug("Resend disabled, moving to next round.")
			}
		}
	}

	a.log.Warn("All verification rounds exhausted without a code.")
	return "", ErrNoCode
}

// requestResend clicks the resend control. Best effort: a missing control
// or failed click is logged and the next round starts regardless.
func (a *Acquirer) requestResend(ctx context.Context) {
	res, err := a.resolver.ResolveClickable(ctx, locator.MustLookup(locator.RoleResendCode))
	if err != nil {
		a.log.Warn("Resend control not found, proceeding to next round anyway.", zap.Error(err))
		return
	}
	if err := a.page.Click(ctx, res.Selector); err != nil {
		a.log.Warn("Failed to click resend control.", zap.Error(err))
		return
	}
	a.log.Info("Requested a fresh verification code.")
}
