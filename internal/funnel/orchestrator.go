// File: internal/funnel/orchestrator.go

package funnel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/records"
)

// Define standard errors.
var (
	ErrConfigIsNil  = errors.New("config must not be nil")
	ErrProvidersNil = errors.New("page, resolver and mailbox providers must not be nil")
)

// FlowState tracks the registration automaton. Progression is strictly
// forward; Completed and Failed are terminal and AwaitingManualChallenge is
// terminal for the automated part.
type FlowState string

const (
	StateStart                   FlowState = "start"
	StateEmailEntered            FlowState = "email_entered"
	StateNameEntered             FlowState = "name_entered"
	StateAwaitingVerification    FlowState = "awaiting_verification"
	StateVerificationEntered     FlowState = "verification_entered"
	StatePasswordEntered         FlowState = "password_entered"
	StateAwaitingManualChallenge FlowState = "awaiting_manual_challenge"
	StateCompleted               FlowState = "completed"
	StateFailed                  FlowState = "failed"
)

var stateRank = map[FlowState]int{
	StateStart:                   0,
	StateEmailEntered:            1,
	StateNameEntered:             2,
	StateAwaitingVerification:    3,
	StateVerificationEntered:     4,
	StatePasswordEntered:         5,
	StateAwaitingManualChallenge: 6,
	StateCompleted:               7,
	StateFailed:                  8,
}

func (s FlowState) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Credentials is what the flow collected for the operator. BuilderID stays
// empty until a post-challenge classification lands on Success.
type Credentials struct {
	Email     string
	Name      string
	Password  string
	BuilderID string
}

// Result is the typed outcome of a run. Err carries the failure cause when
// State is Failed; flow failures are reported here, not raised.
type Result struct {
	State            FlowState
	Outcome          Outcome
	Credentials      Credentials
	MailboxSessionID string
	RunID            string
	Err              error
}

// RunRequest parameterizes a registration run. All fields are optional:
// Email defaults to the mailbox address, Password is synthesized when
// empty, SessionID requests a mailbox session restore before falling back
// to a fresh session.
type RunRequest struct {
	Email     string
	Name      string
	Password  string
	SessionID string
}

// Orchestrator owns one registration flow end to end: mailbox session,
// browser steps, verification code, operator handoff and the later outcome
// classification. One instance drives one flow; it is not safe for
// concurrent use and never runs twice.
type Orchestrator struct {
	page       Page
	resolver   Resolver
	mail       Mailbox
	filler     *Filler
	acquirer   *Acquirer
	classifier *Classifier
	journal    RecordSink
	log        *zap.Logger

	signupURL        string
	domainPreference string
	passwordLength   int
	cookieConsent    bool
	notifyOperator   bool

	state            FlowState
	creds            Credentials
	runID            string
	mailboxSessionID string
}

// NewOrchestrator wires the flow components from configuration. The journal
// may be nil to disable record keeping.
func NewOrchestrator(page Page, resolver Resolver, mail Mailbox, cfg config.Interface, journal RecordSink, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, ErrConfigIsNil
	}
	if page == nil || resolver == nil || mail == nil {
		return nil, ErrProvidersNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("orchestrator")

	funnelCfg := cfg.Funnel()
	mailCfg := cfg.Mailbox()

	return &Orchestrator{
		page:             page,
		resolver:         resolver,
		mail:             mail,
		filler:           NewFiller(page, resolver, logger, funnelCfg.TransitionWait),
		acquirer:         NewAcquirer(mail, page, resolver, logger, funnelCfg.VerificationRounds, mailCfg.WaitTimeout, funnelCfg.ResendEnabled),
		classifier:       NewClassifier(page, resolver, logger, funnelCfg.SuccessURLPatterns),
		journal:          journal,
		log:              log,
		signupURL:        funnelCfg.SignupURL,
		domainPreference: mailCfg.DomainPreference,
		passwordLength:   funnelCfg.PasswordLength,
		cookieConsent:    funnelCfg.CookieConsent,
		notifyOperator:   funnelCfg.NotifyOperator,
		state:            StateStart,
	}, nil
}

// State returns the current flow state.
func (o *Orchestrator) State() FlowState {
	return o.state
}

// Credentials returns what the flow has collected so far.
func (o *Orchestrator) Credentials() Credentials {
	return o.creds
}

// Run drives the flow from Start to AwaitingManualChallenge. Flow failures
// land in the returned Result with State Failed; an error return means the
// orchestrator was called in the wrong state.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if o.state == StateAwaitingManualChallenge {
		return nil, ErrManualStepRequired
	}
	if o.state != StateStart {
		return nil, fmt.Errorf("registration flow already ran, state is %q", o.state)
	}

	o.runID = uuid.NewString()
	o.log.Info("Starting registration flow.",
		zap.String("run_id", o.runID),
		zap.String("signup_url", o.signupURL))

	email, err := o.ensureMailboxSession(ctx, req)
	if err != nil {
		return o.fail(fmt.Errorf("preparing mailbox session: %w", err))
	}

	password := req.Password
	if password == "" {
		password, err = GeneratePassword(o.passwordLength)
		if err != nil {
			return o.fail(fmt.Errorf("synthesizing password: %w", err))
		}
	}

	o.creds = Credentials{Email: email, Name: req.Name, Password: password}
	// Persist the password alongside the session so a later restore can
	// hand the operator the full credential set.
	o.mail.SetPassword(password)

	if err := o.page.Navigate(ctx, o.signupURL); err != nil {
		return o.fail(fmt.Errorf("opening signup page: %w", err))
	}
	if o.cookieConsent {
		o.filler.AcceptCookies(ctx)
	}

	if err := o.filler.FillEmail(ctx, email); err != nil {
		return o.fail(err)
	}
	o.setState(StateEmailEntered)

	if err := o.filler.FillName(ctx, req.Name); err != nil {
		return o.fail(err)
	}
	o.setState(StateNameEntered)

	o.setState(StateAwaitingVerification)
	code, err := o.acquirer.AcquireCode(ctx)
	if err != nil {
		return o.fail(err)
	}

	if err := o.filler.FillVerification(ctx, code); err != nil {
		return o.fail(err)
	}
	o.setState(StateVerificationEntered)

	if err := o.filler.FillPassword(ctx, password); err != nil {
		return o.fail(err)
	}
	o.setState(StatePasswordEntered)

	if o.filler.DetectChallenge(ctx) {
		o.log.Info("Image challenge detected, handing over to the operator.")
	} else {
		o.log.Info("No image challenge visible yet, handing over to the operator anyway.")
	}

	o.setState(StateAwaitingManualChallenge)
	if o.notifyOperator {
		o.notify(ctx)
	}
	o.journalAppend("pending_challenge")

	o.log.Info("Registration flow parked at the manual challenge.",
		zap.String("email", o.creds.Email),
		zap.String("run_id", o.runID))
	return o.result(), nil
}

// ClassifyAfterManualStep inspects the page once the operator reports the
// challenge done. Success also harvests the builder id and completes the
// flow; Failure ends it; Indeterminate leaves it parked for another try.
func (o *Orchestrator) ClassifyAfterManualStep(ctx context.Context) (*Result, error) {
	if o.state != StateAwaitingManualChallenge {
		return nil, fmt.Errorf("cannot classify outcome from state %q", o.state)
	}

	outcome := o.classifier.Classify(ctx)
	switch outcome {
	case OutcomeSuccess:
		o.harvestBuilderID(ctx)
		o.setState(StateCompleted)
		o.journalAppend("completed")
	case OutcomeFailure:
		o.setState(StateFailed)
		o.journalAppend("failed")
	default:
		o.log.Info("Outcome indeterminate, flow stays parked at the challenge.")
	}

	res := o.result()
	res.Outcome = outcome
	return res, nil
}

// ensureMailboxSession restores the requested session or creates a fresh
// one, and settles which email address the flow will register with.
func (o *Orchestrator) ensureMailboxSession(ctx context.Context, req RunRequest) (string, error) {
	restored := false
	if req.SessionID != "" {
		ok, err := o.mail.RestoreSession(ctx, req.SessionID)
		switch {
		case err != nil:
			o.log.Warn("Mailbox session restore errored, creating a fresh session.",
				zap.String("session_id", req.SessionID),
				zap.Error(err))
		case !ok:
			o.log.Warn("Mailbox session could not be restored, creating a fresh session.",
				zap.String("session_id", req.SessionID))
		default:
			restored = true
		}
	}

	sess := o.mail.Session()
	if !restored || sess == nil {
		var err error
		sess, err = o.mail.CreateSession(ctx, o.domainPreference)
		if err != nil {
			return "", err
		}
	}
	o.mailboxSessionID = sess.ID

	email := req.Email
	if email == "" {
		email = sess.Address
	} else if !strings.EqualFold(email, sess.Address) {
		o.log.Warn("Requested email differs from the mailbox address; verification mail must still reach the mailbox.",
			zap.String("requested", email),
			zap.String("mailbox", sess.Address))
	}
	if email == "" {
		return "", errors.New("mailbox session has no address")
	}
	return email, nil
}

func (o *Orchestrator) harvestBuilderID(ctx context.Context) {
	res, err := o.resolver.Resolve(ctx, locator.MustLookup(locator.RoleBuilderID))
	if err != nil {
		o.log.Debug("No builder id element found.", zap.Error(err))
		return
	}
	text, err := o.page.Text(ctx, res.Selector)
	if err != nil {
		o.log.Warn("Failed to read builder id element.", zap.Error(err))
		return
	}
	o.creds.BuilderID = strings.TrimSpace(text)
	if o.creds.BuilderID != "" {
		o.log.Info("Builder id harvested.", zap.String("builder_id", o.creds.BuilderID))
	}
}

// notify paints the handoff banner into the page. Best effort.
func (o *Orchestrator) notify(ctx context.Context) {
	msg := fmt.Sprintf("Automation stopped before the image challenge. Email: %s  Password: %s", o.creds.Email, o.creds.Password)
	if err := o.page.ShowBanner(ctx, msg); err != nil {
		o.log.Warn("Failed to show operator notification.", zap.Error(err))
	}
}

func (o *Orchestrator) fail(cause error) (*Result, error) {
	o.setState(StateFailed)
	o.journalAppend("failed")
	o.log.Error("Registration flow failed.",
		zap.String("run_id", o.runID),
		zap.Error(cause))
	res := o.result()
	res.Err = cause
	return res, nil
}

func (o *Orchestrator) setState(next FlowState) {
	if o.state == next || o.state.terminal() {
		return
	}
	if stateRank[next] < stateRank[o.state] {
		o.log.Warn("Ignoring backward state transition.",
			zap.String("from", string(o.state)),
			zap.String("to", string(next)))
		return
	}
	o.log.Debug("Flow state advanced.",
		zap.String("from", string(o.state)),
		zap.String("to", string(next)))
	o.state = next
}

func (o *Orchestrator) journalAppend(status string) {
	if o.journal == nil {
		return
	}
	rec := records.Record{
		Timestamp: time.Now().UTC(),
		Email:     o.creds.Email,
		Name:      o.creds.Name,
		Password:  o.creds.Password,
		Status:    status,
		SessionID: o.mailboxSessionID,
		RunID:     o.runID,
	}
	if err := o.journal.Append(rec); err != nil {
		o.log.Warn("Failed to append journal record.", zap.Error(err))
	}
}

func (o *Orchestrator) result() *Result {
	return &Result{
		State:            o.state,
		Credentials:      o.creds,
		MailboxSessionID: o.mailboxSessionID,
		RunID:            o.runID,
	}
}
