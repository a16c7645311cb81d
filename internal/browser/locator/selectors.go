// File: internal/browser/locator/selectors.go
package locator

import "time"

// Role names a logical page element independent of its markup. The signup
// funnel's attributes churn across deployments, so every role maps to an
// ordered candidate list instead of a single selector.
type Role string

const (
	RoleCookieAccept      Role = "cookie_accept"
	RoleEmailInput        Role = "email_input"
	RoleEmailNext         Role = "email_next_button"
	RoleNameInput         Role = "name_input"
	RoleNameNext          Role = "name_next_button"
	RoleVerificationInput Role = "verification_code_input"
	RoleVerifyButton      Role = "verify_button"
	RoleResendCode        Role = "resend_code_button"
	RolePasswordInput     Role = "password_input"
	RoleConfirmPassword   Role = "confirm_password_input"
	RolePasswordNext      Role = "password_next_button"
	RoleChallenge         Role = "challenge_container"
	RoleSuccessMarker     Role = "success_marker"
	RoleErrorMarker       Role = "error_marker"
	RoleSignupForm        Role = "signup_form"
	RoleDashboardMarker   Role = "dashboard_marker"
	RoleBuilderID         Role = "builder_id_display"
)

// Spec is the immutable resolution plan for one logical element. Candidates
// are tried in order; a full pass over all candidates is one round.
type Spec struct {
	Name                string
	Candidates          []string
	MaxRounds           int
	PerCandidateTimeout time.Duration
}

// The candidate lists are ordered by observed hit rate against the live
// funnel, most reliable first. Generated ids and hashed utility classes are
// kept near the top because they match fastest while they remain deployed;
// the attribute and accessibility fallbacks below them survive redeploys.
var catalog = map[Role]Spec{
	RoleCookieAccept: {
		Name: string(RoleCookieAccept),
		Candidates: []string{
			"button[data-id='awsccc-cb-btn-accept']",
			".awsccc-u-btn-primary",
			"button[aria-label*='Accept']",
		},
		MaxRounds:           2,
		PerCandidateTimeout: 2 * time.Second,
	},
	RoleEmailInput: {
		Name: string(RoleEmailInput),
		Candidates: []string{
			"input[autocomplete='on'][type='text']",
			"[data-testid='signup-email-input'] input",
			"input[aria-labelledby*='email']",
			"input[type='email']",
			"input[type='text'][value*='@']",
		},
		MaxRounds:           3,
		PerCandidateTimeout: 5 * time.Second,
	},
	RoleEmailNext: {
		Name: string(RoleEmailNext),
		Candidates: []string{
			"awsui-button[data-testid='test-primary-button'] button",
			"button[data-testid='test-primary-button']",
			"button[type='submit'][class*='primary']",
		},
		MaxRounds:           3,
		PerCandidateTimeout: 3 * time.Second,
	},
	RoleNameInput: {
		Name: string(RoleNameInput),
		Candidates: []string{
			"[data-testid='signup-full-name-input'] input",
			"input[type='text'][autocomplete='on']:not([value*='@'])",
			"input[class*='awsui_input'][placeholder]",
			"input[name='name']",
		},
		MaxRounds:           3,
		PerCandidateTimeout: 3 * time.Second,
	},
	RoleNameNext: {
		Name: string(RoleNameNext),
		Candidates: []string{
			"button[data-testid='signup-next-button']",
			"button[data-testid='signup-next-button'][type='submit']",
			"button[class*='awsui_variant-primary'][data-testid='signup-next-button']",
			"button[type='submit'][class*='primary']",
		},
		MaxRounds:           3,
		PerCandidateTimeout: 3 * time.Second,
	},
	RoleVerificationInput: {
		Name: string(RoleVerificationInput),
		Candidates: []string{
			"input[class*='awsui_input'][autocomplete='on'][type='text']",
			"input[aria-labelledby*='formField'][type='text']",
			"input[data-testid='verification-code-input']",
			"input[placeholder*='code']",
			"input[type='text'][maxlength='6']",
			"input[aria-label*='verification']",
			".verification-code input",
		},
		MaxRounds:           2,
		PerCandidateTimeout: 5 * time.Second,
	},
	RoleVerifyButton: {
		Name: string(RoleVerifyButton),
		Candidates: []string{
			"button[data-testid='email-verification-verify-button']",
			"awsui-button[data-testid='test-primary-button'] button",
			"button[data-testid='signup-next-button']",
			"button[data-testid='verify-button']",
			"button[type='submit'][class*='primary']",
			"button[type='submit'][class*='awsui_variant-primary']",
		},
		MaxRounds:           3,
		PerCandidateTimeout: 3 * time.Second,
	},
	RoleResendCode: {
		Name: string(RoleResendCode),
		Candidates: []string{
			"button[data-testid='email-verification-resend-code-button']",
			"button[class*='awsui_variant-normal'][data-testid*='resend']",
			"button[type='button'][data-testid*='resend']",
			".resend-code-btn",
		},
		MaxRounds:           2,
		PerCandidateTimeout: 2 * time.Second,
	},
	RolePasswordInput: {
		Name: string(RolePasswordInput),
		Candidates: []string{
			"input[data-testid='password-input']",
			"input[type='password'][autocomplete='new-password']",
			"input[aria-label*='password']:not([aria-label*='confirm'])",
			"input[type='password']:not([data-testid='test-retype-input'])",
			"#password",
		},
		MaxRounds:           2,
		PerCandidateTimeout: 3 * time.Second,
	},
	RoleConfirmPassword: {
		Name: string(RoleConfirmPassword),
		Candidates: []string{
			"input[data-testid='test-retype-input']",
			"input[data-testid='confirm-password-input']",
			"input[aria-label*='confirm']",
			"#confirmPassword",
		},
		MaxRounds:           2,
		PerCandidateTimeout: 3 * time.Second,
	},
	RolePasswordNext: {
		Name: string(RolePasswordNext),
		Candidates: []string{
			"button[data-testid='password-next-button']",
			"button[type='submit'][class*='primary']",
			"button[class*='awsui'][class*='primary']",
		},
		MaxRounds:           3,
		PerCandidateTimeout: 3 * time.Second,
	},
	RoleChallenge: {
		Name: string(RoleChallenge),
		Candidates: []string{
			".captcha-container",
			"[data-testid='captcha']",
			".challenge-container",
			"#captcha",
			"img[alt*='captcha']",
		},
		MaxRounds:           2,
		PerCandidateTimeout: 2 * time.Second,
	},
	RoleSuccessMarker: {
		Name: string(RoleSuccessMarker),
		Candidates: []string{
			".success-message",
			"[data-testid='success']",
			".registration-complete",
		},
		MaxRounds:           1,
		PerCandidateTimeout: time.Second,
	},
	RoleErrorMarker: {
		Name: string(RoleErrorMarker),
		Candidates: []string{
			".error-message",
			"[data-testid='error']",
			".alert-error",
			".validation-error",
		},
		MaxRounds:           1,
		PerCandidateTimeout: time.Second,
	},
	RoleSignupForm: {
		Name: string(RoleSignupForm),
		Candidates: []string{
			"form[data-testid='signup-form']",
			"#SignUp",
			".signup-form",
		},
		MaxRounds:           1,
		PerCandidateTimeout: time.Second,
	},
	RoleDashboardMarker: {
		Name: string(RoleDashboardMarker),
		Candidates: []string{
			"[data-testid='dashboard']",
			".builder-dashboard",
			"nav[aria-label*='AWS']",
			".aws-console",
		},
		MaxRounds:           1,
		PerCandidateTimeout: time.Second,
	},
	RoleBuilderID: {
		Name: string(RoleBuilderID),
		Candidates: []string{
			"[data-testid='builder-id']",
			".builder-id",
			"#builderId",
		},
		MaxRounds:           1,
		PerCandidateTimeout: time.Second,
	},
}

// Lookup returns the resolution spec for a role. The returned spec owns its
// own candidate slice, so callers may tune it without touching the catalog.
func Lookup(role Role) (Spec, bool) {
	spec, ok := catalog[role]
	if !ok {
		return Spec{}, false
	}
	spec.Candidates = append([]string(nil), spec.Candidates...)
	return spec, true
}

// MustLookup is Lookup for roles the caller knows are cataloged.
func MustLookup(role Role) Spec {
	spec, ok := Lookup(role)
	if !ok {
		panic("locator: unknown role " + string(role))
	}
	return spec
}

// Catalog returns a copy of the full role table.
func Catalog() map[Role]Spec {
	out := make(map[Role]Spec, len(catalog))
	for role := range catalog {
		spec, _ := Lookup(role)
		out[role] = spec
	}
	return out
}
