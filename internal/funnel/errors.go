// File: internal/funnel/errors.go

package funnel

import "errors"

// Define standard errors.
var (
	// ErrStepBlocked means a required form control never became resolvable,
	// so the flow cannot advance past the current step.
	ErrStepBlocked = errors.New("funnel: step blocked, required element not found")

	// ErrNoCode means every verification round ran out without yielding a
	// usable code.
	ErrNoCode = errors.New("funnel: no verification code obtained")

	// ErrCodeRejected means the site showed an error after the code was
	// submitted.
	ErrCodeRejected = errors.New("funnel: verification code rejected")

	// ErrManualStepRequired means Run was called while the flow is parked
	// at the manual challenge. Classify the outcome instead of re-running.
	ErrManualStepRequired = errors.New("funnel: manual challenge pending, classify the outcome instead")
)
