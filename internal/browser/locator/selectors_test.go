// File: internal/browser/locator/selectors_test.go
package locator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCoversEveryRole(t *testing.T) {
	roles := []Role{
		RoleCookieAccept,
		RoleEmailInput,
		RoleEmailNext,
		RoleNameInput,
		RoleNameNext,
		RoleVerificationInput,
		RoleVerifyButton,
		RoleResendCode,
		RolePasswordInput,
		RoleConfirmPassword,
		RolePasswordNext,
		RoleChallenge,
		RoleSuccessMarker,
		RoleErrorMarker,
		RoleSignupForm,
		RoleDashboardMarker,
		RoleBuilderID,
	}

	all := Catalog()
	require.Len(t, all, len(roles))

	for _, role := range roles {
		spec, ok := Lookup(role)
		require.True(t, ok, "role %s missing from catalog", role)
		assert.Equal(t, string(role), spec.Name)
		assert.NotEmpty(t, spec.Candidates, "role %s has no candidates", role)
		assert.GreaterOrEqual(t, spec.MaxRounds, 1, "role %s", role)
		assert.Greater(t, spec.PerCandidateTimeout, time.Duration(0), "role %s", role)
		for _, sel := range spec.Candidates {
			assert.NotEmpty(t, sel, "role %s has a blank candidate", role)
		}
	}
}

func TestCatalogTuning(t *testing.T) {
	email := MustLookup(RoleEmailInput)
	assert.Equal(t, 3, email.MaxRounds)
	assert.Equal(t, 5*time.Second, email.PerCandidateTimeout)

	verification := MustLookup(RoleVerificationInput)
	assert.Equal(t, 2, verification.MaxRounds)
	assert.Equal(t, 5*time.Second, verification.PerCandidateTimeout)

	// Outcome markers are single-shot probes so classification stays fast.
	for _, role := range []Role{RoleSuccessMarker, RoleErrorMarker, RoleSignupForm, RoleDashboardMarker, RoleBuilderID} {
		spec := MustLookup(role)
		assert.Equal(t, 1, spec.MaxRounds, "role %s", role)
		assert.Equal(t, time.Second, spec.PerCandidateTimeout, "role %s", role)
	}
}

func TestLookupUnknownRole(t *testing.T) {
	_, ok := Lookup(Role("no_such_role"))
	assert.False(t, ok)
	assert.Panics(t, func() { MustLookup(Role("no_such_role")) })
}

func TestLookupReturnsIndependentCopy(t *testing.T) {
	first := MustLookup(RolePasswordInput)
	first.Candidates[0] = "#mutated"

	second := MustLookup(RolePasswordInput)
	assert.NotEqual(t, "#mutated", second.Candidates[0],
		"callers tuning a spec must not touch the shared catalog")
}
