// File: internal/funnel/steps_test.go
package funnel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
)

func newTestFiller(t *testing.T, page *fakePage, resolver *fakeResolver) *Filler {
	t.Helper()
	return NewFiller(page, resolver, zaptest.NewLogger(t), 10*time.Millisecond)
}

func TestFillEmailHappyPath(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RoleEmailInput, "#email")
	resolver.serve(locator.RoleEmailNext, "#email-next")
	resolver.transition = true

	filler := newTestFiller(t, page, resolver)
	require.NoError(t, filler.FillEmail(context.Background(), "user@example.com"))

	assert.Equal(t, "user@example.com", page.typedValue("#email"))
	assert.Contains(t, page.cleared, "#email")
	assert.Equal(t, []string{"#email-next"}, page.clickedSelectors())
}

func TestFillEmailBlockedWhenInputMissing(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()

	filler := newTestFiller(t, page, resolver)
	err := filler.FillEmail(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepBlocked)
	assert.ErrorIs(t, err, locator.ErrNotFound)
	assert.Empty(t, page.typedValue("#email"))
}

func TestFillNameBlockedWhenAdvanceMissing(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RoleNameInput, "#name")

	filler := newTestFiller(t, page, resolver)
	err := filler.FillName(context.Background(), "Jane Q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepBlocked)
	// The input itself was still filled before the advance failed.
	assert.Equal(t, "Jane Q", page.typedValue("#name"))
}

func TestFillEmailMissingTransitionIsNotFatal(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RoleEmailInput, "#email")
	resolver.serve(locator.RoleEmailNext, "#email-next")
	resolver.transition = false

	filler := newTestFiller(t, page, resolver)
	assert.NoError(t, filler.FillEmail(context.Background(), "user@example.com"))
}

func TestFillEmailClickFailureIsPlainError(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.clickErr["#email-next"] = errors.New("node detached")
	resolver := newFakeResolver()
	resolver.serve(locator.RoleEmailInput, "#email")
	resolver.serve(locator.RoleEmailNext, "#email-next")

	filler := newTestFiller(t, page, resolver)
	err := filler.FillEmail(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStepBlocked)
}

func TestFillVerificationAccepted(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RoleVerificationInput, "#code")
	resolver.serve(locator.RoleVerifyButton, "#verify")
	resolver.transition = true

	filler := newTestFiller(t, page, resolver)
	require.NoError(t, filler.FillVerification(context.Background(), "482913"))

	assert.Equal(t, "482913", page.typedValue("#code"))
	assert.Equal(t, []string{"#verify"}, page.clickedSelectors())
	// The error marker is probed exactly once after submission.
	assert.Equal(t, 1, resolver.resolveCount(locator.RoleErrorMarker))
}

func TestFillVerificationRejected(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	page.texts["#error"] = "  Invalid verification code  "
	resolver := newFakeResolver()
	resolver.serve(locator.RoleVerificationInput, "#code")
	resolver.serve(locator.RoleVerifyButton, "#verify")
	resolver.serve(locator.RoleErrorMarker, "#error")

	filler := newTestFiller(t, page, resolver)
	err := filler.FillVerification(context.Background(), "000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCodeRejected)
	assert.Contains(t, err.Error(), "Invalid verification code")
}

func TestFillVerificationRejectedWithoutBannerText(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RoleVerificationInput, "#code")
	resolver.serve(locator.RoleVerifyButton, "#verify")
	resolver.serve(locator.RoleErrorMarker, "#error")

	filler := newTestFiller(t, page, resolver)
	err := filler.FillVerification(context.Background(), "000000")
	assert.ErrorIs(t, err, ErrCodeRejected)
}

func TestFillVerificationWeakAccept(t *testing.T) {
	t.Parallel()

	// Neither a page change nor an error banner: the submit is treated as
	// accepted on the weak signal.
	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RoleVerificationInput, "#code")
	resolver.serve(locator.RoleVerifyButton, "#verify")
	resolver.transition = false

	filler := newTestFiller(t, page, resolver)
	assert.NoError(t, filler.FillVerification(context.Background(), "482913"))
}

func TestFillPasswordFillsBothFieldsAndStops(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RolePasswordInput, "#password")
	resolver.serve(locator.RoleConfirmPassword, "#confirm")
	resolver.serve(locator.RolePasswordNext, "#password-next")

	filler := newTestFiller(t, page, resolver)
	require.NoError(t, filler.FillPassword(context.Background(), "Tr1cky!Pass"))

	assert.Equal(t, "Tr1cky!Pass", page.typedValue("#password"))
	assert.Equal(t, "Tr1cky!Pass", page.typedValue("#confirm"))
	// The advance control is never even resolved, let alone clicked.
	assert.Empty(t, page.clickedSelectors())
	assert.Zero(t, resolver.resolveCount(locator.RolePasswordNext))
}

func TestFillPasswordMissingConfirmationIsFatal(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()
	resolver.serve(locator.RolePasswordInput, "#password")

	filler := newTestFiller(t, page, resolver)
	err := filler.FillPassword(context.Background(), "Tr1cky!Pass")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepBlocked)
}

func TestAcceptCookies(t *testing.T) {
	t.Parallel()

	t.Run("clicks the consent control when present", func(t *testing.T) {
		t.Parallel()
		page := newFakePage()
		resolver := newFakeResolver()
		resolver.serve(locator.RoleCookieAccept, "#accept-all")

		filler := newTestFiller(t, page, resolver)
		assert.True(t, filler.AcceptCookies(context.Background()))
		assert.Equal(t, []string{"#accept-all"}, page.clickedSelectors())
	})

	t.Run("absence is not an error", func(t *testing.T) {
		t.Parallel()
		page := newFakePage()
		resolver := newFakeResolver()

		filler := newTestFiller(t, page, resolver)
		assert.False(t, filler.AcceptCookies(context.Background()))
		assert.Empty(t, page.clickedSelectors())
	})
}

func TestDetectChallenge(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	resolver := newFakeResolver()

	filler := newTestFiller(t, page, resolver)
	assert.False(t, filler.DetectChallenge(context.Background()))

	resolver.serve(locator.RoleChallenge, "#challenge")
	assert.True(t, filler.DetectChallenge(context.Background()))
}
