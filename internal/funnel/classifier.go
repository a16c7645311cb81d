// File: internal/funnel/classifier.go

package funnel

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
)

// Outcome is the post-challenge verdict.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeFailure       Outcome = "failure"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// defaultSuccessPatterns are URL fragments that indicate a post-signup page
// when no patterns are configured.
var defaultSuccessPatterns = []string{"dashboard", "console", "welcome", "success", "complete", "view.awsapps.com"}

// Classifier decides whether the registration went through once the
// operator has finished the image challenge. No single page signal is
// reliable on its own, so it takes a weighted majority: three positive
// signals (post-signup URL, success marker, dashboard marker) against two
// negative ones (error marker, the signup form still on screen). Any
// negative forces Failure, two positives make Success, anything else is
// Indeterminate.
type Classifier struct {
	page            Page
	resolver        Resolver
	log             *zap.Logger
	successPatterns []string
}

// NewClassifier builds a classifier. Empty successPatterns fall back to the
// built-in list.
func NewClassifier(page Page, resolver Resolver, logger *zap.Logger, successPatterns []string) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(successPatterns) == 0 {
		successPatterns = defaultSuccessPatterns
	}
	return &Classifier{
		page:            page,
		resolver:        resolver,
		log:             logger.Named("classifier"),
		successPatterns: successPatterns,
	}
}

// Classify collects the page signals and returns the verdict.
func (c *Classifier) Classify(ctx context.Context) Outcome {
	positives := 0
	negatives := 0

	if c.urlMatches(ctx) {
		positives++
	}
	if c.present(ctx, locator.RoleSuccessMarker) {
		positives++
	}
	if c.present(ctx, locator.RoleDashboardMarker) {
		positives++
	}
	if c.present(ctx, locator.RoleErrorMarker) {
		negatives++
	}
	if c.present(ctx, locator.RoleSignupForm) {
		negatives++
	}

	c.log.Info("Outcome signals collected.",
		zap.Int("positive", positives),
		zap.Int("negative", negatives))

	switch {
	case negatives > 0:
		return OutcomeFailure
	case positives >= 2:
		return OutcomeSuccess
	default:
		return OutcomeIndeterminate
	}
}

func (c *Classifier) urlMatches(ctx context.Context) bool {
	current, err := c.page.CurrentURL(ctx)
	if err != nil {
		c.log.Debug("Could not read current URL during classification.", zap.Error(err))
		return false
	}
	lowered := strings.ToLower(current)
	for _, pattern := range c.successPatterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func (c *Classifier) present(ctx context.Context, role locator.Role) bool {
	_, err := c.resolver.Resolve(ctx, locator.MustLookup(role))
	return err == nil
}
