// File: cmd/classify.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser"
	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/funnel"
	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/records"
)

// newClassifyCmd creates the `classify` command, the secondary entry for
// deciding a registration's outcome once a human has acted on the challenge.
func newClassifyCmd() *cobra.Command {
	var pageURL string
	var sessionID string

	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Classifies a signup outcome from page signals",
		Long: `Classify opens the given page in a fresh browser and weighs its success and
failure signals: the landing URL, success and dashboard markers, error banners
and a still-present signup form.

With --session the verdict is journaled against that mailbox session's
registration record.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			session, err := browser.NewSession(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer func() {
				if err := session.Close(); err != nil {
					logger.Warn("Error during browser shutdown", zap.Error(err))
				}
			}()

			if err := session.Navigate(ctx, pageURL); err != nil {
				return fmt.Errorf("opening %s: %w", pageURL, err)
			}

			resolver := locator.NewResolver(session, logger)
			classifier := funnel.NewClassifier(session, resolver, logger, cfg.Funnel().SuccessURLPatterns)
			outcome := classifier.Classify(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Outcome: %s\n", outcome)

			if sessionID != "" && outcome != funnel.OutcomeIndeterminate {
				if err := journalVerdict(cfg, logger, sessionID, outcome); err != nil {
					logger.Warn("Failed to journal classification verdict.", zap.Error(err))
				}
			}
			if outcome == funnel.OutcomeFailure {
				return fmt.Errorf("page classified as a failed registration")
			}
			return nil
		},
	}

	classifyCmd.Flags().StringVarP(&pageURL, "url", "u", "", "Page URL to classify (required).")
	_ = classifyCmd.MarkFlagRequired("url")
	classifyCmd.Flags().StringVar(&sessionID, "session", "", "Mailbox session id to journal the verdict under.")

	return classifyCmd
}

// journalVerdict appends a classification verdict to the registration
// journal, filling identity fields from the cached mailbox session when it is
// still available.
func journalVerdict(cfg config.Interface, logger *zap.Logger, sessionID string, outcome funnel.Outcome) error {
	rec := records.Record{
		Timestamp: time.Now().UTC(),
		Status:    "failed",
		SessionID: sessionID,
	}
	if outcome == funnel.OutcomeSuccess {
		rec.Status = "completed"
	}

	cache, err := mailbox.NewCache(cfg.Mailbox().SessionFile, logger)
	if err != nil {
		return err
	}
	if cached, ok, err := cache.Get(sessionID); err == nil && ok {
		rec.Email = cached.EmailAddress
		rec.Password = cached.Password
	}

	return records.NewJournal(cfg.Records().File, logger).Append(rec)
}
