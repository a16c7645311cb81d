// File: cmd/mailbox.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/enroll-cli/internal/funnel"
	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
	"github.com/xkilldash9x/enroll-cli/internal/network"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// newMailboxCmd groups the disposable-mailbox commands.
func newMailboxCmd() *cobra.Command {
	mailboxCmd := &cobra.Command{
		Use:   "mailbox",
		Short: "Interacts with the disposable mailbox provider",
	}
	mailboxCmd.AddCommand(newMailboxWatchCmd())
	return mailboxCmd
}

func newMailboxWatchCmd() *cobra.Command {
	var sessionID string

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Tails a mailbox, printing arrivals until interrupted",
		Long: `Watch restores the given mailbox session (or opens a fresh one) and prints
every mail as it arrives, along with any verification code found in it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			cache, err := mailbox.NewCache(cfg.Mailbox().SessionFile, logger)
			if err != nil {
				return err
			}
			client := mailbox.NewClient(cfg, network.NewClient(clientConfig(cfg)), cache, logger)

			if sessionID != "" {
				ok, err := client.RestoreSession(ctx, sessionID)
				if err != nil {
					return fmt.Errorf("restoring session: %w", err)
				}
				if !ok {
					return fmt.Errorf("session %s could not be restored", sessionID)
				}
			} else {
				if _, err := client.CreateSession(ctx, cfg.Mailbox().DomainPreference); err != nil {
					return fmt.Errorf("creating session: %w", err)
				}
			}

			sess := client.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (session %s). Ctrl-C to stop.\n", sess.Address, sess.ID)
			return runMailboxWatch(ctx, client, cfg.Mailbox().WaitTimeout, cmd.OutOrStdout())
		},
	}

	watchCmd.Flags().StringVar(&sessionID, "session", "", "Cached session id to watch. A fresh session is opened when unset.")
	return watchCmd
}

// mailWaiter is the slice of the mailbox client the watch loop needs.
type mailWaiter interface {
	WaitForMail(ctx context.Context, timeout time.Duration) (*mailbox.Mail, error)
}

// runMailboxWatch loops on WaitForMail until the context ends, printing one
// block per arrival.
func runMailboxWatch(ctx context.Context, client mailWaiter, waitTimeout time.Duration, out io.Writer) error {
	for {
		mail, err := client.WaitForMail(ctx, waitTimeout)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, mailbox.ErrWaitTimeout):
			continue
		case err != nil:
			return fmt.Errorf("waiting for mail: %w", err)
		}

		fmt.Fprintf(out, "%s  from %s  %q\n",
			mail.ReceivedAt.Local().Format(time.RFC3339), mail.FromAddr, mail.Subject)
		if code, ok := funnel.ExtractCode(mail); ok {
			fmt.Fprintf(out, "  verification code: %s\n", code)
		}
	}
}
