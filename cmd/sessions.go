// File: cmd/sessions.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
	"github.com/xkilldash9x/enroll-cli/internal/network"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// sessionVerifyConcurrency bounds parallel provider probes during verify --all.
const sessionVerifyConcurrency = 4

// newSessionsCmd groups the mailbox session maintenance commands.
func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspects and maintains cached mailbox sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCmd())
	sessionsCmd.AddCommand(newSessionsVerifyCmd())
	sessionsCmd.AddCommand(newSessionsRestoreCmd())
	sessionsCmd.AddCommand(newSessionsPurgeCmd())
	return sessionsCmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists cached mailbox sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			cache, err := mailbox.NewCache(cfg.Mailbox().SessionFile, observability.GetLogger())
			if err != nil {
				return err
			}
			recs, err := cache.List()
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

// printSessions renders cached session records for the operator.
func printSessions(out io.Writer, recs []*mailbox.SessionRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No cached sessions.")
		return
	}
	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tADDRESS\tCREATED\tEXPIRES")
	for _, rec := range recs {
		expires := "unknown"
		if !rec.ExpiresAt.IsZero() {
			expires = rec.ExpiresAt.Local().Format(time.RFC3339)
		}
		if rec.Expired(now) {
			expires += " (expired)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.SessionID, rec.EmailAddress, rec.CreatedAt.Local().Format(time.RFC3339), expires)
	}
	w.Flush()
}

func newSessionsVerifyCmd() *cobra.Command {
	var all bool

	verifyCmd := &cobra.Command{
		Use:   "verify [session-id]",
		Short: "Checks cached sessions against the provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("provide a session id or --all")
			}

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

			var recs []*mailbox.SessionRecord
			if all {
				if recs, err = cache.List(); err != nil {
					return err
				}
			} else {
				rec, ok, err := cache.Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("session %s not found in cache", args[0])
				}
				recs = append(recs, rec)
			}

			return runSessionsVerify(ctx, cfg, logger, recs, cmd.OutOrStdout())
		},
	}
	verifyCmd.Flags().BoolVar(&all, "all", false, "Verify every cached session.")
	return verifyCmd
}

// runSessionsVerify probes each record against the provider with bounded
// concurrency and prints one verdict line per session.
func runSessionsVerify(ctx context.Context, cfg config.Interface, logger *zap.Logger, recs []*mailbox.SessionRecord, out io.Writer) error {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No cached sessions.")
		return nil
	}

	// One client serves every worker. VerifyRecord probes under each record's
	// own token and adopts nothing, and all probes share the provider rate
	// limit.
	client := mailbox.NewClient(cfg, network.NewClient(clientConfig(cfg)), nil, logger)
	verdicts := make([]string, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sessionVerifyConcurrency)
	for i, rec := range recs {
		// Capture loop variables.
		i, rec := i, rec
		g.Go(func() error {
			alive, err := client.VerifyRecord(gctx, rec)
			switch {
			case err != nil:
				verdicts[i] = fmt.Sprintf("check failed: %v", err)
			case alive:
				verdicts[i] = "live"
			default:
				verdicts[i] = "gone"
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, rec := range recs {
		fmt.Fprintf(out, "%s  %s  %s\n", rec.SessionID, rec.EmailAddress, verdicts[i])
	}
	return nil
}

func newSessionsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <session-id>",
		Short: "Restores a cached session, spending restore keys if needed",
		Args:  cobra.ExactArgs(1),
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

			ok, err := client.RestoreSession(ctx, args[0])
			if err != nil {
				return fmt.Errorf("restoring session: %w", err)
			}
			if !ok {
				return fmt.Errorf("session %s could not be restored", args[0])
			}

			sess := client.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "Restored session %s with address %s\n", sess.ID, sess.Address)
			return nil
		},
	}
}

func newSessionsPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drops expired sessions from the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			cache, err := mailbox.NewCache(cfg.Mailbox().SessionFile, observability.GetLogger())
			if err != nil {
				return err
			}
			removed, err := cache.PurgeExpired(time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s).\n", removed)
			return nil
		},
	}
}
