// File: cmd/records.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/records"
)

// newRecordsCmd groups the registration journal commands.
func newRecordsCmd() *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Reads, exports and archives the registration journal",
	}
	recordsCmd.AddCommand(newRecordsListCmd())
	recordsCmd.AddCommand(newRecordsExportCmd())
	recordsCmd.AddCommand(newRecordsWatchCmd())
	recordsCmd.AddCommand(newRecordsArchiveCmd())
	recordsCmd.AddCommand(newRecordsRecentCmd())
	return recordsCmd
}

func newRecordsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists journaled registration attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			journal := records.NewJournal(cfg.Records().File, observability.GetLogger())
			recs, err := journal.List()
			if err != nil {
				return err
			}
			printJournal(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

// printJournal renders journal records one per line.
func printJournal(out io.Writer, recs []records.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No registrations recorded.")
		return
	}
	for _, rec := range recs {
		fmt.Fprintf(out, "%s  %-30s  %s\n",
			rec.Timestamp.Local().Format(time.RFC3339), rec.Email, rec.Status)
	}
}

func newRecordsExportCmd() *cobra.Command {
	var format string
	var outputPath string

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Exports the journal as JSON or XML",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}

			journal := records.NewJournal(cfg.Records().File, logger)
			recs, err := journal.List()
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("creating %s: %w", outputPath, err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil {
						logger.Warn("Failed to close export file cleanly.", zap.Error(cerr))
					}
				}()
				out = f
			}

			if err := runRecordsExport(recs, format, out); err != nil {
				return err
			}
			if outputPath != "" {
				logger.Info("Journal exported.",
					zap.String("path", outputPath), zap.Int("records", len(recs)))
			}
			return nil
		},
	}

	exportCmd.Flags().StringVarP(&format, "format", "f", "json", "Export format, 'json' or 'xml'.")
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the export is printed to stdout.")
	return exportCmd
}

// runRecordsExport renders the journal in the requested format.
func runRecordsExport(recs []records.Record, format string, out io.Writer) error {
	switch strings.ToLower(format) {
	case "json":
		return records.ExportJSON(recs, out)
	case "xml":
		return records.ExportXML(recs, out)
	default:
		return fmt.Errorf("unsupported export format %q (use json or xml)", format)
	}
}

func newRecordsWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follows the journal, printing new registrations as they land",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			journal := records.NewJournal(cfg.Records().File, observability.GetLogger())
			fmt.Fprintf(out, "Watching %s for new registrations. Ctrl-C to stop.\n", journal.Path())

			err = journal.Watch(ctx, func(rec records.Record) {
				fmt.Fprintf(out, "%s  %-30s  %s\n",
					rec.Timestamp.Local().Format(time.RFC3339), rec.Email, rec.Status)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newRecordsArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Copies the journal into the Postgres archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			pool, arch, err := openArchive(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			journal := records.NewJournal(cfg.Records().File, logger)
			recs, err := journal.List()
			if err != nil {
				return err
			}

			copied, err := arch.Import(ctx, recs)
			if err != nil {
				return fmt.Errorf("importing journal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d record(s) from %s.\n", copied, journal.Path())
			return nil
		},
	}
}

func newRecordsRecentCmd() *cobra.Command {
	var limit int

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Shows the latest archived registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			pool, arch, err := openArchive(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			recs, err := arch.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Archive is empty.")
				return nil
			}
			printJournal(cmd.OutOrStdout(), recs)
			return nil
		},
	}

	recentCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show.")
	return recentCmd
}

// openArchive connects to Postgres and ensures the archive schema exists.
func openArchive(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*pgxpool.Pool, *records.Archive, error) {
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (ENROLL_DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	arch, err := records.NewArchive(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := arch.Init(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("preparing archive schema: %w", err)
	}
	return pool, arch, nil
}
