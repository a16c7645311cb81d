// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// ctxKey scopes context values owned by this package.
type ctxKey string

// configKey carries the loaded configuration from the root command's
// PersistentPreRunE down to the subcommands.
const configKey ctxKey = "config"

var (
	cfgFile string

	// osExit is swappable so tests can observe exit codes.
	osExit = os.Exit
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

// newRootCmd assembles the root command and its subcommand tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enroll-cli",
		Short: "Enroll drives unattended web signup funnels end to end.",
		// Version is set at build time. See cmd/version.go.
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This runs before any subcommand, setting up config and logging.
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "enroll-cli"})
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// Initialize a fallback logger if config loading fails.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "enroll-cli"})
				return fmt.Errorf("failed to load config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Info("Starting enroll-cli", zap.String("version", Version))

			// Subcommands read the validated config back out of the context.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newRecordsCmd())
	cmd.AddCommand(newMailboxCmd())
	return cmd
}

// Execute runs the root command under a signal-aware context. SIGINT and
// SIGTERM cancel the context so blocking waits unwind cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		observability.Sync()
		osExit(1)
	}
	observability.Sync()
}

// getConfigFromContext retrieves the configuration stored by the root
// command's PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}

// initializeConfig points viper at the config file and environment.
func initializeConfig(v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ENROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}
	return nil
}
