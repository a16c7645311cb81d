// File: cmd/register.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/browser"
	"github.com/xkilldash9x/enroll-cli/internal/browser/locator"
	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/funnel"
	"github.com/xkilldash9x/enroll-cli/internal/mailbox"
	"github.com/xkilldash9x/enroll-cli/internal/network"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
	"github.com/xkilldash9x/enroll-cli/internal/records"
)

// registrationFlow is the slice of the orchestrator the register command
// drives. An interface here keeps the command logic testable.
type registrationFlow interface {
	Run(ctx context.Context, req funnel.RunRequest) (*funnel.Result, error)
	ClassifyAfterManualStep(ctx context.Context) (*funnel.Result, error)
}

// newRegisterCmd creates and configures the `register` command.
func newRegisterCmd() *cobra.Command {
	var (
		email     string
		name      string
		password  string
		sessionID string
		noWait    bool
	)

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Runs the signup funnel and parks before the manual challenge",
		Long: `Register drives the target signup funnel end to end: it provisions a
disposable mailbox, fills the email, name, verification and password steps,
and hands off to the operator when the image challenge appears.

Unless --no-wait is set, the command then blocks until the operator finishes
the challenge and presses ENTER, and classifies the final page.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyRegisterFlags(cmd, cfg); err != nil {
				return err
			}

			components, err := initializeFunnelComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			req := funnel.RunRequest{
				Email:     email,
				Name:      name,
				Password:  password,
				SessionID: sessionID,
			}
			return runRegister(ctx, logger, components.Orchestrator, req, noWait, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	registerCmd.Flags().StringP("url", "u", "", "Signup funnel entry URL. (Overrides config/env)")
	registerCmd.Flags().StringVar(&email, "email", "", "Email address to register with. Defaults to the mailbox address.")
	registerCmd.Flags().StringVar(&name, "name", "", "Full name to register with.")
	registerCmd.Flags().StringVar(&password, "password", "", "Password to register with. Generated when unset.")
	registerCmd.Flags().StringVar(&sessionID, "session", "", "Mailbox session id to restore instead of creating one.")
	registerCmd.Flags().String("domain", "", "Preferred mailbox domain suffix, e.g. dropmail.me. (Overrides config/env)")
	registerCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	registerCmd.Flags().BoolVar(&noWait, "no-wait", false, "Exit after parking at the challenge instead of waiting for the operator.")

	return registerCmd
}

// applyRegisterFlags layers the register command's overrides onto the
// configuration and checks that a signup URL ended up configured.
func applyRegisterFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if url, _ := flags.GetString("url"); url != "" {
		cfg.SetFunnelSignupURL(url)
	}
	if domain, _ := flags.GetString("domain"); domain != "" {
		cfg.SetMailboxDomainPreference(domain)
	}
	if flags.Changed("headless") {
		headless, _ := flags.GetBool("headless")
		cfg.SetBrowserHeadless(headless)
	}
	if cfg.Funnel().SignupURL == "" {
		return fmt.Errorf("no signup URL configured; set --url or funnel.signup_url")
	}
	return nil
}

// runRegister contains the core, testable logic of the register command. It
// drives the flow to the manual handoff and, unless noWait is set, loops on
// operator confirmation until the outcome classification is terminal.
func runRegister(ctx context.Context, logger *zap.Logger, flow registrationFlow, req funnel.RunRequest, noWait bool, in io.Reader, out io.Writer) error {
	res, err := flow.Run(ctx, req)
	if err != nil {
		return err
	}
	printResult(out, res)
	if res.Err != nil {
		return fmt.Errorf("registration failed: %w", res.Err)
	}

	if noWait {
		fmt.Fprintf(out, "\nFinish the challenge in the browser, then record the verdict with:\n")
		fmt.Fprintf(out, "  enroll-cli classify --url <final page url> --session %s\n", res.MailboxSessionID)
		return nil
	}

	// Keep the browser open while the operator works through the challenge.
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "\nComplete the image challenge in the browser, then press ENTER to classify... ")
		if err := waitForEnter(ctx, reader); err != nil {
			if errors.Is(err, io.EOF) {
				logger.Warn("Input closed before classification; leaving the flow parked.")
				return nil
			}
			return err
		}

		verdict, err := flow.ClassifyAfterManualStep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Outcome: %s\n", verdict.Outcome)

		switch verdict.Outcome {
		case funnel.OutcomeSuccess:
			if verdict.Credentials.BuilderID != "" {
				fmt.Fprintf(out, "Builder ID: %s\n", verdict.Credentials.BuilderID)
			}
			fmt.Fprintln(out, "Registration complete.")
			return nil
		case funnel.OutcomeFailure:
			return fmt.Errorf("registration classified as failed")
		default:
			fmt.Fprintln(out, "Outcome is still unclear. Finish the challenge and press ENTER to check again.")
		}
	}
}

// waitForEnter blocks until the operator sends a newline or the context ends.
func waitForEnter(ctx context.Context, reader *bufio.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := reader.ReadString('\n')
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// printResult writes the operator-facing summary of a run.
func printResult(out io.Writer, res *funnel.Result) {
	fmt.Fprintf(out, "\nState:           %s\n", res.State)
	fmt.Fprintf(out, "Email:           %s\n", res.Credentials.Email)
	if res.Credentials.Name != "" {
		fmt.Fprintf(out, "Name:            %s\n", res.Credentials.Name)
	}
	fmt.Fprintf(out, "Password:        %s\n", res.Credentials.Password)
	fmt.Fprintf(out, "Mailbox session: %s\n", res.MailboxSessionID)
	fmt.Fprintf(out, "Run ID:          %s\n", res.RunID)
}

// funnelComponents holds the initialized services behind one registration run.
type funnelComponents struct {
	Browser      *browser.Session
	Resolver     *locator.Resolver
	Mailbox      *mailbox.Client
	Cache        *mailbox.Cache
	Journal      *records.Journal
	Orchestrator *funnel.Orchestrator

	log *zap.Logger
}

// Shutdown closes everything holding external resources.
func (fc *funnelComponents) Shutdown() {
	if fc.Browser != nil {
		if err := fc.Browser.Close(); err != nil {
			fc.log.Warn("Error during browser shutdown", zap.Error(err))
		}
	}
}

// initializeFunnelComponents handles dependency injection for the funnel.
func initializeFunnelComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*funnelComponents, error) {
	components := &funnelComponents{log: logger}

	// 1. Journal and session cache
	components.Journal = records.NewJournal(cfg.Records().File, logger)

	cache, err := mailbox.NewCache(cfg.Mailbox().SessionFile, logger)
	if err != nil {
		return components, fmt.Errorf("failed to open session cache: %w", err)
	}
	components.Cache = cache

	// 2. Mailbox client
	httpClient := network.NewClient(clientConfig(cfg))
	components.Mailbox = mailbox.NewClient(cfg, httpClient, cache, logger)

	// 3. Browser and locator
	session, err := browser.NewSession(ctx, cfg, logger)
	if err != nil {
		return components, fmt.Errorf("failed to start browser: %w", err)
	}
	components.Browser = session
	components.Resolver = locator.NewResolver(session, logger)

	// 4. Orchestrator
	orch, err := funnel.NewOrchestrator(session, components.Resolver, components.Mailbox, cfg, components.Journal, logger)
	if err != nil {
		return components, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	components.Orchestrator = orch

	return components, nil
}

// clientConfig maps the network section onto the HTTP client settings.
func clientConfig(cfg config.Interface) *network.ClientConfig {
	clientCfg := network.NewDefaultClientConfig()
	if timeout := cfg.Network().Timeout; timeout > 0 {
		clientCfg.RequestTimeout = timeout
	}
	return clientCfg
}
