// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/enroll-cli/internal/config"
)

// executeCommandNoPreRun is for testing argument and flag validation without
// triggering the config loading in PersistentPreRunE.
func executeCommandNoPreRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// A fresh root command per test run keeps cobra state isolated.
	testRootCmd := newRootCmd()

	buf := new(bytes.Buffer)
	testRootCmd.PersistentPreRunE = nil
	testRootCmd.SetOut(buf)
	testRootCmd.SetErr(buf)
	testRootCmd.SetArgs(args)
	err := testRootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// createTempConfig writes a throwaway YAML config file.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "test-config-*.yaml")
	require.NoError(t, err)
	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

// chdir moves the test into dir and restores the previous working directory
// when the test ends.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestRootCmdVersionFlag(t *testing.T) {
	testRootCmd := newRootCmd()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"--version"})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestRootCmdNoArgsShowsHelp(t *testing.T) {
	testRootCmd := newRootCmd()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Enroll drives unattended web signup funnels")
	assert.Contains(t, out.String(), "register")
}

func TestClassifyCmdRequiredFlags(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "classify")
	require.Error(t, err)
	assert.Contains(t, output, `required flag(s) "url" not set`)
}

func TestSessionsRestoreRequiresArg(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "sessions", "restore")
	require.Error(t, err)
	assert.Contains(t, output, "accepts 1 arg(s), received 0")
}

func TestSessionsVerifyRequiresTarget(t *testing.T) {
	_, err := executeCommandNoPreRun(t, "sessions", "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provide a session id or --all")
}

func TestCommandsFailClosedWithoutConfig(t *testing.T) {
	// With PersistentPreRunE disabled nothing put a config in the context,
	// and every command that needs one must refuse to run.
	for _, args := range [][]string{
		{"records", "list"},
		{"sessions", "list"},
		{"sessions", "purge"},
		{"mailbox", "watch"},
	} {
		_, err := executeCommandNoPreRun(t, args...)
		require.Error(t, err, "args: %v", args)
		assert.Contains(t, err.Error(), "configuration missing from command context")
	}
}

func TestInitializeConfigNoFileUsesDefaults(t *testing.T) {
	t.Cleanup(func() { cfgFile = "" })
	cfgFile = ""
	t.Chdir(t.TempDir())

	v := viper.New()
	config.SetDefaults(v)

	require.NoError(t, initializeConfig(v))
	assert.Equal(t, "registrations.csv", v.GetString("records.file"))
}

func TestInitializeConfigMissingExplicitFile(t *testing.T) {
	t.Cleanup(func() { cfgFile = "" })
	cfgFile = filepath.Join(t.TempDir(), "does-not-exist.yaml")

	v := viper.New()
	config.SetDefaults(v)

	err := initializeConfig(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestInitializeConfigEnvOverride(t *testing.T) {
	t.Cleanup(func() { cfgFile = "" })
	cfgFile = ""
	t.Chdir(t.TempDir())
	t.Setenv("ENROLL_FUNNEL_SIGNUP_URL", "https://env.example/start")

	v := viper.New()
	config.SetDefaults(v)
	require.NoError(t, initializeConfig(v))

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example/start", cfg.Funnel().SignupURL)
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	require.Error(t, err)

	cfg := config.NewDefaultConfig()
	ctx := context.WithValue(context.Background(), configKey, cfg)
	got, err := getConfigFromContext(ctx)
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestConfigFlagThroughContext(t *testing.T) {
	journalPath := filepath.Join(t.TempDir(), "journal.csv")
	configContent := fmt.Sprintf(`
funnel:
  signup_url: https://funnel.example/start
records:
  file: %s
`, journalPath)
	configFile := createTempConfig(t, configContent)
	t.Cleanup(func() { cfgFile = "" })

	testRootCmd := newRootCmd()

	// Intercept the register RunE so no browser is started; the test only
	// cares that the config traveled through the context with the right
	// precedence between file values and flag overrides.
	var captured config.Interface
	var registerCmd *cobra.Command
	for _, sub := range testRootCmd.Commands() {
		if sub.Use == "register" {
			registerCmd = sub
			break
		}
	}
	require.NotNil(t, registerCmd)
	registerCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		captured = cfg
		return applyRegisterFlags(cmd, cfg)
	}

	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"--config", configFile, "register", "--url", "https://flag.example/start"})

	err := testRootCmd.ExecuteContext(context.Background())
	require.NoError(t, err)

	require.NotNil(t, captured)
	// The flag override wins over the file value; untouched keys keep the
	// file's values.
	assert.Equal(t, "https://flag.example/start", captured.Funnel().SignupURL)
	assert.Equal(t, journalPath, captured.Records().File)
}
