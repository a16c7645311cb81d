// File: cmd/main_test.go
package cmd

import (
	"os"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/enroll-cli/internal/config"
	"github.com/xkilldash9x/enroll-cli/internal/observability"
)

// TestMain instantiates the global logger before the command tests run.
// Command output goes through cobra's writers, so the logger stays quiet.
func TestMain(m *testing.M) {
	appConfig := config.NewDefaultConfig()
	logConfig := appConfig.Logger()
	logConfig.Level = "error"
	logConfig.ServiceName = "test-suite"
	logConfig.Format = "console"
	logConfig.LogFile = ""

	observability.Initialize(logConfig, zapcore.Lock(os.Stdout))

	exitCode := m.Run()

	observability.Sync()
	observability.ResetForTest()
	os.Exit(exitCode)
}
