// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/config"
)

const stabilizeTimeout = 30 * time.Second

// Session owns one headless-or-headful Chrome instance with a single tab and
// exposes the small set of page operations the funnel driver needs. It is not
// safe for concurrent page operations; a registration run drives it
// sequentially.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	allocCancel context.CancelFunc

	cfg    config.BrowserConfig
	logger *zap.Logger

	mu       sync.Mutex
	isClosed bool
}

// NewSession launches the browser and connects a tab. The returned session
// must be closed by the caller; ctx bounds the launch only, not the session
// lifetime.
func NewSession(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionID := uuid.New().String()
	browserCfg := cfg.Browser()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOptions(browserCfg)...)

	ctxOpts := []chromedp.ContextOption{}
	if browserCfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Session{
		id:          sessionID,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		cfg:         browserCfg,
		logger:      logger.Named("browser").With(zap.String("session_id", sessionID)),
	}

	// Nobody is around to click "OK". An unhandled alert() or confirm()
	// blocks every subsequent CDP command, so accept them as they appear.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if dialog, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			s.logger.Debug("Dismissing JavaScript dialog.",
				zap.String("type", dialog.Type.String()),
				zap.String("message", dialog.Message))
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					s.logger.Warn("Failed to dismiss JavaScript dialog.", zap.Error(err))
				}
			}()
		}
	})

	// Starting the target here surfaces a missing or broken chrome binary
	// immediately instead of on the first navigation.
	launchCtx, launchCancel := CombineContext(tabCtx, ctx)
	defer launchCancel()
	if err := chromedp.Run(launchCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	s.logger.Debug("Browser session started.", zap.Bool("headless", browserCfg.Headless))
	return s, nil
}

// execOptions translates browser configuration into chromedp allocator
// options.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Recommended for stability in containers and headless environments.
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if !cfg.Headless {
		// The default option set runs headless; later flags win, so this
		// override is enough to get a visible window.
		opts = append(opts, chromedp.Flag("headless", false))
	}

	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	for _, arg := range cfg.Args {
		if !strings.Contains(arg, "=") {
			if !strings.HasPrefix(arg, "--") {
				arg = "--" + arg
			}
			opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
			continue
		}
		parts := strings.SplitN(arg, "=", 2)
		key := strings.TrimPrefix(parts[0], "--")
		opts = append(opts, chromedp.Flag(key, parts[1]))
	}
	return opts
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Close terminates the browser. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

// stabilize waits for the DOM to be ready and then a settle period for late
// scripts. Failures downgrade to debug logs unless the caller's context died.
func (s *Session) stabilize(ctx context.Context) error {
	stabCtx, cancel := context.WithTimeout(ctx, stabilizeTimeout)
	defer cancel()

	if err := chromedp.Run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	settle := s.cfg.SettleWait
	if settle <= 0 {
		settle = 1500 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settle):
	}
	return nil
}

// runActions executes chromedp actions, respecting both the session lifetime
// and the incoming request context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}
