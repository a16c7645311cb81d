// File: internal/browser/actions.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	actionTimeout  = 30 * time.Second
	maxTypeTimeout = 3 * time.Minute
)

// Navigate loads the URL and waits for the page to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating to URL.", zap.String("url", url))

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		if opCtx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", opCtx.Err())
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if err := s.stabilize(opCtx); err != nil {
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		s.logger.Warn("Page stabilization failed after navigation (non-critical).", zap.Error(err))
	}
	return nil
}

// CurrentURL returns the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.runActions(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading current url: %w", err)
	}
	return url, nil
}

// Click scrolls the element into view, waits for it, and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element.", zap.String("selector", selector))

	clickCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	action := chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	}
	if err := s.runActions(clickCtx, action); err != nil {
		return fmt.Errorf("click action failed for selector '%s': %w", selector, err)
	}
	return nil
}

// Clear empties the value of the input matching the selector.
func (s *Session) Clear(ctx context.Context, selector string) error {
	s.logger.Debug("Clearing element.", zap.String("selector", selector))

	clearCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	action := chromedp.Tasks{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
	}
	if err := s.runActions(clearCtx, action); err != nil {
		return fmt.Errorf("clear action failed for selector '%s': %w", selector, err)
	}
	return nil
}

// Type sends text to the element matching the selector. The timeout scales
// with the text length.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	s.logger.Debug("Typing into element.",
		zap.String("selector", selector),
		zap.Int("text_length", len(text)))

	timeout := 15*time.Second + time.Duration(float64(len(text))/2.5)*time.Second
	if timeout > maxTypeTimeout {
		timeout = maxTypeTimeout
	}
	typeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	action := chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	}
	if err := s.runActions(typeCtx, action); err != nil {
		return fmt.Errorf("type action failed for selector '%s': %w", selector, err)
	}
	return nil
}

// Text returns the visible text of the first element matching the selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var out string
	textCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if err := s.runActions(textCtx, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("text read failed for selector '%s': %w", selector, err)
	}
	return out, nil
}

// PageText returns the rendered text of the whole page body.
func (s *Session) PageText(ctx context.Context) (string, error) {
	var out string
	script := `document.body ? document.body.innerText : ""`

	textCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if err := s.runActions(textCtx, chromedp.Evaluate(script, &out)); err != nil {
		return "", fmt.Errorf("page text read failed: %w", err)
	}
	return out, nil
}

// Visible reports whether the selector matches an element that is rendered
// with a non-empty box. A missing element is a clean false, never an error.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	return s.probe(ctx, selector, false)
}

// Clickable reports whether the selector matches a visible element that is
// not disabled.
func (s *Session) Clickable(ctx context.Context, selector string) (bool, error) {
	return s.probe(ctx, selector, true)
}

func (s *Session) probe(ctx context.Context, selector string, needEnabled bool) (bool, error) {
	script := fmt.Sprintf(`(function() {
	const el = document.querySelector(%s);
	if (!el) { return false; }
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') { return false; }
	const rect = el.getBoundingClientRect();
	if (rect.width <= 0 || rect.height <= 0) { return false; }
	if (%t && el.disabled) { return false; }
	return true;
})()`, jsString(selector), needEnabled)

	var visible bool
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.runActions(probeCtx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, fmt.Errorf("visibility probe failed for selector '%s': %w", selector, err)
	}
	return visible, nil
}

// Evaluate runs a script in the page and optionally decodes the result.
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	evalCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	if err := s.runActions(evalCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// ShowBanner pins a high-contrast notice to the top of the page. Used to ask
// the operator to finish a manual challenge; failures are not fatal to the
// run.
func (s *Session) ShowBanner(ctx context.Context, message string) error {
	s.logger.Debug("Showing operator banner.", zap.String("message", message))

	if err := s.Evaluate(ctx, bannerScript(message), nil); err != nil {
		return fmt.Errorf("banner injection failed: %w", err)
	}
	return nil
}

func bannerScript(message string) string {
	return fmt.Sprintf(`(function(msg) {
	let b = document.getElementById('enroll-cli-banner');
	if (!b) {
		b = document.createElement('div');
		b.id = 'enroll-cli-banner';
		b.style.cssText = 'position:fixed;top:0;left:0;right:0;z-index:2147483647;' +
			'background:#c0392b;color:#fff;font:600 16px sans-serif;' +
			'padding:14px 18px;text-align:center;box-shadow:0 2px 8px rgba(0,0,0,0.4)';
		document.body.appendChild(b);
	}
	b.textContent = msg;
})(%s)`, jsString(message))
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(encoded)
}
