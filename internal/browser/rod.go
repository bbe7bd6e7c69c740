package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	appLog "postcal/internal/log"
)

// RodBackend drives Chromium through rod with the stealth evasions applied.
// Without ExecPath the launcher downloads a browser on first use, which is
// what serverless hosts need.
type RodBackend struct {
	opts Options
}

func (b *RodBackend) Name() string { return BackendRod }

func (b *RodBackend) Launch(ctx context.Context) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		NoSandbox(b.opts.NoSandbox)
	if b.opts.ExecPath != "" {
		l = l.Bin(b.opts.ExecPath)
	}

	u, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("rod: launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("rod: connect to headless browser: %w", err)
	}

	return &rodSession{browser: browser, launcher: l, userAgent: b.opts.UserAgent}, nil
}

type rodSession struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	userAgent string
}

func (s *rodSession) Render(ctx context.Context, url, selector string, wait time.Duration) (string, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return "", fmt.Errorf("rod: create tab: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if s.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.userAgent}); err != nil {
			return "", fmt.Errorf("rod: set user agent: %w", err)
		}
	}

	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("rod: navigate: %w", err)
	}

	if selector != "" && wait > 0 {
		if _, err := page.Timeout(wait).Element(selector); err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("rod: %w", ctx.Err())
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("rod: wait for %s: %w", selector, err)
			}
			appLog.Debug("selector did not appear, reading page as is", "selector", selector, "wait", wait)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("rod: read document: %w", err)
	}
	return html, nil
}

// Close shuts the browser down and removes the launcher's profile dir.
func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}
