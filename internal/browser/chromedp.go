package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	appLog "postcal/internal/log"
)

// ChromedpBackend drives a local Chrome/Chromium through chromedp.
type ChromedpBackend struct {
	opts Options
}

func (b *ChromedpBackend) Name() string { return BackendChromedp }

func (b *ChromedpBackend) Launch(ctx context.Context) (Session, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if b.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(b.opts.UserAgent))
	}
	if b.opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser so launch errors surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp: start browser: %w", err)
	}

	return &chromedpSession{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}, nil
}

type chromedpSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *chromedpSession) Render(ctx context.Context, url, selector string, wait time.Duration) (string, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return "", fmt.Errorf("chromedp: navigate: %w", err)
	}

	if selector != "" && wait > 0 {
		waitCtx, waitCancel := context.WithTimeout(runCtx, wait)
		err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
		waitCancel()
		if err != nil {
			if runCtx.Err() != nil {
				return "", fmt.Errorf("chromedp: %w", runCtx.Err())
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("chromedp: wait for %s: %w", selector, err)
			}
			appLog.Debug("selector did not appear, reading page as is", "selector", selector, "wait", wait)
		}
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("chromedp: read document: %w", err)
	}
	return html, nil
}

// Close cancels the tab and allocator contexts, which kills the browser.
func (s *chromedpSession) Close() error {
	s.cancel()
	return nil
}
