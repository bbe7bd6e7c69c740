// Package browser owns the headless browser used as the last extraction
// strategy. Browsers are expensive, so sessions are only handed out through
// Pool.With, which bounds concurrency and always terminates the session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	appLog "postcal/internal/log"
	"postcal/internal/metrics"
)

const (
	BackendChromedp = "chromedp"
	BackendRod      = "rod"

	DefaultMaxConcurrent = 2
)

// Session is one browser instance, exclusively owned by the caller of
// Pool.With until the callback returns.
type Session interface {
	// Render navigates to url and returns the document HTML. It waits at
	// most wait for selector to appear and carries on without it.
	Render(ctx context.Context, url, selector string, wait time.Duration) (string, error)
	Close() error
}

// Backend launches sessions.
type Backend interface {
	Name() string
	Launch(ctx context.Context) (Session, error)
}

// Options configures a backend.
type Options struct {
	Backend   string
	ExecPath  string
	UserAgent string
	NoSandbox bool
}

// NewBackend returns the backend named by opts.Backend.
func NewBackend(opts Options) (Backend, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendChromedp:
		return &ChromedpBackend{opts: opts}, nil
	case BackendRod:
		return &RodBackend{opts: opts}, nil
	default:
		return nil, fmt.Errorf("browser: unknown backend %q", opts.Backend)
	}
}

// Pool limits how many sessions may be open at once.
type Pool struct {
	backend Backend
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
}

func NewPool(backend Backend, maxConcurrent int, m *metrics.Metrics) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Pool{
		backend: backend,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		metrics: m,
	}
}

// With launches a session, passes it to fn and closes it before returning,
// whatever fn does. It blocks while the pool is full, until ctx is done.
func (p *Pool) With(ctx context.Context, fn func(ctx context.Context, s Session) error) (err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("browser: wait for slot: %w", err)
	}
	defer p.sem.Release(1)

	sess, err := p.backend.Launch(ctx)
	if err != nil {
		return fmt.Errorf("browser: launch %s: %w", p.backend.Name(), err)
	}
	p.metrics.BrowserOpened()
	appLog.Debug("browser session opened", "backend", p.backend.Name())

	defer func() {
		if r := recover(); r != nil {
			p.close(sess)
			panic(r)
		}
		if cerr := p.close(sess); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, sess)
}

func (p *Pool) close(sess Session) error {
	defer p.metrics.BrowserClosed()
	if err := sess.Close(); err != nil {
		appLog.Warn("browser session close failed", "backend", p.backend.Name(), "err", err)
		return fmt.Errorf("browser: close: %w", err)
	}
	appLog.Debug("browser session closed", "backend", p.backend.Name())
	return nil
}

// Render is a shortcut for a one-page session.
func (p *Pool) Render(ctx context.Context, url, selector string, wait time.Duration) (string, error) {
	var html string
	err := p.With(ctx, func(ctx context.Context, s Session) error {
		var err error
		html, err = s.Render(ctx, url, selector, wait)
		return err
	})
	if err != nil {
		return "", err
	}
	if html == "" {
		return "", errors.New("browser: empty document")
	}
	return html, nil
}
