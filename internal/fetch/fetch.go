package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	appLog "postcal/internal/log"
)

// DefaultUserAgent mimics a desktop Chrome build. Social platforms serve a
// login wall or an empty shell to obvious bot signatures.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	defaultMaxBytes   = 5 << 20 // 5 MB
	defaultMaxRetries = 1
	defaultTimeout    = 20 * time.Second
)

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, appLog.RedactURL(e.URL))
}

// Options configures a Fetcher.
type Options struct {
	// Client overrides the HTTP client. Tests pass httptest clients here.
	Client *http.Client

	UserAgent string

	// MaxBytes caps how much of a response body is read.
	MaxBytes int64

	// MaxRetries is the number of extra attempts on network errors and
	// 5xx responses. 429 is never retried: a rate-limited platform will not
	// recover within a single request.
	MaxRetries int

	// BaseDelay/MaxDelay bound the retry backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher performs GET requests with a browser-like request signature.
// It is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	executor  failsafe.Executor[Response]
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = NewHTTPClient(defaultTimeout)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = 10 * opts.BaseDelay
	}

	retry := retrypolicy.NewBuilder[Response]().
		HandleIf(func(_ Response, err error) bool { return retryable(err) }).
		WithMaxRetries(opts.MaxRetries).
		WithBackoff(opts.BaseDelay, opts.MaxDelay).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()

	return &Fetcher{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		executor:  failsafe.With[Response](retry),
	}
}

// NewHTTPClient returns a client with bounded dial and TLS handshakes.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Get fetches url. Non-2xx responses return *HTTPError. Extra headers
// override the defaults.
func (f *Fetcher) Get(ctx context.Context, url string, header http.Header) (Response, error) {
	return f.executor.WithContext(ctx).Get(func() (Response, error) {
		return f.do(ctx, url, header)
	})
}

// GetJSON fetches url and decodes a JSON body into out.
func (f *Fetcher) GetJSON(ctx context.Context, url string, out any) error {
	h := http.Header{}
	h.Set("Accept", "application/json")
	resp, err := f.Get(ctx, url, h)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", appLog.RedactURL(url), err)
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, url string, header http.Header) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		appLog.Debug("fetch network error", "url", appLog.RedactURL(url), "err", err)
		return Response{}, err
	}
	defer resp.Body.Close()

	appLog.Debug("fetch response", "url", appLog.RedactURL(url), "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}

	return Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	// Network errors.
	return true
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
