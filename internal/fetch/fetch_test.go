package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(srv *httptest.Server, retries int) *Fetcher {
	return NewFetcher(Options{
		Client:     srv.Client(),
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		MaxBytes:   64,
	})
}

func TestGetSendsBrowserSignature(t *testing.T) {
	var gotUA, gotLang, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotLang = r.Header.Get("Accept-Language")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	resp, err := newTestFetcher(srv, 0).Get(context.Background(), srv.URL, http.Header{"Accept": {"text/html"}})
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, "en-US,en;q=0.9", gotLang)
	assert.Equal(t, "text/html", gotAccept)
	assert.Equal(t, "<html></html>", string(resp.Body))
	assert.Equal(t, "text/html", resp.ContentType)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := newTestFetcher(srv, 2).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetDoesNotRetryRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv, 3).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetReturnsLastFailureWhenRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv, 2).Get(context.Background(), srv.URL, nil)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	resp, err := newTestFetcher(srv, 0).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 64)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"title":"hi"}`))
	}))
	defer srv.Close()

	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, newTestFetcher(srv, 0).GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "hi", out.Title)
}

func TestGetHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher(srv, 3).Get(ctx, srv.URL, nil)
	assert.Error(t, err)
}
