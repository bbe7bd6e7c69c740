package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postcal/internal/apperr"
	"postcal/internal/config"
	"postcal/internal/metrics"
	"postcal/internal/model"
	"postcal/internal/pipeline"
)

type fakeConverter struct {
	res   pipeline.Result
	err   error
	input pipeline.Input
	image []byte
	text  string
}

func (f *fakeConverter) Run(_ context.Context, in pipeline.Input) (pipeline.Result, error) {
	f.input = in
	return f.res, f.err
}

func (f *fakeConverter) FromText(_ context.Context, text string) (pipeline.Result, error) {
	f.text = text
	return f.res, f.err
}

func (f *fakeConverter) FromImage(_ context.Context, data []byte) (pipeline.Result, error) {
	f.image = data
	return f.res, f.err
}

func sampleResult() pipeline.Result {
	return pipeline.Result{
		Source: pipeline.SourceURL,
		Event: model.Event{
			Title: "Jazz Night / Live",
			Start: time.Date(2024, 6, 14, 20, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 6, 14, 23, 0, 0, 0, time.UTC),
		},
		Artifacts: model.ArtifactSet{
			Google:  "https://calendar.google.com/calendar/render?action=TEMPLATE",
			Outlook: "https://outlook.live.com/calendar/0/deeplink/compose",
			Apple:   "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
		},
		SourceURL: "https://www.instagram.com/p/X",
		Post:      &model.RawPost{Strategy: "embed"},
	}
}

func newTestServer(conv Converter, cfg *config.Config) http.Handler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return NewServer(cfg, conv, metrics.New(), false).Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeConverter{}, nil), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestConvertURL(t *testing.T) {
	conv := &fakeConverter{res: sampleResult()}
	body := strings.NewReader(`{"instagramUrl":"https://www.instagram.com/p/X/"}`)

	rec := do(t, newTestServer(conv, nil), httptest.NewRequest(http.MethodPost, "/api/convert", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["success"])
	assert.Equal(t, "embed", got["strategy"])
	assert.Equal(t, sampleResult().Artifacts.Google, got["calendar_url"])
	assert.True(t, strings.HasPrefix(got["apple_data_url"].(string), "data:text/calendar;charset=utf8,BEGIN%3AVCALENDAR"))
	assert.Equal(t, "https://www.instagram.com/p/X/", conv.input.URL)
}

func TestConvertImageBase64(t *testing.T) {
	conv := &fakeConverter{res: sampleResult()}
	body := strings.NewReader(`{"image":"data:image/png;base64,iVBORw0KGgo="}`)

	rec := do(t, newTestServer(conv, nil), httptest.NewRequest(http.MethodPost, "/api/convert", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, conv.input.Image)
	assert.Equal(t, "image/png", conv.input.Image.MIMEType)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), conv.input.Image.Data)
}

func TestConvertErrorStatus(t *testing.T) {
	tests := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.KindInvalidURL, http.StatusBadRequest},
		{apperr.KindInvalidInput, http.StatusBadRequest},
		{apperr.KindInvalidDate, http.StatusBadRequest},
		{apperr.KindExtractionFailed, http.StatusUnprocessableEntity},
		{apperr.KindInvalidResponse, http.StatusBadGateway},
		{apperr.KindInterpretationFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			conv := &fakeConverter{err: apperr.New(tt.kind, "test", "boom")}
			rec := do(t, newTestServer(conv, nil), httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(`{"text":"x"}`)))

			assert.Equal(t, tt.status, rec.Code)
			var got errResp
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, string(tt.kind), got.Kind)
			assert.False(t, got.Success)
		})
	}
}

func TestConvertBadJSON(t *testing.T) {
	rec := do(t, newTestServer(&fakeConverter{}, nil), httptest.NewRequest(http.MethodPost, "/api/convert", strings.NewReader(`{"url":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertWrongMethod(t *testing.T) {
	rec := do(t, newTestServer(&fakeConverter{}, nil), httptest.NewRequest(http.MethodGet, "/api/convert", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestConvertImageMultipart(t *testing.T) {
	conv := &fakeConverter{res: sampleResult()}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "flyer.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/convert/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := do(t, newTestServer(conv, nil), req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), conv.image)
}

func TestParse(t *testing.T) {
	conv := &fakeConverter{res: sampleResult()}
	rec := do(t, newTestServer(conv, nil), httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(`{"text":"Jazz Friday"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Jazz Friday", conv.text)
	assert.Contains(t, rec.Body.String(), `"title":"Jazz Night / Live"`)
	assert.NotContains(t, rec.Body.String(), "artifacts")

	rec = do(t, newTestServer(conv, nil), httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(`{"text":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestICSDownload(t *testing.T) {
	conv := &fakeConverter{res: sampleResult()}
	rec := do(t, newTestServer(conv, nil), httptest.NewRequest(http.MethodPost, "/api/ics", strings.NewReader(`{"text":"Jazz"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Jazz-Night-Live.ics"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, sampleResult().Artifacts.Apple, rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	h := newTestServer(&fakeConverter{res: sampleResult()}, cfg)

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(`{"text":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(`{"text":"x"}`))
	req.SetBasicAuth("u", "p")
	rec = do(t, h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(&fakeConverter{}, nil), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "postcal_browser_sessions_in_flight")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "event", fileName("///"))
	assert.Equal(t, "Caf-night", fileName("Café night"))
}
