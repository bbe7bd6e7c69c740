package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"postcal/internal/apperr"
	"postcal/internal/calendar"
	"postcal/internal/config"
	"postcal/internal/interpret"
	appLog "postcal/internal/log"
	"postcal/internal/metrics"
	"postcal/internal/model"
	"postcal/internal/pipeline"
)

const (
	maxJSONBody  = 15 << 20 // base64 images are large
	maxImageBody = 10 << 20
)

// Converter is the pipeline as seen by the HTTP layer.
type Converter interface {
	Run(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
	FromText(ctx context.Context, text string) (pipeline.Result, error)
	FromImage(ctx context.Context, data []byte) (pipeline.Result, error)
}

// Server exposes the conversion pipeline over HTTP.
type Server struct {
	cfg       *config.Config
	debug     bool
	mux       *http.ServeMux
	converter Converter
	metrics   *metrics.Metrics
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, converter Converter, m *metrics.Metrics, debug bool) *Server {
	s := &Server{
		cfg:       cfg,
		debug:     debug,
		mux:       http.NewServeMux(),
		converter: converter,
		metrics:   m,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="postcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "debug", s.debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("POST /api/convert", s.handleConvert)
	s.mux.HandleFunc("POST /api/convert/image", s.handleConvertImage)
	s.mux.HandleFunc("POST /api/parse", s.handleParse)
	s.mux.HandleFunc("POST /api/ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// convertRequest carries exactly one of URL, Text or Image. Image is base64,
// optionally a data: URI. InstagramURL is the older name for URL.
type convertRequest struct {
	URL          string `json:"url,omitempty"`
	InstagramURL string `json:"instagramUrl,omitempty"`
	Text         string `json:"text,omitempty"`
	Image        string `json:"image,omitempty"`
}

type convertResponse struct {
	Success     bool              `json:"success"`
	CalendarURL string            `json:"calendar_url"`
	Event       model.Event       `json:"event"`
	Artifacts   model.ArtifactSet `json:"artifacts"`
	AppleURL    string            `json:"apple_data_url"`
	SourceURL   string            `json:"source_url,omitempty"`
	Strategy    string            `json:"strategy,omitempty"`
}

func newConvertResponse(res pipeline.Result) convertResponse {
	out := convertResponse{
		Success:     true,
		CalendarURL: res.Artifacts.Google,
		Event:       res.Event,
		Artifacts:   res.Artifacts,
		AppleURL:    calendar.AppleDataURL(res.Artifacts.Apple),
		SourceURL:   res.SourceURL,
	}
	if res.Post != nil {
		out.Strategy = res.Post.Strategy
	}
	return out
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	res, ok := s.convertJSON(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newConvertResponse(res))
}

// handleConvertImage takes a multipart upload in the "image" field.
func (s *Server) handleConvertImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"image\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	res, err := s.converter.FromImage(r.Context(), data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newConvertResponse(res))
}

// handleParse interprets text and returns the event without artifacts.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.converter.FromText(r.Context(), req.Text)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool        `json:"success"`
		Event   model.Event `json:"event"`
	}{Success: true, Event: res.Event})
}

// handleICS converts like /api/convert but answers with the .ics file.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	res, ok := s.convertJSON(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, fileName(res.Event.Title)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, res.Artifacts.Apple)
}

func (s *Server) convertJSON(w http.ResponseWriter, r *http.Request) (pipeline.Result, bool) {
	var req convertRequest
	if !decodeBody(w, r, &req) {
		return pipeline.Result{}, false
	}

	in := pipeline.Input{URL: req.URL, Text: req.Text}
	if in.URL == "" {
		in.URL = req.InstagramURL
	}
	if strings.TrimSpace(req.Image) != "" {
		img, err := interpret.DecodeImage(req.Image)
		if err != nil {
			writeAppError(w, err)
			return pipeline.Result{}, false
		}
		in.Image = &img
	}

	res, err := s.converter.Run(r.Context(), in)
	if err != nil {
		writeAppError(w, err)
		return pipeline.Result{}, false
	}
	return res, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidURL, apperr.KindInvalidInput, apperr.KindInvalidDate:
		return http.StatusBadRequest
	case apperr.KindExtractionFailed:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalidResponse, apperr.KindInterpretationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var userMessages = map[apperr.Kind]string{
	apperr.KindInvalidURL:           "URL is not a supported post, reel or tv link",
	apperr.KindInvalidInput:         "invalid input",
	apperr.KindInvalidDate:          "could not read the event date",
	apperr.KindExtractionFailed:     "could not read the post content",
	apperr.KindInvalidResponse:      "the AI returned unusable event data",
	apperr.KindInterpretationFailed: "the AI service call failed",
}

func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg, ok := userMessages[kind]
	if !ok {
		msg = "failed to convert to calendar event"
	}
	if status >= http.StatusInternalServerError {
		appLog.Error("conversion request failed", err, "kind", kind, "status", status)
	}

	var ae *apperr.Error
	if kind == apperr.KindInvalidInput && errors.As(err, &ae) && ae.Msg != "" {
		msg = ae.Msg
	}
	writeJSON(w, status, errResp{Success: false, Kind: string(kind), Error: msg})
}

type errResp struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileName(title string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(title, "-"), "-.")
	if name == "" {
		return "event"
	}
	if len(name) > 60 {
		name = name[:60]
	}
	return name
}
