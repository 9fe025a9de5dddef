// Package server exposes the conversion pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-svc-bridge/internal/config"
	"github.com/example/go-svc-bridge/internal/pipeline"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Converter runs one voice conversion to completion.
type Converter interface {
	Convert(ctx context.Context, req pipeline.Request) error
}

// CharacterLister enumerates available characters.
type CharacterLister interface {
	ListCharacters() ([]string, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxBodyBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes:   1 << 20,
		workers:        2,
		requestTimeout: 0,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxBodyBytes caps the POST /generate request body size.
func WithMaxBodyBytes(n int) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithWorkers sets the maximum number of concurrent conversions.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline. Zero means no deadline;
// a full conversion can legitimately run for minutes.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	converter  Converter
	characters CharacterLister
	opts       options
	sem        chan struct{} // semaphore for worker pool
	log        *slog.Logger
}

// NewHandler returns an http.Handler serving /health, /characters, and
// POST /generate.
func NewHandler(converter Converter, characters CharacterLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		converter:  converter,
		characters: characters,
		opts:       opts,
		log:        opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/characters", h.handleCharacters)
	mux.HandleFunc("/generate", h.handleGenerate)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleCharacters(w http.ResponseWriter, _ *http.Request) {
	names, err := h.characters.ListCharacters()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

type generateRequest struct {
	Inputs struct {
		UserAudio string `json:"user_audio"`
	} `json:"inputs"`
	Options struct {
		Character  string `json:"character"`
		PitchShift int    `json:"pitch_shift"`
	} `json:"options"`
	OutputFile string `json:"output_file"`
	GPUID      string `json:"gpu_id"`
	SessionID  string `json:"session_id"`
}

// validate reports the first missing required field. pitch_shift is optional
// and intentionally unvalidated; an out-of-range value surfaces as a
// synthesis failure.
func (r *generateRequest) validate() error {
	if r.Inputs.UserAudio == "" {
		return errors.New("inputs.user_audio is required")
	}
	if r.Options.Character == "" {
		return errors.New("options.character is required")
	}
	if r.OutputFile == "" {
		return errors.New("output_file is required")
	}
	return nil
}

func (h *handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}
	body := http.MaxBytesReader(w, r.Body, int64(h.opts.maxBodyBytes))

	var req generateRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
			// slot acquired
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx := r.Context()
	if h.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	err := h.converter.Convert(ctx, pipeline.Request{
		UserAudio:  req.Inputs.UserAudio,
		Character:  req.Options.Character,
		PitchShift: req.Options.PitchShift,
		OutputName: req.OutputFile,
		GPUID:      req.GPUID,
		SessionID:  sessionID,
	})
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.log.ErrorContext(r.Context(), "conversion failed",
			slog.String("character", req.Options.Character),
			slog.String("session_id", sessionID),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "conversion complete",
		slog.String("character", req.Options.Character),
		slog.String("session_id", sessionID),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"output_file": req.OutputFile,
		"session_id":  sessionID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	pipe            *pipeline.Pipeline
	shutdownTimeout time.Duration
}

func New(cfg config.Config, pipe *pipeline.Pipeline) *Server {
	return &Server{
		cfg:             cfg,
		pipe:            pipe,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if s.pipe == nil {
		return errors.New("pipeline is required")
	}

	h := NewHandler(s.pipe, s.pipe,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks a running server's /health endpoint.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
