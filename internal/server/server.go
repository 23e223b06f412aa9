// Package server exposes the retrieval pipeline as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"findit/config"
	"findit/internal/domain"
	"findit/internal/observability"
	"findit/internal/port"
	"findit/internal/usecase"
)

// Searcher runs one query turn.
type Searcher interface {
	Run(ctx context.Context, in usecase.Input) (*domain.RetrievalResult, error)
}

type Server struct {
	searcher Searcher
	cfg      config.ServerConfig
	logger   *slog.Logger
}

func New(searcher Searcher, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{searcher: searcher, cfg: cfg, logger: logger}
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, observability.MetricsMiddleware(name, h))
	}
	route("GET /healthz", "/healthz", handleHealth)
	route("POST /v1/search", "/v1/search", s.handleSearch)
	route("POST /v1/search/voice", "/v1/search/voice", s.handleVoiceSearch)
	mux.Handle("GET /metrics", promhttp.Handler())

	mw := []Middleware{
		Recover(s.logger),
		Logger(s.logger),
		CORS(s.cfg.CORSOrigin),
	}
	if s.cfg.EnableTracing {
		mw = append(mw, OTel("findit"))
	}
	return Chain(mux, mw...)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // captioning and narration of k images
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func (s *Server) maxUploadBytes() int64 {
	mb := s.cfg.MaxUploadMB
	if mb <= 0 {
		mb = 25
	}
	return int64(mb) << 20
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchRequest is the JSON body for POST /v1/search.
type SearchRequest struct {
	Text    string `json:"text"`
	TopK    int    `json:"top_k,omitempty"`
	Narrate bool   `json:"narrate,omitempty"`
	Voice   string `json:"voice,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("invalid request body: %w: %v", domain.ErrInvalidArgument, err))
		return
	}
	if req.TopK < 0 {
		s.writeError(w, fmt.Errorf("top_k must not be negative: %w", domain.ErrInvalidArgument))
		return
	}

	s.search(w, r, usecase.Input{
		Text:        req.Text,
		Narrate:     req.Narrate,
		TopK:        req.TopK,
		VoicePreset: req.Voice,
	})
}

func (s *Server) handleVoiceSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		s.writeError(w, fmt.Errorf("invalid multipart body: %w: %v", domain.ErrInvalidArgument, err))
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, fmt.Errorf("missing audio file: %w", domain.ErrInvalidArgument))
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, fmt.Errorf("read audio: %w: %v", domain.ErrInvalidArgument, err))
		return
	}

	in := usecase.Input{
		Audio:       audio,
		AudioFormat: port.AudioWAV,
		VoicePreset: r.FormValue("voice"),
	}
	if f := r.FormValue("format"); f != "" {
		in.AudioFormat = port.AudioFormat(strings.ToLower(f))
	}
	if v := r.FormValue("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 0 {
			s.writeError(w, fmt.Errorf("invalid top_k %q: %w", v, domain.ErrInvalidArgument))
			return
		}
		in.TopK = k
	}
	if v := r.FormValue("narrate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, fmt.Errorf("invalid narrate %q: %w", v, domain.ErrInvalidArgument))
			return
		}
		in.Narrate = b
	}

	s.search(w, r, in)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, in usecase.Input) {
	result, err := s.searcher.Run(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps an error to the HTTP status the API reports. Decode and
// lookup failures count against the caller only when they come from the
// request itself; while captioning they mean the index points at images that
// changed on disk, and elsewhere they are upstream faults.
func StatusFor(err error) int {
	kind := domain.Kind(err)
	if kind == "decode_error" || kind == "not_found" {
		switch usecase.FailedStage(err) {
		case "", usecase.StageTranscribe:
		case usecase.StageCaption:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	switch kind {
	case "invalid_argument", "unsupported_format", "decode_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "index_not_built", "empty_collection", "already_exists":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: domain.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
