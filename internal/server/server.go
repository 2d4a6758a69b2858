// Package server exposes the clip store, the chain index and live recording
// sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/satindergrewal/clipchain/internal/chain"
	"github.com/satindergrewal/clipchain/internal/clip"
	"github.com/satindergrewal/clipchain/internal/stream"
)

// Options tunes the HTTP surface.
type Options struct {
	MaxUploadBytes int64
	WaveformHeight int
	MonitorBuffer  int
	STUNServer     string
}

// Server routes clip API requests.
type Server struct {
	store *clip.Store
	index *chain.Index
	opts  Options

	peaks       chan stream.Peak
	broadcaster *stream.Broadcaster
	sessions    *stream.SessionHandler
	mux         *http.ServeMux
	logger      *slog.Logger
}

// New wires the handlers. Run must be started for live peaks to reach
// monitor listeners.
func New(store *clip.Store, index *chain.Index, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MonitorBuffer < 1 {
		opts.MonitorBuffer = 256
	}
	if opts.WaveformHeight < 2 {
		opts.WaveformHeight = 100
	}

	peaks := make(chan stream.Peak, opts.MonitorBuffer)
	s := &Server{
		store:       store,
		index:       index,
		opts:        opts,
		peaks:       peaks,
		broadcaster: stream.NewBroadcaster(opts.MonitorBuffer),
		sessions:    stream.NewSessionHandler(peaks, opts.STUNServer, opts.MonitorBuffer, logger.With("component", "session")),
		mux:         http.NewServeMux(),
		logger:      logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/clips", s.handleList)
	s.mux.HandleFunc("GET /api/clips/{id}", s.handleMetadata)
	s.mux.HandleFunc("GET /api/clips/{id}/audio", s.handleAudio)
	s.mux.HandleFunc("GET /api/clips/{id}/peaks", s.handlePeaks)
	s.mux.HandleFunc("GET /api/clips/{id}/waveform.png", s.handleWaveform)
	s.mux.HandleFunc("GET /api/clips/{id}/chain", s.handleChain)
	s.mux.HandleFunc("GET /api/clips/{id}/play", s.handlePlay)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	s.mux.Handle("/api/session", s.sessions)
	s.mux.Handle("GET /api/monitor", stream.NewMonitorHandler(s.broadcaster, s.logger.With("component", "monitor")))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run fans live session peaks out to monitor listeners until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.broadcaster.Run(ctx, s.peaks)
}

// Close ends all live recording sessions.
func (s *Server) Close() {
	s.sessions.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.store.Catalog()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	indexed, err := s.index.Count(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clips":    len(catalog),
		"indexed":  indexed,
		"sessions": s.sessions.PeerCount(),
		"monitors": s.broadcaster.ListenerCount(),
	})
}

type errorBody struct {
	Reason string `json:"reason"`
	Field  string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeReason(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorBody{Reason: reason})
}

// writeErr maps store, validator and index errors onto status codes.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var rej *clip.Rejection
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusBadRequest, errorBody{Reason: rej.Code(), Field: rej.Field})
	case errors.Is(err, clip.ErrNotFound):
		writeReason(w, http.StatusNotFound, "NotFound")
	case errors.Is(err, clip.ErrIOFailure):
		s.logger.Error("clip storage unavailable", "error", err)
		writeReason(w, http.StatusServiceUnavailable, "IOFailure")
	default:
		s.logger.Error("request failed", "error", err)
		writeReason(w, http.StatusInternalServerError, "Internal")
	}
}
