// Package http exposes the read-only API over the published snapshot:
// current regime, transition history, stability stats, health, and
// Prometheus metrics. The server never mutates state.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"

	"github.com/regimed/regimed/internal/domain/history"
	"github.com/regimed/regimed/internal/snapshot"
	"github.com/regimed/regimed/internal/telemetry"
)

// Config holds the listener settings.
type Config struct {
	ListenAddr   string         `yaml:"listen_addr"`  // default ":8089"
	ReadTimeout  model.Duration `yaml:"read_timeout"` // default 10s
	WriteTimeout model.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the production listener settings.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8089",
		ReadTimeout:  model.Duration(10 * time.Second),
		WriteTimeout: model.Duration(15 * time.Second),
	}
}

// Server serves the read API.
type Server struct {
	cfg     Config
	store   *snapshot.Store
	tracker *history.Tracker
	metrics *telemetry.Metrics
	hub     *Hub
	httpSrv *http.Server
}

// NewServer wires the routes. The returned server's Hub can be registered
// as a change notifier.
func NewServer(cfg Config, store *snapshot.Store, tracker *history.Tracker, metrics *telemetry.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		metrics: metrics,
		hub:     NewHub(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/regime", s.handleRegime).Methods(http.MethodGet)
	r.HandleFunc("/regime/report", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/history/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws/changes", s.hub.handleWS)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.ReadTimeout),
		WriteTimeout: time.Duration(cfg.WriteTimeout),
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Hub returns the websocket hub for notifier registration.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot": snap,
		"stale":    s.store.Stale(time.Now()),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.store.Latest()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(snap.FormatReport()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": s.tracker.Recent(limit),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no snapshot published yet")
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	stats := s.tracker.Stats(time.Now(), window, snap.State.CurrentLabel, snap.State.EnteredAt)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	stale := s.store.Stale(now)
	status := http.StatusOK
	if stale {
		status = http.StatusServiceUnavailable
	}

	summary, err := s.metrics.Summary()
	if err != nil {
		log.Error().Err(err).Msg("failed to gather metrics summary")
	}

	writeJSON(w, status, map[string]interface{}{
		"stale":     stale,
		"freshness": s.store.Freshness().String(),
		"metrics":   summary,
		"time":      now.UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
