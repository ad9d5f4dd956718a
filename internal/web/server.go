package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tickwatch/internal/regime"
	"tickwatch/internal/sink"
)

// Server exposes the watch daemon's state over HTTP: the current market
// regime, recent signals and Prometheus metrics.
type Server struct {
	store    *regime.Store
	recorder *sink.Recorder
	log      zerolog.Logger
	srv      *http.Server
}

// NewServer creates the API server. recorder may be nil when the database
// sink is disabled; /api/signals then returns 404.
func NewServer(store *regime.Store, recorder *sink.Recorder, log zerolog.Logger) *Server {
	return &Server{
		store:    store,
		recorder: recorder,
		log:      log.With().Str("component", "web").Logger(),
	}
}

// Start starts the server on the specified port. It blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/signals", s.handleSignals)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info().Int("port", port).Msg("api server listening")
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// handleStatus returns the current regime classification and active thresholds.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, ok := s.store.Status()
	if !ok {
		http.Error(w, "no classification yet", http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

// handleSignals returns recent signals, newest first. Accepts ?limit=N.
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		http.Error(w, "signal database disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	signals, err := s.recorder.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("query signals")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, signals)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// corsMiddleware adds CORS headers for local development
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
