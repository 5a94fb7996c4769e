// Package api serves recorded runs over HTTP and streams the rows of a
// running simulation over a websocket. All endpoints are read-only.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/reson/internal/engine"
	"github.com/talgya/reson/internal/persistence"
)

// Server exposes the run store and, optionally, a live row stream.
type Server struct {
	DB      *persistence.DB // nil when only streaming
	Hub     *Hub            // nil when only serving stored runs
	Addr    string
	Limiter *RateLimiter // nil disables rate limiting

	http *http.Server
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/run/", s.handleRunRoutes)

	if s.Hub != nil {
		mux.HandleFunc("/api/v1/stream", s.Hub.WSHandler())
	}

	var handler http.Handler = mux
	if s.Limiter != nil {
		handler = s.Limiter.Middleware(handler)
	}
	return corsMiddleware(getOnly(handler))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "database", s.DB != nil, "stream", s.Hub != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("HTTP API stopped", "addr", s.Addr)
	return nil
}

// corsMiddleware allows the origins listed in RESONSIM_CORS_ORIGINS
// (comma-separated) plus local dev servers.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("RESONSIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodOptions {
			w.Header().Set("Allow", "GET, OPTIONS")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":     "resonsim",
		"database": s.DB != nil,
		"stream":   s.Hub != nil,
	}
	if s.Hub != nil {
		status["live"] = s.Hub.Status()
	}
	if s.DB != nil {
		if runs, err := s.DB.Runs(1); err == nil && len(runs) > 0 {
			status["latest_run"] = runs[0]
		}
	}
	writeJSON(w, status)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	runs, err := s.DB.Runs(limit)
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

// handleRunRoutes dispatches /api/v1/run/:id[/samples|/pools|/anomalies].
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/run/"), "/")
	id, sub, _ := strings.Cut(path, "/")
	if id == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}

	run, err := s.DB.Run(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("run query failed", "run", id, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	switch sub {
	case "":
		s.handleRunDetail(w, run)
	case "samples":
		s.handleSamples(w, r, id)
	case "pools":
		s.handlePools(w, r, id)
	case "anomalies":
		s.handleAnomalies(w, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRunDetail(w http.ResponseWriter, run persistence.Run) {
	resources, err := s.DB.Resources(run.ID)
	if err != nil {
		slog.Error("resource list failed", "run", run.ID, "error", err)
	}
	pools, err := s.DB.Pools(run.ID)
	if err != nil {
		slog.Error("pool list failed", "run", run.ID, "error", err)
	}
	if resources == nil {
		resources = []string{}
	}
	if pools == nil {
		pools = []string{}
	}
	writeJSON(w, map[string]any{
		"run":       run,
		"resources": resources,
		"pools":     pools,
	})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request, runID string) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "resource query parameter is required", http.StatusBadRequest)
		return
	}
	samples, err := s.DB.Samples(runID, resource)
	if err != nil {
		slog.Error("samples query failed", "run", runID, "resource", resource, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []persistence.Sample{}
	}
	writeJSON(w, samples)
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request, runID string) {
	pool := r.URL.Query().Get("pool")
	if pool == "" {
		http.Error(w, "pool query parameter is required", http.StatusBadRequest)
		return
	}
	util, err := s.DB.PoolUtilization(runID, pool)
	if err != nil {
		slog.Error("pool query failed", "run", runID, "pool", pool, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if util == nil {
		util = []float64{}
	}
	writeJSON(w, map[string]any{"pool": pool, "utilization": util})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, runID string) {
	anomalies, err := s.DB.Anomalies(runID)
	if err != nil {
		slog.Error("anomalies query failed", "run", runID, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if anomalies == nil {
		anomalies = []engine.Anomaly{}
	}
	writeJSON(w, anomalies)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
