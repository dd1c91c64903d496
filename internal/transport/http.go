// Package transport provides the status and history HTTP API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/txdispatch/internal/monitor"
	"github.com/gateway-fm/txdispatch/internal/storage"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

// Pagination limits.
const (
	defaultRunLimit = 50
	maxRunLimit     = 100
	defaultTxLimit  = 100
	maxTxLimit      = 1000

	readyTimeout = 5 * time.Second
)

// RunAPI defines what the handlers need from the dispatcher.
type RunAPI interface {
	Status() types.StatusResponse
	ListRuns(ctx context.Context, limit, offset int) (*types.RunListResponse, error)
	GetRun(ctx context.Context, id string) (*types.RunDetail, error)
	GetRunTxs(ctx context.Context, id string, limit, offset int) (*types.TxListResponse, error)
	DeleteRun(ctx context.Context, id string) error
}

var _ RunAPI = (*monitor.Monitor)(nil)

// HealthCheck is a named readiness probe, usually one per RPC endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server handles HTTP requests for the dispatcher.
type Server struct {
	api       RunAPI
	checks    []HealthCheck
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	corsAllowedOrigins []string
	corsAllowAll       bool
}

// NewServer creates a new HTTP server and starts its status broadcaster.
// Call Close to stop it.
func NewServer(api RunAPI, checks []HealthCheck, logger *slog.Logger, corsAllowedOrigins string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	wsServer := NewWebSocketServer(api, logger)
	wsServer.Start()

	s := &Server{
		api:       api,
		checks:    checks,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  wsServer,
	}

	origins := strings.TrimSpace(corsAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		for _, o := range strings.Split(origins, ",") {
			s.corsAllowedOrigins = append(s.corsAllowedOrigins, strings.TrimSpace(o))
		}
	}

	return s
}

// Close stops the status broadcaster and drops websocket clients.
func (s *Server) Close() {
	s.wsServer.Stop()
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/runs", s.handleRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleRun)
	mux.HandleFunc("DELETE /v1/runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /v1/runs/{id}/transactions", s.handleRunTransactions)
	mux.HandleFunc("/v1/ws", s.wsServer.Handler())

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.corsMiddleware(mux.ServeHTTP)
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// handleStatus returns the live view of the current run.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.api.Status())
}

// handleRuns returns run history, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, defaultRunLimit, maxRunLimit)

	result, err := s.api.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.writeStorageError(w, "Failed to list runs", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleRun returns one run with its configuration and latency breakdown.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	detail, err := s.api.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStorageError(w, "Failed to get run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if st := s.api.Status(); st.RunID == id && isActiveState(st.State) {
		s.writeJSONError(w, "Run is still in progress", http.StatusConflict)
		return
	}
	if err := s.api.DeleteRun(r.Context(), id); err != nil {
		s.writeStorageError(w, "Failed to delete run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleRunTransactions returns a page of a run's audited transactions.
func (s *Server) handleRunTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, defaultTxLimit, maxTxLimit)

	result, err := s.api.GetRunTxs(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		s.writeStorageError(w, "Failed to get transactions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func isActiveState(state types.RunState) bool {
	switch state {
	case types.StateInitializing, types.StateRunning, types.StateConfirming:
		return true
	default:
		return false
	}
}

// pagination reads limit and offset, ignoring out-of-range values.
func pagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", slog.String("error", err.Error()))
	}
}

// writeJSONError writes a JSON error response.
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeStorageError maps history errors to status codes.
func (s *Server) writeStorageError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeJSONError(w, "Run not found", http.StatusNotFound)
	case errors.Is(err, monitor.ErrNoHistory):
		s.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error(message, slog.String("error", err.Error()))
		s.writeJSONError(w, message+": "+err.Error(), http.StatusInternalServerError)
	}
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// ReadinessCheck represents a single readiness check result.
type ReadinessCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok" or "failed"
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// handleReady runs every health check and reports 503 if any failed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make([]ReadinessCheck, 0, len(s.checks))
	allHealthy := true

	for _, hc := range s.checks {
		start := time.Now()
		err := hc.Check(ctx)

		check := ReadinessCheck{
			Name:      hc.Name,
			Status:    "ok",
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
			allHealthy = false
		}
		checks = append(checks, check)
	}

	code := http.StatusOK
	if !allHealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"ready":  allHealthy,
		"checks": checks,
	})
}
