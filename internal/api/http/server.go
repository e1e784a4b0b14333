// Package http serves the REST API, health endpoints, the event websocket and the dashboard.
package http

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/config"
	"github.com/mayura26/strategy-analyser-sub000/internal/scheduler"
)

// Database is the storage health dependency.
type Database interface {
	Ping(ctx context.Context) error
}

// poolStatter is implemented by pgxpool-backed databases.
type poolStatter interface {
	Stat() *pgxpool.Stat
}

// InboxStats reports inbox scheduler counters.
type InboxStats interface {
	GetStats() scheduler.Stats
}

// Server provides the HTTP API.
type Server struct {
	server  *http.Server
	handler *Handler
	version string
	logger  *zap.Logger

	database Database
	inbox    InboxStats
	hub      *Hub
	static   fs.FS
}

// NewServer creates a new HTTP server listening on cfg.HTTPPort.
func NewServer(cfg *config.ServerConfig, handler *Handler, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		handler: handler,
		version: version,
		logger:  logger,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      s.routes(),
		ReadTimeout:  parseDuration(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: parseDuration(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetDatabase sets the database checked by the health endpoints.
func (s *Server) SetDatabase(database Database) {
	s.database = database
}

// SetInbox sets the inbox scheduler reported by /metrics.
func (s *Server) SetInbox(inbox InboxStats) {
	s.inbox = inbox
}

// SetHub sets the websocket hub served on /ws.
func (s *Server) SetHub(hub *Hub) {
	s.hub = hub
}

// SetStatic sets the dashboard files served on /.
func (s *Server) SetStatic(static fs.FS) {
	s.static = static
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/live", s.handleLiveness)
	mux.HandleFunc("GET /health/ready", s.handleReadiness)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	h := s.handler
	mux.HandleFunc("GET /api/v1/dialects", h.HandleDialects)
	mux.HandleFunc("POST /api/v1/parse", h.HandleParse)
	mux.HandleFunc("POST /api/v1/runs", h.HandleIngestRun)
	mux.HandleFunc("GET /api/v1/runs", h.HandleQueryRuns)
	mux.HandleFunc("GET /api/v1/runs/compare", h.HandleCompareRuns)
	mux.HandleFunc("POST /api/v1/runs/merge", h.HandleMergeRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("DELETE /api/v1/runs/{id}", h.HandleDeleteRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/{section}", h.HandleRunSection)
	mux.HandleFunc("GET /api/v1/strategies", h.HandleListStrategies)

	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /", s.handleStatic)

	return s.logRequests(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("address", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:   "healthy",
		Version:  s.version,
		Services: make(map[string]string),
	}

	if err := s.pingDatabase(ctx); err != nil {
		response.Services["postgres"] = "unhealthy: " + err.Error()
		response.Status = "unhealthy"
	} else {
		response.Services["postgres"] = "healthy"
	}

	if s.inbox != nil {
		response.Services["inbox"] = "healthy"
	} else {
		response.Services["inbox"] = "not configured"
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.pingDatabase(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) pingDatabase(ctx context.Context) error {
	if s.database == nil {
		return errors.New("database not configured")
	}
	return s.database.Ping(ctx)
}

// MetricsResponse represents the metrics response.
type MetricsResponse struct {
	Inbox     *scheduler.Stats `json:"inbox,omitempty"`
	Database  *DatabaseMetrics `json:"database,omitempty"`
	WSClients int              `json:"ws_clients"`
}

// DatabaseMetrics represents database-related metrics.
type DatabaseMetrics struct {
	TotalConnections  int32 `json:"total_connections"`
	AcquiredConns     int32 `json:"acquired_connections"`
	IdleConns         int32 `json:"idle_connections"`
	MaxConns          int32 `json:"max_connections"`
	ConstructingConns int32 `json:"constructing_connections"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	response := MetricsResponse{}

	if s.inbox != nil {
		stats := s.inbox.GetStats()
		response.Inbox = &stats
	}

	if statter, ok := s.database.(poolStatter); ok {
		poolStats := statter.Stat()
		response.Database = &DatabaseMetrics{
			TotalConnections:  poolStats.TotalConns(),
			AcquiredConns:     poolStats.AcquiredConns(),
			IdleConns:         poolStats.IdleConns(),
			MaxConns:          poolStats.MaxConns(),
			ConstructingConns: poolStats.ConstructingConns(),
		}
	}

	if s.hub != nil {
		response.WSClients = s.hub.GetClientCount()
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("websocket hub not running"), "")
		return
	}
	s.hub.ServeWS(w, r)
}

// handleStatic serves the dashboard, falling back to index.html for client-side routes.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.static == nil || strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	if _, err := fs.Stat(s.static, name); err != nil {
		name = "index.html"
	}

	http.ServeFileFS(w, r, s.static, name)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
