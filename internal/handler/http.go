package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmr-leaderboard/internal/auth"
	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/metrics"
	"github.com/jmr-leaderboard/internal/service"
	"github.com/jmr-leaderboard/internal/storage"
	"github.com/jmr-leaderboard/internal/websocket"
)

const defaultMaxUploadBytes = 8 << 20

// Handler provides the HTTP surface of the score server
type Handler struct {
	service   *service.LeaderboardService
	auth      *auth.Service
	artifacts storage.ArtifactStore
	hub       *websocket.Hub
	messages  *MessageSource
	metrics   *metrics.Manager
	metricsAt string
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	svc *service.LeaderboardService,
	authSvc *auth.Service,
	artifacts storage.ArtifactStore,
	hub *websocket.Hub,
	messages *MessageSource,
	cfg config.ServerConfig,
	logger *slog.Logger,
) *Handler {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Handler{
		service:   svc,
		auth:      authSvc,
		artifacts: artifacts,
		hub:       hub,
		messages:  messages,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// SetMetrics enables request metrics and serves the registry at path
func (h *Handler) SetMetrics(m *metrics.Manager, path string) {
	h.metrics = m
	h.metricsAt = path
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)

	r.Get("/", h.Index)
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Get("/ws", h.HandleWebSocket)

	if h.metrics != nil && h.metricsAt != "" {
		r.Handle(h.metricsAt, h.metrics.Handler())
	}

	// Game client protocol
	r.Route("/JMR/service", func(r chi.Router) {
		r.Get("/GameEntry", h.GameEntry)
		r.Get("/GetMessage", h.GetMessage)
		r.Get("/GetName", h.GetName)
		r.Get("/GetRanking", h.GetRanking)
		r.Get("/GetReplay", h.GetReplay)
		r.Post("/ScoreEntry", h.ScoreEntry)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(corsMiddleware)
		r.Use(middleware.Compress(5))

		r.Get("/rankings/{mode}", h.GetRankingPage)
		r.Get("/players/{playerID}/rankings/{mode}", h.GetPlayerRankings)
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through the service logger
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// writeText writes a plain body in the game client's format
func (h *Handler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if body != "" {
		if _, err := w.Write([]byte(body)); err != nil {
			h.logger.Debug("failed to write response", "error", err)
		}
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
