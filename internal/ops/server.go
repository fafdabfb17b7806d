// Package ops is the operator diagnostics surface: read-mostly endpoints over
// the routing core's stats, health, and routing decisions, plus the two cache
// maintenance verbs. Business callers link the library directly; this server
// exists for dashboards and runbooks.
package ops

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natemoovs/zerochurn-ai/internal/ai"
	"github.com/natemoovs/zerochurn-ai/internal/router"
)

var version = "dev"

// Server exposes the operator API over one ai.Service.
type Server struct {
	svc    *ai.Service
	logger *slog.Logger
}

func NewServer(svc *ai.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Routes builds the chi router for the operator surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/stats/models", s.handleStatsByModel)
		r.Get("/stats/tasks", s.handleStatsByTask)
		r.Get("/stats/recent", s.handleRecent)
		r.Get("/stats/cost", s.handleCost)
		r.Get("/routing/explain", s.handleExplain)
		r.Get("/models", s.handleModels)
		r.Get("/models/health", s.handleModelHealth)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/invalidate", s.handleCacheInvalidate)
		r.Post("/cache/sweep", s.handleCacheSweep)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Metrics().AggregateStats())
}

func (s *Server) handleStatsByModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Metrics().StatsByModel())
}

func (s *Server) handleStatsByTask(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Metrics().StatsByTask())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.svc.Metrics().Recent(limit))
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	// Zero window covers the whole retained history.
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeBadRequest(w, "window must be a duration like 24h or 30m")
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.svc.Metrics().CostBreakdown(window))
}

// handleExplain reports the routing decision for a task and context without
// invoking anything. The context arrives as query parameters.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	task := q.Get("task")
	if task == "" {
		writeBadRequest(w, "task query parameter is required")
		return
	}

	rc := router.Context{
		Severity:       q.Get("severity"),
		Urgency:        q.Get("urgency"),
		AccountTier:    q.Get("account_tier"),
		CustomerFacing: q.Get("customer_facing") == "true",
	}
	if raw := q.Get("revenue"); raw != "" {
		rev, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeBadRequest(w, "revenue must be a number")
			return
		}
		rc.RevenueMagnitude = rev
	}

	writeJSON(w, http.StatusOK, s.svc.Explain(task, rc))
}

type modelInfo struct {
	Key                  string  `json:"key"`
	Provider             string  `json:"provider"`
	Tier                 string  `json:"tier"`
	InputCostPerMillion  float64 `json:"input_cost_per_million"`
	OutputCostPerMillion float64 `json:"output_cost_per_million"`
	MaxTokens            int     `json:"max_tokens"`
	SupportsTools        bool    `json:"supports_tools"`
	SupportsStreaming    bool    `json:"supports_streaming"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.svc.Catalog().Models()
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, modelInfo{
			Key:                  m.Key,
			Provider:             m.Provider,
			Tier:                 m.Tier.String(),
			InputCostPerMillion:  m.InputCostPerMillion,
			OutputCostPerMillion: m.OutputCostPerMillion,
			MaxTokens:            m.MaxTokens,
			SupportsTools:        m.SupportsTools,
			SupportsStreaming:    m.SupportsStreaming,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

func (s *Server) handleModelHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.svc.Health().Snapshot()})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Cache().Stats())
}

type invalidateRequest struct {
	Task   string `json:"task"`
	Entity string `json:"entity"`
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be JSON with optional task and entity fields")
		return
	}

	removed := s.svc.Cache().Invalidate(req.Task, req.Entity)
	s.logger.Info("cache invalidated", "task", req.Task, "entity", req.Entity, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	removed := s.svc.Cache().ClearExpired()
	s.logger.Info("cache sweep completed", "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
