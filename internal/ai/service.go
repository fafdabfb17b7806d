// Package ai assembles the routing core behind one facade. A Service owns an
// isolated set of components (catalog, router, cache, metrics, executor,
// health, budget) so hosts and tests can run independent instances; nothing
// in the core is process-global.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/natemoovs/zerochurn-ai/internal/budget"
	"github.com/natemoovs/zerochurn-ai/internal/cache"
	"github.com/natemoovs/zerochurn-ai/internal/catalog"
	"github.com/natemoovs/zerochurn-ai/internal/config"
	"github.com/natemoovs/zerochurn-ai/internal/fallback"
	"github.com/natemoovs/zerochurn-ai/internal/metrics"
	"github.com/natemoovs/zerochurn-ai/internal/provider"
	"github.com/natemoovs/zerochurn-ai/internal/router"
	"github.com/natemoovs/zerochurn-ai/internal/telemetry"
)

// ErrNoInvoker is returned by Invoke when the service was built without a
// backend invoker. Routing diagnostics and cache reads still work.
var ErrNoInvoker = errors.New("no model invoker configured")

// DefaultBudgetScope accumulates spend for callers that do not name a scope.
const DefaultBudgetScope = "global"

// Deps are the service's construction inputs. Config, Models, and Tasks are
// accessors rather than values so a reloading loader is picked up live;
// static configs work too (wrap them in closures). Invoker may be nil for
// diagnostics-only hosts. Redis, Telemetry, and Logger are optional.
type Deps struct {
	Config    func() *config.Config
	Models    func() *config.ModelsConfig
	Tasks     func() *config.TasksConfig
	Invoker   provider.Invoker
	Redis     *redis.Client
	Telemetry *telemetry.Metrics
	Logger    *slog.Logger
}

// Service runs the route -> cache -> invoke-with-fallback -> account flow.
type Service struct {
	mu       sync.RWMutex
	catalog  *catalog.Catalog
	router   *router.Router
	executor *fallback.Executor

	cache    *cache.Cache
	recorder *metrics.Recorder
	health   *router.HealthTracker
	budget   *budget.Tracker

	cfg     func() *config.Config
	models  func() *config.ModelsConfig
	tasks   func() *config.TasksConfig
	invoker provider.Invoker
	tel     *telemetry.Metrics
	logger  *slog.Logger
}

// New builds a service and its owned components from deps.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:     deps.Config,
		models:  deps.Models,
		tasks:   deps.Tasks,
		invoker: deps.Invoker,
		tel:     deps.Telemetry,
		logger:  logger,
	}

	cfg := deps.Config()
	s.cache = cache.New(deps.Tasks, func() config.CacheConfig { return s.cfg().Cache }, logger)
	s.recorder = metrics.New(cfg.Metrics.HistorySize, catalogCost{s})
	s.health = router.NewHealthTracker(
		cfg.Routing.CircuitBreaker.FailureThreshold,
		cfg.Routing.CircuitBreaker.RecoveryProbeInterval,
	)
	s.budget = budget.New(deps.Redis)

	s.rebuild()
	return s
}

// Reload rebuilds the catalog-derived components from current config. Wire it
// to the loader's OnReload hook. Cache contents, metrics history, and breaker
// state survive a reload.
func (s *Service) Reload() {
	s.rebuild()
	s.logger.Info("routing components reloaded", "models", len(s.models().Models))
}

func (s *Service) rebuild() {
	cat := catalog.FromConfig(s.models(), s.cfg().Routing, s.logger, s.tel)
	rt := router.New(cat, s.tasks, func() config.RoutingConfig { return s.cfg().Routing }, s.logger)
	ex := fallback.New(cat, func() map[string][]string { return s.cfg().Fallback.Chains }, s.logger)

	s.mu.Lock()
	s.catalog, s.router, s.executor = cat, rt, ex
	s.mu.Unlock()
}

// parts returns a consistent snapshot of the reloadable components.
func (s *Service) parts() (*catalog.Catalog, *router.Router, *fallback.Executor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog, s.router, s.executor
}

// Catalog returns the current model catalog.
func (s *Service) Catalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Cache returns the response cache for operator tooling.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Metrics returns the call-metrics recorder for operator tooling.
func (s *Service) Metrics() *metrics.Recorder { return s.recorder }

// Health returns the per-model health tracker for operator tooling.
func (s *Service) Health() *router.HealthTracker { return s.health }

// Explain reports the routing decision Invoke would make, for diagnostics
// only.
func (s *Service) Explain(taskTag string, rc router.Context) router.Explanation {
	_, rt, _ := s.parts()
	return rt.ExplainRouting(taskTag, rc)
}

// catalogCost adapts the service's current catalog to metrics.CostEstimator,
// staying correct across config reloads.
type catalogCost struct{ s *Service }

func (c catalogCost) EstimateCost(modelKey string, inputTokens, outputTokens int) float64 {
	return c.s.Catalog().EstimateCost(modelKey, inputTokens, outputTokens)
}

// InvokeRequest is one business call into the core.
type InvokeRequest struct {
	TaskTag string
	Prompt  string
	Payload map[string]any
	// Context carries the escalation hints for this one decision.
	Context router.Context
	// MaxTokens caps the response; zero uses the routed model's own limit.
	MaxTokens int
	// BudgetScope attributes spend; empty uses DefaultBudgetScope.
	BudgetScope string
}

// InvokeResult is the outcome of a completed call.
type InvokeResult struct {
	Content       string
	ModelUsed     string
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
	Cached        bool
	FallbacksUsed int
	LatencyMs     int64
}

// Invoke runs the full flow for one task: route, consult the cache, execute
// with fallback, store cacheable results, and account for the attempt in
// metrics, telemetry, health, and budget. The returned error is either a
// budget rejection (enforcing hosts), a permanent provider error, or a chain
// exhaustion; every other degradation is absorbed.
func (s *Service) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	cat, rt, ex := s.parts()

	model := rt.SelectModel(req.TaskTag, req.Context)
	tracker := s.recorder.StartCall(req.TaskTag, model.Key)

	if resp, ok := s.cache.Get(req.TaskTag, req.Payload, model.Key); ok {
		m := tracker.Complete(metrics.Completion{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Cached:       true,
			Success:      true,
		})
		avoided := cat.EstimateCost(model.Key, resp.InputTokens, resp.OutputTokens)
		if s.tel != nil {
			s.tel.RecordCacheEvent(req.TaskTag, "hit")
			s.tel.RecordCall(telemetry.CallLabels{
				Task:           req.TaskTag,
				Model:          model.Key,
				Outcome:        "cached",
				DurationMs:     float64(m.LatencyMs),
				InputTokens:    resp.InputTokens,
				OutputTokens:   resp.OutputTokens,
				CostAvoidedUSD: avoided,
			})
		}
		s.logger.Info("ai call completed",
			"task", req.TaskTag,
			"model", model.Key,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
			"estimated_cost_usd", 0.0,
			"cost_avoided_usd", avoided,
			"duration_ms", m.LatencyMs,
			"cached", true,
			"fallbacks", 0,
		)
		return &InvokeResult{
			Content:      resp.Content,
			ModelUsed:    model.Key,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Cached:       true,
			LatencyMs:    m.LatencyMs,
		}, nil
	}
	if s.tel != nil && s.cache.Cacheable(req.TaskTag) {
		s.tel.RecordCacheEvent(req.TaskTag, "miss")
	}

	if s.invoker == nil {
		return nil, fmt.Errorf("invoke %s: %w", req.TaskTag, ErrNoInvoker)
	}

	scope := req.BudgetScope
	if scope == "" {
		scope = DefaultBudgetScope
	}
	budgetCfg := s.cfg().Budget
	if budgetCfg.DailyLimitUSD > 0 {
		check := s.budget.Check(ctx, scope, budgetCfg.DailyLimitUSD)
		if !check.Allowed {
			if budgetCfg.Enforce {
				s.logger.Warn("daily AI budget exhausted, rejecting call",
					"task", req.TaskTag,
					"scope", scope,
					"spent_usd", check.SpentUSD,
					"limit_usd", check.LimitUSD,
				)
				return nil, fmt.Errorf("invoke %s: %w", req.TaskTag, budget.ErrExceeded)
			}
			s.logger.Warn("daily AI budget exceeded, proceeding (enforcement disabled)",
				"task", req.TaskTag,
				"scope", scope,
				"spent_usd", check.SpentUSD,
				"limit_usd", check.LimitUSD,
			)
		}
	}

	op := func(ctx context.Context, m catalog.Model) (*provider.Response, error) {
		return s.invoker(ctx, m, provider.Request{
			TaskTag:   req.TaskTag,
			Prompt:    req.Prompt,
			Payload:   req.Payload,
			MaxTokens: tokenLimit(req.MaxTokens, m.MaxTokens),
		})
	}
	onFallback := func(from, to string, err error) {
		state := s.health.RecordFailure(from)
		if s.tel != nil {
			s.tel.SetBreakerState(from, float64(state))
			s.tel.RecordFallback(from, to)
		}
		s.logger.Warn("model call failed, falling back",
			"task", req.TaskTag,
			"from", from,
			"to", to,
			"error", err,
		)
	}

	outcome, err := ex.Execute(ctx, model.Key, s.cfg().Fallback.MaxAttempts, op, onFallback)
	if err != nil {
		state := s.health.RecordFailure(outcome.ModelUsed)
		m := tracker.Complete(metrics.Completion{
			ModelKey:     outcome.ModelUsed,
			FallbackUsed: outcome.FallbacksUsed > 0,
			Success:      false,
			Err:          err,
		})
		if s.tel != nil {
			s.tel.SetBreakerState(outcome.ModelUsed, float64(state))
			s.tel.RecordCall(telemetry.CallLabels{
				Task:       req.TaskTag,
				Model:      outcome.ModelUsed,
				Outcome:    "error",
				DurationMs: float64(m.LatencyMs),
			})
		}
		s.logger.Error("ai call failed",
			"task", req.TaskTag,
			"model", outcome.ModelUsed,
			"attempts", outcome.Attempts,
			"duration_ms", m.LatencyMs,
			"error", err,
		)
		return nil, err
	}

	resp := outcome.Response
	state := s.health.RecordSuccess(outcome.ModelUsed)

	m := tracker.Complete(metrics.Completion{
		ModelKey:     outcome.ModelUsed,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		FallbackUsed: outcome.FallbacksUsed > 0,
		Success:      true,
	})

	// Stored under the routed key: the next identical request routes the same
	// way, so that is the key its cache read will use.
	s.cache.Set(req.TaskTag, req.Payload, model.Key, resp)

	if m.EstimatedCost > 0 {
		if err := s.budget.Record(ctx, scope, m.EstimatedCost); err != nil {
			s.logger.Warn("failed to record AI spend", "scope", scope, "error", err)
		}
	}

	if s.tel != nil {
		s.tel.SetBreakerState(outcome.ModelUsed, float64(state))
		s.tel.RecordCall(telemetry.CallLabels{
			Task:         req.TaskTag,
			Model:        outcome.ModelUsed,
			Outcome:      "success",
			DurationMs:   float64(m.LatencyMs),
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      m.EstimatedCost,
		})
	}

	s.logger.Info("ai call completed",
		"task", req.TaskTag,
		"model", outcome.ModelUsed,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"estimated_cost_usd", m.EstimatedCost,
		"duration_ms", m.LatencyMs,
		"cached", false,
		"fallbacks", outcome.FallbacksUsed,
	)

	return &InvokeResult{
		Content:       resp.Content,
		ModelUsed:     outcome.ModelUsed,
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
		EstimatedCost: m.EstimatedCost,
		Cached:        false,
		FallbacksUsed: outcome.FallbacksUsed,
		LatencyMs:     m.LatencyMs,
	}, nil
}

// tokenLimit caps the requested response size at the model's own limit.
func tokenLimit(requested, modelMax int) int {
	if requested <= 0 {
		return modelMax
	}
	if modelMax > 0 && requested > modelMax {
		return modelMax
	}
	return requested
}
