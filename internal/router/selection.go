// Package router maps (task tag, routing context) to a concrete model
// descriptor through per-task policies and an explicit, ordered escalation
// rule list, and tracks per-model availability with circuit breakers.
package router

import (
	"log/slog"

	"github.com/natemoovs/zerochurn-ai/internal/catalog"
	"github.com/natemoovs/zerochurn-ai/internal/config"
)

// Context carries the caller-supplied hints that can escalate a routing
// decision. It lives only for the duration of one decision.
type Context struct {
	RevenueMagnitude float64
	Severity         string
	Urgency          string
	CustomerFacing   bool
	AccountTier      string
}

// Router selects a model for a task. It never fails: unknown tasks use the
// configured default tier and unknown model keys resolve through the
// catalog's safe default.
type Router struct {
	catalog *catalog.Catalog
	tasks   func() *config.TasksConfig
	routing func() config.RoutingConfig
	logger  *slog.Logger
}

func New(cat *catalog.Catalog, tasks func() *config.TasksConfig, routing func() config.RoutingConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		catalog: cat,
		tasks:   tasks,
		routing: routing,
		logger:  logger,
	}
}

// escalate applies the escalation rules in fixed precedence, first match
// wins:
//
//  1. enterprise account tier          -> premium
//  2. revenue >= enterprise threshold  -> at least quality; premium when the
//     base is already quality or above
//  3. revenue >= mid-market threshold  -> exactly one tier above base
//  4. critical severity AND urgency    -> one tier above base, capped premium
//  5. customer-facing fast-tier task   -> balanced
//
// The returned reason is empty when no rule fired. The result is a pure
// function of its inputs and never sits below the base tier.
func escalate(base catalog.Tier, rc Context, cfg config.RoutingConfig) (catalog.Tier, string) {
	switch {
	case rc.AccountTier == "enterprise":
		return catalog.TierPremium, "enterprise account tier"
	case cfg.EnterpriseThreshold > 0 && rc.RevenueMagnitude >= cfg.EnterpriseThreshold:
		if base >= catalog.TierQuality {
			return catalog.TierPremium, "revenue above enterprise threshold"
		}
		return catalog.TierQuality, "revenue above enterprise threshold"
	case cfg.MidMarketThreshold > 0 && rc.RevenueMagnitude >= cfg.MidMarketThreshold:
		return base.Next(), "revenue above mid-market threshold"
	case rc.Severity == "critical" && rc.Urgency == "critical":
		return base.Next(), "critical severity and urgency"
	case rc.CustomerFacing && base == catalog.TierFast:
		return catalog.TierBalanced, "customer-facing fast-tier task"
	}
	return base, ""
}

// SelectModel picks the model for one call. A task's explicit override is
// honored only when no escalation rule fires.
func (r *Router) SelectModel(taskTag string, rc Context) catalog.Model {
	base, override := r.baseFor(taskTag)
	tier, reason := escalate(base, rc, r.routing())
	if reason == "" && override != "" {
		return r.catalog.Get(override)
	}
	return r.resolveTier(tier)
}

// baseFor looks up the task's base tier and override. Unknown tags fall back
// to the configured default tier with no override.
func (r *Router) baseFor(taskTag string) (catalog.Tier, string) {
	def := catalog.ParseTier(r.routing().DefaultTier, catalog.TierBalanced)
	policy, ok := r.tasks().Policy(taskTag)
	if !ok {
		return def, ""
	}
	return catalog.ParseTier(policy.BaseTier, def), policy.Override
}

// resolveTier returns the first model in the tier's preference order, or the
// catalog default when the tier is empty.
func (r *Router) resolveTier(tier catalog.Tier) catalog.Model {
	if candidates := r.catalog.ForTier(tier); len(candidates) > 0 {
		return candidates[0]
	}
	r.logger.Warn("no models in tier, using catalog default", "tier", tier.String())
	return r.catalog.Default()
}
