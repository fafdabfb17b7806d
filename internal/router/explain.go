package router

import (
	"fmt"

	"github.com/natemoovs/zerochurn-ai/internal/catalog"
)

// Explanation describes a routing decision for diagnostics. It must not be
// used to drive behavior.
type Explanation struct {
	Model         catalog.Model `json:"model"`
	Justification string        `json:"justification"`
	// CostPer1000Calls assumes a nominal 1000 input and 1000 output tokens
	// per call.
	CostPer1000Calls float64 `json:"cost_per_1000_calls"`
}

// ExplainRouting reports the decision SelectModel would make for the same
// inputs, with a human-readable justification.
func (r *Router) ExplainRouting(taskTag string, rc Context) Explanation {
	base, override := r.baseFor(taskTag)
	tier, reason := escalate(base, rc, r.routing())

	var model catalog.Model
	var justification string
	switch {
	case reason == "" && override != "":
		model = r.catalog.Get(override)
		justification = fmt.Sprintf("task %q pinned to model %s; no escalation", taskTag, model.Key)
	case reason == "":
		model = r.resolveTier(tier)
		justification = fmt.Sprintf("task %q base tier %s; no escalation; selected %s", taskTag, base, model.Key)
	default:
		model = r.resolveTier(tier)
		justification = fmt.Sprintf("task %q base tier %s; escalated to %s (%s); selected %s", taskTag, base, tier, reason, model.Key)
	}

	return Explanation{
		Model:            model,
		Justification:    justification,
		CostPer1000Calls: model.InputCostPerMillion + model.OutputCostPerMillion,
	}
}
