package catalog

import (
	"log/slog"
	"sort"

	"github.com/natemoovs/zerochurn-ai/internal/config"
	"github.com/natemoovs/zerochurn-ai/internal/telemetry"
)

// Model describes one language-model backend.
type Model struct {
	Key                  string
	Provider             string
	Tier                 Tier
	InputCostPerMillion  float64
	OutputCostPerMillion float64
	MaxTokens            int
	SupportsTools        bool
	SupportsStreaming    bool
}

// Catalog is the static registry of model descriptors. It is immutable after
// construction and safe for unguarded concurrent reads.
type Catalog struct {
	models []Model
	byKey  map[string]Model
	byTier map[Tier][]Model // all tier members, cheapest output cost first
	prefs  map[Tier][]Model // operator-pinned preference order, overrides byTier for selection
	def    Model

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New builds a catalog from descriptors in declaration order. tierPrefs, when
// non-empty for a tier, pins that tier's selection preference order; otherwise
// models are preferred by ascending output cost with declaration order
// breaking ties. metrics may be nil.
func New(models []Model, tierPrefs map[string][]string, logger *slog.Logger, metrics *telemetry.Metrics) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		models:  make([]Model, len(models)),
		byKey:   make(map[string]Model, len(models)),
		byTier:  make(map[Tier][]Model),
		prefs:   make(map[Tier][]Model),
		logger:  logger,
		metrics: metrics,
	}
	copy(c.models, models)

	for _, m := range c.models {
		if _, dup := c.byKey[m.Key]; dup {
			logger.Warn("duplicate model key in catalog, keeping first", "key", m.Key)
			continue
		}
		c.byKey[m.Key] = m
		c.byTier[m.Tier] = append(c.byTier[m.Tier], m)
	}

	// Cost-biased ordering within each tier; stable sort preserves
	// declaration order for ties.
	for tier := range c.byTier {
		sort.SliceStable(c.byTier[tier], func(i, j int) bool {
			return c.byTier[tier][i].OutputCostPerMillion < c.byTier[tier][j].OutputCostPerMillion
		})
	}

	for tierName, keys := range tierPrefs {
		t, ok := lookupTier(tierName)
		if !ok {
			logger.Warn("unknown tier in preference list, ignoring", "tier", tierName)
			continue
		}
		var ordered []Model
		for _, key := range keys {
			m, ok := c.byKey[key]
			if !ok {
				logger.Warn("unknown model key in tier preference, ignoring", "tier", tierName, "key", key)
				continue
			}
			ordered = append(ordered, m)
		}
		if len(ordered) > 0 {
			c.prefs[t] = ordered
		}
	}

	c.def = c.computeDefault()
	return c
}

// FromConfig builds a catalog from the models file and routing tier
// preferences. Entries with an unrecognized tier land in balanced.
func FromConfig(modelsCfg *config.ModelsConfig, routing config.RoutingConfig, logger *slog.Logger, metrics *telemetry.Metrics) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	models := make([]Model, 0, len(modelsCfg.Models))
	for _, mc := range modelsCfg.Models {
		tier, ok := lookupTier(mc.Tier)
		if !ok {
			logger.Warn("model has unrecognized tier, using balanced", "key", mc.Key, "tier", mc.Tier)
		}
		models = append(models, Model{
			Key:                  mc.Key,
			Provider:             mc.Provider,
			Tier:                 tier,
			InputCostPerMillion:  mc.InputCostPerMillion,
			OutputCostPerMillion: mc.OutputCostPerMillion,
			MaxTokens:            mc.MaxTokens,
			SupportsTools:        mc.SupportsTools,
			SupportsStreaming:    mc.SupportsStreaming,
		})
	}
	return New(models, routing.TierPreferences, logger, metrics)
}

// computeDefault picks the safe default: the cheapest fast-tier model, or the
// cheapest model overall when no fast tier exists.
func (c *Catalog) computeDefault() Model {
	if fast := c.byTier[TierFast]; len(fast) > 0 {
		return fast[0]
	}
	if len(c.models) == 0 {
		return Model{}
	}
	def := c.models[0]
	for _, m := range c.models[1:] {
		if m.OutputCostPerMillion < def.OutputCostPerMillion {
			def = m
		}
	}
	return def
}

// Get returns the descriptor for key. An unknown key never fails: it logs a
// warning and returns the default model.
func (c *Catalog) Get(key string) Model {
	if m, ok := c.byKey[key]; ok {
		return m
	}
	c.logger.Warn("unknown model key, using default", "key", key, "default", c.def.Key)
	if c.metrics != nil {
		c.metrics.RecordModelDefaulted()
	}
	return c.def
}

// Lookup returns the descriptor for key without the default substitution.
func (c *Catalog) Lookup(key string) (Model, bool) {
	m, ok := c.byKey[key]
	return m, ok
}

// Default returns the safe default model.
func (c *Catalog) Default() Model {
	return c.def
}

// EstimateCost computes the USD cost of a call with the given token counts.
// Unknown keys are estimated at the default model's rates.
func (c *Catalog) EstimateCost(key string, inputTokens, outputTokens int) float64 {
	m, ok := c.byKey[key]
	if !ok {
		m = c.def
	}
	return (float64(inputTokens)*m.InputCostPerMillion + float64(outputTokens)*m.OutputCostPerMillion) / 1_000_000
}

// CheapestInTier returns the lowest-output-cost model in a tier. Declaration
// order breaks ties. ok is false when the tier has no models.
func (c *Catalog) CheapestInTier(tier Tier) (Model, bool) {
	models := c.byTier[tier]
	if len(models) == 0 {
		return Model{}, false
	}
	return models[0], true
}

// ForTier returns the tier's models in selection preference order: the
// operator-pinned order when configured, cost-ascending otherwise.
func (c *Catalog) ForTier(tier Tier) []Model {
	if pinned := c.prefs[tier]; len(pinned) > 0 {
		return pinned
	}
	return c.byTier[tier]
}

// Models returns all descriptors in declaration order.
func (c *Catalog) Models() []Model {
	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out
}
