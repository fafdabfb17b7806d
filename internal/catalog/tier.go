package catalog

// Tier is a discrete cost/quality bucket for a model. Tiers are ordered:
// comparing two tiers with < and > follows fast < balanced < quality < premium.
type Tier int

const (
	TierFast Tier = iota
	TierBalanced
	TierQuality
	TierPremium
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierBalanced:
		return "balanced"
	case TierQuality:
		return "quality"
	case TierPremium:
		return "premium"
	default:
		return "unknown"
	}
}

// Next returns the tier one step above, capped at premium.
func (t Tier) Next() Tier {
	if t >= TierPremium {
		return TierPremium
	}
	return t + 1
}

func lookupTier(s string) (Tier, bool) {
	switch s {
	case "fast":
		return TierFast, true
	case "balanced":
		return TierBalanced, true
	case "quality":
		return TierQuality, true
	case "premium":
		return TierPremium, true
	}
	return TierBalanced, false
}

// ParseTier maps a tier name to its Tier value. Unknown names return the
// fallback, so a misconfigured tier never breaks routing.
func ParseTier(s string, fallback Tier) Tier {
	if t, ok := lookupTier(s); ok {
		return t
	}
	return fallback
}
