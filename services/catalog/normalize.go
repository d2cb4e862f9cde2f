package catalog

import "github.com/upb/llm-gateway/models"

// Defaults applied to variants whose stored routing sections are absent.
var (
	DefaultRollout = models.DefaultRollout
	DefaultWeights = models.DefaultWeights
	DefaultHealth  = models.DefaultHealth
)

// Normalize fills routing defaults on every variant of m in place.
func Normalize(m *models.PublicModel) {
	for i := range m.Variants {
		m.Variants[i].Routing = NormalizeRouting(m.Variants[i].Routing)
	}
}

// NormalizeRouting returns policy with every absent section replaced by its
// default. Sections that are present, even when false or zero, are kept.
// The result never shares section pointers with policy.
func NormalizeRouting(policy models.RoutingPolicy) models.RoutingPolicy {
	enabled := policy.IsEnabled()
	rollout := policy.RolloutOrDefault()
	weights := policy.WeightsOrDefault()
	health := policy.HealthOrDefault()

	health.Penalties.P95LatencyMs = normalizePenalty(health.Penalties.P95LatencyMs, DefaultHealth.Penalties.P95LatencyMs)
	health.Penalties.ErrorRate = normalizePenalty(health.Penalties.ErrorRate, DefaultHealth.Penalties.ErrorRate)

	policy.Enabled = &enabled
	policy.Rollout = &rollout
	policy.Weights = &weights
	policy.Health = &health
	return policy
}

// zero multipliers fall back to the default
func normalizePenalty(p, def models.Penalty) models.Penalty {
	if p == (models.Penalty{}) {
		return def
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	return p
}
