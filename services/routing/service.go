package routing

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/capabilities"
	"github.com/upb/llm-gateway/services/health"
	"github.com/upb/llm-gateway/services/providers"
)

// Strategy selects which score dimension gets the routing bias
type Strategy string

const (
	StrategyCost        Strategy = "cost"
	StrategyLatency     Strategy = "latency"
	StrategyQuality     Strategy = "quality"
	StrategyReliability Strategy = "reliability"
)

const strategyBias = 1.5

// Catalog resolves public models for routing
type Catalog interface {
	FindModelByName(ctx context.Context, name string) (*models.PublicModel, error)
}

// HealthSource provides variant health snapshots
type HealthSource interface {
	Snapshot(ctx context.Context, variantID string, policy models.HealthPolicy, windowMinutes int) (health.Snapshot, error)
}

// RoutingConfig holds configuration for the routing service
type RoutingConfig struct {
	// DefaultStrategy applies when the request names none
	DefaultStrategy Strategy

	// MaxFallbacks bounds the fallback list when the request does not
	MaxFallbacks int

	// HealthWindowMinutes is the snapshot window used for the health filter
	HealthWindowMinutes int
}

// DefaultRoutingConfig returns the default configuration
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		DefaultStrategy:     StrategyReliability,
		MaxFallbacks:        2,
		HealthWindowMinutes: health.DefaultWindowMinutes,
	}
}

// RouteContext identifies the caller for policy targeting and rollout
type RouteContext struct {
	TenantID     string
	ProjectID    string
	APIKeyPrefix string
	Tags         []string
}

// Candidate is a variant that survived filtering, with the data used to rank it
type Candidate struct {
	Variant      models.ModelVariant
	Capabilities models.ModelCapabilities
	Region       string
	Health       health.Snapshot
	Score        float64
}

// Decision is the ranked outcome of routing
type Decision struct {
	Model    *models.PublicModel
	Primary  Candidate
	Fallback []Candidate
}

// Candidates returns the primary followed by the fallbacks
func (d *Decision) Candidates() []Candidate {
	return append([]Candidate{d.Primary}, d.Fallback...)
}

// RoutingService ranks the variants of a public model for a request
type RoutingService struct {
	config  RoutingConfig
	catalog Catalog
	health  HealthSource
	logger  *zap.Logger
}

// NewRoutingService creates a new routing service
func NewRoutingService(config RoutingConfig, catalog Catalog, healthSource HealthSource, logger *zap.Logger) *RoutingService {
	if config.DefaultStrategy == "" {
		config.DefaultStrategy = StrategyReliability
	}
	if config.HealthWindowMinutes <= 0 {
		config.HealthWindowMinutes = health.DefaultWindowMinutes
	}
	return &RoutingService{
		config:  config,
		catalog: catalog,
		health:  healthSource,
		logger:  logger,
	}
}

// Route filters, scores and orders the model's variants.
// It returns ErrModelNotFound, ErrModelDisabled or ErrNoCandidates domain errors.
func (s *RoutingService) Route(ctx context.Context, req *providers.Request, rc RouteContext) (*Decision, error) {
	model, err := s.catalog.FindModelByName(ctx, req.Model)
	if err != nil {
		if services.IsNotFoundError(err) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, "model not found: "+req.Model, err).
				WithDetail("model", req.Model)
		}
		return nil, err
	}
	if model == nil {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "model not found: "+req.Model, nil).
			WithDetail("model", req.Model)
	}
	if !model.Enabled {
		return nil, services.NewDomainError(services.ErrorTypeModelDisabled, "model disabled: "+req.Model, nil).
			WithDetail("model", req.Model)
	}

	routing := req.Routing()
	residency := req.DataResidency()

	variants := model.EnabledVariants()
	variants = filterRegion(variants, residency)
	variants = filterProviders(variants, routing.AllowProviders, routing.DenyProviders)

	stickyValue := rc.APIKeyPrefix
	if stickyValue == "" {
		stickyValue = "unknown"
	}
	variants = filterPolicy(variants, rc, stickyValue)

	required := capabilities.DeriveRequired(req)
	strategy := Strategy(routing.Strategy)
	if strategy == "" {
		strategy = s.config.DefaultStrategy
	}

	candidates := make([]Candidate, 0, len(variants))
	for _, variant := range variants {
		effective := capabilities.Merge(model.Capabilities, variant.CapabilitiesOverride)
		if !capabilities.Supports(effective, required) {
			continue
		}

		snapshot := s.snapshot(ctx, variant)
		if snapshot.CircuitOpen {
			s.logger.Debug("variant skipped, circuit open",
				zap.String("variant_id", variant.ID),
				zap.String("provider", variant.Provider),
			)
			continue
		}

		candidates = append(candidates, Candidate{
			Variant:      variant,
			Capabilities: effective,
			Region:       resolveRegion(variant.Regions, residency),
			Health:       snapshot,
			Score:        score(variant, effective.QualityTier, snapshot, strategy),
		})
	}

	if len(candidates) == 0 {
		return nil, services.NewDomainError(services.ErrorTypeNoCandidates, "no eligible variants for model: "+req.Model, nil).
			WithDetail("model", req.Model)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	maxFallbacks := s.config.MaxFallbacks
	if routing.MaxFallbacks != nil {
		maxFallbacks = *routing.MaxFallbacks
	}
	if maxFallbacks < 0 {
		maxFallbacks = 0
	}
	rest := candidates[1:]
	if len(rest) > maxFallbacks {
		rest = rest[:maxFallbacks]
	}

	decision := &Decision{
		Model:    model,
		Primary:  candidates[0],
		Fallback: rest,
	}

	s.logger.Debug("route decided",
		zap.String("model", req.Model),
		zap.String("strategy", string(strategy)),
		zap.String("primary", decision.Primary.Variant.ID),
		zap.Float64("score", decision.Primary.Score),
		zap.Int("fallbacks", len(decision.Fallback)),
	)

	return decision, nil
}

// snapshot reads variant health. A failing health store is treated as no data.
func (s *RoutingService) snapshot(ctx context.Context, variant models.ModelVariant) health.Snapshot {
	if s.health == nil {
		return health.Snapshot{Multiplier: 1}
	}
	snap, err := s.health.Snapshot(ctx, variant.ID, variant.Routing.HealthOrDefault(), s.config.HealthWindowMinutes)
	if err != nil {
		s.logger.Warn("health snapshot failed",
			zap.String("variant_id", variant.ID),
			zap.Error(err),
		)
		return health.Snapshot{Multiplier: 1}
	}
	return snap
}

func filterRegion(variants []models.ModelVariant, region string) []models.ModelVariant {
	if region == "" {
		return variants
	}
	out := variants[:0:0]
	for _, v := range variants {
		if !v.Regions.HasRegion(region) {
			continue
		}
		rule, ok := v.Regions.DataResidency[region]
		if !ok || !(rule.InRegionProcessing || rule.CrossRegionFallback) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func filterProviders(variants []models.ModelVariant, allow, deny []string) []models.ModelVariant {
	out := variants[:0:0]
	for _, v := range variants {
		if len(allow) > 0 && !contains(allow, v.Provider) {
			continue
		}
		if contains(deny, v.Provider) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func filterPolicy(variants []models.ModelVariant, rc RouteContext, stickyValue string) []models.ModelVariant {
	out := variants[:0:0]
	for _, v := range variants {
		policy := v.Routing
		if !policy.IsEnabled() {
			continue
		}

		t := policy.Targeting
		if len(t.AllowTenants) > 0 && !contains(t.AllowTenants, rc.TenantID) {
			continue
		}
		if contains(t.DenyTenants, rc.TenantID) {
			continue
		}
		if len(t.AllowProjects) > 0 && !contains(t.AllowProjects, rc.ProjectID) {
			continue
		}
		if !containsAll(rc.Tags, t.RequireTags) {
			continue
		}

		if !IsRolloutAllowed(policy.RolloutOrDefault().Percentage, stickyValue) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// resolveRegion picks the requested region, else the first available one
func resolveRegion(regions models.RegionTable, requested string) string {
	if requested != "" {
		return requested
	}
	if len(regions.AvailableRegions) > 0 {
		return regions.AvailableRegions[0]
	}
	return ""
}

func score(variant models.ModelVariant, tier models.QualityTier, snap health.Snapshot, strategy Strategy) float64 {
	w := variant.Routing.WeightsOrDefault()
	price := variant.Price.UnitPrices

	costScore := 1 / (1 + price.InputPer1K + price.OutputPer1K)
	latencyScore := 1 / (1 + float64(snap.P95LatencyMs))
	reliabilityScore := 1 - snap.ErrorRate
	qualityScore := QualityScore(tier)

	bias := func(dimension Strategy) float64 {
		if strategy == dimension {
			return strategyBias
		}
		return 1
	}

	total := w.Base +
		w.Cost*costScore*bias(StrategyCost) +
		w.Latency*latencyScore*bias(StrategyLatency) +
		w.Quality*qualityScore*bias(StrategyQuality) +
		w.Base*reliabilityScore*bias(StrategyReliability)

	return total * snap.Multiplier
}

// QualityScore maps a quality tier to its numeric score. Unknown tiers score as economy.
func QualityScore(tier models.QualityTier) float64 {
	switch tier {
	case models.QualityTierPremium:
		return 3
	case models.QualityTierStandard:
		return 2
	default:
		return 1
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !contains(have, w) {
			return false
		}
	}
	return true
}
