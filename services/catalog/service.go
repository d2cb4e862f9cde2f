// Package catalog serves normalized public models to routing and the HTTP layer.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/capabilities"
	"github.com/upb/llm-gateway/services/routing"
)

// DefaultCacheSize bounds the number of cached public models
const DefaultCacheSize = 256

// Service wraps a catalog repository with normalization and a TTL cache
type Service struct {
	repo   repositories.CatalogRepository
	cache  *ModelCache
	group  singleflight.Group
	logger *zap.Logger
}

// NewService creates a catalog service. cacheTTL <= 0 disables caching.
func NewService(repo repositories.CatalogRepository, cacheTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  NewModelCache(DefaultCacheSize, cacheTTL),
		logger: logger,
	}
}

// FindModelByName returns the normalized public model.
// Returns services.ErrModelNotFound when the name is unknown.
func (s *Service) FindModelByName(ctx context.Context, name string) (*models.PublicModel, error) {
	if m := s.cache.Get(name); m != nil {
		return m, nil
	}

	v, err, shared := s.group.Do("model:"+name, func() (interface{}, error) {
		m, err := s.repo.GetModelByName(ctx, name)
		if err != nil {
			return nil, err
		}
		Normalize(m)
		s.cache.Set(m)
		return m, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.NewDomainError(services.ErrorTypeNotFound, fmt.Sprintf("model %q not found", name), err).
				WithDetail("model", name)
		}
		return nil, services.WrapInternal("failed to load model", err)
	}
	if shared {
		s.logger.Debug("catalog lookup shared", zap.String("model", name))
	}
	return v.(*models.PublicModel), nil
}

// ListModels returns every normalized public model ordered by name.
// Disabled models are skipped unless includeDisabled is set.
func (s *Service) ListModels(ctx context.Context, includeDisabled bool) ([]*models.PublicModel, error) {
	v, err, _ := s.group.Do("list", func() (interface{}, error) {
		list, err := s.repo.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range list {
			Normalize(m)
			s.cache.Set(m)
		}
		return list, nil
	})
	if err != nil {
		return nil, services.WrapInternal("failed to list models", err)
	}

	all := v.([]*models.PublicModel)
	out := make([]*models.PublicModel, 0, len(all))
	for _, m := range all {
		if includeDisabled || m.Enabled {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicName < out[j].PublicName })
	return out, nil
}

// Invalidate drops a cached model so the next lookup reloads it
func (s *Service) Invalidate(name string) {
	s.cache.Invalidate(name)
}

// CacheStats exposes the model cache counters
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Recommendation is the variant the router would most likely pick
type Recommendation struct {
	VariantID string `json:"variant_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Region    string `json:"region,omitempty"`
	Reason    string `json:"reason"`
}

var defaultSupports = []models.Capability{
	models.CapabilityStreaming,
	models.CapabilityTools,
	models.CapabilityJSONSchema,
	models.CapabilityVision,
}

// RecommendDefault estimates the default variant of a model for a strategy
// without consulting health data. Variants supporting streaming, tools,
// json_schema and vision are preferred when any exist.
func RecommendDefault(m *models.PublicModel, strategy routing.Strategy) Recommendation {
	if strategy == "" {
		strategy = routing.StrategyReliability
	}
	rec := Recommendation{Reason: "router_estimate:" + string(strategy)}

	var enabled, preferred []models.ModelVariant
	for _, v := range m.Variants {
		if !m.Enabled || !v.Enabled || !v.Routing.IsEnabled() {
			continue
		}
		enabled = append(enabled, v)
		supports := capabilities.Merge(m.Capabilities, v.CapabilitiesOverride).Supports
		all := true
		for _, c := range defaultSupports {
			if !supports.Has(c) {
				all = false
				break
			}
		}
		if all {
			preferred = append(preferred, v)
		}
	}

	pool := enabled
	if len(preferred) > 0 {
		pool = preferred
	}
	if len(pool) == 0 {
		return rec
	}

	bias := func(s routing.Strategy) float64 {
		if s == strategy {
			return 1.5
		}
		return 1
	}
	quality := routing.QualityScore(m.Capabilities.QualityTier)

	best, bestScore := -1, 0.0
	for i, v := range pool {
		w := v.Routing.WeightsOrDefault()
		cost := v.Price.UnitPrices.InputPer1K + v.Price.UnitPrices.OutputPer1K
		costScore := 1 / (1 + cost)
		regionScore := 0.5
		if n := len(v.Regions.AvailableRegions); n > 0 {
			regionScore = min(1, float64(n)/3)
		}
		score := w.Base +
			w.Cost*costScore*bias(routing.StrategyCost) +
			w.Latency*regionScore*bias(routing.StrategyLatency) +
			w.Quality*quality*bias(routing.StrategyQuality) +
			w.Base*regionScore*bias(routing.StrategyReliability)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}

	winner := pool[best]
	rec.VariantID = winner.ID
	rec.Provider = winner.Provider
	if len(winner.Regions.AvailableRegions) > 0 {
		rec.Region = winner.Regions.AvailableRegions[0]
	}
	return rec
}

// PricingSummary is the caller-facing view of a price table
type PricingSummary struct {
	Currency     string            `json:"currency"`
	BillingModel string            `json:"billing_model"`
	Version      string            `json:"version"`
	UnitPrices   models.UnitPrices `json:"unit_prices"`
}

// SummarizePricing builds the pricing summary with defaults for unset fields
func SummarizePricing(p models.PriceTable) PricingSummary {
	s := PricingSummary{
		Currency:     p.Currency,
		BillingModel: p.BillingModel,
		Version:      p.Version,
		UnitPrices:   p.UnitPrices,
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	if s.BillingModel == "" {
		s.BillingModel = "token"
	}
	if s.Version == "" {
		s.Version = "unknown"
	}
	return s
}
