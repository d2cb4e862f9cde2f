package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services/capabilities"
	"github.com/upb/llm-gateway/services/catalog"
	"github.com/upb/llm-gateway/services/health"
	"github.com/upb/llm-gateway/services/routing"
	"github.com/upb/llm-gateway/utils"
)

// healthLookupLimit bounds concurrent health store reads per request
const healthLookupLimit = 8

// ModelCatalog lists and resolves public models
type ModelCatalog interface {
	ListModels(ctx context.Context, includeDisabled bool) ([]*models.PublicModel, error)
	FindModelByName(ctx context.Context, name string) (*models.PublicModel, error)
}

// HealthViewer summarizes variant health
type HealthViewer interface {
	View(ctx context.Context, variantID string, policy models.HealthPolicy, windowMinutes int) health.View
}

// ModelView is one public model as listed to callers
type ModelView struct {
	ID                 string                   `json:"id"`
	PublicName         string                   `json:"public_name"`
	Description        string                   `json:"description,omitempty"`
	Enabled            bool                     `json:"enabled"`
	Capabilities       models.ModelCapabilities `json:"capabilities"`
	RecommendedDefault catalog.Recommendation   `json:"recommended_default"`
	Variants           []VariantView            `json:"variants"`
}

// VariantView is one variant with its effective capabilities and health
type VariantView struct {
	ID            string                   `json:"id"`
	Provider      string                   `json:"provider"`
	ProviderModel string                   `json:"provider_model"`
	Enabled       bool                     `json:"enabled"`
	Capabilities  models.ModelCapabilities `json:"capabilities"`
	Pricing       catalog.PricingSummary   `json:"pricing"`
	Regions       models.RegionTable       `json:"regions"`
	Health        health.View              `json:"health"`
}

// ModelsHandler serves the public model catalog
type ModelsHandler struct {
	catalog         ModelCatalog
	health          HealthViewer
	windowMinutes   int
	defaultStrategy routing.Strategy
	logger          *zap.Logger
}

// NewModelsHandler creates a new ModelsHandler
func NewModelsHandler(catalog ModelCatalog, viewer HealthViewer, windowMinutes int, defaultStrategy routing.Strategy, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{
		catalog:         catalog,
		health:          viewer,
		windowMinutes:   windowMinutes,
		defaultStrategy: defaultStrategy,
		logger:          logger,
	}
}

// HandleListModels handles GET /v1/models
func (h *ModelsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.catalog.ListModels(ctx, false)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	strategy := h.strategy(r)
	views := make([]ModelView, len(list))
	for i, m := range list {
		views[i] = h.modelView(m, strategy)
	}
	h.attachHealth(ctx, list, views)

	if err := utils.WriteOK(w, map[string]interface{}{"data": views}); err != nil {
		h.logger.Error("failed to write models response", zap.Error(err))
	}
}

// HandleGetModel handles GET /v1/models/{name}
func (h *ModelsHandler) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	m, err := h.catalog.FindModelByName(ctx, name)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	views := []ModelView{h.modelView(m, h.strategy(r))}
	h.attachHealth(ctx, []*models.PublicModel{m}, views)

	if err := utils.WriteOK(w, views[0]); err != nil {
		h.logger.Error("failed to write model response",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
	}
}

func (h *ModelsHandler) strategy(r *http.Request) routing.Strategy {
	if s := r.URL.Query().Get("strategy"); s != "" {
		return routing.Strategy(s)
	}
	return h.defaultStrategy
}

func (h *ModelsHandler) modelView(m *models.PublicModel, strategy routing.Strategy) ModelView {
	view := ModelView{
		ID:                 m.ID,
		PublicName:         m.PublicName,
		Description:        m.Description,
		Enabled:            m.Enabled,
		Capabilities:       m.Capabilities,
		RecommendedDefault: catalog.RecommendDefault(m, strategy),
		Variants:           make([]VariantView, 0, len(m.Variants)),
	}
	for _, v := range m.Variants {
		if !v.Enabled {
			continue
		}
		view.Variants = append(view.Variants, VariantView{
			ID:            v.ID,
			Provider:      v.Provider,
			ProviderModel: v.ProviderModel,
			Enabled:       v.Enabled,
			Capabilities:  capabilities.Merge(m.Capabilities, v.CapabilitiesOverride),
			Pricing:       catalog.SummarizePricing(v.Price),
			Regions:       v.Regions,
		})
	}
	return view
}

// attachHealth fills every variant's health view concurrently. A failed
// lookup already degrades to an unknown view, so the group never errors.
func (h *ModelsHandler) attachHealth(ctx context.Context, list []*models.PublicModel, views []ModelView) {
	policies := make(map[string]models.HealthPolicy)
	for _, m := range list {
		for _, v := range m.Variants {
			policies[v.ID] = v.Routing.HealthOrDefault()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(healthLookupLimit)
	for i := range views {
		for j := range views[i].Variants {
			vv := &views[i].Variants[j]
			g.Go(func() error {
				vv.Health = h.health.View(gctx, vv.ID, policies[vv.ID], h.windowMinutes)
				return nil
			})
		}
	}
	_ = g.Wait()
}
