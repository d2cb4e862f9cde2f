package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/health"
	"github.com/upb/llm-gateway/services/routing"
	"github.com/upb/llm-gateway/utils"
)

type fakeCatalog struct {
	models []*models.PublicModel
}

func (c *fakeCatalog) ListModels(_ context.Context, _ bool) ([]*models.PublicModel, error) {
	return c.models, nil
}

func (c *fakeCatalog) FindModelByName(_ context.Context, name string) (*models.PublicModel, error) {
	for _, m := range c.models {
		if m.PublicName == name {
			return m, nil
		}
	}
	return nil, services.ErrModelNotFound
}

type fakeViewer struct {
	mu     sync.Mutex
	asked  []string
	window int
}

func (v *fakeViewer) View(_ context.Context, variantID string, _ models.HealthPolicy, windowMinutes int) health.View {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.asked = append(v.asked, variantID)
	v.window = windowMinutes
	return health.View{Status: "healthy", Score: 1}
}

func catalogFixture() *fakeCatalog {
	routingOn := models.RoutingPolicy{Enabled: models.Bool(true), Weights: &models.Weights{Base: 1, Cost: 1}}
	return &fakeCatalog{models: []*models.PublicModel{{
		ID:         "gpt-4.1",
		PublicName: "gpt-4.1",
		Enabled:    true,
		Capabilities: models.ModelCapabilities{
			ContextWindow: 128000,
			Supports:      models.CapabilitySupports{Streaming: true, Tools: true},
			QualityTier:   models.QualityTierPremium,
		},
		Variants: []models.ModelVariant{
			{
				ID: "gpt-4.1/openai/gpt-4.1", Provider: "openai", ProviderModel: "gpt-4.1", Enabled: true,
				Price:   models.PriceTable{UnitPrices: models.UnitPrices{InputPer1K: 0.002, OutputPer1K: 0.008}},
				Regions: models.RegionTable{AvailableRegions: []string{"US"}},
				Routing: routingOn,
				CapabilitiesOverride: &models.CapabilitiesOverride{
					Supports: map[models.Capability]bool{models.CapabilityTools: false},
				},
			},
			{
				ID: "gpt-4.1/azure/gpt-4.1", Provider: "azure", ProviderModel: "gpt-4.1", Enabled: false,
				Routing: routingOn,
			},
		},
	}}}
}

func TestHandleListModels(t *testing.T) {
	viewer := &fakeViewer{}
	handler := NewModelsHandler(catalogFixture(), viewer, 10, routing.StrategyReliability, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleListModels(w, newRequest(http.MethodGet, "/v1/models?strategy=cost", ""))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []ModelView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Data, 1)

	model := body.Data[0]
	assert.Equal(t, "gpt-4.1", model.PublicName)
	assert.Equal(t, "router_estimate:cost", model.RecommendedDefault.Reason)
	assert.Equal(t, "openai", model.RecommendedDefault.Provider)

	require.Len(t, model.Variants, 1, "disabled variants are hidden")
	variant := model.Variants[0]
	assert.False(t, variant.Capabilities.Supports.Tools)
	assert.True(t, variant.Capabilities.Supports.Streaming)
	assert.Equal(t, "USD", variant.Pricing.Currency)
	assert.Equal(t, "token", variant.Pricing.BillingModel)
	assert.Equal(t, "healthy", variant.Health.Status)

	assert.Equal(t, []string{"gpt-4.1/openai/gpt-4.1"}, viewer.asked)
	assert.Equal(t, 10, viewer.window)
}

func TestHandleGetModel(t *testing.T) {
	handler := NewModelsHandler(catalogFixture(), &fakeViewer{}, 5, routing.StrategyReliability, zap.NewNop())

	newNamed := func(name string) *http.Request {
		req := newRequest(http.MethodGet, "/v1/models/"+name, "")
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("name", name)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleGetModel(w, newNamed("gpt-4.1"))

		assert.Equal(t, http.StatusOK, w.Code)
		var view ModelView
		require.NoError(t, json.NewDecoder(w.Body).Decode(&view))
		assert.Equal(t, "gpt-4.1", view.ID)
		assert.Equal(t, "router_estimate:reliability", view.RecommendedDefault.Reason)
	})

	t.Run("unknown model", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleGetModel(w, newNamed("nope"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, utils.CodeNotFound, decodeAPIError(t, w).Code)
	})
}
