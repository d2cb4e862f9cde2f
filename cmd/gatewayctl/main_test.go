package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctlCatalog = `
models:
  - public_name: chat
    enabled: true
    capabilities:
      supports: { streaming: true, tools: true }
      quality_tier: standard
    variants:
      - provider: cheap
        provider_model: cheap-1
        enabled: true
        pricing:
          version: "2026-01"
          unit_prices: { input_per_1k: 0.5, output_per_1k: 1 }
          minimums: { request_usd: 0.01 }
          rounding: { mode: ceil, granularity_tokens: 100 }
        regions: { available_regions: [US] }
        routing:
          enabled: true
          rollout: { type: percentage, percentage: 100 }
          weights: { base_weight: 1, cost_weight: 1 }
      - provider: pricey
        provider_model: pricey-1
        enabled: true
        pricing:
          unit_prices: { input_per_1k: 10, output_per_1k: 30 }
        regions: { available_regions: [EU] }
        routing:
          enabled: true
          rollout: { type: percentage, percentage: 100 }
          weights: { base_weight: 1, cost_weight: 1 }
        capabilities_override:
          supports: { tools: false }
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRouteCommand(t *testing.T) {
	path := writeCatalog(t, ctlCatalog)

	t.Run("cost strategy prefers the cheaper variant", func(t *testing.T) {
		out, err := execute(t, "route", "--catalog", path, "--model", "chat", "--strategy", "cost")
		require.NoError(t, err)

		var view routeView
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Equal(t, "chat", view.Model)
		assert.Equal(t, "cost", view.Strategy)
		assert.Equal(t, "cheap", view.Primary.Provider)
		assert.Equal(t, "US", view.Primary.Region)
		require.Len(t, view.Fallback, 1)
		assert.Equal(t, "pricey", view.Fallback[0].Provider)
	})

	t.Run("tools filter out the overridden variant", func(t *testing.T) {
		out, err := execute(t, "route", "--catalog", path, "--model", "chat", "--tools")
		require.NoError(t, err)

		var view routeView
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Equal(t, "cheap", view.Primary.Provider)
		assert.Empty(t, view.Fallback)
	})

	t.Run("max fallbacks zero", func(t *testing.T) {
		out, err := execute(t, "route", "--catalog", path, "--model", "chat", "--max-fallbacks", "0")
		require.NoError(t, err)

		var view routeView
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Empty(t, view.Fallback)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := execute(t, "route", "--catalog", path, "--model", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("model flag is required", func(t *testing.T) {
		_, err := execute(t, "route", "--catalog", path)
		assert.Error(t, err)
	})
}

func TestPriceCommand(t *testing.T) {
	path := writeCatalog(t, ctlCatalog)

	t.Run("rounded breakdown", func(t *testing.T) {
		out, err := execute(t, "price", "--catalog", path, "--model", "chat", "--provider", "cheap", "--input", "1050", "--output", "220")
		require.NoError(t, err)

		var view priceView
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.Equal(t, "2026-01", view.PriceVersion)
		assert.Equal(t, "USD", view.Currency)
		assert.Equal(t, 1100, view.Breakdown.RoundedInputTokens)
		assert.Equal(t, 300, view.Breakdown.RoundedOutputTokens)
		assert.InDelta(t, 0.55+0.3, view.CostUSD, 1e-9)
	})

	t.Run("minimum applies", func(t *testing.T) {
		out, err := execute(t, "price", "--catalog", path, "--model", "chat", "--provider", "cheap", "--input", "1", "--output", "1")
		require.NoError(t, err)

		var view priceView
		require.NoError(t, json.Unmarshal([]byte(out), &view))
		assert.True(t, view.Breakdown.MinimumApplied)
		assert.InDelta(t, 0.01, view.CostUSD, 1e-9)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := execute(t, "price", "--catalog", path, "--model", "chat", "--provider", "azure", "--input", "1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no azure variant")
	})

	t.Run("negative tokens", func(t *testing.T) {
		_, err := execute(t, "price", "--catalog", path, "--model", "chat", "--provider", "cheap", "--input", "-5")
		assert.Error(t, err)
	})
}

func TestCatalogValidateCommand(t *testing.T) {
	t.Run("valid catalog", func(t *testing.T) {
		out, err := execute(t, "catalog", "validate", "--catalog", writeCatalog(t, ctlCatalog))
		require.NoError(t, err)
		assert.Contains(t, out, "chat (enabled)")
		assert.Contains(t, out, "chat/pricey/pricey-1")
		assert.Contains(t, out, "catalog ok: 1 models, 2 variants")
	})

	t.Run("duplicate names", func(t *testing.T) {
		bad := "models:\n  - public_name: a\n  - public_name: a\n"
		_, err := execute(t, "catalog", "validate", "--catalog", writeCatalog(t, bad))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate public_name")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "catalog", "validate", "--catalog", filepath.Join(t.TempDir(), "none.yaml"))
		assert.Error(t, err)
	})

	t.Run("shipped seed catalog", func(t *testing.T) {
		out, err := execute(t, "catalog", "validate", "--catalog", filepath.Join("..", "..", "catalog.yaml"))
		require.NoError(t, err)
		assert.Contains(t, out, "catalog ok: 2 models, 4 variants")
	})
}
