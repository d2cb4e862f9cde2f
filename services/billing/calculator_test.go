package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upb/llm-gateway/models"
)

func referencePrice() models.PriceTable {
	return models.PriceTable{
		Currency:     "USD",
		Version:      "2024-09-01",
		BillingModel: "token",
		UnitPrices:   models.UnitPrices{InputPer1K: 5, OutputPer1K: 15},
		Minimums:     models.PriceMinimums{RequestUSD: 0.01},
		Rounding:     models.PriceRounding{Mode: models.RoundingCeil, GranularityTokens: 10},
		Discounts:    models.PriceDiscounts{CachedInputPer1K: 1},
	}
}

func TestCalculate_RoundsToGranularity(t *testing.T) {
	result := Calculate(referencePrice(), 1001, 2001, 0)

	assert.InDelta(t, 35.2, result.CostUSD, 1e-9)
	assert.Equal(t, 1010, result.Breakdown.RoundedInputTokens)
	assert.Equal(t, 2010, result.Breakdown.RoundedOutputTokens)
	assert.InDelta(t, 5.05, result.Breakdown.InputCostUSD, 1e-9)
	assert.InDelta(t, 30.15, result.Breakdown.OutputCostUSD, 1e-9)
	assert.False(t, result.Breakdown.MinimumApplied)
}

func TestCalculate_AppliesRequestMinimum(t *testing.T) {
	result := Calculate(referencePrice(), 0, 0, 0)

	assert.Equal(t, 0.01, result.CostUSD)
	assert.True(t, result.Breakdown.MinimumApplied)
	assert.Equal(t, 0.0, result.Breakdown.SubtotalUSD)
}

func TestCalculate_TinyUsageRoundsUpBeforeMinimum(t *testing.T) {
	// 1 token rounds up to a full 10-token unit on each side.
	result := Calculate(referencePrice(), 1, 1, 0)

	assert.Equal(t, 10, result.Breakdown.RoundedInputTokens)
	assert.Equal(t, 10, result.Breakdown.RoundedOutputTokens)
	assert.InDelta(t, 0.2, result.CostUSD, 1e-9)
	assert.False(t, result.Breakdown.MinimumApplied)
}

func TestCalculate_MinimumFloorsDiscountedSubtotal(t *testing.T) {
	price := referencePrice()
	price.Rounding.GranularityTokens = 1

	result := Calculate(price, 1, 1, 1000)

	assert.InDelta(t, -0.98, result.Breakdown.SubtotalUSD, 1e-9)
	assert.Equal(t, 0.01, result.CostUSD)
	assert.True(t, result.Breakdown.MinimumApplied)
}

func TestCalculate_CachedInputDiscount(t *testing.T) {
	result := Calculate(referencePrice(), 1000, 0, 500)

	assert.Equal(t, 500, result.Breakdown.CachedInputTokens)
	assert.InDelta(t, 0.5, result.Breakdown.CachedDiscountUSD, 1e-9)
	assert.InDelta(t, 4.5, result.CostUSD, 1e-9)
}

func TestCalculate_RoundingModes(t *testing.T) {
	tests := []struct {
		mode models.RoundingMode
		in   int
		want int
	}{
		{models.RoundingCeil, 1001, 1010},
		{models.RoundingFloor, 1009, 1000},
		{models.RoundingRound, 1004, 1000},
		{models.RoundingRound, 1005, 1010},
		{models.RoundingMode("unknown"), 1001, 1010},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			price := referencePrice()
			price.Rounding.Mode = tt.mode
			assert.Equal(t, tt.want, Calculate(price, tt.in, 0, 0).Breakdown.RoundedInputTokens)
		})
	}
}

func TestCalculate_GranularityDefaultsToOne(t *testing.T) {
	price := referencePrice()
	price.Rounding.GranularityTokens = 0

	result := Calculate(price, 1001, 0, 0)

	assert.Equal(t, 1, result.Breakdown.GranularityTokens)
	assert.Equal(t, 1001, result.Breakdown.RoundedInputTokens)
}

func TestCalculate_IsDeterministic(t *testing.T) {
	first := Calculate(referencePrice(), 1234, 567, 89)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Calculate(referencePrice(), 1234, 567, 89))
	}
}
