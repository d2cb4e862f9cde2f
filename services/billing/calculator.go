// Package billing prices a completed generation against a variant's price table.
package billing

import (
	"math"

	"github.com/upb/llm-gateway/models"
)

// Breakdown exposes every intermediate figure of a calculation for audit
type Breakdown struct {
	GranularityTokens   int                 `json:"granularity_tokens"`
	RoundingMode        models.RoundingMode `json:"rounding_mode"`
	InputTokens         int                 `json:"input_tokens"`
	OutputTokens        int                 `json:"output_tokens"`
	RoundedInputTokens  int                 `json:"rounded_input_tokens"`
	RoundedOutputTokens int                 `json:"rounded_output_tokens"`
	InputCostUSD        float64             `json:"input_cost_usd"`
	OutputCostUSD       float64             `json:"output_cost_usd"`
	CachedInputTokens   int                 `json:"cached_input_tokens"`
	CachedDiscountUSD   float64             `json:"cached_discount_usd"`
	SubtotalUSD         float64             `json:"subtotal_usd"`
	MinimumUSD          float64             `json:"minimum_usd"`
	MinimumApplied      bool                `json:"minimum_applied"`
}

// Result is the billed cost and how it was derived
type Result struct {
	CostUSD   float64   `json:"cost_usd"`
	Breakdown Breakdown `json:"breakdown"`
}

// Calculate prices token usage. It is pure and deterministic.
func Calculate(price models.PriceTable, inputTokens, outputTokens, cachedInputTokens int) Result {
	granularity := price.Rounding.GranularityTokens
	if granularity < 1 {
		granularity = 1
	}

	roundedInput := roundTokens(inputTokens, granularity, price.Rounding.Mode)
	roundedOutput := roundTokens(outputTokens, granularity, price.Rounding.Mode)

	inputCost := float64(roundedInput) / 1000 * price.UnitPrices.InputPer1K
	outputCost := float64(roundedOutput) / 1000 * price.UnitPrices.OutputPer1K
	cachedDiscount := float64(cachedInputTokens) / 1000 * price.Discounts.CachedInputPer1K

	subtotal := inputCost + outputCost - cachedDiscount
	cost := math.Max(price.Minimums.RequestUSD, subtotal)

	return Result{
		CostUSD: cost,
		Breakdown: Breakdown{
			GranularityTokens:   granularity,
			RoundingMode:        price.Rounding.Mode,
			InputTokens:         inputTokens,
			OutputTokens:        outputTokens,
			RoundedInputTokens:  roundedInput,
			RoundedOutputTokens: roundedOutput,
			InputCostUSD:        inputCost,
			OutputCostUSD:       outputCost,
			CachedInputTokens:   cachedInputTokens,
			CachedDiscountUSD:   cachedDiscount,
			SubtotalUSD:         subtotal,
			MinimumUSD:          price.Minimums.RequestUSD,
			MinimumApplied:      subtotal < price.Minimums.RequestUSD,
		},
	}
}

// roundTokens rounds tokens to a multiple of granularity. Unknown modes round up.
func roundTokens(tokens, granularity int, mode models.RoundingMode) int {
	units := float64(tokens) / float64(granularity)
	switch mode {
	case models.RoundingFloor:
		units = math.Floor(units)
	case models.RoundingRound:
		units = math.Round(units)
	default:
		units = math.Ceil(units)
	}
	return int(units) * granularity
}
