package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upb/llm-gateway/services/billing"
	"github.com/upb/llm-gateway/services/catalog"
)

type priceOptions struct {
	model         string
	provider      string
	providerModel string
	input         int
	output        int
	cached        int
}

type priceView struct {
	Model        string            `json:"model"`
	VariantID    string            `json:"variant_id"`
	Provider     string            `json:"provider"`
	PriceVersion string            `json:"price_version"`
	Currency     string            `json:"currency"`
	CostUSD      float64           `json:"cost_usd"`
	Breakdown    billing.Breakdown `json:"breakdown"`
}

func newPriceCommand(global *globalOptions) *cobra.Command {
	opts := &priceOptions{}
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price token counts against a variant",
		Example: `  gatewayctl price --model gpt-4.1 --provider openai --input 1200 --output 350
  gatewayctl price --model gpt-4.1 --provider openai --input 1200 --output 350 --cached 800`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrice(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.model, "model", "", "public model name")
	f.StringVar(&opts.provider, "provider", "", "variant provider")
	f.StringVar(&opts.providerModel, "provider-model", "", "variant provider model when a provider has several")
	f.IntVar(&opts.input, "input", 0, "input tokens")
	f.IntVar(&opts.output, "output", 0, "output tokens")
	f.IntVar(&opts.cached, "cached", 0, "cached input tokens")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func runPrice(cmd *cobra.Command, global *globalOptions, opts *priceOptions) error {
	if opts.input < 0 || opts.output < 0 || opts.cached < 0 {
		return fmt.Errorf("token counts must not be negative")
	}
	logger, err := global.logger()
	if err != nil {
		return err
	}
	repo, err := global.loadCatalog()
	if err != nil {
		return err
	}

	m, err := catalog.NewService(repo, 0, logger).FindModelByName(cmd.Context(), opts.model)
	if err != nil {
		return err
	}
	v, ok := m.FindVariant(opts.provider, opts.providerModel)
	if !ok {
		return fmt.Errorf("model %q has no %s variant", opts.model, opts.provider)
	}

	result := billing.Calculate(v.Price, opts.input, opts.output, opts.cached)
	pricing := catalog.SummarizePricing(v.Price)
	return writeJSON(cmd.OutOrStdout(), priceView{
		Model:        m.PublicName,
		VariantID:    v.ID,
		Provider:     v.Provider,
		PriceVersion: pricing.Version,
		Currency:     pricing.Currency,
		CostUSD:      result.CostUSD,
		Breakdown:    result.Breakdown,
	})
}
