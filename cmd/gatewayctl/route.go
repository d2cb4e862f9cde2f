package main

import (
	"github.com/spf13/cobra"

	"github.com/upb/llm-gateway/services/catalog"
	"github.com/upb/llm-gateway/services/health"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/routing"
)

type routeOptions struct {
	model        string
	strategy     string
	tenant       string
	project      string
	keyPrefix    string
	region       string
	tags         []string
	maxFallbacks int
	stream       bool
	tools        bool
	jsonSchema   bool
}

// candidateView is one ranked variant as printed by route
type candidateView struct {
	VariantID     string          `json:"variant_id"`
	Provider      string          `json:"provider"`
	ProviderModel string          `json:"provider_model"`
	Region        string          `json:"region"`
	Score         float64         `json:"score"`
	Health        health.Snapshot `json:"health"`
}

type routeView struct {
	Model    string          `json:"model"`
	Strategy string          `json:"strategy"`
	Primary  candidateView   `json:"primary"`
	Fallback []candidateView `json:"fallback"`
}

func newRouteCommand(global *globalOptions) *cobra.Command {
	opts := &routeOptions{}
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Dry-run the routing decision for a model",
		Long: `Rank the variants of a public model the way the gateway would for a
request with the given constraints. Health data starts empty, so every
variant is treated as healthy.

Examples:
  gatewayctl route --model gpt-4.1
  gatewayctl route --model gpt-4.1 --strategy cost --stream --tools
  gatewayctl route --model claude-3.5-sonnet --region EU --key-prefix gw_abc`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoute(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.model, "model", "", "public model name")
	f.StringVar(&opts.strategy, "strategy", "", "cost, latency, reliability or quality")
	f.StringVar(&opts.tenant, "tenant", "", "caller tenant id")
	f.StringVar(&opts.project, "project", "", "caller project id")
	f.StringVar(&opts.keyPrefix, "key-prefix", "", "API key prefix used for sticky rollouts")
	f.StringVar(&opts.region, "region", "", "required data residency region")
	f.StringSliceVar(&opts.tags, "tag", nil, "caller tag (repeatable)")
	f.IntVar(&opts.maxFallbacks, "max-fallbacks", -1, "override the fallback count")
	f.BoolVar(&opts.stream, "stream", false, "require streaming")
	f.BoolVar(&opts.tools, "tools", false, "require tool calling")
	f.BoolVar(&opts.jsonSchema, "json-schema", false, "require json_schema output")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runRoute(cmd *cobra.Command, global *globalOptions, opts *routeOptions) error {
	logger, err := global.logger()
	if err != nil {
		return err
	}
	repo, err := global.loadCatalog()
	if err != nil {
		return err
	}

	tracker := health.NewTracker(health.NewMemoryStore(), logger)
	router := routing.NewRoutingService(routing.RoutingConfig{MaxFallbacks: 2},
		catalog.NewService(repo, 0, logger), tracker, logger)

	decision, err := router.Route(cmd.Context(), opts.request(), routing.RouteContext{
		TenantID:     opts.tenant,
		ProjectID:    opts.project,
		APIKeyPrefix: opts.keyPrefix,
		Tags:         opts.tags,
	})
	if err != nil {
		return err
	}

	strategy := opts.strategy
	if strategy == "" {
		strategy = string(routing.StrategyReliability)
	}
	out := routeView{
		Model:    decision.Model.PublicName,
		Strategy: strategy,
		Primary:  viewCandidate(decision.Primary),
		Fallback: make([]candidateView, 0, len(decision.Fallback)),
	}
	for _, c := range decision.Fallback {
		out.Fallback = append(out.Fallback, viewCandidate(c))
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// request builds the synthetic request whose shape drives capability checks
func (o *routeOptions) request() *providers.Request {
	req := &providers.Request{
		Model:  o.model,
		Input:  providers.Input{Prompt: "dry run"},
		Stream: o.stream,
	}

	gen := &providers.Generation{}
	if o.tools {
		gen.Tools = []providers.ToolSpec{{Name: "dry_run"}}
	}
	if o.jsonSchema {
		gen.ResponseFormat = &providers.ResponseFormat{
			Type:       providers.ResponseFormatJSONSchema,
			JSONSchema: map[string]interface{}{"type": "object"},
		}
	}
	req.Generation = gen

	constraints := &providers.Constraints{Routing: &providers.RoutingConstraints{Strategy: o.strategy}}
	if o.maxFallbacks >= 0 {
		n := o.maxFallbacks
		constraints.Routing.MaxFallbacks = &n
	}
	if o.region != "" {
		constraints.Region = &providers.RegionConstraints{DataResidency: o.region}
	}
	req.Constraints = constraints
	return req
}

func viewCandidate(c routing.Candidate) candidateView {
	return candidateView{
		VariantID:     c.Variant.ID,
		Provider:      c.Variant.Provider,
		ProviderModel: c.Variant.ProviderModel,
		Region:        c.Region,
		Score:         c.Score,
		Health:        c.Health,
	}
}
