package models

import (
	"time"
)

// Capability names a boolean feature a model may support
type Capability string

const (
	CapabilityStreaming        Capability = "streaming"
	CapabilityTools            Capability = "tools"
	CapabilityToolChoice       Capability = "tool_choice"
	CapabilityJSONSchema       Capability = "json_schema"
	CapabilityStructuredOutput Capability = "structured_output"
	CapabilityVision           Capability = "vision"
	CapabilityAudioIn          Capability = "audio_in"
	CapabilityAudioOut         Capability = "audio_out"
	CapabilityEmbeddings       Capability = "embeddings"
)

// AllCapabilities lists every known capability in a stable order
var AllCapabilities = []Capability{
	CapabilityStreaming,
	CapabilityTools,
	CapabilityToolChoice,
	CapabilityJSONSchema,
	CapabilityStructuredOutput,
	CapabilityVision,
	CapabilityAudioIn,
	CapabilityAudioOut,
	CapabilityEmbeddings,
}

// QualityTier ranks the output quality of a public model
type QualityTier string

const (
	QualityTierPremium  QualityTier = "premium"
	QualityTierStandard QualityTier = "standard"
	QualityTierEconomy  QualityTier = "economy"
)

// CapabilitySupports is the full set of capability flags of a model
type CapabilitySupports struct {
	Streaming        bool `json:"streaming" yaml:"streaming"`
	Tools            bool `json:"tools" yaml:"tools"`
	ToolChoice       bool `json:"tool_choice" yaml:"tool_choice"`
	JSONSchema       bool `json:"json_schema" yaml:"json_schema"`
	StructuredOutput bool `json:"structured_output" yaml:"structured_output"`
	Vision           bool `json:"vision" yaml:"vision"`
	AudioIn          bool `json:"audio_in" yaml:"audio_in"`
	AudioOut         bool `json:"audio_out" yaml:"audio_out"`
	Embeddings       bool `json:"embeddings" yaml:"embeddings"`
}

// Has reports whether the capability flag is set
func (s CapabilitySupports) Has(c Capability) bool {
	switch c {
	case CapabilityStreaming:
		return s.Streaming
	case CapabilityTools:
		return s.Tools
	case CapabilityToolChoice:
		return s.ToolChoice
	case CapabilityJSONSchema:
		return s.JSONSchema
	case CapabilityStructuredOutput:
		return s.StructuredOutput
	case CapabilityVision:
		return s.Vision
	case CapabilityAudioIn:
		return s.AudioIn
	case CapabilityAudioOut:
		return s.AudioOut
	case CapabilityEmbeddings:
		return s.Embeddings
	default:
		return false
	}
}

// With returns a copy of the supports with the capability set to value.
// Unknown capabilities are ignored.
func (s CapabilitySupports) With(c Capability, value bool) CapabilitySupports {
	switch c {
	case CapabilityStreaming:
		s.Streaming = value
	case CapabilityTools:
		s.Tools = value
	case CapabilityToolChoice:
		s.ToolChoice = value
	case CapabilityJSONSchema:
		s.JSONSchema = value
	case CapabilityStructuredOutput:
		s.StructuredOutput = value
	case CapabilityVision:
		s.Vision = value
	case CapabilityAudioIn:
		s.AudioIn = value
	case CapabilityAudioOut:
		s.AudioOut = value
	case CapabilityEmbeddings:
		s.Embeddings = value
	}
	return s
}

// CapabilityLimits holds per-variant throughput limits
type CapabilityLimits struct {
	RPM int `json:"rpm,omitempty" yaml:"rpm,omitempty"`
	TPM int `json:"tpm,omitempty" yaml:"tpm,omitempty"`
}

// ModelCapabilities describes what a public model can do
type ModelCapabilities struct {
	Modality        []string           `json:"modality" yaml:"modality"`
	ContextWindow   int                `json:"context_window" yaml:"context_window"`
	MaxOutputTokens int                `json:"max_output_tokens" yaml:"max_output_tokens"`
	Supports        CapabilitySupports `json:"supports" yaml:"supports"`
	QualityTier     QualityTier        `json:"quality_tier" yaml:"quality_tier"`
	Limits          *CapabilityLimits  `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// CapabilitiesOverride is a partial, variant-specific capability patch.
// Only keys present in Supports replace the base value.
type CapabilitiesOverride struct {
	Supports map[Capability]bool `json:"supports,omitempty" yaml:"supports,omitempty"`
	Limits   *CapabilityLimits   `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// RoundingMode controls how token counts are rounded before billing
type RoundingMode string

const (
	RoundingCeil  RoundingMode = "ceil"
	RoundingFloor RoundingMode = "floor"
	RoundingRound RoundingMode = "round"
)

// UnitPrices are USD prices per thousand tokens
type UnitPrices struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// PriceMinimums holds minimum charges
type PriceMinimums struct {
	RequestUSD float64 `json:"request_usd" yaml:"request_usd"`
}

// PriceRounding holds token rounding rules
type PriceRounding struct {
	Mode              RoundingMode `json:"mode" yaml:"mode"`
	GranularityTokens int          `json:"granularity_tokens" yaml:"granularity_tokens"`
}

// PriceDiscounts holds per-thousand-token discounts
type PriceDiscounts struct {
	CachedInputPer1K float64 `json:"cached_input_per_1k" yaml:"cached_input_per_1k"`
}

// PriceTable is the immutable price sheet of a variant
type PriceTable struct {
	Currency     string         `json:"currency" yaml:"currency"`
	BillingModel string         `json:"billing_model" yaml:"billing_model"`
	Version      string         `json:"version" yaml:"version"`
	UnitPrices   UnitPrices     `json:"unit_prices" yaml:"unit_prices"`
	Minimums     PriceMinimums  `json:"minimums" yaml:"minimums"`
	Rounding     PriceRounding  `json:"rounding" yaml:"rounding"`
	Discounts    PriceDiscounts `json:"discounts" yaml:"discounts"`
}

// ResidencyRule describes how requests pinned to a region may be processed
type ResidencyRule struct {
	InRegionProcessing  bool `json:"in_region_processing" yaml:"in_region_processing"`
	CrossRegionFallback bool `json:"cross_region_fallback" yaml:"cross_region_fallback"`
}

// RegionTable lists where a variant runs
type RegionTable struct {
	AvailableRegions []string                 `json:"available_regions" yaml:"available_regions"`
	DataResidency    map[string]ResidencyRule `json:"data_residency" yaml:"data_residency"`
}

// HasRegion reports whether the region is listed as available
func (r RegionTable) HasRegion(region string) bool {
	for _, available := range r.AvailableRegions {
		if available == region {
			return true
		}
	}
	return false
}

// Rollout is a percentage traffic split keyed by a sticky caller attribute
type Rollout struct {
	Type       string  `json:"type" yaml:"type"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
	StickyKey  string  `json:"sticky_key" yaml:"sticky_key"`
}

// Targeting restricts which callers may reach a variant
type Targeting struct {
	AllowTenants  []string `json:"allow_tenants" yaml:"allow_tenants"`
	DenyTenants   []string `json:"deny_tenants" yaml:"deny_tenants"`
	AllowProjects []string `json:"allow_projects" yaml:"allow_projects"`
	RequireTags   []string `json:"require_tags" yaml:"require_tags"`
}

// Weights tune the routing score of a variant
type Weights struct {
	Base    float64 `json:"base_weight" yaml:"base_weight"`
	Quality float64 `json:"quality_weight" yaml:"quality_weight"`
	Cost    float64 `json:"cost_weight" yaml:"cost_weight"`
	Latency float64 `json:"latency_weight" yaml:"latency_weight"`
}

// CircuitBreakerPolicy configures when a variant's breaker opens
type CircuitBreakerPolicy struct {
	FailureRateThreshold float64 `json:"failure_rate_threshold" yaml:"failure_rate_threshold"`
	MinRequests          int     `json:"min_requests" yaml:"min_requests"`
	CooldownSeconds      int     `json:"cooldown_seconds" yaml:"cooldown_seconds"`
}

// Penalty multiplies the routing score once a metric exceeds a threshold
type Penalty struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// HealthPenalties groups the latency and error-rate penalties
type HealthPenalties struct {
	P95LatencyMs Penalty `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	ErrorRate    Penalty `json:"error_rate" yaml:"error_rate"`
}

// HealthPolicy configures health tracking for a variant
type HealthPolicy struct {
	Enabled        bool                 `json:"enabled" yaml:"enabled"`
	CircuitBreaker CircuitBreakerPolicy `json:"circuit_breaker" yaml:"circuit_breaker"`
	Penalties      HealthPenalties      `json:"penalties" yaml:"penalties"`
}

// Defaults for routing sections a variant leaves out
var (
	DefaultRollout = Rollout{Type: "percentage", Percentage: 100, StickyKey: "api_key_prefix"}
	DefaultWeights = Weights{Base: 100, Quality: 1, Cost: 1, Latency: 1}
	DefaultHealth  = HealthPolicy{
		Enabled: true,
		CircuitBreaker: CircuitBreakerPolicy{
			FailureRateThreshold: 0.3,
			MinRequests:          20,
			CooldownSeconds:      60,
		},
		Penalties: HealthPenalties{
			P95LatencyMs: Penalty{Threshold: 1500, Multiplier: 0.8},
			ErrorRate:    Penalty{Threshold: 0.1, Multiplier: 0.8},
		},
	}
)

// RoutingPolicy is the per-variant traffic policy. A nil section was absent
// from the stored record; an explicit false or zero is kept as written.
type RoutingPolicy struct {
	Enabled   *bool         `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Rollout   *Rollout      `json:"rollout,omitempty" yaml:"rollout,omitempty"`
	Targeting Targeting     `json:"targeting" yaml:"targeting"`
	Weights   *Weights      `json:"weights,omitempty" yaml:"weights,omitempty"`
	Health    *HealthPolicy `json:"health,omitempty" yaml:"health,omitempty"`
}

// IsEnabled reports the routing flag, true when unset
func (p RoutingPolicy) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func (p RoutingPolicy) RolloutOrDefault() Rollout {
	if p.Rollout == nil {
		return DefaultRollout
	}
	return *p.Rollout
}

func (p RoutingPolicy) WeightsOrDefault() Weights {
	if p.Weights == nil {
		return DefaultWeights
	}
	return *p.Weights
}

func (p RoutingPolicy) HealthOrDefault() HealthPolicy {
	if p.Health == nil {
		return DefaultHealth
	}
	return *p.Health
}

// Bool returns a pointer to b, for building policies in code
func Bool(b bool) *bool { return &b }

// ModelVariant is one concrete provider/model pairing serving a public model
type ModelVariant struct {
	ID                   string                `json:"id" yaml:"id" db:"id"`
	PublicModelID        string                `json:"public_model_id" yaml:"public_model_id" db:"public_model_id"`
	Provider             string                `json:"provider" yaml:"provider" db:"provider"`
	ProviderModel        string                `json:"provider_model" yaml:"provider_model" db:"provider_model"`
	Enabled              bool                  `json:"enabled" yaml:"enabled" db:"enabled"`
	Price                PriceTable            `json:"pricing" yaml:"pricing" db:"price_json"`
	Regions              RegionTable           `json:"regions" yaml:"regions" db:"regions_json"`
	Routing              RoutingPolicy         `json:"routing" yaml:"routing" db:"routing_json"`
	CapabilitiesOverride *CapabilitiesOverride `json:"capabilities_override,omitempty" yaml:"capabilities_override,omitempty" db:"capabilities_override"`
	UpdatedAt            time.Time             `json:"updated_at" yaml:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the database table name
func (ModelVariant) TableName() string {
	return "model_variants"
}

// PublicModel is a caller-facing model name
type PublicModel struct {
	ID           string            `json:"id" yaml:"id" db:"id"`
	PublicName   string            `json:"public_name" yaml:"public_name" db:"public_name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty" db:"description"`
	Enabled      bool              `json:"enabled" yaml:"enabled" db:"enabled"`
	Capabilities ModelCapabilities `json:"capabilities" yaml:"capabilities" db:"capabilities_json"`
	Variants     []ModelVariant    `json:"variants" yaml:"variants"`
}

// TableName returns the database table name
func (PublicModel) TableName() string {
	return "public_models"
}

// EnabledVariants returns the variants whose enabled flag is set
func (m *PublicModel) EnabledVariants() []ModelVariant {
	variants := make([]ModelVariant, 0, len(m.Variants))
	for _, v := range m.Variants {
		if v.Enabled {
			variants = append(variants, v)
		}
	}
	return variants
}

// FindVariant returns the variant for a provider, if any.
// When providerModel is empty the first variant of the provider is returned.
func (m *PublicModel) FindVariant(provider, providerModel string) (*ModelVariant, bool) {
	for i := range m.Variants {
		v := &m.Variants[i]
		if v.Provider != provider {
			continue
		}
		if providerModel == "" || v.ProviderModel == providerModel {
			return v, true
		}
	}
	return nil, false
}
