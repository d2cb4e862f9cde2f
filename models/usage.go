package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UsageEvent is the billed record of one successful dispatch
type UsageEvent struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	RequestID      string          `json:"request_id" db:"request_id"`
	APIKeyID       string          `json:"api_key_id,omitempty" db:"api_key_id"`
	TenantID       string          `json:"tenant_id,omitempty" db:"tenant_id"`
	ProjectID      string          `json:"project_id,omitempty" db:"project_id"`
	Provider       string          `json:"provider" db:"provider"`
	Model          string          `json:"model" db:"model"`
	ModelVariantID string          `json:"model_variant_id" db:"model_variant_id"`
	InputTokens    int             `json:"input_tokens" db:"input_tokens"`
	OutputTokens   int             `json:"output_tokens" db:"output_tokens"`
	TotalTokens    int             `json:"total_tokens" db:"total_tokens"`
	CostUSD        float64         `json:"cost_usd" db:"cost_usd"`
	PriceVersion   string          `json:"price_version,omitempty" db:"price_version"`
	Metric         json.RawMessage `json:"metric,omitempty" db:"metric_json"` // JSONB: price version, unit prices, breakdown
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// NewUsageEvent creates a new usage event stamped with the current time
func NewUsageEvent(requestID, provider, model, variantID string) *UsageEvent {
	return &UsageEvent{
		ID:             uuid.New(),
		RequestID:      requestID,
		Provider:       provider,
		Model:          model,
		ModelVariantID: variantID,
		CreatedAt:      time.Now().UTC(),
	}
}

// TableName returns the database table name
func (UsageEvent) TableName() string {
	return "usage_events"
}

// RequestAudit is the per-request audit trail entry written alongside usage
type RequestAudit struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RequestID string    `json:"request_id" db:"request_id"`
	Provider  string    `json:"provider" db:"provider"`
	Model     string    `json:"model" db:"model"`
	CostUSD   float64   `json:"cost_usd" db:"cost_usd"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewRequestAudit creates a new request audit entry
func NewRequestAudit(requestID, provider, model string, costUSD float64) *RequestAudit {
	return &RequestAudit{
		ID:        uuid.New(),
		RequestID: requestID,
		Provider:  provider,
		Model:     model,
		CostUSD:   costUSD,
		CreatedAt: time.Now().UTC(),
	}
}

// TableName returns the database table name
func (RequestAudit) TableName() string {
	return "request_audits"
}

// ModelUsage is one row of a usage breakdown
type ModelUsage struct {
	Model   string  `json:"model"`
	CostUSD float64 `json:"cost_usd"`
	Tokens  int     `json:"tokens"`
}

// UsageSummary aggregates usage events over a time range
type UsageSummary struct {
	TenantID     string       `json:"tenant_id,omitempty"`
	ProjectID    string       `json:"project_id,omitempty"`
	From         *time.Time   `json:"from,omitempty"`
	To           *time.Time   `json:"to,omitempty"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	TotalTokens  int          `json:"total_tokens"`
	ByModel      []ModelUsage `json:"by_model"`
}

// UsageFilter selects usage events for aggregation.
// Empty tenant or project matches any value.
type UsageFilter struct {
	TenantID  string
	ProjectID string
	From      time.Time
	To        time.Time
}

// Matches reports whether the event falls inside the filter
func (f UsageFilter) Matches(e *UsageEvent) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}
