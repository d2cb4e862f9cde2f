// Package usage persists billed usage and aggregates it for reporting.
package usage

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/billing"
)

// UsageRecord is one successful, billed dispatch
type UsageRecord struct {
	RequestID      string
	APIKeyID       string
	TenantID       string
	ProjectID      string
	Provider       string
	Model          string
	ModelVariantID string
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	CostUSD        float64
	PriceVersion   string
	UnitPrices     models.UnitPrices
	Breakdown      billing.Breakdown
}

type metric struct {
	PriceVersion string            `json:"price_version"`
	UnitPrices   models.UnitPrices `json:"unit_prices"`
	Breakdown    billing.Breakdown `json:"breakdown"`
}

// Recorder writes usage events and their audit entries
type Recorder struct {
	txManager repositories.TransactionManager
	usage     repositories.UsageRepository
	audits    repositories.RequestAuditRepository
	logger    *zap.Logger
}

// NewRecorder creates a usage recorder
func NewRecorder(
	txManager repositories.TransactionManager,
	usage repositories.UsageRepository,
	audits repositories.RequestAuditRepository,
	logger *zap.Logger,
) *Recorder {
	return &Recorder{
		txManager: txManager,
		usage:     usage,
		audits:    audits,
		logger:    logger,
	}
}

// RecordUsage stores the usage event and the request audit atomically
func (r *Recorder) RecordUsage(ctx context.Context, rec UsageRecord) error {
	raw, err := json.Marshal(metric{
		PriceVersion: rec.PriceVersion,
		UnitPrices:   rec.UnitPrices,
		Breakdown:    rec.Breakdown,
	})
	if err != nil {
		return services.WrapInternal("failed to encode usage metric", err)
	}

	event := models.NewUsageEvent(rec.RequestID, rec.Provider, rec.Model, rec.ModelVariantID)
	event.APIKeyID = rec.APIKeyID
	event.TenantID = rec.TenantID
	event.ProjectID = rec.ProjectID
	event.InputTokens = rec.InputTokens
	event.OutputTokens = rec.OutputTokens
	event.TotalTokens = rec.TotalTokens
	event.CostUSD = rec.CostUSD
	event.PriceVersion = rec.PriceVersion
	event.Metric = raw

	audit := models.NewRequestAudit(rec.RequestID, rec.Provider, rec.Model, rec.CostUSD)

	err = r.txManager.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		if err := r.usage.Insert(ctx, event); err != nil {
			return err
		}
		return r.audits.Insert(ctx, audit)
	})
	if err != nil {
		return services.NewDomainError(services.ErrorTypeInternal, "failed to record usage", err).
			WithDetail("request_id", rec.RequestID)
	}

	r.logger.Info("usage recorded",
		zap.String("request_id", rec.RequestID),
		zap.String("provider", rec.Provider),
		zap.String("variant_id", rec.ModelVariantID),
		zap.Int("total_tokens", rec.TotalTokens),
		zap.Float64("cost_usd", rec.CostUSD),
	)
	return nil
}

// Service answers usage reporting queries
type Service struct {
	usage  repositories.UsageRepository
	logger *zap.Logger
}

// NewService creates a usage reporting service
func NewService(usage repositories.UsageRepository, logger *zap.Logger) *Service {
	return &Service{usage: usage, logger: logger}
}

// Aggregate sums cost and tokens of a tenant/project between from and to.
// Zero times leave that side of the range open. Models appear in by_model
// in order of first use.
func (s *Service) Aggregate(ctx context.Context, tenantID, projectID string, from, to time.Time) (*models.UsageSummary, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "to must not be before from", nil)
	}

	events, err := s.usage.List(ctx, models.UsageFilter{
		TenantID:  tenantID,
		ProjectID: projectID,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, services.WrapInternal("failed to list usage events", err)
	}

	summary := &models.UsageSummary{
		TenantID:  tenantID,
		ProjectID: projectID,
		ByModel:   []models.ModelUsage{},
	}
	if !from.IsZero() {
		summary.From = &from
	}
	if !to.IsZero() {
		summary.To = &to
	}

	index := make(map[string]int)
	for _, e := range events {
		summary.TotalCostUSD += e.CostUSD
		summary.TotalTokens += e.TotalTokens

		i, ok := index[e.Model]
		if !ok {
			i = len(summary.ByModel)
			index[e.Model] = i
			summary.ByModel = append(summary.ByModel, models.ModelUsage{Model: e.Model})
		}
		summary.ByModel[i].CostUSD += e.CostUSD
		summary.ByModel[i].Tokens += e.TotalTokens
	}

	s.logger.Debug("usage aggregated",
		zap.String("tenant_id", tenantID),
		zap.String("project_id", projectID),
		zap.Int("events", len(events)),
	)
	return summary, nil
}

