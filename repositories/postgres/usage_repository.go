package postgres

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
)

// UsageRepository implements the repositories.UsageRepository interface
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new usage event
func (r *UsageRepository) Insert(ctx context.Context, e *models.UsageEvent) error {
	query := `
		INSERT INTO usage_events (
			id, request_id, api_key_id, tenant_id, project_id, provider, model,
			model_variant_id, input_tokens, output_tokens, total_tokens, cost_usd,
			price_version, metric_json, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		e.ID,
		e.RequestID,
		e.APIKeyID,
		e.TenantID,
		e.ProjectID,
		e.Provider,
		e.Model,
		e.ModelVariantID,
		e.InputTokens,
		e.OutputTokens,
		e.TotalTokens,
		e.CostUSD,
		e.PriceVersion,
		nullableJSON(e.Metric),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	r.logger.Debug("usage event recorded",
		zap.String("request_id", e.RequestID),
		zap.String("provider", e.Provider),
		zap.Float64("cost_usd", e.CostUSD),
	)
	return nil
}

// List retrieves the usage events matching the filter
func (r *UsageRepository) List(ctx context.Context, filter models.UsageFilter) ([]*models.UsageEvent, error) {
	var conditions []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.TenantID != "" {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.ProjectID != "" {
		add("project_id = $%d", filter.ProjectID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}

	query := `
		SELECT id, request_id, api_key_id, tenant_id, project_id, provider, model,
			model_variant_id, input_tokens, output_tokens, total_tokens, cost_usd,
			price_version, metric_json, created_at
		FROM usage_events`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY created_at"

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	defer rows.Close()

	var events []*models.UsageEvent
	for rows.Next() {
		e := &models.UsageEvent{}
		var metric []byte
		if err := rows.Scan(
			&e.ID,
			&e.RequestID,
			&e.APIKeyID,
			&e.TenantID,
			&e.ProjectID,
			&e.Provider,
			&e.Model,
			&e.ModelVariantID,
			&e.InputTokens,
			&e.OutputTokens,
			&e.TotalTokens,
			&e.CostUSD,
			&e.PriceVersion,
			&metric,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		if len(metric) > 0 {
			e.Metric = metric
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage events: %w", err)
	}

	return events, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
