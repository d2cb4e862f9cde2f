package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
)

// RequestAuditRepository implements the repositories.RequestAuditRepository interface
type RequestAuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRequestAuditRepository creates a new request audit repository
func NewRequestAuditRepository(db *DB, logger *zap.Logger) repositories.RequestAuditRepository {
	return &RequestAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit entry
func (r *RequestAuditRepository) Insert(ctx context.Context, a *models.RequestAudit) error {
	query := `
		INSERT INTO request_audits (id, request_id, provider, model, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		a.ID,
		a.RequestID,
		a.Provider,
		a.Model,
		a.CostUSD,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request audit: %w", err)
	}

	r.logger.Debug("request audit inserted", zap.String("request_id", a.RequestID))
	return nil
}

// GetByRequestID retrieves the audit entries of a request
func (r *RequestAuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.RequestAudit, error) {
	query := `
		SELECT id, request_id, provider, model, cost_usd, created_at
		FROM request_audits
		WHERE request_id = $1
		ORDER BY created_at
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get request audits: %w", err)
	}
	defer rows.Close()

	var audits []*models.RequestAudit
	for rows.Next() {
		a := &models.RequestAudit{}
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Provider, &a.Model, &a.CostUSD, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request audit: %w", err)
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating request audits: %w", err)
	}

	return audits, nil
}
