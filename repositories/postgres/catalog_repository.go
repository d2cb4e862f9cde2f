package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
)

const variantColumns = `id, public_model_id, provider, provider_model, enabled,
	price_json, regions_json, routing_json, capabilities_override, updated_at`

// CatalogRepository implements the repositories.CatalogRepository interface
type CatalogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *DB, logger *zap.Logger) repositories.CatalogRepository {
	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

// ListModels retrieves all public models with their variants
func (r *CatalogRepository) ListModels(ctx context.Context) ([]*models.PublicModel, error) {
	query := `
		SELECT id, public_name, description, enabled, capabilities_json
		FROM public_models
		ORDER BY public_name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list public models: %w", err)
	}
	defer rows.Close()

	var result []*models.PublicModel
	byID := make(map[string]*models.PublicModel)
	for rows.Next() {
		m := &models.PublicModel{}
		if err := rows.Scan(&m.ID, &m.PublicName, &m.Description, &m.Enabled, &m.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to scan public model: %w", err)
		}
		result = append(result, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating public models: %w", err)
	}

	variantQuery := `SELECT ` + variantColumns + `
		FROM model_variants
		ORDER BY public_model_id, created_at, id
	`
	variants, err := r.queryVariants(ctx, variantQuery)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if m, ok := byID[v.PublicModelID]; ok {
			m.Variants = append(m.Variants, v)
		}
	}

	return result, nil
}

// GetModelByName retrieves a public model and its variants by public name
func (r *CatalogRepository) GetModelByName(ctx context.Context, name string) (*models.PublicModel, error) {
	query := `
		SELECT id, public_name, description, enabled, capabilities_json
		FROM public_models
		WHERE public_name = $1
	`

	executor := GetExecutor(ctx, r.db)
	m := &models.PublicModel{}

	err := executor.QueryRowContext(ctx, query, name).Scan(
		&m.ID,
		&m.PublicName,
		&m.Description,
		&m.Enabled,
		&m.Capabilities,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("public model %q: %w", name, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get public model: %w", err)
	}

	variantQuery := `SELECT ` + variantColumns + `
		FROM model_variants
		WHERE public_model_id = $1
		ORDER BY created_at, id
	`
	m.Variants, err = r.queryVariants(ctx, variantQuery, m.ID)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("public model loaded", zap.String("name", name), zap.Int("variants", len(m.Variants)))
	return m, nil
}

func (r *CatalogRepository) queryVariants(ctx context.Context, query string, args ...interface{}) ([]models.ModelVariant, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list model variants: %w", err)
	}
	defer rows.Close()

	var variants []models.ModelVariant
	for rows.Next() {
		var v models.ModelVariant
		var override []byte
		if err := rows.Scan(
			&v.ID,
			&v.PublicModelID,
			&v.Provider,
			&v.ProviderModel,
			&v.Enabled,
			&v.Price,
			&v.Regions,
			&v.Routing,
			&override,
			&v.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model variant: %w", err)
		}
		if len(override) > 0 {
			v.CapabilitiesOverride = &models.CapabilitiesOverride{}
			if err := json.Unmarshal(override, v.CapabilitiesOverride); err != nil {
				return nil, fmt.Errorf("failed to decode capabilities override of %s: %w", v.ID, err)
			}
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model variants: %w", err)
	}

	return variants, nil
}
