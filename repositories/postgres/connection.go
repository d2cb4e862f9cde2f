package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/llm-gateway/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Public models
		CREATE TABLE IF NOT EXISTS public_models (
			id VARCHAR(100) PRIMARY KEY,
			public_name VARCHAR(255) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT true,
			capabilities_json JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Model variants (one provider/model pairing of a public model)
		CREATE TABLE IF NOT EXISTS model_variants (
			id VARCHAR(100) PRIMARY KEY,
			public_model_id VARCHAR(100) NOT NULL REFERENCES public_models(id) ON DELETE CASCADE,
			provider VARCHAR(100) NOT NULL,
			provider_model VARCHAR(255) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			price_json JSONB NOT NULL,
			regions_json JSONB NOT NULL,
			routing_json JSONB NOT NULL,
			capabilities_override JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(public_model_id, provider, provider_model)
		);

		-- Usage events (one per billed dispatch)
		CREATE TABLE IF NOT EXISTS usage_events (
			id UUID PRIMARY KEY,
			request_id VARCHAR(255) NOT NULL,
			api_key_id VARCHAR(255),
			tenant_id VARCHAR(255),
			project_id VARCHAR(255),
			provider VARCHAR(100) NOT NULL,
			model VARCHAR(255) NOT NULL,
			model_variant_id VARCHAR(100),
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd DECIMAL(14, 6) NOT NULL DEFAULT 0,
			price_version VARCHAR(100),
			metric_json JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Request audits
		CREATE TABLE IF NOT EXISTS request_audits (
			id UUID PRIMARY KEY,
			request_id VARCHAR(255) NOT NULL,
			provider VARCHAR(100) NOT NULL,
			model VARCHAR(255) NOT NULL,
			cost_usd DECIMAL(14, 6) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_model_variants_public_model_id ON model_variants(public_model_id);
		CREATE INDEX IF NOT EXISTS idx_usage_events_tenant_project ON usage_events(tenant_id, project_id);
		CREATE INDEX IF NOT EXISTS idx_usage_events_created_at ON usage_events(created_at);
		CREATE INDEX IF NOT EXISTS idx_usage_events_request_id ON usage_events(request_id);
		CREATE INDEX IF NOT EXISTS idx_request_audits_request_id ON request_audits(request_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
