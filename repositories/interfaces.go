package repositories

import (
	"context"
	"errors"

	"github.com/upb/llm-gateway/models"
)

// ErrNotFound is returned when a lookup matches no record
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// CatalogRepository reads public models and their variants
type CatalogRepository interface {
	// ListModels retrieves every public model with its variants
	ListModels(ctx context.Context) ([]*models.PublicModel, error)

	// GetModelByName retrieves a public model and its variants by public name.
	// Returns ErrNotFound when no model has that name.
	GetModelByName(ctx context.Context, name string) (*models.PublicModel, error)
}

// UsageRepository handles usage event data operations
type UsageRepository interface {
	// Insert inserts a new usage event
	Insert(ctx context.Context, event *models.UsageEvent) error

	// List retrieves the usage events matching the filter, oldest first
	List(ctx context.Context, filter models.UsageFilter) ([]*models.UsageEvent, error)
}

// RequestAuditRepository handles request audit data operations
type RequestAuditRepository interface {
	// Insert inserts a new audit entry
	Insert(ctx context.Context, audit *models.RequestAudit) error

	// GetByRequestID retrieves the audit entries of a request
	GetByRequestID(ctx context.Context, requestID string) ([]*models.RequestAudit, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Catalog       CatalogRepository
	Usage         UsageRepository
	RequestAudits RequestAuditRepository
}
