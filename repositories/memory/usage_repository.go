package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
)

// UsageRepository keeps usage events in memory
type UsageRepository struct {
	mu     sync.RWMutex
	events []*models.UsageEvent
}

// NewUsageRepository creates an empty usage repository
func NewUsageRepository() *UsageRepository {
	return &UsageRepository{}
}

// Insert appends a usage event
func (r *UsageRepository) Insert(ctx context.Context, e *models.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *e
	r.events = append(r.events, &copied)
	return nil
}

// List returns the events matching the filter, oldest first
func (r *UsageRepository) List(ctx context.Context, filter models.UsageFilter) ([]*models.UsageEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.UsageEvent
	for _, e := range r.events {
		if filter.Matches(e) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RequestAuditRepository keeps request audits in memory
type RequestAuditRepository struct {
	mu     sync.RWMutex
	audits map[string][]*models.RequestAudit
}

// NewRequestAuditRepository creates an empty audit repository
func NewRequestAuditRepository() *RequestAuditRepository {
	return &RequestAuditRepository{audits: make(map[string][]*models.RequestAudit)}
}

// Insert appends an audit entry
func (r *RequestAuditRepository) Insert(ctx context.Context, a *models.RequestAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.audits[a.RequestID] = append(r.audits[a.RequestID], &copied)
	return nil
}

// GetByRequestID returns the audit entries of a request
func (r *RequestAuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.RequestAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*models.RequestAudit(nil), r.audits[requestID]...), nil
}

// TransactionManager runs functions without isolation; memory writes are
// applied immediately and never rolled back.
type TransactionManager struct{}

// NewTransactionManager creates a no-op transaction manager
func NewTransactionManager() repositories.TransactionManager {
	return TransactionManager{}
}

// Begin returns a transaction bound to ctx
func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return transaction{ctx: ctx}, nil
}

// InTransaction calls fn with a no-op transaction
func (tm TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := tm.Begin(ctx)
	return fn(tx.Context(), tx)
}

type transaction struct {
	ctx context.Context
}

func (transaction) Commit() error { return nil }
func (transaction) Rollback() error { return nil }
func (t transaction) Context() context.Context { return t.ctx }

// NewRepositories returns memory-backed usage and audit repositories
// around the given catalog.
func NewRepositories(catalog repositories.CatalogRepository) *repositories.Repositories {
	return &repositories.Repositories{
		Catalog:       catalog,
		Usage:         NewUsageRepository(),
		RequestAudits: NewRequestAuditRepository(),
	}
}
