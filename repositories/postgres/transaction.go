package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/repositories"
)

type txKey struct{}

// TransactionManager opens sql transactions and threads them through the
// context so repositories join them via GetExecutor.
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a transaction manager over db
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// Begin starts a transaction. Only the returned Context carries it.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	t := &Transaction{tx: sqlTx, logger: tm.logger, started: time.Now()}
	t.ctx = context.WithValue(ctx, txKey{}, t)
	return t, nil
}

// InTransaction commits when fn succeeds. An error or a panic in fn rolls
// the transaction back; the panic is re-raised afterwards.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) (err error) {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("rollback failed", zap.Error(rbErr), zap.NamedError("cause", err))
		}
		return err
	}
	return tx.Commit()
}

// Transaction wraps a *sql.Tx bound to a context
type Transaction struct {
	tx      *sql.Tx
	ctx     context.Context
	logger  *zap.Logger
	started time.Time
}

func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed", zap.Duration("elapsed", time.Since(t.started)))
	return nil
}

// Rollback is a no-op on a transaction that already finished
func (t *Transaction) Rollback() error {
	err := t.tx.Rollback()
	switch {
	case err == nil:
		t.logger.Debug("transaction rolled back", zap.Duration("elapsed", time.Since(t.started)))
		return nil
	case errors.Is(err, sql.ErrTxDone):
		return nil
	default:
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
}

func (t *Transaction) Context() context.Context { return t.ctx }

// GetTransactionFromContext reports the transaction carried by ctx, if any
func GetTransactionFromContext(ctx context.Context) (*Transaction, bool) {
	t, ok := ctx.Value(txKey{}).(*Transaction)
	return t, ok
}

// Executor is the query surface shared by *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction in ctx, or the pool when there is none
func GetExecutor(ctx context.Context, db *DB) Executor {
	if t, ok := GetTransactionFromContext(ctx); ok {
		return t.tx
	}
	return db.DB
}
