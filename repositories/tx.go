package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// Transactor runs a unit of work atomically. Reads outside a unit of work use Executor.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(exec SQLExecutor) error) error
	Executor() SQLExecutor
}

type sqlTransactor struct {
	db      *sql.DB
	dialect Dialect
}

func NewTransactor(db *sql.DB, dialect Dialect) Transactor {
	return &sqlTransactor{db: db, dialect: dialect}
}

func (t *sqlTransactor) Executor() SQLExecutor {
	return t.db
}

// WithinTx commits when fn returns nil and rolls back otherwise (including on panic).
// The error returned by fn is passed through unchanged so callers can match sentinels.
func (t *sqlTransactor) WithinTx(ctx context.Context, fn func(exec SQLExecutor) error) (err error) {
	tx, err := t.db.BeginTx(ctx, t.dialect.txOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if cErr := tx.Commit(); cErr != nil {
		return fmt.Errorf("failed to commit transaction: %w", cErr)
	}
	return nil
}
