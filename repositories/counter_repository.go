package repositories

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
)

const VisitorCounter = "visitors"

// CounterRepository keeps named monotonically increasing counters.
type CounterRepository interface {
	// Increment bumps the counter in a single upsert statement and returns the new value.
	Increment(ctx context.Context, exec SQLExecutor, name string) (int64, error)
	Get(ctx context.Context, exec SQLExecutor, name string) (int64, error)
}

type sqlCounterRepository struct {
	dialect Dialect
}

func NewCounterRepository(dialect Dialect) CounterRepository {
	return &sqlCounterRepository{dialect: dialect}
}

func (r *sqlCounterRepository) Increment(ctx context.Context, exec SQLExecutor, name string) (int64, error) {
	q := r.dialect.builder.Insert("counters").
		Columns("name", "value").
		Values(name, 1).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = counters.value + 1 RETURNING value")

	var value int64
	if err := scanRow(ctx, exec, q, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func (r *sqlCounterRepository) Get(ctx context.Context, exec SQLExecutor, name string) (int64, error) {
	var value int64
	err := scanRow(ctx, exec, r.dialect.builder.Select("value").From("counters").Where(sq.Eq{"name": name}), &value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return value, err
}
