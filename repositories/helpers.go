package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLExecutor is satisfied by both *sql.DB and *sql.Tx, so every repository method
// can run inside or outside a transaction.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Dialect holds what differs between Postgres and SQLite: placeholders, row locks and
// transaction options.
type Dialect struct {
	name      string
	builder   sq.StatementBuilderType
	forUpdate string
	txOptions *sql.TxOptions
}

var (
	Postgres = Dialect{
		name:      "postgres",
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		forUpdate: "FOR UPDATE",
		txOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
	// SQLite has no row locks; the pool is limited to one connection so writers serialize.
	SQLite = Dialect{
		name:    "sqlite",
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.name:
		return Postgres, nil
	case SQLite.name:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) Name() string { return d.name }

func (d Dialect) lockForUpdate(q sq.SelectBuilder) sq.SelectBuilder {
	if d.forUpdate == "" {
		return q
	}
	return q.Suffix(d.forUpdate)
}

// --- squirrel helpers ---

func execQuery(ctx context.Context, exec SQLExecutor, q sq.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return exec.ExecContext(ctx, query, args...)
}

func queryRows(ctx context.Context, exec SQLExecutor, q sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return exec.QueryContext(ctx, query, args...)
}

func scanRow(ctx context.Context, exec SQLExecutor, q sq.Sqlizer, dest ...interface{}) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return exec.QueryRowContext(ctx, query, args...).Scan(dest...)
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError // Возвращаем переданную ошибку "не найдено"
	}
	return nil
}

// --- driver error classification ---

// isUniqueViolation matches a unique/primary key violation on a specific constraint.
// Postgres reports the constraint name; SQLite reports "table.column[, table.column]".
func isUniqueViolation(err error, pgConstraint, sqliteTarget string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == pgConstraint
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			msg := sqliteErr.Error()
			return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, sqliteTarget)
		}
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return true
		}
		// ON DELETE RESTRICT приходит как SQLITE_CONSTRAINT_TRIGGER (1811), поэтому
		// сверяем первичный код и текст ошибки
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(sqliteErr.Error(), "FOREIGN KEY constraint failed")
	}
	return false
}

// --- timestamps ---

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}
