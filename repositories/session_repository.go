package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/campus-games/models"
	sq "github.com/Masterminds/squirrel"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, session *models.Session) error
	GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Session, error)
	// Revoke marks an active session revoked. Already revoked sessions report ErrSessionNotFound.
	Revoke(ctx context.Context, exec SQLExecutor, id string, at time.Time) error
	DeleteByUser(ctx context.Context, exec SQLExecutor, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, exec SQLExecutor, now time.Time) (int64, error)
}

type sqlSessionRepository struct {
	dialect Dialect
}

func NewSessionRepository(dialect Dialect) SessionRepository {
	return &sqlSessionRepository{dialect: dialect}
}

func (r *sqlSessionRepository) Create(ctx context.Context, exec SQLExecutor, session *models.Session) error {
	q := r.dialect.builder.Insert("sessions").
		Columns("id", "user_id", "username", "role", "created_at", "expires_at").
		Values(session.ID, session.UserID, session.Username, string(session.Role),
			toMillis(session.CreatedAt), toMillis(session.ExpiresAt))
	if _, err := execQuery(ctx, exec, q); err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sqlSessionRepository) GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Session, error) {
	var (
		session   models.Session
		role      string
		createdAt int64
		expiresAt int64
		revokedAt sql.NullInt64
	)
	q := r.dialect.builder.
		Select("id", "user_id", "username", "role", "created_at", "expires_at", "revoked_at").
		From("sessions").
		Where(sq.Eq{"id": id})
	err := scanRow(ctx, exec, q, &session.ID, &session.UserID, &session.Username, &role, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	session.Role = models.UserRole(role)
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	session.RevokedAt = fromNullMillis(revokedAt)
	return &session, nil
}

func (r *sqlSessionRepository) Revoke(ctx context.Context, exec SQLExecutor, id string, at time.Time) error {
	q := r.dialect.builder.Update("sessions").
		Set("revoked_at", toMillis(at)).
		Where(sq.Eq{"id": id, "revoked_at": nil})
	result, err := execQuery(ctx, exec, q)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}

func (r *sqlSessionRepository) DeleteByUser(ctx context.Context, exec SQLExecutor, userID int64) (int64, error) {
	result, err := execQuery(ctx, exec, r.dialect.builder.Delete("sessions").Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sqlSessionRepository) DeleteExpired(ctx context.Context, exec SQLExecutor, now time.Time) (int64, error) {
	q := r.dialect.builder.Delete("sessions").Where(sq.Lt{"expires_at": toMillis(now)})
	result, err := execQuery(ctx, exec, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
