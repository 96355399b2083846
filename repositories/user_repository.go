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

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserEmailConflict    = errors.New("user email conflict")
	ErrUserUsernameConflict = errors.New("user username conflict")
)

type UserRepository interface {
	Create(ctx context.Context, exec SQLExecutor, user *models.User) error
	GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.User, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends (Postgres).
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, exec SQLExecutor, username string) (*models.User, error)
	List(ctx context.Context, exec SQLExecutor) ([]models.User, error)
	ListByIDs(ctx context.Context, exec SQLExecutor, ids []int64) ([]models.User, error)
	UpdateProfile(ctx context.Context, exec SQLExecutor, user *models.User) error
	UpdatePasswordHash(ctx context.Context, exec SQLExecutor, id int64, hash string, at time.Time) error
	UpdatePhotoKey(ctx context.Context, exec SQLExecutor, id int64, key *string, at time.Time) error
	Delete(ctx context.Context, exec SQLExecutor, id int64) error
	Count(ctx context.Context, exec SQLExecutor) (int64, error)
}

var userColumns = []string{
	"id", "display_name", "username", "email", "password_hash", "role",
	"mobile_number", "gender", "class", "year", "photo_key", "created_at", "updated_at",
}

type sqlUserRepository struct {
	dialect Dialect
}

func NewUserRepository(dialect Dialect) UserRepository {
	return &sqlUserRepository{dialect: dialect}
}

func (r *sqlUserRepository) Create(ctx context.Context, exec SQLExecutor, user *models.User) error {
	now := fromMillis(toMillis(time.Now()))
	user.CreatedAt = now
	user.UpdatedAt = now

	q := r.dialect.builder.Insert("users").
		Columns("display_name", "username", "email", "password_hash", "role",
			"mobile_number", "gender", "class", "year", "photo_key", "created_at", "updated_at").
		Values(user.DisplayName, user.Username, user.Email, user.PasswordHash, string(user.Role),
			user.MobileNumber, user.Gender, user.Class, user.Year, user.PhotoKey,
			toMillis(user.CreatedAt), toMillis(user.UpdatedAt)).
		Suffix("RETURNING id")

	err := scanRow(ctx, exec, q, &user.ID)
	if err != nil {
		return r.handleUserError(err)
	}
	return nil
}

func (r *sqlUserRepository) GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.User, error) {
	q := r.dialect.builder.Select(userColumns...).From("users").Where(sq.Eq{"id": id})
	return r.scanUser(ctx, exec, q)
}

func (r *sqlUserRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.User, error) {
	q := r.dialect.builder.Select(userColumns...).From("users").Where(sq.Eq{"id": id})
	return r.scanUser(ctx, exec, r.dialect.lockForUpdate(q))
}

func (r *sqlUserRepository) GetByUsername(ctx context.Context, exec SQLExecutor, username string) (*models.User, error) {
	q := r.dialect.builder.Select(userColumns...).From("users").Where(sq.Eq{"username": username})
	return r.scanUser(ctx, exec, q)
}

func (r *sqlUserRepository) List(ctx context.Context, exec SQLExecutor) ([]models.User, error) {
	q := r.dialect.builder.Select(userColumns...).From("users").OrderBy("username ASC")
	return r.scanUsers(ctx, exec, q)
}

func (r *sqlUserRepository) ListByIDs(ctx context.Context, exec SQLExecutor, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	q := r.dialect.builder.Select(userColumns...).From("users").
		Where(sq.Eq{"id": ids}).
		OrderBy("username ASC")
	return r.scanUsers(ctx, exec, q)
}

// UpdateProfile writes only the display name and optional profile fields.
// Username, email and role are not writable through this path.
func (r *sqlUserRepository) UpdateProfile(ctx context.Context, exec SQLExecutor, user *models.User) error {
	user.UpdatedAt = fromMillis(toMillis(time.Now()))
	q := r.dialect.builder.Update("users").
		Set("display_name", user.DisplayName).
		Set("mobile_number", user.MobileNumber).
		Set("gender", user.Gender).
		Set("class", user.Class).
		Set("year", user.Year).
		Set("updated_at", toMillis(user.UpdatedAt)).
		Where(sq.Eq{"id": user.ID})

	result, err := execQuery(ctx, exec, q)
	if err != nil {
		return r.handleUserError(err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *sqlUserRepository) UpdatePasswordHash(ctx context.Context, exec SQLExecutor, id int64, hash string, at time.Time) error {
	q := r.dialect.builder.Update("users").
		Set("password_hash", hash).
		Set("updated_at", toMillis(at)).
		Where(sq.Eq{"id": id})

	result, err := execQuery(ctx, exec, q)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *sqlUserRepository) UpdatePhotoKey(ctx context.Context, exec SQLExecutor, id int64, key *string, at time.Time) error {
	q := r.dialect.builder.Update("users").
		Set("photo_key", key).
		Set("updated_at", toMillis(at)).
		Where(sq.Eq{"id": id})

	result, err := execQuery(ctx, exec, q)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *sqlUserRepository) Delete(ctx context.Context, exec SQLExecutor, id int64) error {
	result, err := execQuery(ctx, exec, r.dialect.builder.Delete("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *sqlUserRepository) Count(ctx context.Context, exec SQLExecutor) (int64, error) {
	var count int64
	err := scanRow(ctx, exec, r.dialect.builder.Select("COUNT(*)").From("users"), &count)
	return count, err
}

func (r *sqlUserRepository) handleUserError(err error) error {
	switch {
	case isUniqueViolation(err, "users_username_key", "users.username"):
		return ErrUserUsernameConflict
	case isUniqueViolation(err, "users_email_key", "users.email"):
		return ErrUserEmailConflict
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		role      string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.MobileNumber,
		&user.Gender,
		&user.Class,
		&user.Year,
		&user.PhotoKey,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = models.UserRole(role)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return &user, nil
}

// scanUser - вспомогательный метод для сканирования одного пользователя
func (r *sqlUserRepository) scanUser(ctx context.Context, exec SQLExecutor, q sq.SelectBuilder) (*models.User, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	user, err := scanUserRow(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

func (r *sqlUserRepository) scanUsers(ctx context.Context, exec SQLExecutor, q sq.SelectBuilder) ([]models.User, error) {
	rows, err := queryRows(ctx, exec, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, scanErr := scanUserRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, *user)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
