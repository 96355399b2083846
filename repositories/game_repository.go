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
	ErrGameNotFound     = errors.New("game not found")
	ErrGameNameConflict = errors.New("game name conflict")
	ErrGameInUse        = errors.New("game cannot be deleted as it is in use") // Для ошибки FK при удалении
)

type GameRepository interface {
	Create(ctx context.Context, exec SQLExecutor, game *models.Game) error
	GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Game, error)
	GetAll(ctx context.Context, exec SQLExecutor) ([]models.Game, error)
	Update(ctx context.Context, exec SQLExecutor, game *models.Game) error
	UpdateImageKey(ctx context.Context, exec SQLExecutor, id int64, key *string, at time.Time) error
	Delete(ctx context.Context, exec SQLExecutor, id int64) error
	Count(ctx context.Context, exec SQLExecutor) (int64, error)
}

var gameColumns = []string{"id", "name", "details", "team_size", "image_key", "created_at", "updated_at"}

type sqlGameRepository struct {
	dialect Dialect
}

func NewGameRepository(dialect Dialect) GameRepository {
	return &sqlGameRepository{dialect: dialect}
}

func (r *sqlGameRepository) Create(ctx context.Context, exec SQLExecutor, game *models.Game) error {
	now := fromMillis(toMillis(time.Now()))
	game.CreatedAt = now
	game.UpdatedAt = now

	q := r.dialect.builder.Insert("games").
		Columns("name", "details", "team_size", "image_key", "created_at", "updated_at").
		Values(game.Name, game.Details, game.TeamSize, game.ImageKey, toMillis(now), toMillis(now)).
		Suffix("RETURNING id")

	if err := scanRow(ctx, exec, q, &game.ID); err != nil {
		if isUniqueViolation(err, "games_name_key", "games.name") {
			return ErrGameNameConflict
		}
		return err
	}
	return nil
}

func (r *sqlGameRepository) GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Game, error) {
	query, args, err := r.dialect.builder.Select(gameColumns...).From("games").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	game, err := scanGameRow(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return game, nil
}

func (r *sqlGameRepository) GetAll(ctx context.Context, exec SQLExecutor) ([]models.Game, error) {
	rows, err := queryRows(ctx, exec, r.dialect.builder.Select(gameColumns...).From("games").OrderBy("name ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := make([]models.Game, 0)
	for rows.Next() {
		game, scanErr := scanGameRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		games = append(games, *game)
	}

	// Критически важная проверка ошибки после цикла
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return games, nil
}

func (r *sqlGameRepository) Update(ctx context.Context, exec SQLExecutor, game *models.Game) error {
	game.UpdatedAt = fromMillis(toMillis(time.Now()))
	q := r.dialect.builder.Update("games").
		Set("name", game.Name).
		Set("details", game.Details).
		Set("team_size", game.TeamSize).
		Set("updated_at", toMillis(game.UpdatedAt)).
		Where(sq.Eq{"id": game.ID})

	result, err := execQuery(ctx, exec, q)
	if err != nil {
		if isUniqueViolation(err, "games_name_key", "games.name") {
			return ErrGameNameConflict
		}
		return err
	}
	return checkAffectedRows(result, ErrGameNotFound)
}

func (r *sqlGameRepository) UpdateImageKey(ctx context.Context, exec SQLExecutor, id int64, key *string, at time.Time) error {
	q := r.dialect.builder.Update("games").
		Set("image_key", key).
		Set("updated_at", toMillis(at)).
		Where(sq.Eq{"id": id})

	result, err := execQuery(ctx, exec, q)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrGameNotFound)
}

// Delete removes the game row. Teams still referencing it trip the ON DELETE RESTRICT
// foreign key, reported as ErrGameInUse.
func (r *sqlGameRepository) Delete(ctx context.Context, exec SQLExecutor, id int64) error {
	result, err := execQuery(ctx, exec, r.dialect.builder.Delete("games").Where(sq.Eq{"id": id}))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrGameInUse
		}
		return err
	}
	return checkAffectedRows(result, ErrGameNotFound)
}

func (r *sqlGameRepository) Count(ctx context.Context, exec SQLExecutor) (int64, error) {
	var count int64
	err := scanRow(ctx, exec, r.dialect.builder.Select("COUNT(*)").From("games"), &count)
	return count, err
}

func scanGameRow(row rowScanner) (*models.Game, error) {
	var (
		game      models.Game
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&game.ID, &game.Name, &game.Details, &game.TeamSize, &game.ImageKey, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	game.CreatedAt = fromMillis(createdAt)
	game.UpdatedAt = fromMillis(updatedAt)
	return &game, nil
}
