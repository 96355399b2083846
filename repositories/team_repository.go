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
	ErrTeamNotFound     = errors.New("team not found")
	ErrTeamNameConflict = errors.New("team name conflict")
	ErrTeamGameInvalid  = errors.New("team game conflict or invalid")
)

type TeamRepository interface {
	Create(ctx context.Context, exec SQLExecutor, team *models.Team) error
	GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Team, error)
	// GetByIDForUpdate locks the team row; membership changes of one team serialize on it.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Team, error)
	List(ctx context.Context, exec SQLExecutor, gameID *int64) ([]models.Team, error)
	Rename(ctx context.Context, exec SQLExecutor, id int64, name string) error
	Delete(ctx context.Context, exec SQLExecutor, id int64) error
	CountByGame(ctx context.Context, exec SQLExecutor, gameID int64) (int64, error)
	DeleteByGame(ctx context.Context, exec SQLExecutor, gameID int64) ([]int64, error)
	DetachFromGame(ctx context.Context, exec SQLExecutor, gameID int64) ([]int64, error)
	Count(ctx context.Context, exec SQLExecutor) (int64, error)
}

var teamColumns = []string{"id", "name", "game_id", "created_at"}

type sqlTeamRepository struct {
	dialect Dialect
}

func NewTeamRepository(dialect Dialect) TeamRepository {
	return &sqlTeamRepository{dialect: dialect}
}

func (r *sqlTeamRepository) Create(ctx context.Context, exec SQLExecutor, team *models.Team) error {
	team.CreatedAt = fromMillis(toMillis(time.Now()))
	q := r.dialect.builder.Insert("teams").
		Columns("name", "game_id", "created_at").
		Values(team.Name, team.GameID, toMillis(team.CreatedAt)).
		Suffix("RETURNING id")

	if err := scanRow(ctx, exec, q, &team.ID); err != nil {
		return r.handleTeamError(err)
	}
	return nil
}

func (r *sqlTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Team, error) {
	return r.getOne(ctx, exec, r.dialect.builder.Select(teamColumns...).From("teams").Where(sq.Eq{"id": id}))
}

func (r *sqlTeamRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Team, error) {
	q := r.dialect.builder.Select(teamColumns...).From("teams").Where(sq.Eq{"id": id})
	return r.getOne(ctx, exec, r.dialect.lockForUpdate(q))
}

func (r *sqlTeamRepository) List(ctx context.Context, exec SQLExecutor, gameID *int64) ([]models.Team, error) {
	q := r.dialect.builder.Select(teamColumns...).From("teams").OrderBy("name ASC", "id ASC")
	if gameID != nil {
		q = q.Where(sq.Eq{"game_id": *gameID})
	}

	rows, err := queryRows(ctx, exec, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]models.Team, 0)
	for rows.Next() {
		team, scanErr := scanTeamRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		teams = append(teams, *team)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}

// Rename touches only teams.name; the referenced game is never written.
func (r *sqlTeamRepository) Rename(ctx context.Context, exec SQLExecutor, id int64, name string) error {
	result, err := execQuery(ctx, exec, r.dialect.builder.Update("teams").Set("name", name).Where(sq.Eq{"id": id}))
	if err != nil {
		return r.handleTeamError(err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *sqlTeamRepository) Delete(ctx context.Context, exec SQLExecutor, id int64) error {
	result, err := execQuery(ctx, exec, r.dialect.builder.Delete("teams").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (r *sqlTeamRepository) CountByGame(ctx context.Context, exec SQLExecutor, gameID int64) (int64, error) {
	var count int64
	err := scanRow(ctx, exec, r.dialect.builder.Select("COUNT(*)").From("teams").Where(sq.Eq{"game_id": gameID}), &count)
	return count, err
}

// DeleteByGame removes every team of the game and returns their ids.
// Memberships must be removed by the caller beforehand.
func (r *sqlTeamRepository) DeleteByGame(ctx context.Context, exec SQLExecutor, gameID int64) ([]int64, error) {
	ids, err := r.idsByGame(ctx, exec, gameID)
	if err != nil || len(ids) == 0 {
		return ids, err
	}
	if _, err := execQuery(ctx, exec, r.dialect.builder.Delete("teams").Where(sq.Eq{"id": ids})); err != nil {
		return nil, err
	}
	return ids, nil
}

// DetachFromGame sets game_id to NULL on every team of the game and returns their ids.
func (r *sqlTeamRepository) DetachFromGame(ctx context.Context, exec SQLExecutor, gameID int64) ([]int64, error) {
	ids, err := r.idsByGame(ctx, exec, gameID)
	if err != nil || len(ids) == 0 {
		return ids, err
	}
	q := r.dialect.builder.Update("teams").Set("game_id", nil).Where(sq.Eq{"id": ids})
	if _, err := execQuery(ctx, exec, q); err != nil {
		return nil, r.handleTeamError(err)
	}
	return ids, nil
}

func (r *sqlTeamRepository) Count(ctx context.Context, exec SQLExecutor) (int64, error) {
	var count int64
	err := scanRow(ctx, exec, r.dialect.builder.Select("COUNT(*)").From("teams"), &count)
	return count, err
}

func (r *sqlTeamRepository) idsByGame(ctx context.Context, exec SQLExecutor, gameID int64) ([]int64, error) {
	rows, err := queryRows(ctx, exec, r.dialect.builder.Select("id").From("teams").Where(sq.Eq{"game_id": gameID}).OrderBy("id ASC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *sqlTeamRepository) getOne(ctx context.Context, exec SQLExecutor, q sq.SelectBuilder) (*models.Team, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	team, err := scanTeamRow(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}

func (r *sqlTeamRepository) handleTeamError(err error) error {
	switch {
	case isUniqueViolation(err, "teams_game_id_name_key", "teams.game_id, teams.name"):
		return ErrTeamNameConflict
	case isForeignKeyViolation(err):
		return ErrTeamGameInvalid
	}
	return err
}

func scanTeamRow(row rowScanner) (*models.Team, error) {
	var (
		team      models.Team
		gameID    sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&team.ID, &team.Name, &gameID, &createdAt); err != nil {
		return nil, err
	}
	if gameID.Valid {
		id := gameID.Int64
		team.GameID = &id
	}
	team.CreatedAt = fromMillis(createdAt)
	team.MemberIDs = []int64{}
	return &team, nil
}
