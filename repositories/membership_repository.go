package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/Dosada05/campus-games/models"
	sq "github.com/Masterminds/squirrel"
)

var (
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrMembershipExists     = errors.New("membership already exists")
	ErrMembershipRefInvalid = errors.New("membership references a missing user or team")
)

// MembershipRepository owns the memberships join table. Uniqueness of (user_id, team_id)
// is the table's primary key, so concurrent inserts of the same pair fail in the store.
type MembershipRepository interface {
	Add(ctx context.Context, exec SQLExecutor, userID, teamID int64) (*models.Membership, error)
	Remove(ctx context.Context, exec SQLExecutor, userID, teamID int64) error
	Exists(ctx context.Context, exec SQLExecutor, userID, teamID int64) (bool, error)
	CountByTeam(ctx context.Context, exec SQLExecutor, teamID int64) (int64, error)
	ListUserIDsByTeam(ctx context.Context, exec SQLExecutor, teamID int64) ([]int64, error)
	ListUserIDsByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int64) (map[int64][]int64, error)
	ListTeamIDsByUser(ctx context.Context, exec SQLExecutor, userID int64) ([]int64, error)
	DeleteByTeam(ctx context.Context, exec SQLExecutor, teamID int64) (int64, error)
	DeleteByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int64) (int64, error)
	DeleteByUser(ctx context.Context, exec SQLExecutor, userID int64) (int64, error)
}

type sqlMembershipRepository struct {
	dialect Dialect
}

func NewMembershipRepository(dialect Dialect) MembershipRepository {
	return &sqlMembershipRepository{dialect: dialect}
}

func (r *sqlMembershipRepository) Add(ctx context.Context, exec SQLExecutor, userID, teamID int64) (*models.Membership, error) {
	m := &models.Membership{
		UserID:   userID,
		TeamID:   teamID,
		JoinedAt: fromMillis(toMillis(time.Now())),
	}
	q := r.dialect.builder.Insert("memberships").
		Columns("user_id", "team_id", "joined_at").
		Values(userID, teamID, toMillis(m.JoinedAt))

	if _, err := execQuery(ctx, exec, q); err != nil {
		switch {
		case isUniqueViolation(err, "memberships_pkey", "memberships.user_id, memberships.team_id"):
			return nil, ErrMembershipExists
		case isForeignKeyViolation(err):
			return nil, ErrMembershipRefInvalid
		}
		return nil, err
	}
	return m, nil
}

func (r *sqlMembershipRepository) Remove(ctx context.Context, exec SQLExecutor, userID, teamID int64) error {
	q := r.dialect.builder.Delete("memberships").Where(sq.Eq{"user_id": userID, "team_id": teamID})
	result, err := execQuery(ctx, exec, q)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMembershipNotFound)
}

func (r *sqlMembershipRepository) Exists(ctx context.Context, exec SQLExecutor, userID, teamID int64) (bool, error) {
	var count int64
	q := r.dialect.builder.Select("COUNT(*)").From("memberships").Where(sq.Eq{"user_id": userID, "team_id": teamID})
	if err := scanRow(ctx, exec, q, &count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *sqlMembershipRepository) CountByTeam(ctx context.Context, exec SQLExecutor, teamID int64) (int64, error) {
	var count int64
	q := r.dialect.builder.Select("COUNT(*)").From("memberships").Where(sq.Eq{"team_id": teamID})
	err := scanRow(ctx, exec, q, &count)
	return count, err
}

func (r *sqlMembershipRepository) ListUserIDsByTeam(ctx context.Context, exec SQLExecutor, teamID int64) ([]int64, error) {
	byTeam, err := r.ListUserIDsByTeams(ctx, exec, []int64{teamID})
	if err != nil {
		return nil, err
	}
	if ids, ok := byTeam[teamID]; ok {
		return ids, nil
	}
	return []int64{}, nil
}

func (r *sqlMembershipRepository) ListUserIDsByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int64) (map[int64][]int64, error) {
	result := make(map[int64][]int64, len(teamIDs))
	if len(teamIDs) == 0 {
		return result, nil
	}

	q := r.dialect.builder.Select("team_id", "user_id").From("memberships").
		Where(sq.Eq{"team_id": teamIDs}).
		OrderBy("team_id ASC", "joined_at ASC", "user_id ASC")
	rows, err := queryRows(ctx, exec, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var teamID, userID int64
		if err := rows.Scan(&teamID, &userID); err != nil {
			return nil, err
		}
		result[teamID] = append(result[teamID], userID)
	}
	return result, rows.Err()
}

func (r *sqlMembershipRepository) ListTeamIDsByUser(ctx context.Context, exec SQLExecutor, userID int64) ([]int64, error) {
	q := r.dialect.builder.Select("team_id").From("memberships").Where(sq.Eq{"user_id": userID}).OrderBy("team_id ASC")
	rows, err := queryRows(ctx, exec, q)
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

func (r *sqlMembershipRepository) DeleteByTeam(ctx context.Context, exec SQLExecutor, teamID int64) (int64, error) {
	return r.deleteWhere(ctx, exec, sq.Eq{"team_id": teamID})
}

func (r *sqlMembershipRepository) DeleteByTeams(ctx context.Context, exec SQLExecutor, teamIDs []int64) (int64, error) {
	if len(teamIDs) == 0 {
		return 0, nil
	}
	return r.deleteWhere(ctx, exec, sq.Eq{"team_id": teamIDs})
}

func (r *sqlMembershipRepository) DeleteByUser(ctx context.Context, exec SQLExecutor, userID int64) (int64, error) {
	return r.deleteWhere(ctx, exec, sq.Eq{"user_id": userID})
}

func (r *sqlMembershipRepository) deleteWhere(ctx context.Context, exec SQLExecutor, where sq.Eq) (int64, error) {
	result, err := execQuery(ctx, exec, r.dialect.builder.Delete("memberships").Where(where))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
