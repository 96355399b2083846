package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
)

const maxTeamNameLength = 100

type TeamService interface {
	CreateTeam(ctx context.Context, exec repositories.SQLExecutor, creator models.Principal, gameID int64, name string) (*models.Team, error)
	JoinTeam(ctx context.Context, exec repositories.SQLExecutor, userID, teamID int64) (*models.Membership, error)
	LeaveTeam(ctx context.Context, exec repositories.SQLExecutor, userID, teamID int64) error
	RemoveMember(ctx context.Context, exec repositories.SQLExecutor, teamID, userID int64) error
	// RenameTeam changes only the team row; the referenced game is never written.
	RenameTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int64, name string) (*models.Team, error)
	DeleteTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int64) error
	ReassignMembership(ctx context.Context, exec repositories.SQLExecutor, userID, fromTeamID, toTeamID int64) (*models.Membership, error)
	GetTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int64) (*models.Team, error)
	ListTeams(ctx context.Context, exec repositories.SQLExecutor, gameID *int64) ([]models.Team, error)
}

type teamService struct {
	teamRepo        repositories.TeamRepository
	membershipRepo  repositories.MembershipRepository
	gameRepo        repositories.GameRepository
	userRepo        repositories.UserRepository
	enforceCapacity bool
}

func NewTeamService(
	teamRepo repositories.TeamRepository,
	membershipRepo repositories.MembershipRepository,
	gameRepo repositories.GameRepository,
	userRepo repositories.UserRepository,
	enforceCapacity bool,
) TeamService {
	return &teamService{
		teamRepo:        teamRepo,
		membershipRepo:  membershipRepo,
		gameRepo:        gameRepo,
		userRepo:        userRepo,
		enforceCapacity: enforceCapacity,
	}
}

func (s *teamService) CreateTeam(ctx context.Context, exec repositories.SQLExecutor, creator models.Principal, gameID int64, name string) (*models.Team, error) {
	name, err := validateTeamName(name)
	if err != nil {
		return nil, err
	}

	game, err := s.gameRepo.GetByID(ctx, exec, gameID)
	if err != nil {
		return nil, mapGameRepoError(err)
	}

	team := &models.Team{Name: name, GameID: &game.ID}
	if err := s.teamRepo.Create(ctx, exec, team); err != nil {
		return nil, mapTeamRepoError(err)
	}

	if _, err := s.membershipRepo.Add(ctx, exec, creator.UserID, team.ID); err != nil {
		return nil, mapMembershipRepoError(err)
	}

	team.MemberIDs = []int64{creator.UserID}
	team.Game = game
	return team, nil
}

func (s *teamService) JoinTeam(ctx context.Context, exec repositories.SQLExecutor, userID, teamID int64) (*models.Membership, error) {
	team, err := s.teamRepo.GetByIDForUpdate(ctx, exec, teamID)
	if err != nil {
		return nil, mapTeamRepoError(err)
	}
	return s.addMember(ctx, exec, team, userID)
}

// addMember expects the team row to be locked by the caller.
func (s *teamService) addMember(ctx context.Context, exec repositories.SQLExecutor, team *models.Team, userID int64) (*models.Membership, error) {
	exists, err := s.membershipRepo.Exists(ctx, exec, userID, team.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if exists {
		return nil, ErrAlreadyMember
	}

	if err := s.checkCapacity(ctx, exec, team); err != nil {
		return nil, err
	}

	// PK (user_id, team_id) ловит параллельную вставку той же пары
	membership, err := s.membershipRepo.Add(ctx, exec, userID, team.ID)
	if err != nil {
		return nil, mapMembershipRepoError(err)
	}
	return membership, nil
}

func (s *teamService) checkCapacity(ctx context.Context, exec repositories.SQLExecutor, team *models.Team) error {
	// Команда без игры (после nullify) не имеет лимита
	if !s.enforceCapacity || team.GameID == nil {
		return nil
	}
	game, err := s.gameRepo.GetByID(ctx, exec, *team.GameID)
	if err != nil {
		return mapGameRepoError(err)
	}
	count, err := s.membershipRepo.CountByTeam(ctx, exec, team.ID)
	if err != nil {
		return fmt.Errorf("failed to count members of team %d: %w", team.ID, err)
	}
	if count >= int64(game.TeamSize) {
		return ErrTeamFull
	}
	return nil
}

func (s *teamService) LeaveTeam(ctx context.Context, exec repositories.SQLExecutor, userID, teamID int64) error {
	return s.removeMember(ctx, exec, teamID, userID)
}

func (s *teamService) RemoveMember(ctx context.Context, exec repositories.SQLExecutor, teamID, userID int64) error {
	return s.removeMember(ctx, exec, teamID, userID)
}

func (s *teamService) removeMember(ctx context.Context, exec repositories.SQLExecutor, teamID, userID int64) error {
	if _, err := s.teamRepo.GetByIDForUpdate(ctx, exec, teamID); err != nil {
		return mapTeamRepoError(err)
	}
	// Пустая команда остается на месте
	if err := s.membershipRepo.Remove(ctx, exec, userID, teamID); err != nil {
		return mapMembershipRepoError(err)
	}
	return nil
}

func (s *teamService) RenameTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int64, name string) (*models.Team, error) {
	name, err := validateTeamName(name)
	if err != nil {
		return nil, err
	}
	if err := s.teamRepo.Rename(ctx, exec, teamID, name); err != nil {
		return nil, mapTeamRepoError(err)
	}
	return s.GetTeam(ctx, exec, teamID)
}

func (s *teamService) DeleteTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int64) error {
	if _, err := s.teamRepo.GetByIDForUpdate(ctx, exec, teamID); err != nil {
		return mapTeamRepoError(err)
	}
	if _, err := s.membershipRepo.DeleteByTeam(ctx, exec, teamID); err != nil {
		return fmt.Errorf("failed to delete memberships of team %d: %w", teamID, err)
	}
	if err := s.teamRepo.Delete(ctx, exec, teamID); err != nil {
		return mapTeamRepoError(err)
	}
	return nil
}

func (s *teamService) ReassignMembership(ctx context.Context, exec repositories.SQLExecutor, userID, fromTeamID, toTeamID int64) (*models.Membership, error) {
	if fromTeamID == toTeamID {
		return nil, validationError("source and destination teams must differ")
	}

	// Блокируем строки в порядке id, чтобы параллельные переносы не зациклились
	first, second := fromTeamID, toTeamID
	if first > second {
		first, second = second, first
	}
	locked := make(map[int64]*models.Team, 2)
	for _, id := range []int64{first, second} {
		team, err := s.teamRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			return nil, mapTeamRepoError(err)
		}
		locked[id] = team
	}

	if err := s.membershipRepo.Remove(ctx, exec, userID, fromTeamID); err != nil {
		return nil, mapMembershipRepoError(err)
	}
	return s.addMember(ctx, exec, locked[toTeamID], userID)
}

func (s *teamService) GetTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int64) (*models.Team, error) {
	team, err := s.teamRepo.GetByID(ctx, exec, teamID)
	if err != nil {
		return nil, mapTeamRepoError(err)
	}

	memberIDs, err := s.membershipRepo.ListUserIDsByTeam(ctx, exec, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of team %d: %w", teamID, err)
	}
	team.MemberIDs = memberIDs

	members, err := s.userRepo.ListByIDs(ctx, exec, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load members of team %d: %w", teamID, err)
	}
	for i := range members {
		members[i].PasswordHash = ""
	}
	team.Members = members

	if team.GameID != nil {
		game, err := s.gameRepo.GetByID(ctx, exec, *team.GameID)
		if err != nil {
			return nil, mapGameRepoError(err)
		}
		team.Game = game
	}
	return team, nil
}

func (s *teamService) ListTeams(ctx context.Context, exec repositories.SQLExecutor, gameID *int64) ([]models.Team, error) {
	if gameID != nil {
		if _, err := s.gameRepo.GetByID(ctx, exec, *gameID); err != nil {
			return nil, mapGameRepoError(err)
		}
	}

	teams, err := s.teamRepo.List(ctx, exec, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	ids := make([]int64, 0, len(teams))
	for _, t := range teams {
		ids = append(ids, t.ID)
	}
	membersByTeam, err := s.membershipRepo.ListUserIDsByTeams(ctx, exec, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	for i := range teams {
		if memberIDs, ok := membersByTeam[teams[i].ID]; ok {
			teams[i].MemberIDs = memberIDs
		}
	}
	return teams, nil
}

func validateTeamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("team name is required")
	}
	if utf8.RuneCountInString(name) > maxTeamNameLength {
		return "", validationError("team name must be at most %d characters", maxTeamNameLength)
	}
	return name, nil
}

func mapTeamRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTeamNotFound):
		return ErrTeamNotFound
	case errors.Is(err, repositories.ErrTeamNameConflict):
		return ErrTeamNameConflict
	case errors.Is(err, repositories.ErrTeamGameInvalid):
		return ErrGameNotFound
	default:
		return fmt.Errorf("team repository error: %w", err)
	}
}

func mapMembershipRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrMembershipExists):
		return ErrAlreadyMember
	case errors.Is(err, repositories.ErrMembershipNotFound):
		return ErrNotMember
	case errors.Is(err, repositories.ErrMembershipRefInvalid):
		return ErrUserNotFound
	default:
		return fmt.Errorf("membership repository error: %w", err)
	}
}
