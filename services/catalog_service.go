package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
)

// GameDeletePolicy decides what happens to teams that still reference a deleted game.
type GameDeletePolicy string

const (
	DeletePolicyDeny    GameDeletePolicy = "deny"
	DeletePolicyCascade GameDeletePolicy = "cascade"
	DeletePolicyNullify GameDeletePolicy = "nullify"
)

func ParseGameDeletePolicy(value string) (GameDeletePolicy, error) {
	switch p := GameDeletePolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case DeletePolicyDeny, DeletePolicyCascade, DeletePolicyNullify:
		return p, nil
	case "":
		return DeletePolicyDeny, nil
	default:
		return "", fmt.Errorf("unknown game delete policy %q", value)
	}
}

type CatalogService interface {
	ListGames(ctx context.Context, exec repositories.SQLExecutor) ([]models.Game, error)
	GetGame(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Game, error)
	CreateGame(ctx context.Context, exec repositories.SQLExecutor, input GameInput) (*models.Game, error)
	UpdateGame(ctx context.Context, exec repositories.SQLExecutor, id int64, input GameInput) (*models.Game, error)
	DeleteGame(ctx context.Context, exec repositories.SQLExecutor, id int64) (*GameDeletion, error)
	// SetGameImage stores key as the game image and returns the key it replaced.
	SetGameImage(ctx context.Context, exec repositories.SQLExecutor, id int64, key *string) (*models.Game, *string, error)
}

type GameInput struct {
	Name     string `json:"name"`
	Details  string `json:"details"`
	TeamSize int    `json:"team_size"`
}

// GameDeletion describes what a game deletion did to the teams that referenced it.
type GameDeletion struct {
	Game            *models.Game
	DeletedTeamIDs  []int64
	DetachedTeamIDs []int64
}

type catalogService struct {
	gameRepo       repositories.GameRepository
	teamRepo       repositories.TeamRepository
	membershipRepo repositories.MembershipRepository
	deletePolicy   GameDeletePolicy
}

func NewCatalogService(
	gameRepo repositories.GameRepository,
	teamRepo repositories.TeamRepository,
	membershipRepo repositories.MembershipRepository,
	deletePolicy GameDeletePolicy,
) CatalogService {
	if deletePolicy == "" {
		deletePolicy = DeletePolicyDeny
	}
	return &catalogService{
		gameRepo:       gameRepo,
		teamRepo:       teamRepo,
		membershipRepo: membershipRepo,
		deletePolicy:   deletePolicy,
	}
}

func (s *catalogService) ListGames(ctx context.Context, exec repositories.SQLExecutor) ([]models.Game, error) {
	games, err := s.gameRepo.GetAll(ctx, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to get all games: %w", err)
	}
	if games == nil {
		return []models.Game{}, nil
	}
	return games, nil
}

func (s *catalogService) GetGame(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Game, error) {
	game, err := s.gameRepo.GetByID(ctx, exec, id)
	if err != nil {
		return nil, mapGameRepoError(err)
	}
	return game, nil
}

func (s *catalogService) CreateGame(ctx context.Context, exec repositories.SQLExecutor, input GameInput) (*models.Game, error) {
	game, err := gameFromInput(input)
	if err != nil {
		return nil, err
	}
	if err := s.gameRepo.Create(ctx, exec, game); err != nil {
		return nil, mapGameRepoError(err)
	}
	return game, nil
}

func (s *catalogService) UpdateGame(ctx context.Context, exec repositories.SQLExecutor, id int64, input GameInput) (*models.Game, error) {
	update, err := gameFromInput(input)
	if err != nil {
		return nil, err
	}

	game, err := s.gameRepo.GetByID(ctx, exec, id)
	if err != nil {
		return nil, mapGameRepoError(err)
	}
	game.Name = update.Name
	game.Details = update.Details
	game.TeamSize = update.TeamSize

	if err := s.gameRepo.Update(ctx, exec, game); err != nil {
		return nil, mapGameRepoError(err)
	}
	return game, nil
}

func (s *catalogService) DeleteGame(ctx context.Context, exec repositories.SQLExecutor, id int64) (*GameDeletion, error) {
	game, err := s.gameRepo.GetByID(ctx, exec, id)
	if err != nil {
		return nil, mapGameRepoError(err)
	}
	deletion := &GameDeletion{Game: game}

	switch s.deletePolicy {
	case DeletePolicyCascade:
		teams, err := s.teamRepo.List(ctx, exec, &id)
		if err != nil {
			return nil, fmt.Errorf("failed to list teams of game %d: %w", id, err)
		}
		teamIDs := make([]int64, 0, len(teams))
		for _, t := range teams {
			teamIDs = append(teamIDs, t.ID)
		}
		if _, err := s.membershipRepo.DeleteByTeams(ctx, exec, teamIDs); err != nil {
			return nil, fmt.Errorf("failed to delete memberships of game %d: %w", id, err)
		}
		deleted, err := s.teamRepo.DeleteByGame(ctx, exec, id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete teams of game %d: %w", id, err)
		}
		deletion.DeletedTeamIDs = deleted

	case DeletePolicyNullify:
		detached, err := s.teamRepo.DetachFromGame(ctx, exec, id)
		if err != nil {
			return nil, fmt.Errorf("failed to detach teams of game %d: %w", id, err)
		}
		deletion.DetachedTeamIDs = detached

	default:
		count, err := s.teamRepo.CountByGame(ctx, exec, id)
		if err != nil {
			return nil, fmt.Errorf("failed to count teams of game %d: %w", id, err)
		}
		if count > 0 {
			return nil, ErrGameInUse
		}
	}

	// FK RESTRICT на teams.game_id ловит команды, созданные параллельно
	if err := s.gameRepo.Delete(ctx, exec, id); err != nil {
		return nil, mapGameRepoError(err)
	}
	return deletion, nil
}

func (s *catalogService) SetGameImage(ctx context.Context, exec repositories.SQLExecutor, id int64, key *string) (*models.Game, *string, error) {
	game, err := s.gameRepo.GetByID(ctx, exec, id)
	if err != nil {
		return nil, nil, mapGameRepoError(err)
	}

	previous := game.ImageKey
	now := time.Now()
	if err := s.gameRepo.UpdateImageKey(ctx, exec, id, key, now); err != nil {
		return nil, nil, mapGameRepoError(err)
	}
	game.ImageKey = key
	game.UpdatedAt = now.UTC().Truncate(time.Millisecond)
	return game, previous, nil
}

func gameFromInput(input GameInput) (*models.Game, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("game name is required")
	}
	if input.TeamSize <= 0 {
		return nil, validationError("team size must be positive")
	}
	return &models.Game{
		Name:     name,
		Details:  strings.TrimSpace(input.Details),
		TeamSize: input.TeamSize,
	}, nil
}

func mapGameRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrGameNotFound):
		return ErrGameNotFound
	case errors.Is(err, repositories.ErrGameNameConflict):
		return ErrGameNameConflict
	case errors.Is(err, repositories.ErrGameInUse):
		return ErrGameInUse
	default:
		return fmt.Errorf("game repository error: %w", err)
	}
}
