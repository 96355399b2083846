package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
	"golang.org/x/sync/errgroup"
)

type DashboardService interface {
	// RecordVisit increments the visitor counter and returns the new value.
	RecordVisit(ctx context.Context, exec repositories.SQLExecutor) (int64, error)
	// GetStats runs the totals concurrently, so exec must be a pool, not a transaction.
	GetStats(ctx context.Context, exec repositories.SQLExecutor) (models.DashboardStats, error)
}

type dashboardService struct {
	userRepo    repositories.UserRepository
	gameRepo    repositories.GameRepository
	teamRepo    repositories.TeamRepository
	counterRepo repositories.CounterRepository
}

func NewDashboardService(
	userRepo repositories.UserRepository,
	gameRepo repositories.GameRepository,
	teamRepo repositories.TeamRepository,
	counterRepo repositories.CounterRepository,
) DashboardService {
	return &dashboardService{
		userRepo:    userRepo,
		gameRepo:    gameRepo,
		teamRepo:    teamRepo,
		counterRepo: counterRepo,
	}
}

func (s *dashboardService) RecordVisit(ctx context.Context, exec repositories.SQLExecutor) (int64, error) {
	value, err := s.counterRepo.Increment(ctx, exec, repositories.VisitorCounter)
	if err != nil {
		return 0, fmt.Errorf("failed to increment visitor counter: %w", err)
	}
	return value, nil
}

func (s *dashboardService) GetStats(ctx context.Context, exec repositories.SQLExecutor) (models.DashboardStats, error) {
	var stats models.DashboardStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.UsersTotal, err = s.userRepo.Count(gctx, exec)
		return err
	})
	g.Go(func() (err error) {
		stats.GamesTotal, err = s.gameRepo.Count(gctx, exec)
		return err
	})
	g.Go(func() (err error) {
		stats.TeamsTotal, err = s.teamRepo.Count(gctx, exec)
		return err
	})
	g.Go(func() (err error) {
		stats.VisitorCount, err = s.counterRepo.Get(gctx, exec, repositories.VisitorCounter)
		return err
	})

	if err := g.Wait(); err != nil {
		return models.DashboardStats{}, fmt.Errorf("failed to collect dashboard stats: %w", err)
	}
	return stats, nil
}
