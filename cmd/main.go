package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/campus-games/config"
	"github.com/Dosada05/campus-games/db"
	"github.com/Dosada05/campus-games/events"
	"github.com/Dosada05/campus-games/handlers"
	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
	api "github.com/Dosada05/campus-games/routes"
	"github.com/Dosada05/campus-games/services"
	"github.com/Dosada05/campus-games/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("application failed", slog.Any("error", err))
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("driver", cfg.DatabaseDriver),
		slog.String("game_delete_policy", cfg.GameDeletePolicy),
		slog.Bool("enforce_team_capacity", cfg.EnforceTeamCapacity),
	)

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(ctx, dbConn, cfg.DatabaseDriver); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	dialect, err := repositories.DialectFor(cfg.DatabaseDriver)
	if err != nil {
		return err
	}

	deletePolicy, err := services.ParseGameDeletePolicy(cfg.GameDeletePolicy)
	if err != nil {
		return err
	}

	// Загрузчик файлов (Cloudflare R2) необязателен: без настроек загрузка отключена
	var uploader storage.FileUploader
	r2Config := storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	}
	if r2Config.Configured() {
		r2, err := storage.NewCloudflareR2Uploader(ctx, r2Config)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		uploader = r2
		logger.Info("Cloudflare R2 uploader initialized", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Warn("R2 is not configured, uploads are disabled")
	}

	wsHub := events.NewHub(logger)

	// Инициализация репозиториев
	userRepo := repositories.NewUserRepository(dialect)
	gameRepo := repositories.NewGameRepository(dialect)
	teamRepo := repositories.NewTeamRepository(dialect)
	membershipRepo := repositories.NewMembershipRepository(dialect)
	sessionRepo := repositories.NewSessionRepository(dialect)
	donationRepo := repositories.NewDonationRepository(dialect)
	counterRepo := repositories.NewCounterRepository(dialect)

	// Инициализация сервисов
	hasher, err := services.NewPasswordHasher(bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	identityService := services.NewIdentityService(userRepo, membershipRepo, sessionRepo, hasher)
	gateway := services.NewGateway(services.GatewayDeps{
		Tx:        repositories.NewTransactor(dbConn, dialect),
		Identity:  identityService,
		Catalog:   services.NewCatalogService(gameRepo, teamRepo, membershipRepo, deletePolicy),
		Teams:     services.NewTeamService(teamRepo, membershipRepo, gameRepo, userRepo, cfg.EnforceTeamCapacity),
		Sessions:  services.NewSessionService(sessionRepo, identityService, []byte(cfg.JWTSecretKey), cfg.SessionLifetime),
		Donations: services.NewDonationService(donationRepo),
		Dashboard: services.NewDashboardService(userRepo, gameRepo, teamRepo, counterRepo),
		Uploader:  uploader,
		Events:    wsHub,
		Logger:    logger,
	})
	logger.Info("services initialized")

	if cfg.Admin.Enabled() {
		admin, created, err := gateway.EnsureAdmin(ctx, services.RegisterInput{
			DisplayName: cfg.Admin.DisplayName,
			Username:    cfg.Admin.Username,
			Email:       cfg.Admin.Email,
			Password:    cfg.Admin.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to bootstrap admin account: %w", err)
		}
		if created {
			logger.Info("admin account created", slog.Int64("user_id", admin.ID), slog.String("username", admin.Username))
		} else if admin.Role != models.RoleAdmin {
			logger.Warn("bootstrap username belongs to a standard user, no admin created", slog.String("username", admin.Username))
		}
	}

	// Инициализация обработчиков HTTP
	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Auth:      handlers.NewAuthHandler(gateway, cfg.SecureCookies, logger),
		Users:     handlers.NewUserHandler(gateway, logger),
		Games:     handlers.NewGameHandler(gateway, logger),
		Teams:     handlers.NewTeamHandler(gateway, logger),
		Donations: handlers.NewDonationHandler(gateway, logger),
		Dashboard: handlers.NewDashboardHandler(gateway, logger),
		WebSocket: handlers.NewWebSocketHandler(wsHub, gateway, cfg.CORSAllowedOrigins, logger),
		Fallback:  handlers.NewFallbackHandler(logger),
	}, cfg.CORSAllowedOrigins)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		sweepSessions(gctx, gateway, cfg.SessionSweepInterval, logger)
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	})

	// Ожидание сигнала завершения
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return err
		}
		logger.Info("server shutdown complete")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("application exited")
	return nil
}

// sweepSessions removes expired session rows on every tick until ctx is done.
func sweepSessions(ctx context.Context, gateway *services.Gateway, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("session sweeper started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := gateway.PurgeExpiredSessions(ctx)
			if err != nil {
				logger.Error("session sweep failed", slog.Any("error", err))
				continue
			}
			if purged > 0 {
				logger.Debug("expired sessions purged", slog.Int64("count", purged))
			}
		}
	}
}
