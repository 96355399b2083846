package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	JWTSecretKey   string `env:"JWT_SECRET_KEY"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	Debug          bool   `env:"DEBUG" envDefault:"false"`

	SessionLifetime      time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"10m"`

	EnforceTeamCapacity bool     `env:"ENFORCE_TEAM_CAPACITY" envDefault:"true"`
	GameDeletePolicy    string   `env:"GAME_DELETE_POLICY" envDefault:"deny"`
	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	SecureCookies       bool     `env:"SECURE_COOKIES" envDefault:"false"`

	Admin AdminConfig

	R2AccountID       string `env:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	R2PublicBaseURL   string `env:"R2_PUBLIC_BASE_URL"`
}

// AdminConfig describes the bootstrap administrator. Without a username no admin is created.
type AdminConfig struct {
	Username    string `env:"ADMIN_USERNAME"`
	Email       string `env:"ADMIN_EMAIL"`
	Password    string `env:"ADMIN_PASSWORD"`
	DisplayName string `env:"ADMIN_DISPLAY_NAME" envDefault:"Administrator"`
}

func (a AdminConfig) Enabled() bool {
	return a.Username != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is not set")
	}
	if c.JWTSecretKey == "" {
		return errors.New("JWT_SECRET_KEY environment variable is not set")
	}
	if len(c.JWTSecretKey) < 16 {
		return errors.New("JWT_SECRET_KEY must be at least 16 characters")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.SessionLifetime <= 0 {
		return fmt.Errorf("SESSION_LIFETIME must be positive, got %s", c.SessionLifetime)
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive, got %s", c.SessionSweepInterval)
	}
	switch c.GameDeletePolicy {
	case "deny", "cascade", "nullify":
	default:
		return fmt.Errorf("GAME_DELETE_POLICY must be deny, cascade or nullify, got %q", c.GameDeletePolicy)
	}
	if c.Admin.Enabled() && (c.Admin.Email == "" || c.Admin.Password == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required when ADMIN_USERNAME is set")
	}
	return nil
}
