package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Addr     string
	Database DatabaseConfig
	Auth     AuthConfig
	Lending  LendingConfig
	Storage  StorageConfig
}

type DatabaseConfig struct {
	Driver   string // "sqlite" or "postgres"
	Path     string // sqlite file
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminUsername string
	AdminPassword string
}

type LendingConfig struct {
	LoanPeriodDays  int
	MaxBooksPerUser int
	FinePerDay      decimal.Decimal
}

// StorageConfig drives the circuit breaker in front of the database.
type StorageConfig struct {
	MaxFailures int
	Cooldown    time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr: getEnv("ADDR", ":8080"),
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", "books.db"),
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "program"),
			Password: getEnv("DB_PASSWORD", "test"),
			Name:     getEnv("DB_NAME", "library"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("ADMIN_PASSWORD", "admin"),
		},
	}

	var err error
	if cfg.Lending.LoanPeriodDays, err = getEnvInt("LOAN_PERIOD_DAYS", 14); err != nil {
		return nil, err
	}
	if cfg.Lending.MaxBooksPerUser, err = getEnvInt("MAX_BOOKS_PER_USER", 5); err != nil {
		return nil, err
	}
	if cfg.Storage.MaxFailures, err = getEnvInt("STORAGE_MAX_FAILURES", 5); err != nil {
		return nil, err
	}
	if cfg.Storage.Cooldown, err = getEnvDuration("STORAGE_COOLDOWN", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Auth.TokenTTL, err = getEnvDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	fine, err := decimal.NewFromString(getEnv("FINE_PER_DAY", "1.00"))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal for FINE_PER_DAY: %w", err)
	}
	cfg.Lending.FinePerDay = fine

	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.Database.Driver)
	}
	if cfg.Lending.LoanPeriodDays < 1 {
		return nil, fmt.Errorf("LOAN_PERIOD_DAYS must be positive")
	}
	if cfg.Lending.FinePerDay.IsNegative() {
		return nil, fmt.Errorf("FINE_PER_DAY must not be negative")
	}
	return cfg, nil
}

// PostgresDSN builds the DSN the same way for every service.
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

// String masks secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Addr: %s, DB: %s, LoanPeriod: %dd, MaxBooks: %d, FinePerDay: %s, Auth: ***}",
		c.Addr, c.Database.Driver, c.Lending.LoanPeriodDays, c.Lending.MaxBooksPerUser, c.Lending.FinePerDay)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
