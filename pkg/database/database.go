package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"library_chatbot/pkg/apperr"
	"library_chatbot/pkg/circuitbreaker"
	"library_chatbot/pkg/config"
	"library_chatbot/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects using cfg.Driver, retrying like the other services do while
// the database container is still starting, then migrates every model.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		log.Printf("Connecting to library database: host=%s, port=%s", cfg.Host, cfg.Port)
		dialector = postgres.Open(cfg.PostgresDSN())
	case "sqlite":
		log.Printf("Opening library database: %s", cfg.Path)
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	var db *gorm.DB
	var err error
	maxRetries := 10
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, gormConfig())
		if err == nil {
			break
		}
		log.Printf("Database connection attempt %d/%d failed: %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(5 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := configurePool(db, cfg.Driver); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Println("Database connection established successfully")
	return db, nil
}

// OpenSQLite opens and migrates a sqlite database; ":memory:" is what the
// tests use.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}
	if err := configurePool(db, "sqlite"); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, err
	}
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// loans and history outlive the books they reference
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

func configurePool(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database instance: %w", err)
	}
	if driver == "sqlite" {
		// one writer; also keeps ":memory:" to a single database
		sqlDB.SetMaxOpenConns(1)
		return nil
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return nil
}

// Store is the storage handle every service is built on. It classifies
// driver errors as apperr.ErrStorage and routes calls through a circuit
// breaker so that a dead database fails fast.
type Store struct {
	db      *gorm.DB
	breaker *circuitbreaker.CircuitBreaker
}

func NewStore(db *gorm.DB, breaker *circuitbreaker.CircuitBreaker) *Store {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(5, 30*time.Second)
	}
	breaker.CountOnly(func(err error) bool {
		return apperr.KindOf(err) == apperr.KindStorageFailure
	})
	return &Store{db: db, breaker: breaker}
}

// Read runs fn against the database outside a transaction.
func (s *Store) Read(ctx context.Context, fn func(db *gorm.DB) error) error {
	return s.run(func() error { return fn(s.db.WithContext(ctx)) })
}

// Transaction runs fn in a single transaction; any error rolls back
// everything fn did.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.run(func() error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
}

func (s *Store) run(fn func() error) error {
	err := s.breaker.Execute(func() error { return classify(fn()) })
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return apperr.Storage(err)
	}
	return err
}

func classify(err error) error {
	if err == nil || errors.Is(err, apperr.ErrStorage) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("record %w", apperr.ErrNotFound)
	}
	if apperr.KindOf(err) == apperr.KindStorageFailure {
		return apperr.Storage(err)
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) BreakerState() circuitbreaker.State {
	return s.breaker.GetState()
}
