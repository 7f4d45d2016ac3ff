// Package database opens the PostgreSQL connection, migrates the schema and seeds the bootstrap admin.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mytheresa/go-storefront/internal/config"
	"github.com/mytheresa/go-storefront/models"
)

// Open connects to PostgreSQL through lib/pq and applies pool settings.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector := postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        cfg.DSN,
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// NewGormLogger routes gorm warnings and slow queries to zap.
func NewGormLogger(log *zap.Logger) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(log.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PasswordHasher hashes a plaintext password for storage.
type PasswordHasher func(password string) (string, error)

// EnsureAdmin creates the configured bootstrap admin when no admin account exists yet.
// It returns true when an account was created.
func EnsureAdmin(ctx context.Context, db *gorm.DB, cfg config.AdminConfig, hash PasswordHasher) (bool, error) {
	if !cfg.Enabled() {
		return false, nil
	}

	users := models.NewUsersRepository(db)
	count, err := users.CountAdmins(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	if err := CreateAdmin(ctx, db, cfg.Username, cfg.Email, cfg.Password, hash); err != nil {
		return false, err
	}
	return true, nil
}

// CreateAdmin inserts an active admin account.
func CreateAdmin(ctx context.Context, db *gorm.DB, username, email, password string, hash PasswordHasher) error {
	passwordHash, err := hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	admin := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
		IsActive:     true,
		ActivatedAt:  &now,
		Profile:      &models.UserProfile{},
	}
	if err := models.NewUsersRepository(db).Create(ctx, admin); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return fmt.Errorf("username or email already in use: %w", err)
		}
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}
