// Package di provides dependency injection configuration for the storefront.
package di

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/config"
	"github.com/mytheresa/go-storefront/internal/database"
	"github.com/mytheresa/go-storefront/internal/di/providers"
	"github.com/mytheresa/go-storefront/internal/security"
)

// NewContainer creates the DI container. Config and logger are loaded by the caller and provided
// as values; everything else is built lazily on first use.
func NewContainer(cfg *config.Config, log *zap.Logger) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)

	// Database layer
	do.Provide(injector, providers.ProvideDatabase)
	do.Provide(injector, providers.ProvideUsersRepository)
	do.Provide(injector, providers.ProvideProductsRepository)
	do.Provide(injector, providers.ProvideCategoriesRepository)
	do.Provide(injector, providers.ProvideTagsRepository)
	do.Provide(injector, providers.ProvideActivityRepository)
	do.Provide(injector, providers.ProvideContactRepository)
	do.Provide(injector, providers.ProvideSessionsRepository)
	do.Provide(injector, providers.ProvideTokensRepository)

	// Support services
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideHasher)
	do.Provide(injector, providers.ProvideMarkup)
	do.Provide(injector, providers.ProvideUploadStore)
	do.Provide(injector, providers.ProvideActivityRecorder)
	do.Provide(injector, providers.ProvideMailer)
	do.Provide(injector, providers.ProvideRecaptcha)
	do.Provide(injector, providers.ProvideRateLimiter)

	// Business services
	do.Provide(injector, providers.ProvideAuthService)

	// Web layer
	do.Provide(injector, providers.ProvideRenderer)
	do.Provide(injector, providers.ProvideSessionManager)
	do.Provide(injector, providers.ProvideHandlers)
	do.Provide(injector, providers.ProvideRouter)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Prepare migrates the schema when configured and seeds the bootstrap admin.
func Prepare(ctx context.Context, injector do.Injector) error {
	cfg := do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*zap.Logger](injector)

	db, err := do.Invoke[*providers.DatabaseHandle](injector)
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB); err != nil {
			return err
		}
		log.Info("Database schema migrated")
	}

	hasher := do.MustInvoke[*security.Hasher](injector)
	created, err := database.EnsureAdmin(ctx, db.DB, cfg.Admin, hasher.Hash)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	if created {
		log.Info("Bootstrap admin created", zap.String("username", cfg.Admin.Username))
	}
	return nil
}

// Bootstrap prepares the database and starts the HTTP server.
func Bootstrap(ctx context.Context, injector *do.RootScope) error {
	if err := Prepare(ctx, injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	return nil
}
