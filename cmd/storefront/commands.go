package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/database"
	"github.com/mytheresa/go-storefront/internal/di"
	"github.com/mytheresa/go-storefront/internal/di/providers"
	"github.com/mytheresa/go-storefront/internal/security"
	"github.com/mytheresa/go-storefront/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector := di.NewContainer(cfg, log)

		if err := di.Bootstrap(cmd.Context(), injector); err != nil {
			_ = injector.Shutdown()
			return fmt.Errorf("failed to bootstrap server: %w", err)
		}
		log.Info("Storefront running", zap.String("env", cfg.App.Env), zap.String("base_url", cfg.App.BaseURL))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info("Shutting down server gracefully...")
		if err := injector.Shutdown(); err != nil {
			log.Error("Shutdown error", zap.Error(err))
		}
		log.Info("Server stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector := di.NewContainer(cfg, log)
		defer func() { _ = injector.Shutdown() }()

		db, err := do.Invoke[*providers.DatabaseHandle](injector)
		if err != nil {
			return err
		}
		if err := database.Migrate(db.DB); err != nil {
			return err
		}
		log.Info("Database schema migrated")
		return nil
	},
}

var (
	adminUsername string
	adminEmail    string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an active administrator account",
	Example: `  storefront create-admin --username root --email root@example.com --password 's3cret-pass'
  STOREFRONT_ADMIN_PASSWORD='s3cret-pass' storefront create-admin --username root --email root@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminPassword == "" {
			adminPassword = os.Getenv("STOREFRONT_ADMIN_PASSWORD")
		}
		if adminUsername == "" || adminEmail == "" || adminPassword == "" {
			return errors.New("--username, --email and a password are required")
		}
		if len(adminPassword) < 8 {
			return errors.New("password must be at least 8 characters")
		}

		injector := di.NewContainer(cfg, log)
		defer func() { _ = injector.Shutdown() }()

		db, err := do.Invoke[*providers.DatabaseHandle](injector)
		if err != nil {
			return err
		}
		hasher := do.MustInvoke[*security.Hasher](injector)
		if err := database.CreateAdmin(cmd.Context(), db.DB, adminUsername, adminEmail, adminPassword, hasher.Hash); err != nil {
			return err
		}

		log.Info("Admin account created", zap.String("username", adminUsername), zap.String("email", adminEmail))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired sessions, password resets and remember-me tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		injector := di.NewContainer(cfg, log)
		defer func() { _ = injector.Shutdown() }()

		if _, err := do.Invoke[*providers.DatabaseHandle](injector); err != nil {
			return err
		}
		now := time.Now()

		sessions, err := do.MustInvoke[*models.SessionsRepository](injector).DeleteExpired(cmd.Context(), now)
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		tokens, err := do.MustInvoke[*models.TokensRepository](injector).PurgeExpired(cmd.Context(), now)
		if err != nil {
			return fmt.Errorf("purge expired tokens: %w", err)
		}

		log.Info("Cleanup finished", zap.Int64("sessions", sessions), zap.Int64("tokens", tokens))
		return nil
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "admin username")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email address")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "admin password (or STOREFRONT_ADMIN_PASSWORD)")
}
