package providers

import (
	"github.com/samber/do/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mytheresa/go-storefront/internal/config"
	"github.com/mytheresa/go-storefront/internal/database"
	"github.com/mytheresa/go-storefront/models"
)

// DatabaseHandle wraps the gorm connection with shutdown capability.
type DatabaseHandle struct {
	*gorm.DB
}

// Shutdown implements do.ShutdownerWithError.
func (h *DatabaseHandle) Shutdown() error {
	return database.Close(h.DB)
}

// ProvideDatabase opens the PostgreSQL connection.
func ProvideDatabase(i do.Injector) (*DatabaseHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*zap.Logger](i)

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	log.Info("Database connected")
	return &DatabaseHandle{DB: db}, nil
}

func ProvideUsersRepository(i do.Injector) (*models.UsersRepository, error) {
	return models.NewUsersRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}

func ProvideProductsRepository(i do.Injector) (*models.ProductsRepository, error) {
	return models.NewProductsRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}

func ProvideCategoriesRepository(i do.Injector) (*models.CategoriesRepository, error) {
	return models.NewCategoriesRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}

func ProvideTagsRepository(i do.Injector) (*models.TagsRepository, error) {
	return models.NewTagsRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}

func ProvideActivityRepository(i do.Injector) (*models.ActivityRepository, error) {
	return models.NewActivityRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}

func ProvideContactRepository(i do.Injector) (*models.ContactRepository, error) {
	return models.NewContactRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}

func ProvideSessionsRepository(i do.Injector) (*models.SessionsRepository, error) {
	return models.NewSessionsRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}

func ProvideTokensRepository(i do.Injector) (*models.TokensRepository, error) {
	return models.NewTokensRepository(do.MustInvoke[*DatabaseHandle](i).DB), nil
}
