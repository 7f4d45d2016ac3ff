package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytheresa/go-storefront/internal/testutil"
	"github.com/mytheresa/go-storefront/models"
)

func TestTagsRepository_FindOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := models.NewTagsRepository(testutil.NewDB(t))

	tag, created, err := repo.FindOrCreate(ctx, &models.Tag{Name: "Summer", Slug: "summer"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.FindOrCreate(ctx, &models.Tag{Name: "summer", Slug: "summer"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tag.ID, again.ID)
	assert.Equal(t, "Summer", again.Name)
}

func TestTagsRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := models.NewTagsRepository(testutil.NewDB(t))

	summer, _, err := repo.FindOrCreate(ctx, &models.Tag{Name: "Summer", Slug: "summer"})
	require.NoError(t, err)
	winter, _, err := repo.FindOrCreate(ctx, &models.Tag{Name: "Winter", Slug: "winter"})
	require.NoError(t, err)

	winter.Name, winter.Slug = "Summer", "summer"
	assert.ErrorIs(t, repo.Update(ctx, winter), models.ErrDuplicate)

	summer.Name, summer.Slug = "Summer Sale", "summer-sale"
	require.NoError(t, repo.Update(ctx, summer))

	tags, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Summer Sale", tags[0].Name)

	require.NoError(t, repo.Delete(ctx, summer.ID))
	assert.ErrorIs(t, repo.Delete(ctx, summer.ID), models.ErrTagNotFound)
}

func TestCategoriesRepository(t *testing.T) {
	ctx := context.Background()
	repo := models.NewCategoriesRepository(testutil.NewDB(t))

	shoes := &models.Category{Code: "shoes", Name: "Shoes"}
	require.NoError(t, repo.CreateCategory(ctx, shoes))
	assert.ErrorIs(t, repo.CreateCategory(ctx, &models.Category{Code: "shoes", Name: "Other"}), models.ErrDuplicate)

	shoes.Name = "Footwear"
	require.NoError(t, repo.UpdateCategory(ctx, shoes))

	got, err := repo.GetByCode(ctx, "shoes")
	require.NoError(t, err)
	assert.Equal(t, "Footwear", got.Name)

	byIDs, err := repo.GetByIDs(ctx, []uint{shoes.ID, 999})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)

	require.NoError(t, repo.DeleteCategory(ctx, "shoes"))
	assert.ErrorIs(t, repo.DeleteCategory(ctx, "shoes"), models.ErrCategoryNotFound)
}
