package models

import (
	"context"

	"gorm.io/gorm"
)

type CategoriesRepository struct {
	db *gorm.DB
}

func NewCategoriesRepository(db *gorm.DB) *CategoriesRepository {
	return &CategoriesRepository{db: db}
}

func (r *CategoriesRepository) GetAllCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := r.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *CategoriesRepository) GetByCode(ctx context.Context, code string) (*Category, error) {
	var category Category
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&category).Error; err != nil {
		return nil, notFound(err, ErrCategoryNotFound)
	}
	return &category, nil
}

// GetByIDs returns the categories among ids that exist.
func (r *CategoriesRepository) GetByIDs(ctx context.Context, ids []uint) ([]Category, error) {
	if len(ids) == 0 {
		return []Category{}, nil
	}
	var categories []Category
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *CategoriesRepository) CreateCategory(ctx context.Context, category *Category) error {
	return translateError(r.db.WithContext(ctx).Create(category).Error)
}

func (r *CategoriesRepository) UpdateCategory(ctx context.Context, category *Category) error {
	res := r.db.WithContext(ctx).Model(category).
		Select("Code", "Name", "Description", "UpdatedAt").
		Updates(category)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory removes the category and its product links.
func (r *CategoriesRepository) DeleteCategory(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category Category
		if err := tx.Where("code = ?", code).First(&category).Error; err != nil {
			return notFound(err, ErrCategoryNotFound)
		}
		if err := tx.Exec("DELETE FROM product_category_mapping WHERE category_id = ?", category.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
}
