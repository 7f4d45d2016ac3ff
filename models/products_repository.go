package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type ProductsRepository struct {
	db *gorm.DB
}

// ProductFilters narrows a catalog listing. Zero values disable a filter.
type ProductFilters struct {
	CategoryCode  string
	TagSlug       string
	PriceLessThan *float64
	Search        string
	OnlyActive    bool
}

func NewProductsRepository(db *gorm.DB) *ProductsRepository {
	return &ProductsRepository{
		db: db,
	}
}

func (r *ProductsRepository) GetFilteredProducts(ctx context.Context, offset, limit int, filters ProductFilters) ([]Product, int64, error) {
	var products []Product
	var total int64

	query := r.db.WithContext(ctx).Model(&Product{})

	if filters.OnlyActive {
		query = query.Where("products.is_active = ?", true)
	}
	if filters.CategoryCode != "" {
		byCategory := r.db.Table("product_category_mapping").
			Select("product_category_mapping.product_id").
			Joins("JOIN product_categories ON product_categories.id = product_category_mapping.category_id").
			Where("product_categories.code = ?", filters.CategoryCode)
		query = query.Where("products.id IN (?)", byCategory)
	}
	if filters.TagSlug != "" {
		byTag := r.db.Table("product_tags").
			Select("product_tags.product_id").
			Joins("JOIN tags ON tags.id = product_tags.tag_id").
			Where("tags.slug = ?", filters.TagSlug)
		query = query.Where("products.id IN (?)", byTag)
	}
	if filters.PriceLessThan != nil {
		query = query.Where("products.price < ?", *filters.PriceLessThan)
	}
	if q := strings.TrimSpace(filters.Search); q != "" {
		like := containsPattern(q)
		query = query.Where(`LOWER(products.name) LIKE ? ESCAPE '\' OR LOWER(products.code) LIKE ? ESCAPE '\'`, like, like)
	}

	// Count and page share the filters but must not share statement state.
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	if err := query.
		Preload("Categories").
		Preload("Tags").
		Order("products.created_at DESC").
		Order("products.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	return products, total, nil
}

func (r *ProductsRepository) GetByCode(ctx context.Context, code string) (*Product, error) {
	var product Product
	if err := r.preloaded(ctx).
		Where("code = ?", code).
		First(&product).Error; err != nil {
		return nil, notFound(err, ErrProductNotFound)
	}
	return &product, nil
}

func (r *ProductsRepository) GetByID(ctx context.Context, id uint) (*Product, error) {
	var product Product
	if err := r.preloaded(ctx).First(&product, id).Error; err != nil {
		return nil, notFound(err, ErrProductNotFound)
	}
	return &product, nil
}

// Create inserts the product along with its category and tag links and variants. Tags without
// an id are matched by name or slug, or created, in the same transaction.
func (r *ProductsRepository) Create(ctx context.Context, product *Product) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := resolveTags(tx, product.Tags); err != nil {
			return err
		}
		if err := tx.Create(product).Error; err != nil {
			return translateError(err)
		}
		return nil
	})
}

// Update saves scalar fields and replaces category and tag links. Tags are resolved as in
// Create. Variants are left untouched.
func (r *ProductsRepository) Update(ctx context.Context, product *Product) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := resolveTags(tx, product.Tags); err != nil {
			return err
		}
		if err := tx.Model(product).
			Select("Code", "Name", "Description", "Price", "Currency", "Stock", "ImagePath", "IsActive", "UpdatedAt").
			Updates(product).Error; err != nil {
			return translateError(err)
		}
		if err := replaceLinks(tx.Model(product).Association("Categories"), product.Categories); err != nil {
			return fmt.Errorf("replace categories: %w", err)
		}
		if err := replaceLinks(tx.Model(product).Association("Tags"), product.Tags); err != nil {
			return fmt.Errorf("replace tags: %w", err)
		}
		return nil
	})
}

// Delete removes a product with its variants and association rows.
func (r *ProductsRepository) Delete(ctx context.Context, id uint) (*Product, error) {
	var product Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			return notFound(err, ErrProductNotFound)
		}
		return tx.Select("Categories", "Tags", "Variants").Delete(&product).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern builds a lower-cased LIKE pattern matching q literally anywhere in a value.
// Queries using it must declare ESCAPE '\'.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
}

// resolveTags fills in the ids of tags, reusing a row with the same name (any case) or slug.
func resolveTags(tx *gorm.DB, tags []Tag) error {
	for i := range tags {
		if tags[i].ID != 0 {
			continue
		}
		var existing Tag
		err := tx.Where("LOWER(name) = LOWER(?) OR slug = ?", tags[i].Name, tags[i].Slug).First(&existing).Error
		switch {
		case err == nil:
			tags[i] = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&tags[i]).Error; err != nil {
				return fmt.Errorf("create tag %q: %w", tags[i].Name, err)
			}
		default:
			return fmt.Errorf("find tag %q: %w", tags[i].Name, err)
		}
	}
	return nil
}

func replaceLinks[T any](assoc *gorm.Association, values []T) error {
	if len(values) == 0 {
		return assoc.Clear()
	}
	return assoc.Replace(values)
}

func (r *ProductsRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Categories").
		Preload("Tags")
}
