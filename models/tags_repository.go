package models

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type TagsRepository struct {
	db *gorm.DB
}

func NewTagsRepository(db *gorm.DB) *TagsRepository {
	return &TagsRepository{db: db}
}

func (r *TagsRepository) List(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := r.db.WithContext(ctx).Order("name").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *TagsRepository) GetByID(ctx context.Context, id uint) (*Tag, error) {
	var tag Tag
	if err := r.db.WithContext(ctx).First(&tag, id).Error; err != nil {
		return nil, notFound(err, ErrTagNotFound)
	}
	return &tag, nil
}

// GetByName looks a tag up by name, case-insensitively.
func (r *TagsRepository) GetByName(ctx context.Context, name string) (*Tag, error) {
	var tag Tag
	if err := r.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&tag).Error; err != nil {
		return nil, notFound(err, ErrTagNotFound)
	}
	return &tag, nil
}

// FindOrCreate returns the existing tag named like tag.Name, or inserts tag.
// The boolean reports whether a row was created.
func (r *TagsRepository) FindOrCreate(ctx context.Context, tag *Tag) (*Tag, bool, error) {
	existing, err := r.GetByName(ctx, tag.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrTagNotFound) {
		return nil, false, err
	}

	if err := r.db.WithContext(ctx).Create(tag).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent insert of the same name.
			existing, getErr := r.GetByName(ctx, tag.Name)
			if getErr != nil {
				return nil, false, ErrDuplicate
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return tag, true, nil
}

// Update renames a tag. Renaming onto another tag's name yields ErrDuplicate.
func (r *TagsRepository) Update(ctx context.Context, tag *Tag) error {
	existing, err := r.GetByName(ctx, tag.Name)
	if err == nil && existing.ID != tag.ID {
		return ErrDuplicate
	}
	if err != nil && !errors.Is(err, ErrTagNotFound) {
		return err
	}

	res := r.db.WithContext(ctx).Model(tag).Select("Name", "Slug", "UpdatedAt").Updates(tag)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTagNotFound
	}
	return nil
}

// Delete removes a tag and its product links.
func (r *TagsRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM product_tags WHERE tag_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&Tag{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTagNotFound
		}
		return nil
	})
}
