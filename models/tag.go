package models

import "time"

// Tag is a free-form label attached to products.
type Tag struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:50;not null"`
	Slug      string `gorm:"uniqueIndex;size:60;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Tag) TableName() string {
	return "tags"
}
