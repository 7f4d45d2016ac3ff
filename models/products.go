package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for products created without an explicit currency.
const DefaultCurrency = "EUR"

// Product represents a product in the catalog.
// It includes a unique code, price, its categories and tags, and a list of variants.
type Product struct {
	ID          uint            `gorm:"primaryKey"`
	Code        string          `gorm:"uniqueIndex;size:64;not null"`
	Name        string          `gorm:"size:255;not null"`
	Description string          `gorm:"type:text"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Currency    string          `gorm:"size:3;not null;default:EUR"`
	Stock       int             `gorm:"not null;default:0"`
	ImagePath   string          `gorm:"size:255"`
	IsActive    bool            `gorm:"not null;index"`
	Categories  []Category      `gorm:"many2many:product_category_mapping;"`
	Tags        []Tag           `gorm:"many2many:product_tags;"`
	Variants    []Variant       `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Product) TableName() string {
	return "products"
}

// Variant is a purchasable SKU of a product. A zero price means the product price applies.
type Variant struct {
	ID        uint            `gorm:"primaryKey"`
	ProductID uint            `gorm:"index;not null"`
	Name      string          `gorm:"size:255;not null"`
	SKU       string          `gorm:"uniqueIndex;size:64;not null"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
}

func (v *Variant) TableName() string {
	return "product_variants"
}

// EffectivePrice returns the variant price, inheriting the product price when unset.
func (v Variant) EffectivePrice(product Product) decimal.Decimal {
	if v.Price.IsZero() {
		return product.Price
	}
	return v.Price
}
