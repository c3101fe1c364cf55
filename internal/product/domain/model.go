package domain

import (
	"time"

	"gorm.io/datatypes"
)

type Product struct {
	ID          int64             `json:"id" gorm:"primaryKey"`
	Slug        string            `json:"slug" gorm:"type:varchar(128);not null;uniqueIndex:ux_products_slug"`
	Name        string            `json:"name" gorm:"type:text;not null"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	Active      bool              `json:"active" gorm:"not null;default:true"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

// Package is a sellable tier of a product. DomainLimit is copied onto every
// license issued for it; nil means unlimited.
type Package struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	ProductID   int64     `json:"product_id" gorm:"not null;uniqueIndex:ux_packages_product_slug,priority:1"`
	Slug        string    `json:"slug" gorm:"type:varchar(128);not null;uniqueIndex:ux_packages_product_slug,priority:2"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	DomainLimit *int      `json:"domain_limit,omitempty"`
	Active      bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Package) TableName() string { return "packages" }
