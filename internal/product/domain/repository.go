package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error

	CreatePackage(ctx context.Context, db *gorm.DB, pkg *Package) error
	FindPackageByID(ctx context.Context, db *gorm.DB, id int64) (*Package, error)
	FindPackageBySlug(ctx context.Context, db *gorm.DB, productID int64, slug string) (*Package, error)
	ListPackages(ctx context.Context, db *gorm.DB, productID int64) ([]Package, error)
}
