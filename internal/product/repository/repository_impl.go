package repository

import (
	"context"

	"github.com/smallbiznis/licensor/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const productColumns = `id, slug, name, description, active, metadata, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, slug, name, description, active, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Slug,
		product.Name,
		product.Description,
		product.Active,
		product.Metadata,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE slug = ?`,
		slug,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Product, error) {
	var items []domain.Product
	stmt := db.WithContext(ctx).Model(&domain.Product{})

	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}

	sortBy := "created_at"
	switch filter.SortBy {
	case "created_at", "updated_at", "name", "slug":
		sortBy = filter.SortBy
	}
	order := "asc"
	if filter.OrderBy == "desc" {
		order = "desc"
	}

	if err := stmt.Order(sortBy + " " + order).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET name = ?, description = ?, active = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		product.Name,
		product.Description,
		product.Active,
		product.Metadata,
		product.UpdatedAt,
		product.ID,
	).Error
}

const packageColumns = `id, product_id, slug, name, domain_limit, active, created_at, updated_at`

func (r *repo) CreatePackage(ctx context.Context, db *gorm.DB, pkg *domain.Package) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO packages (id, product_id, slug, name, domain_limit, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pkg.ID,
		pkg.ProductID,
		pkg.Slug,
		pkg.Name,
		pkg.DomainLimit,
		pkg.Active,
		pkg.CreatedAt,
		pkg.UpdatedAt,
	).Error
}

func (r *repo) FindPackageByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Package, error) {
	var p domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+` FROM packages WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindPackageBySlug(ctx context.Context, db *gorm.DB, productID int64, slug string) (*domain.Package, error) {
	var p domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+` FROM packages WHERE product_id = ? AND slug = ?`,
		productID,
		slug,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListPackages(ctx context.Context, db *gorm.DB, productID int64) ([]domain.Package, error) {
	var items []domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT `+packageColumns+` FROM packages WHERE product_id = ? ORDER BY created_at ASC, id ASC`,
		productID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
