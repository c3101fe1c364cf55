package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/pkg/db"
	"github.com/smallbiznis/licensor/pkg/db/option"
	"github.com/smallbiznis/licensor/pkg/db/pagination"
	"gorm.io/gorm"
)

type licenseRepo struct{}

func ProvideLicenses() domain.Repository {
	return &licenseRepo{}
}

const licenseColumns = `l.id, l.license_key, l.user_id, l.product_id, l.package_id, l.subscription_id,
	l.domain_limit, l.status, l.expires_at, l.last_validated_at, l.metadata, l.created_at, l.updated_at`

const detailSelect = `SELECT ` + licenseColumns + `,
	p.slug AS product_slug, p.name AS product_name, pk.slug AS package_slug, pk.name AS package_name
	FROM licenses l
	JOIN products p ON p.id = l.product_id
	JOIN packages pk ON pk.id = l.package_id`

func (r *licenseRepo) Create(ctx context.Context, conn *gorm.DB, license *domain.License) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO licenses (id, license_key, user_id, product_id, package_id, subscription_id,
			domain_limit, status, expires_at, last_validated_at, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		license.ID,
		license.LicenseKey,
		license.UserID,
		license.ProductID,
		license.PackageID,
		license.SubscriptionID,
		license.DomainLimit,
		license.Status,
		license.ExpiresAt,
		license.LastValidatedAt,
		license.Metadata,
		license.CreatedAt,
		license.UpdatedAt,
	).Error
}

func (r *licenseRepo) FindByID(ctx context.Context, conn *gorm.DB, id int64) (*domain.LicenseDetail, error) {
	return r.findDetail(ctx, conn, detailSelect+` WHERE l.id = ?`, id)
}

func (r *licenseRepo) FindByKey(ctx context.Context, conn *gorm.DB, key string) (*domain.LicenseDetail, error) {
	return r.findDetail(ctx, conn, detailSelect+` WHERE l.license_key = ?`, key)
}

func (r *licenseRepo) FindByKeyAndProduct(ctx context.Context, conn *gorm.DB, key, productSlug string) (*domain.LicenseDetail, error) {
	return r.findDetail(ctx, conn, detailSelect+` WHERE l.license_key = ? AND p.slug = ?`, key, productSlug)
}

func (r *licenseRepo) findDetail(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.LicenseDetail, error) {
	var item domain.LicenseDetail
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *licenseRepo) FindBySubscriptionID(ctx context.Context, conn *gorm.DB, subscriptionID string) (*domain.License, error) {
	var item domain.License
	err := conn.WithContext(ctx).Raw(
		`SELECT `+licenseColumns+` FROM licenses l WHERE l.subscription_id = ? ORDER BY l.created_at ASC LIMIT 1`,
		subscriptionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *licenseRepo) LockByID(ctx context.Context, conn *gorm.DB, id int64) (*domain.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses l WHERE l.id = ?`
	if db.SupportsRowLocks(conn) {
		query += ` FOR UPDATE`
	}

	var item domain.License
	if err := conn.WithContext(ctx).Raw(query, id).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *licenseRepo) KeyExists(ctx context.Context, conn *gorm.DB, key string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(`SELECT COUNT(1) FROM licenses WHERE license_key = ?`, key).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *licenseRepo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.LicenseDetail, error) {
	var items []*domain.LicenseDetail
	stmt := conn.WithContext(ctx).
		Table("licenses l").
		Select(licenseColumns + `, p.slug AS product_slug, p.name AS product_name, pk.slug AS package_slug, pk.name AS package_name`).
		Joins("JOIN products p ON p.id = l.product_id").
		Joins("JOIN packages pk ON pk.id = l.package_id")

	if filter.ProductID != nil {
		stmt = stmt.Where("l.product_id = ?", *filter.ProductID)
	}
	if filter.Status != nil {
		stmt = stmt.Where("l.status = ?", *filter.Status)
	}
	if filter.UserID != "" {
		stmt = stmt.Where("l.user_id = ?", filter.UserID)
	}

	stmt = option.ApplyPagination(page, "l").Apply(stmt)
	err := stmt.
		Order("l.created_at desc, l.id desc").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *licenseRepo) ListExpiredActive(ctx context.Context, conn *gorm.DB, cutoff time.Time, limit int) ([]domain.License, error) {
	var items []domain.License
	err := conn.WithContext(ctx).Raw(
		`SELECT `+licenseColumns+` FROM licenses l
		 WHERE l.status = ? AND l.expires_at IS NOT NULL AND l.expires_at <= ?
		 ORDER BY l.expires_at ASC, l.id ASC
		 LIMIT ?`,
		domain.StatusActive,
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *licenseRepo) TouchValidated(ctx context.Context, conn *gorm.DB, id int64, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE licenses SET last_validated_at = ? WHERE id = ?`,
		now,
		id,
	).Error
}

func (r *licenseRepo) SetStatus(ctx context.Context, conn *gorm.DB, id int64, status domain.Status, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE licenses SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *licenseRepo) SetExpiry(ctx context.Context, conn *gorm.DB, id int64, expiresAt *time.Time, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE licenses SET expires_at = ?, updated_at = ? WHERE id = ?`,
		expiresAt,
		now,
		id,
	).Error
}
