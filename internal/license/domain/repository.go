package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/licensor/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	ProductID *int64
	Status    *Status
	UserID    string
}

// Repository is the license store. Every method takes the handle to run on so
// callers can compose them inside one transaction.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, license *License) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*LicenseDetail, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*LicenseDetail, error)
	// FindByKeyAndProduct only matches when the key belongs to the product with productSlug.
	FindByKeyAndProduct(ctx context.Context, db *gorm.DB, key, productSlug string) (*LicenseDetail, error)
	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*License, error)
	// LockByID re-reads the license row, holding a row lock where the dialect supports it.
	LockByID(ctx context.Context, db *gorm.DB, id int64) (*License, error)
	KeyExists(ctx context.Context, db *gorm.DB, key string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*LicenseDetail, error)
	ListExpiredActive(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]License, error)

	TouchValidated(ctx context.Context, db *gorm.DB, id int64, now time.Time) error
	SetStatus(ctx context.Context, db *gorm.DB, id int64, status Status, now time.Time) error
	SetExpiry(ctx context.Context, db *gorm.DB, id int64, expiresAt *time.Time, now time.Time) error
}

// ActivationRepository is the activation store. It does not enforce the
// domain limit; the service checks it under the license row lock.
type ActivationRepository interface {
	FindByLicenseAndDomain(ctx context.Context, db *gorm.DB, licenseID int64, domain string) (*Activation, error)
	CountActive(ctx context.Context, db *gorm.DB, licenseID int64) (int64, error)
	ListByLicense(ctx context.Context, db *gorm.DB, licenseID int64, activeOnly bool) ([]Activation, error)
	Create(ctx context.Context, db *gorm.DB, activation *Activation) error
	Deactivate(ctx context.Context, db *gorm.DB, id int64, now time.Time) error
	Reactivate(ctx context.Context, db *gorm.DB, id int64, now time.Time) error
	TouchChecked(ctx context.Context, db *gorm.DB, id int64, now time.Time) error
}
