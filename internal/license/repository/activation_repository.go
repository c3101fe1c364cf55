package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/licensor/internal/license/domain"
	"gorm.io/gorm"
)

type activationRepo struct{}

func ProvideActivations() domain.ActivationRepository {
	return &activationRepo{}
}

const activationColumns = `id, license_id, domain, ip_address, user_agent, activated_at,
	last_checked_at, deactivated_at, created_at, updated_at`

func (r *activationRepo) FindByLicenseAndDomain(ctx context.Context, db *gorm.DB, licenseID int64, domainName string) (*domain.Activation, error) {
	var item domain.Activation
	err := db.WithContext(ctx).Raw(
		`SELECT `+activationColumns+` FROM license_activations WHERE license_id = ? AND domain = ?`,
		licenseID,
		domainName,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *activationRepo) CountActive(ctx context.Context, db *gorm.DB, licenseID int64) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM license_activations WHERE license_id = ? AND deactivated_at IS NULL`,
		licenseID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *activationRepo) ListByLicense(ctx context.Context, db *gorm.DB, licenseID int64, activeOnly bool) ([]domain.Activation, error) {
	query := `SELECT ` + activationColumns + ` FROM license_activations WHERE license_id = ?`
	if activeOnly {
		query += ` AND deactivated_at IS NULL`
	}
	query += ` ORDER BY activated_at ASC, id ASC`

	var items []domain.Activation
	if err := db.WithContext(ctx).Raw(query, licenseID).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *activationRepo) Create(ctx context.Context, db *gorm.DB, activation *domain.Activation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO license_activations (id, license_id, domain, ip_address, user_agent, activated_at,
			last_checked_at, deactivated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		activation.ID,
		activation.LicenseID,
		activation.Domain,
		activation.IPAddress,
		activation.UserAgent,
		activation.ActivatedAt,
		activation.LastCheckedAt,
		activation.DeactivatedAt,
		activation.CreatedAt,
		activation.UpdatedAt,
	).Error
}

// Deactivate leaves an already deactivated row untouched.
func (r *activationRepo) Deactivate(ctx context.Context, db *gorm.DB, id int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE license_activations SET deactivated_at = ?, updated_at = ?
		 WHERE id = ? AND deactivated_at IS NULL`,
		now,
		now,
		id,
	).Error
}

func (r *activationRepo) Reactivate(ctx context.Context, db *gorm.DB, id int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE license_activations SET deactivated_at = NULL, last_checked_at = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	).Error
}

func (r *activationRepo) TouchChecked(ctx context.Context, db *gorm.DB, id int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE license_activations SET last_checked_at = ? WHERE id = ?`,
		now,
		id,
	).Error
}
