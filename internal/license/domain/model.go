package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the closed set of license states.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var statuses = []Status{StatusActive, StatusSuspended, StatusExpired, StatusCancelled}

// ParseStatus accepts the lower-case status names.
func ParseStatus(raw string) (Status, bool) {
	for _, s := range statuses {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Label is the human-readable status used in client-facing messages.
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusSuspended:
		return "Suspended"
	case StatusExpired:
		return "Expired"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

type License struct {
	ID              int64             `json:"id" gorm:"primaryKey"`
	LicenseKey      string            `json:"license_key" gorm:"type:varchar(64);not null;uniqueIndex:ux_licenses_key"`
	UserID          *string           `json:"user_id,omitempty" gorm:"type:varchar(128);index"`
	ProductID       int64             `json:"product_id" gorm:"not null;index"`
	PackageID       int64             `json:"package_id" gorm:"not null;index"`
	SubscriptionID  *string           `json:"subscription_id,omitempty" gorm:"type:varchar(128);index"`
	DomainLimit     *int              `json:"domain_limit,omitempty"`
	Status          Status            `json:"status" gorm:"type:varchar(16);not null;default:active;index"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	LastValidatedAt *time.Time        `json:"last_validated_at,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"not null"`
}

func (License) TableName() string { return "licenses" }

// IsActive reports whether the license may be used at now: status active and
// not past expires_at.
func (l *License) IsActive(now time.Time) bool {
	if l == nil || l.Status != StatusActive {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// IsExpired reports whether expires_at has passed, whatever the status.
func (l *License) IsExpired(now time.Time) bool {
	return l != nil && l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// RemainingActivations returns how many more domains may be activated.
// unlimited is true when the license has no domain limit.
func (l *License) RemainingActivations(activeCount int64) (remaining int64, unlimited bool) {
	if l == nil || l.DomainLimit == nil {
		return 0, true
	}
	remaining = int64(*l.DomainLimit) - activeCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, false
}

// LicenseDetail is a license joined with the catalog names shown to clients.
type LicenseDetail struct {
	License
	ProductSlug string `json:"product_slug"`
	ProductName string `json:"product_name"`
	PackageSlug string `json:"package_slug"`
	PackageName string `json:"package_name"`
}

type Activation struct {
	ID            int64      `json:"id" gorm:"primaryKey"`
	LicenseID     int64      `json:"license_id" gorm:"not null;uniqueIndex:ux_license_activations_license_domain,priority:1"`
	Domain        string     `json:"domain" gorm:"type:varchar(255);not null;uniqueIndex:ux_license_activations_license_domain,priority:2"`
	IPAddress     *string    `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent     *string    `json:"user_agent,omitempty" gorm:"type:text"`
	ActivatedAt   time.Time  `json:"activated_at" gorm:"not null"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"not null"`
}

func (Activation) TableName() string { return "license_activations" }

func (a *Activation) IsActive() bool {
	return a != nil && a.DeactivatedAt == nil
}
