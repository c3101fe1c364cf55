package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/licensor/pkg/db/pagination"
)

// Request identifies a license operation coming from client software.
type Request struct {
	LicenseKey  string
	ProductSlug string
	Domain      string
	IPAddress   string
	UserAgent   string
}

type ActivationUsage struct {
	Limit     *int   `json:"limit"`
	Used      int64  `json:"used"`
	Remaining *int64 `json:"remaining"`
}

// Summary is the license view returned to client software.
type Summary struct {
	Status      Status          `json:"status"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	Activations ActivationUsage `json:"activations"`
	Product     string          `json:"product"`
	Package     string          `json:"package"`
}

type ActivationOutcome string

const (
	OutcomeCreated       ActivationOutcome = "created"
	OutcomeAlreadyActive ActivationOutcome = "already_active"
	OutcomeReactivated   ActivationOutcome = "reactivated"
)

type ValidateResult struct {
	License Summary
}

type ActivateResult struct {
	Outcome    ActivationOutcome
	Message    string
	License    Summary
	Activation Activation
}

type DeactivateResult struct {
	Message string
}

type CheckResult struct {
	Activated    bool
	LicenseValid bool
	License      *Summary
}

// GuardResult is the verified (license, activation, domain) triple handed to
// subsystems that act on behalf of a licensed domain.
type GuardResult struct {
	License    LicenseDetail
	Activation Activation
	Domain     string
}

// Service is the license validation state machine used by client software.
type Service interface {
	Validate(ctx context.Context, req Request) (*ValidateResult, error)
	Activate(ctx context.Context, req Request) (*ActivateResult, error)
	Deactivate(ctx context.Context, req Request) (*DeactivateResult, error)
	Check(ctx context.Context, req Request) (*CheckResult, error)
	// Guard passes only for a known key whose license is active, unexpired and
	// currently activated on the request domain.
	Guard(ctx context.Context, req Request) (*GuardResult, error)
}

type CreateLicenseRequest struct {
	LicenseKey     string         `json:"license_key"`
	ProductSlug    string         `json:"product_slug"`
	PackageSlug    string         `json:"package_slug"`
	UserID         *string        `json:"user_id"`
	SubscriptionID *string        `json:"subscription_id"`
	DomainLimit    *int           `json:"domain_limit"`
	Status         string         `json:"status"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	Metadata       map[string]any `json:"metadata"`
}

type ListLicensesRequest struct {
	pagination.Pagination
	ProductSlug string
	Status      string
	UserID      string
}

type ListLicensesResponse struct {
	pagination.PageInfo
	Licenses []LicenseResponse `json:"licenses"`
}

type LicenseResponse struct {
	ID              string         `json:"id"`
	LicenseKey      string         `json:"license_key"`
	UserID          *string        `json:"user_id,omitempty"`
	SubscriptionID  *string        `json:"subscription_id,omitempty"`
	Product         string         `json:"product"`
	Package         string         `json:"package"`
	DomainLimit     *int           `json:"domain_limit"`
	ActiveDomains   int64          `json:"active_domains"`
	Status          Status         `json:"status"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	LastValidatedAt *time.Time     `json:"last_validated_at,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type ActivationResponse struct {
	ID            string     `json:"id"`
	Domain        string     `json:"domain"`
	Active        bool       `json:"active"`
	IPAddress     *string    `json:"ip_address,omitempty"`
	UserAgent     *string    `json:"user_agent,omitempty"`
	ActivatedAt   time.Time  `json:"activated_at"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

type SubscriptionSyncRequest struct {
	SubscriptionID string
	ProductSlug    string
	PackageSlug    string
	UserID         *string
	Status         Status
	ExpiresAt      *time.Time
}

// AdminService manages license records on behalf of operators and the
// subscription sync.
type AdminService interface {
	Create(ctx context.Context, req CreateLicenseRequest) (*LicenseResponse, error)
	Get(ctx context.Context, key string) (*LicenseResponse, error)
	List(ctx context.Context, req ListLicensesRequest) (ListLicensesResponse, error)
	SetStatus(ctx context.Context, key string, status string) (*LicenseResponse, error)
	ListActivations(ctx context.Context, key string, activeOnly bool) ([]ActivationResponse, error)
	DeactivateDomain(ctx context.Context, key string, domain string) error

	// SyncSubscription creates or updates the license bound to a subscription.
	SyncSubscription(ctx context.Context, req SubscriptionSyncRequest) (*LicenseResponse, bool, error)
	// ExpireOverdue flips active licenses past expires_at to expired and returns how many changed.
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}
