package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLicenseNotFound    = errors.New("license_not_found")
	ErrLicenseInactive    = errors.New("license_inactive")
	ErrLicenseExpired     = errors.New("license_expired")
	ErrDomainLimitReached = errors.New("domain_limit_reached")
	ErrActivationNotFound = errors.New("activation_not_found")

	ErrInvalidLicenseKey  = errors.New("invalid_license_key")
	ErrInvalidProductSlug = errors.New("invalid_product_slug")
	ErrInvalidDomain      = errors.New("invalid_domain")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidDomainLimit = errors.New("invalid_domain_limit")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrLicenseKeyTaken    = errors.New("license_key_taken")
	ErrKeyGeneration      = errors.New("license_key_generation_failed")
)

// Error carries a client-facing message alongside one of the sentinels above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func NotFoundError() error {
	return &Error{Kind: ErrLicenseNotFound, Message: "Invalid license key or product."}
}

func InactiveError(status Status) error {
	return &Error{Kind: ErrLicenseInactive, Message: fmt.Sprintf("License is not active. Current status: %s.", status.Label())}
}

func ExpiredError() error {
	return &Error{Kind: ErrLicenseExpired, Message: "License has expired."}
}

func DomainLimitError(limit int) error {
	return &Error{Kind: ErrDomainLimitReached, Message: fmt.Sprintf("Domain limit reached. This license allows %d active domain(s).", limit)}
}

func ActivationNotFoundError() error {
	return &Error{Kind: ErrActivationNotFound, Message: "No active activation found for this domain."}
}

// MessageOf returns the client-facing message of err, or "" when it has none.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
