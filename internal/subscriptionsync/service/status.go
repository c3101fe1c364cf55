package service

import (
	"strings"

	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
)

// mapStatus translates a billing subscription status into a license status.
func mapStatus(raw string) (licensedomain.Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "trialing":
		return licensedomain.StatusActive, nil
	case "past_due", "unpaid":
		return licensedomain.StatusSuspended, nil
	case "canceled", "cancelled":
		return licensedomain.StatusCancelled, nil
	case "expired", "ended":
		return licensedomain.StatusExpired, nil
	default:
		return "", domain.ErrUnknownStatus
	}
}
