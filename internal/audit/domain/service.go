package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/licensor/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Entry describes one audited change. Actor fields fall back to the request context.
type Entry struct {
	ActorType  string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   *string
	Metadata   map[string]any
}

type Service interface {
	// AuditLog writes entry using db, so callers can include it in their transaction.
	// A nil db uses the service's own connection.
	AuditLog(ctx context.Context, db *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
