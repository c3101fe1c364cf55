package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeAdmin   ActorType = "admin"
	ActorTypeClient  ActorType = "client"
	ActorTypeSystem  ActorType = "system"
	ActorTypeWebhook ActorType = "webhook"
)

const (
	TargetTypeLicense = "license"
	TargetTypeProduct = "product"
	TargetTypeUpload  = "csv_upload"
)

const (
	ActionLicenseCreated       = "license.created"
	ActionLicenseStatusChanged = "license.status_changed"
	ActionLicenseExpired       = "license.expired"
	ActionLicenseRenewed       = "license.renewed"
	ActionDomainActivated      = "license.domain_activated"
	ActionDomainReactivated    = "license.domain_reactivated"
	ActionDomainDeactivated    = "license.domain_deactivated"
	ActionProductCreated       = "product.created"
	ActionUploadQueued         = "csv_upload.queued"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:varchar(64);not null;index"`
	TargetType string            `json:"target_type" gorm:"type:varchar(32);not null;index:ix_audit_logs_target,priority:1"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:varchar(64);index:ix_audit_logs_target,priority:2"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
