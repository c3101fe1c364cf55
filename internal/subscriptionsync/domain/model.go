package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusProcessed EventStatus = "processed"
	EventStatusIgnored   EventStatus = "ignored"
	EventStatusFailed    EventStatus = "failed"
)

// Event is one billing webhook delivery kept in the inbox until the consumer
// has applied it.
type Event struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID        string         `json:"event_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_subscription_events_event_id"`
	EventType      string         `json:"event_type" gorm:"type:text;not null"`
	SubscriptionID string         `json:"subscription_id" gorm:"type:varchar(128);not null;index"`
	Payload        datatypes.JSON `json:"payload" gorm:"not null"`
	Status         EventStatus    `json:"status" gorm:"type:varchar(16);not null;default:pending;index"`
	Attempts       int            `json:"attempts" gorm:"not null;default:0"`
	LastError      *string        `json:"last_error,omitempty" gorm:"type:text"`
	ReceivedAt     time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}

func (Event) TableName() string { return "subscription_events" }

const (
	EventTypeCreated = "subscription.created"
	EventTypeUpdated = "subscription.updated"
	EventTypeRenewed = "subscription.renewed"
	EventTypeDeleted = "subscription.deleted"
)

// Payload is the webhook body sent by the billing system.
type Payload struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
	Data      Subscription `json:"data"`
}

type Subscription struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	ProductSlug      string     `json:"product_slug"`
	PackageSlug      string     `json:"package_slug"`
	UserID           *string    `json:"user_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}
