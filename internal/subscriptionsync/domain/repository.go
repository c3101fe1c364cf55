package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert stores event unless its event_id was seen before; the bool
	// reports whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*Event, error)
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, status EventStatus, processedAt time.Time) error
	MarkAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, status EventStatus, lastError string) error
}
