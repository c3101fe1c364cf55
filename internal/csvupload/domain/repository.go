package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, job *Job) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	// ListDue returns queued jobs whose next attempt is at or before now.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Job, error)
	MarkUploaded(ctx context.Context, db *gorm.DB, id snowflake.ID, remotePath string, now time.Time) error
	MarkAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, status JobStatus, lastError string, nextAttemptAt time.Time, now time.Time) error
}
