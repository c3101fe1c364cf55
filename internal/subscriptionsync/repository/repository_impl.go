package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"github.com/smallbiznis/licensor/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const eventColumns = `id, event_id, event_type, subscription_id, payload, status,
	attempts, last_error, received_at, processed_at`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, event *domain.Event) (bool, error) {
	stmt := `INSERT INTO subscription_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if conn.Dialector.Name() == db.DialectMySQL {
		stmt = `INSERT IGNORE INTO subscription_events (` + eventColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	} else {
		stmt += ` ON CONFLICT (event_id) DO NOTHING`
	}

	res := conn.WithContext(ctx).Exec(stmt,
		event.ID,
		event.EventID,
		event.EventType,
		event.SubscriptionID,
		event.Payload,
		event.Status,
		event.Attempts,
		event.LastError,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByEventID(ctx context.Context, conn *gorm.DB, eventID string) (*domain.Event, error) {
	var item domain.Event
	err := conn.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM subscription_events WHERE event_id = ? LIMIT 1`,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListPending(ctx context.Context, conn *gorm.DB, limit int) ([]domain.Event, error) {
	var items []domain.Event
	err := conn.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM subscription_events
		 WHERE status = ?
		 ORDER BY received_at ASC, id ASC
		 LIMIT ?`,
		domain.EventStatusPending,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkProcessed(ctx context.Context, conn *gorm.DB, id snowflake.ID, status domain.EventStatus, processedAt time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE subscription_events
		 SET status = ?, processed_at = ?, last_error = NULL
		 WHERE id = ?`,
		status,
		processedAt,
		id,
	).Error
}

func (r *repo) MarkAttempt(ctx context.Context, conn *gorm.DB, id snowflake.ID, attempts int, status domain.EventStatus, lastError string) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE subscription_events
		 SET attempts = ?, status = ?, last_error = ?
		 WHERE id = ?`,
		attempts,
		status,
		lastError,
		id,
	).Error
}
