package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/licensor/internal/audit/domain"
	"gorm.io/gorm"
)

type auditRepo struct{}

func Provide() domain.Repository {
	return &auditRepo{}
}

// Audit rows are append-only; there is no update path.
func (r *auditRepo) Insert(ctx context.Context, conn *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return conn.WithContext(ctx).Table("audit_logs").Create(entry).Error
}

func (r *auditRepo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := conn.WithContext(ctx).
		Table("audit_logs").
		Scopes(matchColumns(map[string]string{
			"action":      filter.Action,
			"target_type": filter.TargetType,
			"target_id":   filter.TargetID,
			"actor_type":  filter.ActorType,
		}), createdWithin(filter), afterCursor(filter.Cursor)).
		Order("created_at desc").
		Order("id desc")
	if filter.Limit > 0 {
		// one extra row tells the caller whether another page exists
		stmt = stmt.Limit(filter.Limit + 1)
	}

	logs := make([]*domain.AuditLog, 0)
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func matchColumns(values map[string]string) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		for column, value := range values {
			if value = strings.TrimSpace(value); value != "" {
				stmt = stmt.Where(column+" = ?", value)
			}
		}
		return stmt
	}
}

func createdWithin(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
		}
		if filter.EndAt != nil {
			stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
		}
		return stmt
	}
}

func afterCursor(cursor *domain.AuditCursor) func(*gorm.DB) *gorm.DB {
	return func(stmt *gorm.DB) *gorm.DB {
		if cursor == nil {
			return stmt
		}
		return stmt.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
}
