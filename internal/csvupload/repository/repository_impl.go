package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/csvupload/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const jobColumns = `id, license_id, activation_id, domain, filename, content, size_bytes, status,
	attempts, last_error, remote_path, next_attempt_at, uploaded_at, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO csv_upload_jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.LicenseID,
		job.ActivationID,
		job.Domain,
		job.Filename,
		job.Content,
		job.SizeBytes,
		job.Status,
		job.Attempts,
		job.LastError,
		job.RemotePath,
		job.NextAttemptAt,
		job.UploadedAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	var item domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+` FROM csv_upload_jobs WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Job, error) {
	var items []domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+` FROM csv_upload_jobs
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, id ASC
		 LIMIT ?`,
		domain.JobStatusQueued,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkUploaded drops the stored body once the partner has the file.
func (r *repo) MarkUploaded(ctx context.Context, db *gorm.DB, id snowflake.ID, remotePath string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE csv_upload_jobs
		 SET status = ?, remote_path = ?, uploaded_at = ?, updated_at = ?, last_error = NULL, content = ?
		 WHERE id = ?`,
		domain.JobStatusUploaded,
		remotePath,
		now,
		now,
		[]byte{},
		id,
	).Error
}

func (r *repo) MarkAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, status domain.JobStatus, lastError string, nextAttemptAt time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE csv_upload_jobs
		 SET attempts = ?, status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		attempts,
		status,
		lastError,
		nextAttemptAt,
		now,
		id,
	).Error
}
