package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusUploaded JobStatus = "uploaded"
	JobStatusFailed   JobStatus = "failed"
)

// Job is a CSV file waiting to be pushed to the partner SFTP server on behalf
// of a licensed domain. The file body lives in the row until it is uploaded.
type Job struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	LicenseID     int64        `json:"license_id" gorm:"not null;index"`
	ActivationID  int64        `json:"activation_id" gorm:"not null"`
	Domain        string       `json:"domain" gorm:"type:text;not null"`
	Filename      string       `json:"filename" gorm:"type:text;not null"`
	Content       []byte       `json:"-" gorm:"not null"`
	SizeBytes     int64        `json:"size_bytes" gorm:"not null"`
	Status        JobStatus    `json:"status" gorm:"type:varchar(16);not null;default:queued;index:ix_csv_upload_jobs_due,priority:1"`
	Attempts      int          `json:"attempts" gorm:"not null;default:0"`
	LastError     *string      `json:"last_error,omitempty" gorm:"type:text"`
	RemotePath    *string      `json:"remote_path,omitempty" gorm:"type:text"`
	NextAttemptAt time.Time    `json:"next_attempt_at" gorm:"not null;index:ix_csv_upload_jobs_due,priority:2"`
	UploadedAt    *time.Time   `json:"uploaded_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Job) TableName() string { return "csv_upload_jobs" }
