package domain

import (
	"context"
	"errors"
	"time"

	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
)

//go:generate mockgen -destination=../service/mock_uploader_test.go -package=service github.com/smallbiznis/licensor/internal/csvupload/domain Uploader

// Uploader writes a file to the partner server.
type Uploader interface {
	Upload(ctx context.Context, remotePath string, content []byte) error
}

type EnqueueRequest struct {
	Guard    *licensedomain.GuardResult
	Filename string
	Content  []byte
}

type JobResponse struct {
	ID         string     `json:"id"`
	Domain     string     `json:"domain"`
	Filename   string     `json:"filename"`
	SizeBytes  int64      `json:"size_bytes"`
	Status     JobStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  *string    `json:"last_error,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ProcessResult struct {
	Uploaded int
	Retrying int
	Failed   int
}

type Service interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*JobResponse, error)
	// Get returns the job only when it belongs to licenseID.
	Get(ctx context.Context, licenseID int64, id string) (*JobResponse, error)
	ProcessDue(ctx context.Context, limit int) (ProcessResult, error)
}

var (
	ErrInvalidFile   = errors.New("invalid_file")
	ErrFileTooLarge  = errors.New("file_too_large")
	ErrEmptyFile     = errors.New("empty_file")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("upload_not_found")
	ErrGuardRequired = errors.New("license_guard_required")
)
