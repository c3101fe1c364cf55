package service

import (
	"context"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/csvupload/domain"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxAttempts  = 3
	retryBackoff = 60 * time.Second
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Policy     *config.PolicyHolder
	Repo       domain.Repository
	Audit      auditdomain.Service
	Uploader   domain.Uploader     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	remoteDir  string
	policy     *config.PolicyHolder
	repo       domain.Repository
	audit      auditdomain.Service
	uploader   domain.Uploader
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	remoteDir := strings.TrimSpace(p.Config.SFTP.RemoteDir)
	if remoteDir == "" {
		remoteDir = "/uploads"
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("csvupload.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		remoteDir:  remoteDir,
		policy:     p.Policy,
		repo:       p.Repo,
		audit:      p.Audit,
		uploader:   p.Uploader,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.JobResponse, error) {
	if req.Guard == nil {
		return nil, domain.ErrGuardRequired
	}
	filename, err := sanitizeFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	size := int64(len(req.Content))
	if size == 0 {
		return nil, domain.ErrEmptyFile
	}
	if limit := s.policy.Get().UploadMaxBytes; limit > 0 && size > limit {
		return nil, domain.ErrFileTooLarge
	}

	now := s.clock.Now()
	remotePath := path.Join(s.remoteDir, req.Guard.Domain, ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()+"-"+filename)
	job := domain.Job{
		ID:            s.genID.Generate(),
		LicenseID:     req.Guard.License.ID,
		ActivationID:  req.Guard.Activation.ID,
		Domain:        req.Guard.Domain,
		Filename:      filename,
		Content:       req.Content,
		SizeBytes:     size,
		Status:        domain.JobStatusQueued,
		RemotePath:    &remotePath,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, &job); err != nil {
			return err
		}
		targetID := job.ID.String()
		return s.audit.AuditLog(ctx, tx, auditdomain.Entry{
			Action:     auditdomain.ActionUploadQueued,
			TargetType: auditdomain.TargetTypeUpload,
			TargetID:   &targetID,
			Metadata: map[string]any{
				"license_key": req.Guard.License.LicenseKey,
				"domain":      job.Domain,
				"filename":    filename,
				"size_bytes":  size,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordUpload(ctx, "queued")
	s.log.Info("csv upload queued",
		zap.String("job_id", job.ID.String()),
		zap.String("domain", job.Domain),
		zap.Int64("size_bytes", size),
	)
	resp := toResponse(&job)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, licenseID int64, id string) (*domain.JobResponse, error) {
	jobID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || jobID == 0 {
		return nil, domain.ErrInvalidID
	}
	job, err := s.repo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.LicenseID != licenseID {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(job)
	return &resp, nil
}

// ProcessDue uploads queued jobs whose retry time has come. A failed upload is
// retried after retryBackoff until maxAttempts is reached.
func (s *Service) ProcessDue(ctx context.Context, limit int) (domain.ProcessResult, error) {
	var result domain.ProcessResult
	if s.uploader == nil {
		s.log.Debug("sftp uploader not configured, skipping csv uploads")
		return result, nil
	}
	if limit <= 0 {
		limit = 20
	}

	jobs, err := s.repo.ListDue(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return result, err
	}

	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		job := &jobs[i]
		remotePath := s.remotePath(job)

		uploadErr := s.uploader.Upload(ctx, remotePath, job.Content)
		now := s.clock.Now()
		if uploadErr == nil {
			if err := s.repo.MarkUploaded(ctx, s.db, job.ID, remotePath, now); err != nil {
				return result, err
			}
			result.Uploaded++
			s.obsMetrics.RecordUpload(ctx, "uploaded")
			s.log.Info("csv upload delivered", zap.String("job_id", job.ID.String()), zap.String("remote_path", remotePath))
			continue
		}

		attempts := job.Attempts + 1
		status := domain.JobStatusQueued
		if attempts >= maxAttempts {
			status = domain.JobStatusFailed
		}
		if err := s.repo.MarkAttempt(ctx, s.db, job.ID, attempts, status, uploadErr.Error(), now.Add(retryBackoff), now); err != nil {
			return result, err
		}
		s.log.Warn("csv upload failed",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempts", attempts),
			zap.Error(uploadErr),
		)
		if status == domain.JobStatusFailed {
			result.Failed++
			s.obsMetrics.RecordUpload(ctx, "failed")
		} else {
			result.Retrying++
			s.obsMetrics.RecordUpload(ctx, "retry")
		}
	}
	return result, nil
}

func (s *Service) remotePath(job *domain.Job) string {
	if job.RemotePath != nil && *job.RemotePath != "" {
		return *job.RemotePath
	}
	return path.Join(s.remoteDir, job.Domain, ulid.MustNew(ulid.Timestamp(job.CreatedAt), ulid.DefaultEntropy()).String()+"-"+job.Filename)
}

func sanitizeFilename(raw string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return "", domain.ErrInvalidFile
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if strings.Trim(strings.TrimSuffix(strings.ToLower(name), ".csv"), "._-") == "" {
		return "", domain.ErrInvalidFile
	}
	return name, nil
}

func toResponse(job *domain.Job) domain.JobResponse {
	return domain.JobResponse{
		ID:         job.ID.String(),
		Domain:     job.Domain,
		Filename:   job.Filename,
		SizeBytes:  job.SizeBytes,
		Status:     job.Status,
		Attempts:   job.Attempts,
		LastError:  job.LastError,
		UploadedAt: job.UploadedAt,
		CreatedAt:  job.CreatedAt,
	}
}
