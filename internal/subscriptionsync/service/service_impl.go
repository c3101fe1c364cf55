package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	productdomain "github.com/smallbiznis/licensor/internal/product/domain"
	"github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultMaxAttempts = 5

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       domain.Repository
	Licenses   licensedomain.AdminService
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	secret      string
	maxAttempts int
	repo        domain.Repository
	licenses    licensedomain.AdminService
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	maxAttempts := p.Config.Webhook.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscriptionsync.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		secret:      strings.TrimSpace(p.Config.Webhook.SubscriptionSecret),
		maxAttempts: maxAttempts,
		repo:        p.Repo,
		licenses:    p.Licenses,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) (*domain.IngestResult, error) {
	if s.secret == "" {
		return nil, domain.ErrSecretNotConfigured
	}
	if !verifySignature(s.secret, payload, signature) {
		s.log.Warn("subscription webhook signature rejected")
		return nil, domain.ErrInvalidSignature
	}
	return s.IngestTrusted(ctx, payload)
}

func (s *Service) IngestTrusted(ctx context.Context, payload []byte) (*domain.IngestResult, error) {
	if !json.Valid(payload) {
		return nil, domain.ErrInvalidPayload
	}
	var event domain.Payload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if err := validatePayload(&event); err != nil {
		return nil, err
	}

	record := domain.Event{
		ID:             s.genID.Generate(),
		EventID:        event.ID,
		EventType:      event.Type,
		SubscriptionID: event.Data.ID,
		Payload:        datatypes.JSON(payload),
		Status:         domain.EventStatusPending,
		ReceivedAt:     s.clock.Now(),
	}
	inserted, err := s.repo.Insert(ctx, s.db, &record)
	if err != nil {
		return nil, err
	}

	outcome := "queued"
	if !inserted {
		outcome = "duplicate"
	}
	s.obsMetrics.RecordSubscriptionEvent(ctx, event.Type, outcome)
	s.log.Info("subscription event received",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Bool("duplicate", !inserted),
	)
	return &domain.IngestResult{EventID: event.ID, Duplicate: !inserted}, nil
}

func validatePayload(event *domain.Payload) error {
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.ToLower(strings.TrimSpace(event.Type))
	event.Data.ID = strings.TrimSpace(event.Data.ID)
	if event.ID == "" || event.Type == "" || event.Data.ID == "" {
		return domain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) ProcessPending(ctx context.Context, limit int) (domain.ProcessResult, error) {
	var result domain.ProcessResult
	if limit <= 0 {
		limit = 50
	}

	events, err := s.repo.ListPending(ctx, s.db, limit)
	if err != nil {
		return result, err
	}

	for i := range events {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		event := &events[i]

		status, err := s.apply(ctx, event)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			failed, markErr := s.recordFailure(ctx, event, err)
			if markErr != nil {
				return result, markErr
			}
			if failed {
				result.Failed++
			} else {
				result.Retrying++
			}
			continue
		}

		if err := s.repo.MarkProcessed(ctx, s.db, event.ID, status, s.clock.Now()); err != nil {
			return result, err
		}
		s.obsMetrics.RecordSubscriptionEvent(ctx, event.EventType, string(status))
		if status == domain.EventStatusIgnored {
			result.Ignored++
		} else {
			result.Processed++
		}
	}
	return result, nil
}

// recordFailure bumps the attempt counter and reports whether the event has
// now been given up on.
func (s *Service) recordFailure(ctx context.Context, event *domain.Event, cause error) (bool, error) {
	attempts := event.Attempts + 1
	status := domain.EventStatusPending
	if attempts >= s.maxAttempts {
		status = domain.EventStatusFailed
	}

	s.log.Warn("subscription event failed",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	if err := s.repo.MarkAttempt(ctx, s.db, event.ID, attempts, status, cause.Error()); err != nil {
		return false, err
	}
	if status == domain.EventStatusFailed {
		s.obsMetrics.RecordSubscriptionEvent(ctx, event.EventType, string(domain.EventStatusFailed))
		return true, nil
	}
	return false, nil
}

func (s *Service) apply(ctx context.Context, event *domain.Event) (domain.EventStatus, error) {
	var payload domain.Payload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return "", domain.ErrInvalidPayload
	}
	sub := payload.Data

	req := licensedomain.SubscriptionSyncRequest{
		SubscriptionID: event.SubscriptionID,
		ProductSlug:    sub.ProductSlug,
		PackageSlug:    sub.PackageSlug,
		UserID:         sub.UserID,
		ExpiresAt:      sub.CurrentPeriodEnd,
	}

	switch event.EventType {
	case domain.EventTypeCreated, domain.EventTypeUpdated, domain.EventTypeRenewed:
		if strings.TrimSpace(sub.Status) == "" {
			req.Status = licensedomain.StatusActive
		} else {
			status, err := mapStatus(sub.Status)
			if err != nil {
				return "", err
			}
			req.Status = status
		}
	case domain.EventTypeDeleted:
		req.Status = licensedomain.StatusCancelled
		req.ExpiresAt = nil
	default:
		s.log.Debug("subscription event ignored", zap.String("event_type", event.EventType))
		return domain.EventStatusIgnored, nil
	}

	license, created, err := s.licenses.SyncSubscription(ctx, req)
	if err != nil {
		if event.EventType == domain.EventTypeDeleted && errors.Is(err, productdomain.ErrNotFound) {
			// Deleting a subscription that never produced a license.
			return domain.EventStatusIgnored, nil
		}
		if errors.Is(err, licensedomain.ErrInvalidTransition) {
			s.log.Info("subscription event skipped by status policy", zap.String("event_id", event.EventID))
			return domain.EventStatusIgnored, nil
		}
		return "", err
	}

	s.log.Info("subscription synced",
		zap.String("event_id", event.EventID),
		zap.String("license_id", license.ID),
		zap.String("status", string(license.Status)),
		zap.Bool("created", created),
	)
	return domain.EventStatusProcessed, nil
}
