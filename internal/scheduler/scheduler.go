package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/clock"
	csvuploaddomain "github.com/smallbiznis/licensor/internal/csvupload/domain"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	"github.com/smallbiznis/licensor/internal/ratelimit"
	subscriptionsyncdomain "github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid scheduler config")

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        Config `optional:"true"`
	Licenses      licensedomain.AdminService
	Subscriptions subscriptionsyncdomain.Service
	Uploads       csvuploaddomain.Service
	Locker        *ratelimit.Locker `optional:"true"`
}

type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	licenses      licensedomain.AdminService
	subscriptions subscriptionsyncdomain.Service
	uploads       csvuploaddomain.Service
	locker        *ratelimit.Locker
	metrics       *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Licenses == nil || p.Subscriptions == nil || p.Uploads == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		licenses:      p.Licenses,
		subscriptions: p.Subscriptions,
		uploads:       p.Uploads,
		locker:        p.Locker,
		metrics:       obsmetrics.Scheduler(),
	}, nil
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobSubscriptionEvents, s.SubscriptionEventsJob},
		{JobCSVUploads, s.CSVUploadsJob},
		{JobExpireLicenses, s.ExpireLicensesJob},
	}
}

// runJob executes fn under a soft timeout. A timeout is logged and counted but
// not returned, so one slow job does not fail the whole run.
func (s *Scheduler) runJob(parent context.Context, name string, batchSize int, timeout time.Duration, fn func(ctx context.Context) error) error {
	release, ok := s.acquire(parent, name)
	if !ok {
		return nil
	}
	defer release()

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the per-job lease when a locker is configured. Without
// redis every replica runs every job; each job claims rows idempotently.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	lease, err := s.locker.Acquire(ctx, "scheduler:"+name, s.cfg.LockTTL)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		s.metrics.IncBatchDeferred(name, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Debug("scheduler job held by another replica", zap.String("job", name))
		return nil, false
	case err != nil:
		s.log.Warn("scheduler lock unavailable, running unlocked", zap.String("job", name), zap.Error(err))
		return func() {}, true
	}
	return func() {
		if err := lease.Release(context.Background()); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", name), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, j.run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// SubscriptionEventsJob drains the subscription event inbox.
func (s *Scheduler) SubscriptionEventsJob(ctx context.Context) error {
	res, err := s.subscriptions.ProcessPending(ctx, s.cfg.BatchSize)
	run := jobRunFromContext(ctx)
	run.AddProcessed(res.Processed + res.Ignored)
	s.metrics.AddBatchProcessed(JobSubscriptionEvents, "processed", res.Processed)
	s.metrics.AddBatchProcessed(JobSubscriptionEvents, "ignored", res.Ignored)
	s.metrics.AddBatchProcessed(JobSubscriptionEvents, "failed", res.Failed)
	if res.Failed > 0 || res.Retrying > 0 {
		s.logger(ctx).Warn("subscription events left unapplied",
			zap.Int("failed", res.Failed),
			zap.Int("retrying", res.Retrying),
		)
	}
	if err != nil {
		s.logSchedulerError(ctx, "scheduler.subscription_events.failed", err)
		return err
	}
	return nil
}

// CSVUploadsJob pushes due CSV uploads to the partner server.
func (s *Scheduler) CSVUploadsJob(ctx context.Context) error {
	res, err := s.uploads.ProcessDue(ctx, s.cfg.BatchSize)
	run := jobRunFromContext(ctx)
	run.AddProcessed(res.Uploaded)
	s.metrics.AddBatchProcessed(JobCSVUploads, "uploaded", res.Uploaded)
	s.metrics.AddBatchProcessed(JobCSVUploads, "failed", res.Failed)
	if err != nil {
		s.logSchedulerError(ctx, "scheduler.csv_uploads.failed", err)
		return err
	}
	return nil
}

// ExpireLicensesJob moves active licenses past their expiry to expired.
func (s *Scheduler) ExpireLicensesJob(ctx context.Context) error {
	expired, err := s.licenses.ExpireOverdue(ctx, s.cfg.BatchSize)
	run := jobRunFromContext(ctx)
	run.AddProcessed(expired)
	s.metrics.AddBatchProcessed(JobExpireLicenses, "license", expired)
	if err != nil {
		s.logSchedulerError(ctx, "scheduler.expire_licenses.failed", err)
		return err
	}
	return nil
}
