package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/licensor/internal/clock"
	csvuploaddomain "github.com/smallbiznis/licensor/internal/csvupload/domain"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	subscriptionsyncdomain "github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLicenses struct {
	licensedomain.AdminService
	expireCalls int
	expired     int
	err         error
}

func (f *fakeLicenses) ExpireOverdue(_ context.Context, limit int) (int, error) {
	f.expireCalls++
	return f.expired, f.err
}

type fakeSubscriptions struct {
	subscriptionsyncdomain.Service
	calls  int
	limits []int
}

func (f *fakeSubscriptions) ProcessPending(_ context.Context, limit int) (subscriptionsyncdomain.ProcessResult, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	return subscriptionsyncdomain.ProcessResult{Processed: 2, Ignored: 1}, nil
}

type fakeUploads struct {
	csvuploaddomain.Service
	calls int
	block bool
}

func (f *fakeUploads) ProcessDue(ctx context.Context, _ int) (csvuploaddomain.ProcessResult, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return csvuploaddomain.ProcessResult{}, ctx.Err()
	}
	return csvuploaddomain.ProcessResult{Uploaded: 1}, nil
}

type fixture struct {
	sched    *Scheduler
	licenses *fakeLicenses
	subs     *fakeSubscriptions
	uploads  *fakeUploads
	registry *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "licensor", Environment: "test"})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		licenses: &fakeLicenses{expired: 3},
		subs:     &fakeSubscriptions{},
		uploads:  &fakeUploads{},
		registry: registry,
	}
	f.sched, err = New(Params{
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Config:        cfg,
		Licenses:      f.licenses,
		Subscriptions: f.subs,
		Uploads:       f.uploads,
	})
	require.NoError(t, err)
	return f
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRunsEveryJobByDefault(t *testing.T) {
	f := newFixture(t, Config{BatchSize: 7})

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 1, f.subs.calls)
	assert.Equal(t, []int{7}, f.subs.limits)
	assert.Equal(t, 1, f.uploads.calls)
	assert.Equal(t, 1, f.licenses.expireCalls)

	labels := map[string]string{"service": "licensor", "env": "test", "job": JobExpireLicenses, "resource": "license"}
	assert.Equal(t, float64(3), getCounterValue(t, f.registry, "licensor_scheduler_batch_processed_total", labels))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{"EXPIRE_LICENSES"}})

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, 0, f.subs.calls)
	assert.Equal(t, 0, f.uploads.calls)
	assert.Equal(t, 1, f.licenses.expireCalls)
}

func TestRunOnceReturnsJobErrors(t *testing.T) {
	f := newFixture(t, Config{})
	f.licenses.err = errors.New("db down")

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expire_licenses: db down")
	// Other jobs still ran.
	assert.Equal(t, 1, f.subs.calls)
	assert.Equal(t, 1, f.uploads.calls)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	f := newFixture(t, Config{JobTimeout: 5 * time.Millisecond, EnabledJobs: []string{JobCSVUploads}})
	f.uploads.block = true

	require.NoError(t, f.sched.RunOnce(context.Background()))

	labels := map[string]string{"service": "licensor", "env": "test", "job": JobCSVUploads}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "licensor_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "licensor",
		"env":     "test",
		"job":     JobCSVUploads,
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, f.registry, "licensor_scheduler_job_errors_total", errorLabels))
}

func TestProvideConfigAppliesDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
