package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/licensor/internal/audit/domain"
	"github.com/smallbiznis/licensor/internal/audit/repository"
	"github.com/smallbiznis/licensor/internal/clock"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
	"github.com/smallbiznis/licensor/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	conn := db.NewTest(t, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	return NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}), clk
}

func TestAuditLogResolvesActorFromContextAndMasksKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithActor(context.Background(), "admin", "ops")
	ctx = obscontext.WithClientIP(ctx, "10.0.0.1")
	ctx = obscontext.WithRequestID(ctx, "req-9")
	target := "123"

	err := svc.AuditLog(ctx, nil, auditdomain.Entry{
		Action:     auditdomain.ActionLicenseCreated,
		TargetType: auditdomain.TargetTypeLicense,
		TargetID:   &target,
		Metadata:   map[string]any{"license_key": "AB12CD34-EF56GH78-IJ90KL12-MN34OP56"},
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetID: "123"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "ops", *entry.ActorID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
	assert.Equal(t, "AB12CD34-****OP56", entry.Metadata["license_key"])
	assert.Equal(t, "req-9", entry.Metadata["request_id"])
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AuditLog(context.Background(), nil, auditdomain.Entry{Action: " "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, nil, auditdomain.Entry{
			Action:     auditdomain.ActionDomainActivated,
			TargetType: auditdomain.TargetTypeLicense,
		}))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 3)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[2].CreatedAt))

	req := auditdomain.ListAuditLogRequest{}
	req.PageSize = 2
	page, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, page.AuditLogs, 2)
	assert.True(t, page.HasMore)

	req.PageToken = page.NextPageToken
	rest, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, rest.AuditLogs, 1)
	assert.False(t, rest.HasMore)
}

func TestListRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(t)
	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
