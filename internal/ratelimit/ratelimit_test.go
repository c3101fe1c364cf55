package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/licensor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseAPILimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, LicenseAPIRate: 5, LicenseAPIBurst: 10}}

	limiter, err := NewLicenseAPILimiter(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowClient(context.Background(), "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBucketResultDecodesReply(t *testing.T) {
	res := bucketResult([]interface{}{int64(1), "4.5", int64(1_700_000_000_000)}, 2, 10)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 10, res.Limit)
	assert.Zero(t, res.RetryAfter)

	denied := bucketResult([]interface{}{int64(0), "0.5", int64(1_700_000_000_000)}, 2, 10)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 250*time.Millisecond, denied.RetryAfter)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 8*time.Second, defaultBucketTTL(5, 20))
	assert.Equal(t, time.Second, defaultBucketTTL(1000, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
}

func TestNilLockerReportsNotConfigured(t *testing.T) {
	var locker *Locker
	lease, err := locker.Acquire(context.Background(), "job", time.Minute)
	assert.Nil(t, lease)
	assert.ErrorIs(t, err, ErrLockNotConfigured)

	assert.NoError(t, lease.Release(context.Background()))
	assert.ErrorIs(t, lease.Extend(context.Background(), time.Minute), ErrLeaseLost)
}
