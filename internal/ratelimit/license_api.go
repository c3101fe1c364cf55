package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/licensor/internal/config"
)

const keyLicenseAPIClient = "license:api:ip:%s"

// LicenseAPILimiter throttles the public license endpoints per client IP.
type LicenseAPILimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

// NewLicenseAPILimiter returns nil when rate limiting is off or redis is not
// configured.
func NewLicenseAPILimiter(cfg config.Config, client *redis.Client) (*LicenseAPILimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil, nil
	}
	if limitCfg.LicenseAPIRate <= 0 || limitCfg.LicenseAPIBurst <= 0 {
		return nil, errors.New("license api rate limit must be positive")
	}

	return &LicenseAPILimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.LicenseAPIRate,
		burst:   limitCfg.LicenseAPIBurst,
	}, nil
}

func (l *LicenseAPILimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *LicenseAPILimiter) AllowClient(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		clientIP = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyLicenseAPIClient, clientIP), l.rate, l.burst)
}
