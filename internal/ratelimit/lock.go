package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "licensor:lock:"

// Both scripts act only while the stored token still matches the caller's.
var (
	releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`)
	extendLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])
`)
)

var (
	ErrLockNotConfigured = errors.New("lock client not configured")
	ErrLockHeld          = errors.New("lock held by another holder")
	ErrLeaseLost         = errors.New("lock lease lost")
)

// Locker hands out named single-holder leases backed by redis.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is a held lock. Release is idempotent.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire returns ErrLockHeld when another holder owns name.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return nil, errors.New("lock name is empty")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}

	lease := &Lease{client: l.client, key: lockKeyPrefix + name, token: uuid.NewString()}
	won, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrLockHeld
	}
	return lease, nil
}

// Extend pushes the expiry out by ttl, failing with ErrLeaseLost if the key
// expired or was taken over.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil || l.token == "" {
		return ErrLeaseLost
	}
	n, err := extendLease.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	return releaseLease.Run(ctx, l.client, []string{l.key}, token).Err()
}
