// Package coordination provides Redis-backed distributed locks that guard the
// deduplication filter's read-modify-write sequence.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockTTL is the lease after which an abandoned lock expires.
	DefaultLockTTL = 10 * time.Second

	// DefaultRetryDelay is the delay between acquisition attempts.
	DefaultRetryDelay = 50 * time.Millisecond

	// KeyPrefix namespaces lock keys.
	KeyPrefix = "lock:"
)

var (
	// ErrLockNotAcquired is returned when the acquisition wait elapses without the lock.
	ErrLockNotAcquired = errors.New("lock not acquired")

	// ErrLockNotHeld is returned when releasing a lock whose token no longer matches.
	ErrLockNotHeld = errors.New("lock not held")
)

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker is a lease-based mutual exclusion primitive bound to one key.
type Locker interface {
	// Acquire blocks up to wait for the lock and returns the holder token.
	Acquire(ctx context.Context, wait time.Duration) (string, error)
	// Release frees the lock if token still holds it.
	Release(ctx context.Context, token string) error
}

// Factory hands out lockers for named resources.
type Factory interface {
	ForKey(key string) Locker
}

// LockConfig holds lease and retry settings shared by both lock implementations.
type LockConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c LockConfig) WithDefaults() LockConfig {
	if c.TTL <= 0 {
		c.TTL = DefaultLockTTL
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// LeaseLock is a single-instance SET NX PX lock.
type LeaseLock struct {
	client *redis.Client
	key    string
	cfg    LockConfig
}

// NewLeaseLock creates a lock on key.
func NewLeaseLock(client *redis.Client, key string, cfg LockConfig) *LeaseLock {
	return &LeaseLock{
		client: client,
		key:    key,
		cfg:    cfg.WithDefaults(),
	}
}

// Acquire retries SET NX until it succeeds, wait elapses or ctx is done.
func (l *LeaseLock) Acquire(ctx context.Context, wait time.Duration) (string, error) {
	token := uuid.New().String()

	err := retryUntil(ctx, wait, l.cfg.RetryDelay, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, l.key, token, l.cfg.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
		}
		return ok, nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// Release deletes the lock if token still holds it.
func (l *LeaseLock) Release(ctx context.Context, token string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// LeaseFactory creates LeaseLocks under KeyPrefix.
type LeaseFactory struct {
	client *redis.Client
	cfg    LockConfig
}

// NewLeaseFactory creates a factory of single-instance locks.
func NewLeaseFactory(client *redis.Client, cfg LockConfig) *LeaseFactory {
	return &LeaseFactory{client: client, cfg: cfg}
}

// ForKey returns the lock for key.
func (f *LeaseFactory) ForKey(key string) Locker {
	return NewLeaseLock(f.client, KeyPrefix+key, f.cfg)
}

// retryUntil calls attempt until it reports success, the wait budget is spent
// or ctx is cancelled. At least one attempt is always made.
func retryUntil(ctx context.Context, wait, delay time.Duration, attempt func() (bool, error)) error {
	deadline := time.Now().Add(wait)

	for {
		ok, err := attempt()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(min(delay, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
