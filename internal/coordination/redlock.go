package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// clockDriftFactor is the clock drift factor for calculating validity time.
	clockDriftFactor = 0.01

	// quorumDivisor is used to calculate majority (n/2 + 1).
	quorumDivisor = 2

	// cleanupTimeout bounds the release of partial locks after a failed quorum.
	cleanupTimeout = 2 * time.Second
)

// ErrNoRedisInstances is returned when no Redis instances are provided.
var ErrNoRedisInstances = errors.New("redlock: at least one Redis instance is required")

// Redlock acquires a lock on a majority of independent Redis instances.
type Redlock struct {
	clients []*redis.Client
	key     string
	cfg     LockConfig
}

// NewRedlock creates a Redlock on key across clients.
func NewRedlock(clients []*redis.Client, key string, cfg LockConfig) (*Redlock, error) {
	if len(clients) == 0 {
		return nil, ErrNoRedisInstances
	}

	return &Redlock{
		clients: clients,
		key:     key,
		cfg:     cfg.WithDefaults(),
	}, nil
}

// Acquire retries quorum acquisition until it succeeds, wait elapses or ctx is done.
func (r *Redlock) Acquire(ctx context.Context, wait time.Duration) (string, error) {
	token := uuid.New().String()

	err := retryUntil(ctx, wait, r.cfg.RetryDelay, func() (bool, error) {
		return r.tryLock(ctx, token), nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// Release frees the lock on every instance. It reports ErrLockNotHeld when
// fewer than a quorum still held the token.
func (r *Redlock) Release(ctx context.Context, token string) error {
	if r.unlock(ctx, token) < r.QuorumSize() {
		return ErrLockNotHeld
	}
	return nil
}

// QuorumSize returns the quorum size for this Redlock.
func (r *Redlock) QuorumSize() int {
	return len(r.clients)/quorumDivisor + 1
}

func (r *Redlock) tryLock(ctx context.Context, token string) bool {
	start := time.Now()

	acquired := 0
	args := redis.SetArgs{Mode: "NX", TTL: r.cfg.TTL}
	for _, client := range r.clients {
		result, err := client.SetArgs(ctx, r.key, token, args).Result()
		if err != nil {
			continue
		}
		if result == "OK" {
			acquired++
		}
	}

	drift := time.Duration(float64(r.cfg.TTL) * clockDriftFactor)
	validity := r.cfg.TTL - time.Since(start) - drift

	if acquired >= r.QuorumSize() && validity > 0 {
		return true
	}

	// Partial locks are released even when ctx was cancelled mid-acquire.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	r.unlock(cleanupCtx, token)
	return false
}

// unlock releases the token on all instances and returns how many held it.
func (r *Redlock) unlock(ctx context.Context, token string) int {
	released := 0
	for _, client := range r.clients {
		n, err := releaseScript.Run(ctx, client, []string{r.key}, token).Int()
		if err == nil && n == 1 {
			released++
		}
	}
	return released
}

// RedlockFactory creates Redlocks under KeyPrefix.
type RedlockFactory struct {
	clients []*redis.Client
	cfg     LockConfig
}

// NewRedlockFactory creates a factory of multi-instance locks.
func NewRedlockFactory(clients []*redis.Client, cfg LockConfig) (*RedlockFactory, error) {
	if len(clients) == 0 {
		return nil, ErrNoRedisInstances
	}
	return &RedlockFactory{clients: clients, cfg: cfg}, nil
}

// ForKey returns the lock for key.
func (f *RedlockFactory) ForKey(key string) Locker {
	return &Redlock{clients: f.clients, key: KeyPrefix + key, cfg: f.cfg.WithDefaults()}
}
