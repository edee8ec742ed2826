package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

const (
	DefaultLockTTL        = 10 * time.Second
	DefaultLockRetryDelay = 50 * time.Millisecond
	DefaultLockRetryCount = 100
	DefaultKeyPrefix      = "doctalk"
)

// unlockTimeout bounds the release call, which runs after the caller's
// context may already be done.
const unlockTimeout = 2 * time.Second

// LockOption configures a Locker.
type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) {
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithRetryCount sets how many SETNX attempts are made before giving up.
func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) {
		if count > 0 {
			c.retryCount = count
		}
	}
}

func WithKeyPrefix(prefix string) LockOption {
	return func(c *lockConfig) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

type lockConfig struct {
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
	prefix     string
}

// Locker is a distributed per-key mutex.  A lock is a key holding a random
// owner token with a TTL; release deletes the key only while it still holds
// that token.  It satisfies acronym.Locker.
type Locker struct {
	client *Client
	config lockConfig
	logger logging.Logger
}

// NewLocker builds a Locker on client.
func NewLocker(client *Client, log logging.Logger, opts ...LockOption) *Locker {
	cfg := lockConfig{
		ttl:        DefaultLockTTL,
		retryDelay: DefaultLockRetryDelay,
		retryCount: DefaultLockRetryCount,
		prefix:     DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Locker{client: client, config: cfg, logger: logging.OrNop(log)}
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Lock blocks until the lock for key is held, the retry budget is spent or
// ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.lockKey(key)
	token := uuid.New().String()

	for i := 0; i < l.config.retryCount; i++ {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.config.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock").WithDetail("key=" + lockKey)
		}
		if ok {
			return l.releaser(lockKey, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeLockNotAcquired, "lock wait cancelled").WithDetail("key=" + lockKey)
		case <-time.After(l.config.retryDelay):
		}
	}
	return nil, errors.New(errors.ErrCodeLockNotAcquired, "failed to acquire lock").WithDetail("key=" + lockKey)
}

func (l *Locker) releaser(lockKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := l.unlock(lockKey, token); err != nil {
				l.logger.Warn("failed to release lock", logging.String("key", lockKey), logging.Err(err))
			}
		})
	}
}

func (l *Locker) unlock(lockKey, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if l.client.isClosed() {
		return ErrClientClosed
	}
	res, err := unlockScript.Run(ctx, l.client.Underlying(), []string{lockKey}, token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "unlock script failed")
	}
	if res == 0 {
		return errors.New(errors.ErrCodeLockNotHeld, "lock expired or taken over before release")
	}
	return nil
}

// TTL reports the remaining lifetime of the lock for key.
func (l *Locker) TTL(ctx context.Context, key string) (time.Duration, error) {
	return l.client.PTTL(ctx, l.lockKey(key)).Result()
}

func (l *Locker) lockKey(key string) string {
	return l.config.prefix + ":lock:acronym:" + key
}
