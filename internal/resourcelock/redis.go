package resourcelock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
	"go.uber.org/zap"
)

const keyPrefix = "waiter:lock:"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// leaseStore holds token-owned keys with an expiry.
type leaseStore interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

type redisStore struct {
	client  *redis.Client
	release *redis.Script
	extend  *redis.Script
}

func (s *redisStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, token, ttl).Result()
}

func (s *redisStore) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := s.extend.Run(ctx, s.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisStore) Release(ctx context.Context, key, token string) error {
	return s.release.Run(ctx, s.client, []string{key}, token).Err()
}

// RedisLocker holds locks as SET NX keys with a random token so only the
// owner can release them. While a lock is held its lease is renewed every
// third of the TTL; the TTL only bounds how long a crashed holder blocks the
// key. A holder whose renewal fails (Redis unreachable for a whole TTL) loses
// mutual exclusion and is told so in the log.
type RedisLocker struct {
	store   leaseStore
	ttl     time.Duration
	backoff time.Duration
	metrics *obsmetrics.WorkerMetrics
	log     *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl, backoff time.Duration, metrics *obsmetrics.WorkerMetrics, log *zap.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("lock client not configured")
	}
	return newLeaseLocker(&redisStore{
		client:  client,
		release: redis.NewScript(lockReleaseScript),
		extend:  redis.NewScript(lockExtendScript),
	}, ttl, backoff, metrics, log)
}

func newLeaseLocker(store leaseStore, ttl, backoff time.Duration, metrics *obsmetrics.WorkerMetrics, log *zap.Logger) (*RedisLocker, error) {
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		store:   store,
		ttl:     ttl,
		backoff: backoff,
		metrics: metrics,
		log:     log.Named("resourcelock.redis"),
	}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	redisKey := keyPrefix + key
	start := time.Now()
	for {
		token := uuid.NewString()
		ok, err := l.store.Acquire(ctx, redisKey, token, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			l.metrics.ObserveLockWait(familyOf(key), time.Since(start))
			return l.hold(redisKey, token), nil
		}

		timer := time.NewTimer(l.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.metrics.IncLockTimeout(familyOf(key))
			return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
		case <-timer.C:
		}
	}
}

// hold renews the lease until the returned Unlock is called.
func (l *RedisLocker) hold(key, token string) Unlock {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// The caller's context may already be done by the time it unlocks.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.store.Release(ctx, key, token); err != nil {
				l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}
}

func (l *RedisLocker) renew(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			ok, err := l.store.Extend(ctx, key, token, l.ttl)
			cancel()
			if err != nil {
				l.log.Warn("failed to renew lock lease", zap.String("key", key), zap.Error(err))
				continue
			}
			if !ok {
				l.log.Error("lock lease lost", zap.String("key", key))
				return
			}
		}
	}
}
