package resourcelock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/waiter/internal/observability/metrics"
)

var (
	ErrEmptyKey    = errors.New("lock_key_empty")
	ErrLockTimeout = errors.New("lock_timeout")
)

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

// Locker serializes work on one key. Lock blocks until the key is free or
// ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Key builds the lock key of one resource inside a family.
func Key(family, resourceID string) string {
	return family + ":" + resourceID
}

func familyOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

type slot struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. Slots are reclaimed once no
// caller holds or waits on them.
type LocalLocker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	metrics *obsmetrics.WorkerMetrics
}

func NewLocalLocker(metrics *obsmetrics.WorkerMetrics) *LocalLocker {
	return &LocalLocker{
		slots:   make(map[string]*slot),
		metrics: metrics,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	start := time.Now()
	select {
	case s.ch <- struct{}{}:
		l.metrics.ObserveLockWait(familyOf(key), time.Since(start))
	case <-ctx.Done():
		l.release(key, s)
		l.metrics.IncLockTimeout(familyOf(key))
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *LocalLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
