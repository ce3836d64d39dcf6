package resourcelock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker(nil)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, Key("share", "res-1"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locker.size())
}

func TestLocalLockerDifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker(nil)
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, Key("share", "a"))
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, Key("share", "b"))
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker(nil)

	unlock, err := locker.Lock(context.Background(), "share:res-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "share:res-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()
	unlock()
	assert.Equal(t, 0, locker.size())

	again, err := locker.Lock(context.Background(), "share:res-1")
	require.NoError(t, err)
	again()
}

func TestLocalLockerRejectsEmptyKey(t *testing.T) {
	_, err := NewLocalLocker(nil).Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, "share", familyOf(Key("share", "abc:def")))
	assert.Equal(t, "master-relay", familyOf("master-relay"))
}

func TestNewRedisLockerValidates(t *testing.T) {
	_, err := NewRedisLocker(nil, time.Second, 0, nil, nil)
	assert.Error(t, err)
}

type memoryLease struct {
	token   string
	expires time.Time
}

// memoryStore is an in-process leaseStore with real expiry.
type memoryStore struct {
	mu      sync.Mutex
	keys    map[string]memoryLease
	extends int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]memoryLease{}}
}

func (s *memoryStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.keys[key]; ok && time.Now().Before(cur.expires) {
		return false, nil
	}
	s.keys[key] = memoryLease{token: token, expires: time.Now().Add(ttl)}
	return true, nil
}

func (s *memoryStore) Extend(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.keys[key]
	if !ok || cur.token != token || !time.Now().Before(cur.expires) {
		return false, nil
	}
	s.extends++
	s.keys[key] = memoryLease{token: token, expires: time.Now().Add(ttl)}
	return true, nil
}

func (s *memoryStore) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.keys[key]; ok && cur.token == token {
		delete(s.keys, key)
	}
	return nil
}

func (s *memoryStore) drop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

func (s *memoryStore) held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

func TestRedisLockerSerializesSameKey(t *testing.T) {
	store := newMemoryStore()
	locker, err := newLeaseLocker(store, time.Second, time.Millisecond, nil, nil)
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), Key("share", "r1"))
	require.NoError(t, err)
	assert.True(t, store.held(keyPrefix+"share:r1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, Key("share", "r1"))
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := locker.Lock(context.Background(), Key("share", "r2"))
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.False(t, store.held(keyPrefix+"share:r1"))

	again, err := locker.Lock(context.Background(), Key("share", "r1"))
	require.NoError(t, err)
	again()
}

func TestRedisLockerRenewsLeaseWhileHeld(t *testing.T) {
	store := newMemoryStore()
	locker, err := newLeaseLocker(store, 30*time.Millisecond, time.Millisecond, nil, nil)
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), Key("share", "r1"))
	require.NoError(t, err)

	// held for several TTLs, a second caller still cannot get in
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, Key("share", "r1"))
	assert.ErrorIs(t, err, ErrLockTimeout)

	store.mu.Lock()
	extends := store.extends
	store.mu.Unlock()
	assert.Greater(t, extends, 0)

	unlock()
	assert.False(t, store.held(keyPrefix+"share:r1"))
}

func TestRedisLockerLogsLostLease(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := newMemoryStore()
	locker, err := newLeaseLocker(store, 15*time.Millisecond, time.Millisecond, nil, zap.New(core))
	require.NoError(t, err)

	unlock, err := locker.Lock(context.Background(), Key("share", "r1"))
	require.NoError(t, err)
	store.drop(keyPrefix + "share:r1")

	require.Eventually(t, func() bool {
		return logs.FilterMessage("lock lease lost").Len() == 1
	}, time.Second, time.Millisecond)
	unlock()
}

func TestNewLeaseLockerRejectsZeroTTL(t *testing.T) {
	_, err := newLeaseLocker(newMemoryStore(), 0, 0, nil, nil)
	assert.Error(t, err)
}
