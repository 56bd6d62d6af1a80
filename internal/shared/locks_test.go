package shared

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, ReleaseLockKey("2026-10-19"))
			require.NoError(t, err)
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
	require.Equal(t, 1, maxSeen)
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	locker := NewKeyedMutex()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	require.True(t, errors.Is(err, ErrLockBusy))

	other, err := locker.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()
}

func TestKeyedMutexUnlockIsIdempotent(t *testing.T) {
	locker := NewKeyedMutex()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	locker := NewRedisLocker(client, time.Minute, 30*time.Millisecond)
	ctx := context.Background()
	key := ReleaseLockKey("2026-10-19")

	unlock, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	_, err = locker.Lock(ctx, key)
	require.True(t, errors.Is(err, ErrLockBusy))

	unlock()
	require.False(t, mr.Exists(key))

	relock, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	relock()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	locker := NewRedisLocker(client, time.Minute, 30*time.Millisecond)
	key := ReleaseLockKey("2026-10-20")
	unlock, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, mr.Set(key, "someone-else"))
	unlock()

	value, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "someone-else", value)
}
