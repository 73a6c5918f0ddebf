package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"atlas-air/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestLockSeat_ExclusiveAndOwnerChecked(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := NewRedis(client, time.Minute, logger.NewTestLogger(nil))
	ctx := context.Background()

	ok, err := r.LockSeat(ctx, 1, 10, "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockSeat(ctx, 1, 10, "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)

	// a different seat or flight is independent
	ok, err = r.LockSeat(ctx, 2, 10, "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)

	// wrong owner cannot release
	require.NoError(t, r.UnlockSeat(ctx, 1, 10, "owner-b"))
	locked, err := r.IsSeatLocked(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, r.UnlockSeat(ctx, 1, 10, "owner-a"))
	locked, err = r.IsSeatLocked(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, locked)

	// releasing an absent lock is a no-op
	assert.NoError(t, r.UnlockSeat(ctx, 1, 10, "owner-a"))
}

func TestLockSeat_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := NewRedis(client, 5*time.Second, logger.NewTestLogger(nil))
	ctx := context.Background()

	ok, err := r.LockSeat(ctx, 7, 70, "owner-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, mr.TTL(SeatLockKey(7, 70)))

	mr.FastForward(6 * time.Second)

	ok, err = r.LockSeat(ctx, 7, 70, "owner-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockSeat_ConcurrentSingleWinner(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := NewRedis(client, time.Minute, logger.NewTestLogger(nil))
	ctx := context.Background()

	const contenders = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := r.LockSeat(ctx, 3, 30, string(rune('a'+i)))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestNewRedis_DefaultTTL(t *testing.T) {
	r := NewRedis(nil, 0, nil)
	assert.Equal(t, defaultLockTTL, r.TTL)
	assert.Equal(t, "seat_lock:12:34", SeatLockKey(12, 34))
}

func TestLockSeat_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	r := NewRedis(client, time.Minute, logger.NewTestLogger(nil))

	ok, err := r.LockSeat(ctx, 1, 1, "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.LockSeat(ctx, 1, 1, "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.UnlockSeat(ctx, 1, 1, "owner-a"))
	locked, err := r.IsSeatLocked(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, locked)
}
