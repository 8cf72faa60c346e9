package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisStoreForTest connects to REDIS_TEST_ADDR or skips.
func redisStoreForTest(t *testing.T) (*RedisStore, *RedisLocker) {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), addr)
	require.NoError(t, err)

	key := "keyforge:test:" + uuid.NewString()
	t.Cleanup(func() {
		client.Del(context.Background(), key)
		_ = client.Close()
	})
	return NewRedisStore(client, key, nil), NewRedisLocker(client, key+":lock", 2*time.Second)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s, _ := redisStoreForTest(t)
	ctx := context.Background()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Keys)

	require.NoError(t, s.Save(ctx, testCollection()))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testCollection(), got)
}

func TestRedisLocker_SerializesHolders(t *testing.T) {
	_, locker := redisStoreForTest(t)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestNewRedisClient_RequiresAddress(t *testing.T) {
	_, err := NewRedisClient(context.Background(), " , ")
	assert.Error(t, err)
}
