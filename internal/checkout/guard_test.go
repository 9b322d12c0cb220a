package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisGuard(t *testing.T) (*RedisGuard, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return NewRedisGuard(client, 30*time.Second), mr, cleanup
}

func guardContract(t *testing.T, g Guard) {
	ctx := context.Background()

	release, err := g.Acquire(ctx, "k")
	require.NoError(t, err)

	_, err = g.Acquire(ctx, "k")
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	other, err := g.Acquire(ctx, "other")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := g.Acquire(ctx, "k")
	require.NoError(t, err)
	again()
}

func TestMemoryGuard(t *testing.T) {
	guardContract(t, NewMemoryGuard())
}

func TestRedisGuard(t *testing.T) {
	g, _, cleanup := setupRedisGuard(t)
	defer cleanup()
	guardContract(t, g)
}

func TestRedisGuard_ExpiresAfterTTL(t *testing.T) {
	g, mr, cleanup := setupRedisGuard(t)
	defer cleanup()
	ctx := context.Background()

	_, err := g.Acquire(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	release, err := g.Acquire(ctx, "k")
	require.NoError(t, err)
	release()
}

func TestRedisGuard_StaleReleaseKeepsNewHolder(t *testing.T) {
	g, mr, cleanup := setupRedisGuard(t)
	defer cleanup()
	ctx := context.Background()

	stale, err := g.Acquire(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)
	_, err = g.Acquire(ctx, "k")
	require.NoError(t, err)

	stale()

	_, err = g.Acquire(ctx, "k")
	assert.ErrorIs(t, err, ErrSubmitInProgress)
}

func TestRedisGuard_Unavailable(t *testing.T) {
	g, mr, cleanup := setupRedisGuard(t)
	defer cleanup()
	mr.Close()

	_, err := g.Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubmitInProgress)
}

func TestMemoryGuard_ConcurrentAcquire(t *testing.T) {
	g := NewMemoryGuard()
	var won atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.Acquire(context.Background(), "k"); err == nil {
				won.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
}
