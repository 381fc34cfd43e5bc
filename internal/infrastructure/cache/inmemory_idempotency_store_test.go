package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("new key", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "payment:midtrans:tx-1:paid", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("duplicate key", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "payment:midtrans:tx-2:paid", time.Hour)
		require.NoError(t, err)

		isNew, err := store.MarkProcessed(ctx, "payment:midtrans:tx-2:paid", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)

		processed, err := store.IsProcessed(ctx, "payment:midtrans:tx-2:paid")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("expired key is new again", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "event:x", 10*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)

		processed, err := store.IsProcessed(ctx, "event:x")
		require.NoError(t, err)
		assert.False(t, processed)

		isNew, err := store.MarkProcessed(ctx, "event:x", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestInMemoryIdempotencyStore_Forget(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "event:notification:1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "event:notification:1"))
	require.NoError(t, store.Forget(ctx, "never-seen"))

	isNew, err := store.MarkProcessed(ctx, "event:notification:1", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestInMemoryIdempotencyStore_ConcurrentMark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := store.MarkProcessed(context.Background(), "payment:midtrans:tx-race:paid", time.Hour)
			if err == nil && isNew {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := newInMemoryIdempotencyStore(5 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	_, _ = store.MarkProcessed(ctx, "short", time.Millisecond)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)

	assert.Eventually(t, func() bool { return store.Size() == 1 }, time.Second, 5*time.Millisecond)

	processed, err := store.IsProcessed(ctx, "long")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
