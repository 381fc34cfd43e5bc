package cache

import (
	"context"
	"testing"

	"github.com/invitely/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis points at a port nothing listens on
func unreachableRedis() config.RedisConfig {
	return config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
}

func TestIdempotencyStoreFactory_DisabledRedis(t *testing.T) {
	store, err := NewIdempotencyStoreFactory(config.RedisConfig{Enabled: false}).CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
}

func TestIdempotencyStoreFactory_FallsBackWhenUnreachable(t *testing.T) {
	store, err := NewIdempotencyStoreFactory(unreachableRedis()).CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
}

func TestIdempotencyStoreFactory_FallbackDisabled(t *testing.T) {
	_, err := NewIdempotencyStoreFactory(unreachableRedis(), WithInMemoryFallback(false)).
		CreateStore(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis required")
}
