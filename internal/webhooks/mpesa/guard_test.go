package mpesawebhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "sm:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestIdempotencyGuardMarksAndReleases(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "ws_CO_1", 0)
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "ws_CO_1", 0)
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = guard.CheckAndMark(ctx, "ws_CO_1", 1)
	require.NoError(t, err)
	require.False(t, seen, "a different outcome is not a duplicate")

	require.NoError(t, guard.Release(ctx, "ws_CO_1", 0))
	seen, err = guard.CheckAndMark(ctx, "ws_CO_1", 0)
	require.NoError(t, err)
	require.False(t, seen)
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour)
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), -time.Second)
	require.Error(t, err)

	guard, err := NewIdempotencyGuard(newMemoryStore(), 0)
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "", 0)
	require.Error(t, err)
}
