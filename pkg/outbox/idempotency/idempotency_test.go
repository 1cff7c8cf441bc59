package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memoryStore mimics SET NX and DEL over a map.
type memoryStore struct {
	mu      sync.Mutex
	keys    map[string]time.Duration
	setErr  error
	delErr  error
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return "1", nil
	}
	return "", nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	for _, key := range keys {
		delete(m.keys, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "sm:idempotency:" + scope + ":" + id
}

const consumer = "customer-notifications"

func newTestManager(t *testing.T, store *memoryStore, ttl time.Duration) *Manager {
	t.Helper()
	manager, err := NewManager(store, ttl)
	require.NoError(t, err)
	return manager
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	require.Error(t, err)
	_, err = NewManager(newMemoryStore(), -time.Second)
	require.Error(t, err)
}

func TestCheckAndMarkProcessedClaimsOnce(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, 24*time.Hour)
	eventID := uuid.New()

	already, err := manager.CheckAndMarkProcessed(context.Background(), consumer, eventID)
	require.NoError(t, err)
	require.False(t, already)

	key := "sm:idempotency:evt:processed:" + consumer + ":" + eventID.String()
	require.Equal(t, 24*time.Hour, store.keys[key])

	already, err = manager.CheckAndMarkProcessed(context.Background(), consumer, eventID)
	require.NoError(t, err)
	require.True(t, already)

	// a different consumer has its own claim on the same event
	already, err = manager.CheckAndMarkProcessed(context.Background(), "audit-export", eventID)
	require.NoError(t, err)
	require.False(t, already)
}

func TestCheckAndMarkProcessedRejectsBadInput(t *testing.T) {
	manager := newTestManager(t, newMemoryStore(), time.Hour)

	_, err := manager.CheckAndMarkProcessed(context.Background(), "", uuid.New())
	require.Error(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), consumer, uuid.Nil)
	require.Error(t, err)
}

func TestCheckAndMarkProcessedWrapsStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("connection refused")
	manager := newTestManager(t, store, time.Hour)

	_, err := manager.CheckAndMarkProcessed(context.Background(), consumer, uuid.New())
	require.ErrorIs(t, err, store.setErr)
}

func TestDeleteForgetsClaim(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, time.Hour)
	eventID := uuid.New()

	_, err := manager.CheckAndMarkProcessed(context.Background(), consumer, eventID)
	require.NoError(t, err)
	require.NoError(t, manager.Delete(context.Background(), consumer, eventID))

	already, err := manager.CheckAndMarkProcessed(context.Background(), consumer, eventID)
	require.NoError(t, err)
	require.False(t, already)
}

func TestProcessRunsOnce(t *testing.T) {
	manager := newTestManager(t, newMemoryStore(), time.Hour)
	eventID := uuid.New()
	calls := 0
	handler := func(context.Context) error {
		calls++
		return nil
	}

	ran, err := manager.Process(context.Background(), consumer, eventID, handler)
	require.NoError(t, err)
	require.True(t, ran)

	ran, err = manager.Process(context.Background(), consumer, eventID, handler)
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, 1, calls)
}

func TestProcessReleasesClaimOnFailure(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, time.Hour)
	eventID := uuid.New()
	boom := errors.New("sms gateway down")

	ran, err := manager.Process(context.Background(), consumer, eventID, func(context.Context) error { return boom })
	require.True(t, ran)
	require.ErrorIs(t, err, boom)
	require.Len(t, store.deleted, 1)

	// the redelivery gets another chance
	ran, err = manager.Process(context.Background(), consumer, eventID, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.True(t, ran)
}

func TestProcessReportsFailedRelease(t *testing.T) {
	store := newMemoryStore()
	store.delErr = errors.New("redis timeout")
	manager := newTestManager(t, store, time.Hour)
	boom := errors.New("smtp rejected")

	_, err := manager.Process(context.Background(), consumer, uuid.New(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, store.delErr)
}

func TestProcessReleasesEvenAfterCancel(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := manager.Process(ctx, consumer, uuid.New(), func(context.Context) error {
		cancel()
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, store.deleted, 1)
}
