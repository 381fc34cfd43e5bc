package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOutboxRepository keeps entries in memory
type fakeOutboxRepository struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*shared.OutboxEntry
	findErr  error
	deleted  int64
	cutoffs  []time.Time
	updateFn func(*shared.OutboxEntry) error
}

func newFakeOutboxRepository() *fakeOutboxRepository {
	return &fakeOutboxRepository{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *fakeOutboxRepository) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *fakeOutboxRepository) FindPending(_ context.Context, limit int) ([]*shared.OutboxEntry, error) {
	return r.find(limit, func(e *shared.OutboxEntry) bool { return e.Status == shared.OutboxStatusPending })
}

func (r *fakeOutboxRepository) FindRetryable(_ context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return r.find(limit, func(e *shared.OutboxEntry) bool {
		return e.Status == shared.OutboxStatusFailed && e.NextRetryAt != nil && !e.NextRetryAt.After(before)
	})
}

func (r *fakeOutboxRepository) find(limit int, match func(*shared.OutboxEntry) bool) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if match(e) && len(result) < limit {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *fakeOutboxRepository) MarkProcessing(_ context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var claimed []*shared.OutboxEntry
	for _, id := range ids {
		if e, ok := r.entries[id]; ok && e.MarkProcessing() == nil {
			claimed = append(claimed, e)
		}
	}
	return claimed, nil
}

func (r *fakeOutboxRepository) Update(_ context.Context, entry *shared.OutboxEntry) error {
	if r.updateFn != nil {
		return r.updateFn(entry)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = entry
	return nil
}

func (r *fakeOutboxRepository) DeleteSentBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, before)
	return r.deleted, nil
}

func (r *fakeOutboxRepository) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *fakeOutboxRepository) status(id uuid.UUID) shared.OutboxStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id].Status
}

type processorFixture struct {
	repo       *fakeOutboxRepository
	bus        *InMemoryEventBus
	serializer *EventSerializer
	processor  *OutboxProcessor
}

func newProcessorFixture(cfg OutboxProcessorConfig) *processorFixture {
	f := &processorFixture{
		repo:       newFakeOutboxRepository(),
		bus:        NewInMemoryEventBus(zap.NewNop()),
		serializer: NewEventSerializer(),
	}
	f.serializer.Register("OrderPlaced", &testutil.TestEvent{})
	f.processor = NewOutboxProcessor(f.repo, f.bus, f.serializer, cfg, zap.NewNop())
	return f
}

func (f *processorFixture) enqueue(t *testing.T, eventType string) *shared.OutboxEntry {
	t.Helper()
	event := testutil.NewTestEvent(eventType)
	payload, err := f.serializer.Serialize(event)
	require.NoError(t, err)
	entry := shared.NewOutboxEntry(event, payload)
	require.NoError(t, f.repo.Save(context.Background(), entry))
	return entry
}

func TestOutboxProcessor_ProcessOnce_Delivers(t *testing.T) {
	f := newProcessorFixture(DefaultOutboxProcessorConfig())
	handler := testutil.NewMockEventHandler("OrderPlaced")
	f.bus.Subscribe(handler)
	entry := f.enqueue(t, "OrderPlaced")

	delivered := f.processor.ProcessOnce(context.Background())

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, handler.HandledCount())
	assert.Equal(t, shared.OutboxStatusSent, f.repo.status(entry.ID))
	assert.NotNil(t, entry.ProcessedAt)
}

func TestOutboxProcessor_ProcessOnce_HandlerFailureSchedulesRetry(t *testing.T) {
	f := newProcessorFixture(DefaultOutboxProcessorConfig())
	handler := testutil.NewMockEventHandler("OrderPlaced")
	handler.SetError(errors.New("notifier down"))
	f.bus.Subscribe(handler)
	entry := f.enqueue(t, "OrderPlaced")

	delivered := f.processor.ProcessOnce(context.Background())

	assert.Zero(t, delivered)
	assert.Equal(t, shared.OutboxStatusFailed, f.repo.status(entry.ID))
	assert.Equal(t, 1, entry.RetryCount)
	assert.Contains(t, entry.LastError, "notifier down")
	require.NotNil(t, entry.NextRetryAt)
	assert.True(t, entry.NextRetryAt.After(time.Now()))

	// Due retries are picked up once the backoff has elapsed.
	past := time.Now().Add(-time.Second)
	entry.NextRetryAt = &past
	handler.SetError(nil)

	assert.Equal(t, 1, f.processor.ProcessOnce(context.Background()))
	assert.Equal(t, shared.OutboxStatusSent, f.repo.status(entry.ID))
}

func TestOutboxProcessor_ProcessOnce_UnknownTypeGoesDead(t *testing.T) {
	f := newProcessorFixture(DefaultOutboxProcessorConfig())
	entry := f.enqueue(t, "Unregistered")
	entry.MaxRetries = 1

	f.processor.ProcessOnce(context.Background())

	assert.Equal(t, shared.OutboxStatusDead, f.repo.status(entry.ID))
	assert.Contains(t, entry.LastError, "unknown event type")
}

func TestOutboxProcessor_ProcessOnce_RepositoryError(t *testing.T) {
	f := newProcessorFixture(DefaultOutboxProcessorConfig())
	f.repo.findErr = errors.New("connection reset")

	assert.Zero(t, f.processor.ProcessOnce(context.Background()))
}

func TestOutboxProcessor_ProcessOnce_UpdateFailureNotCounted(t *testing.T) {
	f := newProcessorFixture(DefaultOutboxProcessorConfig())
	f.bus.Subscribe(testutil.NewMockEventHandler("OrderPlaced"))
	f.enqueue(t, "OrderPlaced")
	f.repo.updateFn = func(*shared.OutboxEntry) error { return errors.New("write failed") }

	assert.Zero(t, f.processor.ProcessOnce(context.Background()))
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	f := newProcessorFixture(OutboxProcessorConfig{
		BatchSize:        10,
		PollInterval:     10 * time.Millisecond,
		CleanupEnabled:   true,
		CleanupRetention: time.Hour,
		CleanupInterval:  10 * time.Millisecond,
	})
	handler := testutil.NewMockEventHandler("OrderPlaced")
	f.bus.Subscribe(handler)
	f.enqueue(t, "OrderPlaced")

	require.NoError(t, f.processor.Start(context.Background()))
	assert.True(t, testutil.WaitForEventCount(t, handler, 1, 2*time.Second))
	assert.True(t, testutil.WaitForCondition(t, func() bool {
		f.repo.mu.Lock()
		defer f.repo.mu.Unlock()
		return len(f.repo.cutoffs) > 0
	}, 2*time.Second, 10*time.Millisecond))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.processor.Stop(stopCtx))
}
