package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialstore/internal/audit"
	"trialstore/internal/audit/metrics"
	"trialstore/internal/audit/store/memory"
	"trialstore/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func (failingStore) List(context.Context, audit.Filter) ([]audit.Event, error) { return nil, nil }

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Action:     audit.ActionContextChanged,
		Collection: "trials",
		Context:    "enhanced",
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), audit.Filter{Collection: "trials"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionContextChanged, events[0].Action)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_FillsRequestMetadata(t *testing.T) {
	store := memory.NewInMemoryStore()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	pub := audit.NewPublisher(store, audit.WithClock(func() time.Time { return now }))
	defer pub.Close()

	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithOperator(ctx, "ops@example.com")
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionCollectionMigrated}))

	events, err := store.List(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, "ops@example.com", events[0].Operator)
	assert.Equal(t, now, events[0].Timestamp)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store, audit.WithAsyncBuffer(10))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionSchemaRegistered}))

	assert.Eventually(t, func() bool {
		events, _ := store.List(context.Background(), audit.Filter{})
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store, audit.WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionDocumentMigrated}))
	}
	pub.Close()

	events, err := store.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionDocumentMigrated}))
	events, err = store.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, events, 11, "emits after close are written synchronously")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	pub := audit.NewPublisher(store, audit.WithAsyncBuffer(1), audit.WithMetrics(m))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionDocumentMigrated}))
		}()
	}
	wg.Wait()
	pub.Close()

	events, err := store.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	dropped := int(testutil.ToFloat64(m.Dropped))
	assert.Equal(t, 50, len(events)+dropped)
}

func TestPublisher_SyncStoreFailureIsReturned(t *testing.T) {
	sink := &recordingSink{}
	pub := audit.NewPublisher(failingStore{}, audit.WithSinks(sink))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: audit.ActionContextChanged})
	require.Error(t, err)
	assert.Empty(t, sink.events, "sinks only see persisted events")
}

func TestPublisher_SinkFailureIsNotReturned(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &recordingSink{err: errors.New("broker down")}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	pub := audit.NewPublisher(store, audit.WithSinks(sink), audit.WithMetrics(m))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionContextChanged}))
	assert.Len(t, sink.events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkFailures))
}

func TestInMemoryStore_ListFilters(t *testing.T) {
	store := memory.NewInMemoryStore()
	ctx := context.Background()
	for _, e := range []audit.Event{
		{ID: "1", Action: audit.ActionContextChanged, Collection: "trials"},
		{ID: "2", Action: audit.ActionCollectionMigrated, Collection: "trials"},
		{ID: "3", Action: audit.ActionContextChanged, Collection: "companies"},
		{ID: "4", Action: audit.ActionContextChanged, Collection: "trials"},
	} {
		require.NoError(t, store.Append(ctx, e))
	}

	got, err := store.List(ctx, audit.Filter{Collection: "trials", Action: audit.ActionContextChanged})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)

	got, err = store.List(ctx, audit.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "4", got[0].ID, "limit keeps the most recent")

	store.Clear()
	got, err = store.List(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
