package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/gateway/fixture"
	"github.com/mr-karan/pactwatch/pkg/models"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet error
	failSet error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, false, s.failGet
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.data[key] = value
	return nil
}

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func testQuery() gateway.Query {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return gateway.Query{Party: "CUST-001", Window: models.Window{Start: end.AddDate(0, 0, -30), End: end}}
}

func seeded() *fixture.Backend {
	src := fixture.New("fx")
	src.Set("CUST-001", models.OperationTransactionActivity, map[string]any{
		gateway.MetricTransactionCount:  5.0,
		gateway.MetricRefundCount:       1.0,
		gateway.MetricLastTransactionAt: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
	})
	return src
}

func TestReadThrough(t *testing.T) {
	src := seeded()
	store := newMemStore()
	g := New(src, store, time.Minute, discardLog)

	first, err := g.TransactionActivity(context.Background(), testQuery())
	require.NoError(t, err)
	second, err := g.TransactionActivity(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, int64(1), src.Calls())
	n1, _ := first.Number(gateway.MetricRefundCount)
	n2, _ := second.Number(gateway.MetricRefundCount)
	assert.Equal(t, n1, n2)

	last, ok := second.Time(gateway.MetricLastTransactionAt)
	require.True(t, ok)
	assert.Equal(t, 27, last.Day())
}

func TestErrorsNotCached(t *testing.T) {
	src := fixture.New("fx")
	store := newMemStore()
	g := New(src, store, time.Minute, discardLog)

	_, err := g.CustomerVolume(context.Background(), testQuery())
	require.ErrorIs(t, err, gateway.ErrDataUnavailable)
	assert.Empty(t, store.data)

	_, err = g.CustomerVolume(context.Background(), testQuery())
	require.Error(t, err)
	assert.Equal(t, int64(2), src.Calls())
}

func TestStoreFailureFallsBack(t *testing.T) {
	src := seeded()
	store := newMemStore()
	store.failGet = errors.New("connection refused")
	store.failSet = errors.New("connection refused")
	g := New(src, store, time.Minute, discardLog)

	for i := 0; i < 2; i++ {
		fact, err := g.TransactionActivity(context.Background(), testQuery())
		require.NoError(t, err)
		assert.Equal(t, "fx", fact.Backend)
	}
	assert.Equal(t, int64(2), src.Calls())
}

func TestInvalidCachedFactIsMiss(t *testing.T) {
	src := seeded()
	store := newMemStore()
	store.data[Key(models.OperationTransactionActivity, testQuery())] = []byte(`{"operation":"transaction_activity","metrics":{"transaction_count":"lots"}}`)
	g := New(src, store, time.Minute, discardLog)

	_, err := g.TransactionActivity(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.Calls())
}

func TestKeyDistinguishesWindows(t *testing.T) {
	q := testQuery()
	other := q
	other.Window.Start = other.Window.Start.AddDate(0, 0, -60)
	assert.NotEqual(t, Key(models.OperationCustomerVolume, q), Key(models.OperationCustomerVolume, other))
	assert.NotEqual(t, Key(models.OperationCustomerVolume, q), Key(models.OperationDiscountData, q))
}

// Requires a running Redis; skipped otherwise.
func TestRedisStore_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	s := NewRedisStore(client)
	key := "pactwatch:test:" + time.Now().Format(time.RFC3339Nano)
	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, []byte("v"), time.Second))
	v, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}
