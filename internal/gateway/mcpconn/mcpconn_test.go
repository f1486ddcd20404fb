package mcpconn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/gateway/fixture"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// inMemory returns a transport factory that starts a fresh server session per connection.
func inMemory(t *testing.T, srv *mcp.Server, connects *atomic.Int32) TransportFunc {
	t.Helper()
	return func(context.Context) (mcp.Transport, error) {
		connects.Add(1)
		serverTransport, clientTransport := mcp.NewInMemoryTransports()
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go func() { _ = srv.Run(ctx, serverTransport) }()
		return clientTransport, nil
	}
}

func newConnector(t *testing.T, src gateway.Gateway) (*Backend, *atomic.Int32) {
	t.Helper()
	var connects atomic.Int32
	b, err := New(Options{
		Name:      "remote",
		RateLimit: 1000,
		Burst:     100,
		Transport: inMemory(t, NewServer(src, "test"), &connects),
	}, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, &connects
}

func testQuery(party string) gateway.Query {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return gateway.Query{Party: party, Window: models.Window{Start: end.AddDate(0, 0, -30), End: end}}
}

func TestDiscountDataRoundTrip(t *testing.T) {
	src := fixture.New("upstream")
	src.Set("CUST-001", models.OperationDiscountData, map[string]any{
		gateway.MetricMaxDiscountPct:         15.0,
		gateway.MetricAvgDiscountPct:         8.5,
		gateway.MetricDiscountedTransactions: 12,
	})
	b, _ := newConnector(t, src)

	fact, err := b.DiscountData(context.Background(), testQuery("CUST-001"))
	require.NoError(t, err)
	assert.Equal(t, "remote", fact.Backend)
	require.NoError(t, gateway.Validate(models.OperationDiscountData, fact))

	v, _ := fact.Number(gateway.MetricMaxDiscountPct)
	assert.Equal(t, 15.0, v)
	n, _ := fact.Number(gateway.MetricDiscountedTransactions)
	assert.Equal(t, 12.0, n)
}

func TestTransactionActivityTimestamp(t *testing.T) {
	last := time.Date(2026, 2, 28, 17, 45, 0, 0, time.UTC)
	src := fixture.New("upstream")
	src.Set("CUST-002", models.OperationTransactionActivity, map[string]any{
		gateway.MetricTransactionCount:  40,
		gateway.MetricRefundCount:       3,
		gateway.MetricLastTransactionAt: last,
	})
	b, _ := newConnector(t, src)

	fact, err := b.TransactionActivity(context.Background(), testQuery("CUST-002"))
	require.NoError(t, err)
	require.NoError(t, gateway.Validate(models.OperationTransactionActivity, fact))
	got, ok := fact.Time(gateway.MetricLastTransactionAt)
	require.True(t, ok)
	assert.True(t, got.Equal(last))
}

func TestToolErrorIsUnavailable(t *testing.T) {
	src := fixture.New("upstream")
	src.Fail("CUST-003", models.OperationCustomerVolume, errors.New("warehouse offline"))
	b, _ := newConnector(t, src)

	_, err := b.CustomerVolume(context.Background(), testQuery("CUST-003"))
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrDataUnavailable)

	// No data at all is also unavailable, never an empty compliant answer.
	_, err = b.CustomerVolume(context.Background(), testQuery("CUST-404"))
	assert.ErrorIs(t, err, gateway.ErrDataUnavailable)
}

func TestSessionReused(t *testing.T) {
	src := fixture.New("upstream")
	src.Set("CUST-001", models.OperationCustomerVolume, map[string]any{
		gateway.MetricTransactionCount: 1,
		gateway.MetricTotalAmount:      10,
	})
	b, connects := newConnector(t, src)

	for i := 0; i < 3; i++ {
		_, err := b.CustomerVolume(context.Background(), testQuery("CUST-001"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), connects.Load())
	require.NoError(t, b.Ping(context.Background()))
}

func TestRateLimitHonoursContext(t *testing.T) {
	src := fixture.New("upstream")
	var connects atomic.Int32
	b, err := New(Options{
		Name:      "slow",
		RateLimit: 0.001,
		Burst:     1,
		Transport: inMemory(t, NewServer(src, "test"), &connects),
	}, "test", slog.Default())
	require.NoError(t, err)
	defer b.Close()

	// First call consumes the burst token.
	_, _ = b.CustomerVolume(context.Background(), testQuery("CUST-001"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.CustomerVolume(ctx, testQuery("CUST-001"))
	assert.ErrorIs(t, err, gateway.ErrDataUnavailable)
}

func TestDecodeMetrics(t *testing.T) {
	m, err := decodeMetrics(`{"transaction_count": 12, "total_amount": 1500.25}`)
	require.NoError(t, err)
	assert.Len(t, m, 2)

	_, err = decodeMetrics("")
	assert.Error(t, err)
	_, err = decodeMetrics("not json")
	assert.Error(t, err)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Options{Name: "x"}, "test", slog.Default())
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, d.Year())

	d, err = parseDate("2026-03-01T10:00:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, 4, d.Hour())

	_, err = parseDate("yesterday")
	assert.Error(t, err)
}
