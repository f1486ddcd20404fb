// Package clickhouse serves live facts from a ClickHouse transactions table over the native protocol.
package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

const (
	defaultTable = "transactions"
	// maxExecutionTime caps server-side work per query, in seconds.
	maxExecutionTime = 30
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

const (
	discountQuery = `
SELECT
    max(discount_percentage),
    avg(discount_percentage),
    countIf(discount_percentage > 0)
FROM %s
WHERE customer_id = ? AND transaction_date >= ? AND transaction_date < ?`

	volumeQuery = `
SELECT
    count(),
    sum(amount)
FROM %s
WHERE customer_id = ? AND transaction_date >= ? AND transaction_date < ?`

	activityQuery = `
SELECT
    count(),
    countIf(transaction_type = 'refund'),
    maxOrNull(transaction_date)
FROM %s
WHERE customer_id = ? AND transaction_date >= ? AND transaction_date < ?`
)

// conn is the part of driver.Conn the backend uses.
type conn interface {
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
	Ping(ctx context.Context) error
	Close() error
}

// Backend is a gateway backend over ClickHouse.
type Backend struct {
	name string
	conn conn
	log  *slog.Logger

	discountSQL string
	volumeSQL   string
	activitySQL string
}

// Options holds connection settings for a ClickHouse backend.
type Options struct {
	Name     string
	Hosts    []string
	Database string
	Username string
	Password string
	Table    string
}

// OptionsFromConfig maps a backend config entry to Options.
func OptionsFromConfig(cfg config.BackendConfig) Options {
	return Options{
		Name:     cfg.Name,
		Hosts:    cfg.Hosts,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		Table:    cfg.Table,
	}
}

// Open establishes a native connection. It does not ping; callers should.
func Open(opts Options, log *slog.Logger) (*Backend, error) {
	hosts := make([]string, 0, len(opts.Hosts))
	for _, h := range opts.Hosts {
		// Default to the native protocol port.
		if !strings.Contains(h, ":") {
			h += ":9000"
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("clickhouse backend %s: no hosts configured", opts.Name)
	}

	c, err := clickhouse.Open(&clickhouse.Options{
		Addr: hosts,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": maxExecutionTime,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Protocol: clickhouse.Native,
	})
	if err != nil {
		return nil, fmt.Errorf("creating clickhouse connection: %w", err)
	}
	log.Debug("created clickhouse connection", "backend", opts.Name, "hosts", hosts, "database", opts.Database)
	return newBackend(opts.Name, c, opts.Table, log)
}

func newBackend(name string, c conn, table string, log *slog.Logger) (*Backend, error) {
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Backend{
		name:        name,
		conn:        c,
		log:         log.With("component", "clickhouse_backend", "backend", name),
		discountSQL: fmt.Sprintf(discountQuery, table),
		volumeSQL:   fmt.Sprintf(volumeQuery, table),
		activitySQL: fmt.Sprintf(activityQuery, table),
	}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Ping(ctx context.Context) error { return b.conn.Ping(ctx) }

func (b *Backend) Close() error { return b.conn.Close() }

func (b *Backend) queryRow(ctx context.Context, op models.Operation, query string, q gateway.Query, dest ...any) error {
	start := time.Now()
	err := b.conn.QueryRow(ctx, query, q.Party, q.Window.Start.UTC(), q.Window.End.UTC()).Scan(dest...)
	b.log.Debug("query executed", "operation", op, "party", q.Party, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	if err != nil {
		return gateway.Unavailable(op, b.name, err)
	}
	return nil
}

// DiscountData implements gateway.Gateway.
func (b *Backend) DiscountData(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	op := models.OperationDiscountData
	var maxPct, avgPct float64
	var discounted uint64
	if err := b.queryRow(ctx, op, b.discountSQL, q, &maxPct, &avgPct, &discounted); err != nil {
		return nil, err
	}
	return gateway.NewFact(op, q, b.name, map[string]any{
		gateway.MetricMaxDiscountPct:         maxPct,
		gateway.MetricAvgDiscountPct:         avgPct,
		gateway.MetricDiscountedTransactions: float64(discounted),
	}), nil
}

// CustomerVolume implements gateway.Gateway.
func (b *Backend) CustomerVolume(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	op := models.OperationCustomerVolume
	var count uint64
	var total float64
	if err := b.queryRow(ctx, op, b.volumeSQL, q, &count, &total); err != nil {
		return nil, err
	}
	return gateway.NewFact(op, q, b.name, map[string]any{
		gateway.MetricTransactionCount: float64(count),
		gateway.MetricTotalAmount:      total,
	}), nil
}

// TransactionActivity implements gateway.Gateway.
func (b *Backend) TransactionActivity(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	op := models.OperationTransactionActivity
	var count, refunds uint64
	var last *time.Time
	if err := b.queryRow(ctx, op, b.activitySQL, q, &count, &refunds, &last); err != nil {
		return nil, err
	}
	m := map[string]any{
		gateway.MetricTransactionCount: float64(count),
		gateway.MetricRefundCount:      float64(refunds),
	}
	if last != nil {
		m[gateway.MetricLastTransactionAt] = last.UTC()
	}
	return gateway.NewFact(op, q, b.name, m), nil
}
