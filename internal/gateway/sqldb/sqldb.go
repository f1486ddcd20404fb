// Package sqldb serves live facts from a relational transactions table over
// PostgreSQL (pgx) or MySQL.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// Driver names as registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

const defaultTable = "transactions"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Queries take (customer_id, window_start, window_end). The table name is
// substituted once at construction and validated against tableName.
const (
	discountQuery = `
SELECT
    COALESCE(MAX(discount_percentage), 0),
    COALESCE(AVG(discount_percentage), 0),
    COALESCE(SUM(CASE WHEN discount_percentage > 0 THEN 1 ELSE 0 END), 0)
FROM %s
WHERE customer_id = ? AND transaction_date >= ? AND transaction_date < ?`

	volumeQuery = `
SELECT
    COUNT(*),
    COALESCE(SUM(amount), 0)
FROM %s
WHERE customer_id = ? AND transaction_date >= ? AND transaction_date < ?`

	activityQuery = `
SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN transaction_type = 'refund' THEN 1 ELSE 0 END), 0),
    MAX(transaction_date)
FROM %s
WHERE customer_id = ? AND transaction_date >= ? AND transaction_date < ?`
)

// Backend is a gateway backend over database/sql.
type Backend struct {
	name   string
	db     *sql.DB
	driver string
	log    *slog.Logger

	discountSQL string
	volumeSQL   string
	activitySQL string
}

// New wraps an open database handle. driver selects the placeholder style.
func New(name string, db *sql.DB, driver, table string, log *slog.Logger) (*Backend, error) {
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if driver != DriverPostgres && driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	b := &Backend{
		name:   name,
		db:     db,
		driver: driver,
		log:    log.With("component", "sqldb_backend", "backend", name),
	}
	b.discountSQL = b.rebind(fmt.Sprintf(discountQuery, table))
	b.volumeSQL = b.rebind(fmt.Sprintf(volumeQuery, table))
	b.activitySQL = b.rebind(fmt.Sprintf(activityQuery, table))
	return b, nil
}

// Open connects using a backend config entry.
func Open(cfg config.BackendConfig, log *slog.Logger) (*Backend, error) {
	driver := DriverPostgres
	if cfg.Kind == config.BackendMySQL {
		driver = DriverMySQL
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend %s: %w", driver, cfg.Name, err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	b, err := New(cfg.Name, db, driver, cfg.Table, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (b *Backend) rebind(q string) string {
	if b.driver != DriverPostgres {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

func (b *Backend) Close() error { return b.db.Close() }

// DiscountData implements gateway.Gateway.
func (b *Backend) DiscountData(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	op := models.OperationDiscountData
	var maxPct, avgPct float64
	var discounted int64
	row := b.db.QueryRowContext(ctx, b.discountSQL, q.Party, q.Window.Start.UTC(), q.Window.End.UTC())
	if err := row.Scan(&maxPct, &avgPct, &discounted); err != nil {
		return nil, gateway.Unavailable(op, b.name, err)
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
	var count int64
	var total float64
	row := b.db.QueryRowContext(ctx, b.volumeSQL, q.Party, q.Window.Start.UTC(), q.Window.End.UTC())
	if err := row.Scan(&count, &total); err != nil {
		return nil, gateway.Unavailable(op, b.name, err)
	}
	return gateway.NewFact(op, q, b.name, map[string]any{
		gateway.MetricTransactionCount: float64(count),
		gateway.MetricTotalAmount:      total,
	}), nil
}

// TransactionActivity implements gateway.Gateway.
func (b *Backend) TransactionActivity(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	op := models.OperationTransactionActivity
	var count, refunds int64
	var last sql.NullTime
	row := b.db.QueryRowContext(ctx, b.activitySQL, q.Party, q.Window.Start.UTC(), q.Window.End.UTC())
	if err := row.Scan(&count, &refunds, &last); err != nil {
		return nil, gateway.Unavailable(op, b.name, err)
	}
	m := map[string]any{
		gateway.MetricTransactionCount: float64(count),
		gateway.MetricRefundCount:      float64(refunds),
	}
	if last.Valid {
		m[gateway.MetricLastTransactionAt] = last.Time.UTC()
	}
	return gateway.NewFact(op, q, b.name, m), nil
}
