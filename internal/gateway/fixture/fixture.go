// Package fixture is a deterministic in-memory gateway backend, optionally seeded from YAML.
// It is used by tests and for local development without live systems.
package fixture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// File is the on-disk fixture format:
//
//	parties:
//	  CUST-001:
//	    discount_data:
//	      max_discount_percentage: 15
//	      avg_discount_percentage: 8.5
//	      discounted_transactions: 12
type File struct {
	Parties map[string]map[models.Operation]map[string]any `yaml:"parties"`
}

// Backend serves facts from memory. A party/operation without data is ErrDataUnavailable.
type Backend struct {
	name string

	mu       sync.RWMutex
	data     map[string]map[models.Operation]map[string]any
	failures map[string]map[models.Operation]error
	calls    atomic.Int64
}

// New returns an empty fixture backend.
func New(name string) *Backend {
	return &Backend{
		name:     name,
		data:     make(map[string]map[models.Operation]map[string]any),
		failures: make(map[string]map[models.Operation]error),
	}
}

// Load reads a YAML fixture file into a new backend.
func Load(name, path string) (*Backend, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file %s: %w", path, err)
	}
	b := New(name)
	for party, ops := range f.Parties {
		for op, m := range ops {
			if !op.Valid() {
				return nil, fmt.Errorf("fixture %s: unknown operation %q for party %s", path, op, party)
			}
			b.Set(party, op, m)
		}
	}
	return b, nil
}

// Set stores the metrics returned for (party, op) and clears any injected failure.
func (b *Backend) Set(party string, op models.Operation, m map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data[party] == nil {
		b.data[party] = make(map[models.Operation]map[string]any)
	}
	b.data[party][op] = copyMetrics(m)
	if b.failures[party] != nil {
		delete(b.failures[party], op)
	}
}

// Fail makes (party, op) return err until the next Set.
func (b *Backend) Fail(party string, op models.Operation, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures[party] == nil {
		b.failures[party] = make(map[models.Operation]error)
	}
	b.failures[party][op] = err
}

// Calls returns how many fetches the backend has served, including failures.
func (b *Backend) Calls() int64 { return b.calls.Load() }

func (b *Backend) Name() string { return b.name }

func (b *Backend) Ping(context.Context) error { return nil }

func (b *Backend) Close() error { return nil }

func (b *Backend) DiscountData(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return b.lookup(ctx, models.OperationDiscountData, q)
}

func (b *Backend) CustomerVolume(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return b.lookup(ctx, models.OperationCustomerVolume, q)
}

func (b *Backend) TransactionActivity(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return b.lookup(ctx, models.OperationTransactionActivity, q)
}

func (b *Backend) lookup(ctx context.Context, op models.Operation, q gateway.Query) (*models.LiveFact, error) {
	b.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, gateway.Unavailable(op, b.name, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.failures[q.Party][op]; err != nil {
		return nil, gateway.Unavailable(op, b.name, err)
	}
	m, ok := b.data[q.Party][op]
	if !ok {
		return nil, gateway.Unavailable(op, b.name, fmt.Errorf("no fixture for party %s", q.Party))
	}
	return gateway.NewFact(op, q, b.name, copyMetrics(m)), nil
}

func copyMetrics(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
