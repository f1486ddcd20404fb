package gateway

import (
	"fmt"
	"math"
	"time"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// MetricKind is the value type a metric must carry.
type MetricKind int

const (
	KindNumber MetricKind = iota
	KindTime
)

// MetricSpec describes one metric of an operation's fixed schema.
type MetricSpec struct {
	Name string
	Kind MetricKind
	// Optional metrics may be absent or nil, e.g. last_transaction_at when there were none.
	Optional bool
}

// Metric names.
const (
	MetricMaxDiscountPct         = "max_discount_percentage"
	MetricAvgDiscountPct         = "avg_discount_percentage"
	MetricDiscountedTransactions = "discounted_transactions"
	MetricTransactionCount       = "transaction_count"
	MetricTotalAmount            = "total_amount"
	MetricRefundCount            = "refund_count"
	MetricLastTransactionAt      = "last_transaction_at"
)

// Schemas is the fixed metric shape of every operation.
var Schemas = map[models.Operation][]MetricSpec{
	models.OperationDiscountData: {
		{Name: MetricMaxDiscountPct, Kind: KindNumber},
		{Name: MetricAvgDiscountPct, Kind: KindNumber},
		{Name: MetricDiscountedTransactions, Kind: KindNumber},
	},
	models.OperationCustomerVolume: {
		{Name: MetricTransactionCount, Kind: KindNumber},
		{Name: MetricTotalAmount, Kind: KindNumber},
	},
	models.OperationTransactionActivity: {
		{Name: MetricTransactionCount, Kind: KindNumber},
		{Name: MetricRefundCount, Kind: KindNumber},
		{Name: MetricLastTransactionAt, Kind: KindTime, Optional: true},
	},
}

// Validate checks fact against the schema of op and normalizes metric values
// to float64 and time.Time in place. Any deviation is ErrDataUnavailable.
func Validate(op models.Operation, fact *models.LiveFact) error {
	if fact == nil {
		return fmt.Errorf("%s: empty result: %w", op, ErrDataUnavailable)
	}
	if fact.Operation != op {
		return fmt.Errorf("%s: result tagged %q: %w", op, fact.Operation, ErrDataUnavailable)
	}
	schema, ok := Schemas[op]
	if !ok {
		return fmt.Errorf("unknown operation %q: %w", op, ErrDataUnavailable)
	}
	if fact.Metrics == nil {
		return fmt.Errorf("%s: result has no metrics: %w", op, ErrDataUnavailable)
	}
	for _, spec := range schema {
		if !fact.Has(spec.Name) {
			if spec.Optional {
				continue
			}
			return fmt.Errorf("%s: missing metric %s: %w", op, spec.Name, ErrDataUnavailable)
		}
		switch spec.Kind {
		case KindNumber:
			v, ok := fact.Number(spec.Name)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s: metric %s is not a finite number: %w", op, spec.Name, ErrDataUnavailable)
			}
			fact.Metrics[spec.Name] = v
		case KindTime:
			t, ok := fact.Time(spec.Name)
			if !ok {
				return fmt.Errorf("%s: metric %s is not a timestamp: %w", op, spec.Name, ErrDataUnavailable)
			}
			fact.Metrics[spec.Name] = t.UTC()
		}
	}
	return nil
}

// NewFact builds a fact for op stamped with the query and fetch time.
func NewFact(op models.Operation, q Query, backend string, metrics map[string]any) *models.LiveFact {
	return &models.LiveFact{
		Operation: op,
		Party:     q.Party,
		Window:    q.Window,
		Metrics:   metrics,
		FetchedAt: time.Now().UTC(),
		Backend:   backend,
	}
}
