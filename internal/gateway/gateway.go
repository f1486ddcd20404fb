// Package gateway answers fixed operational questions about a customer over a
// time window. It never sees contract text or thresholds; it only reports facts.
//
// Every backend implements the same Gateway capability set, so the monitoring
// engine works identically against a production database, an analytical store,
// an MCP connector or a fixture file.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// ErrDataUnavailable is returned whenever a backend cannot produce a trustworthy fact:
// unreachable, timed out, or returned malformed data. It is never a compliant signal.
var ErrDataUnavailable = errors.New("live data unavailable")

// Unavailable wraps a cause as ErrDataUnavailable with context.
func Unavailable(op models.Operation, backend string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s via %s: %w", op, backend, ErrDataUnavailable)
	}
	if errors.Is(cause, ErrDataUnavailable) {
		return cause
	}
	return fmt.Errorf("%s via %s: %w: %w", op, backend, ErrDataUnavailable, cause)
}

// Query identifies the customer and window a fact is requested for.
type Query struct {
	Party  string
	Window models.Window
}

// Gateway is the capability set the engine depends on.
type Gateway interface {
	// DiscountData reports max_discount_percentage, avg_discount_percentage and discounted_transactions.
	DiscountData(ctx context.Context, q Query) (*models.LiveFact, error)
	// CustomerVolume reports transaction_count and total_amount.
	CustomerVolume(ctx context.Context, q Query) (*models.LiveFact, error)
	// TransactionActivity reports transaction_count, refund_count and last_transaction_at.
	TransactionActivity(ctx context.Context, q Query) (*models.LiveFact, error)
}

// Backend is a Gateway that can be registered, health-checked and closed.
// Implementations must be safe for concurrent use.
type Backend interface {
	Gateway
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Fetch dispatches op to the matching Gateway method.
func Fetch(ctx context.Context, g Gateway, op models.Operation, q Query) (*models.LiveFact, error) {
	switch op {
	case models.OperationDiscountData:
		return g.DiscountData(ctx, q)
	case models.OperationCustomerVolume:
		return g.CustomerVolume(ctx, q)
	case models.OperationTransactionActivity:
		return g.TransactionActivity(ctx, q)
	default:
		return nil, fmt.Errorf("unknown gateway operation %q", op)
	}
}

// Data domains group operations for routing to backends.
const (
	DomainDiscounts    = "discounts"
	DomainVolumes      = "volumes"
	DomainTransactions = "transactions"
)

// DomainFor returns the data domain an operation belongs to.
func DomainFor(op models.Operation) string {
	switch op {
	case models.OperationDiscountData:
		return DomainDiscounts
	case models.OperationCustomerVolume:
		return DomainVolumes
	default:
		return DomainTransactions
	}
}
