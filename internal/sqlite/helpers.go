package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mr-karan/pactwatch/pkg/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreWrite wraps any rejected write. The caller treats the whole
	// operation as failed; nothing was committed.
	ErrStoreWrite = errors.New("store write failed")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// Timestamps are stored as fixed-width UTC text so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func moneyColumns(m *models.Money) (any, any) {
	if m.IsZero() {
		return nil, nil
	}
	return m.Amount.String(), nullableString(m.Currency)
}

func scanMoney(amount, currency sql.NullString) (*models.Money, error) {
	if !amount.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(amount.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount.String, err)
	}
	return &models.Money{Amount: d, Currency: currency.String}, nil
}

func marshalEvidence(e *models.Evidence) (any, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence: %w", err)
	}
	return string(b), nil
}

func unmarshalEvidence(ns sql.NullString) (*models.Evidence, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var e models.Evidence
	if err := json.Unmarshal([]byte(ns.String), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// writeErr marks err as a store write failure while keeping the cause inspectable.
func writeErr(op string, err error) error {
	if errors.Is(err, ErrStoreWrite) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreWrite, err)
}

type scanner interface {
	Scan(dest ...any) error
}
