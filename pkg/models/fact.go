package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Operation names a live-data question the gateway can answer.
type Operation string

const (
	OperationDiscountData        Operation = "discount_data"
	OperationCustomerVolume      Operation = "customer_volume"
	OperationTransactionActivity Operation = "transaction_activity"
)

// Valid reports whether op is a known gateway operation.
func (op Operation) Valid() bool {
	switch op {
	case OperationDiscountData, OperationCustomerVolume, OperationTransactionActivity:
		return true
	}
	return false
}

// Window is a half-open [Start, End) time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the window length in whole days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// LiveFact is a point-in-time operational answer from the gateway.
type LiveFact struct {
	Operation Operation      `json:"operation"`
	Party     string         `json:"party"`
	Window    Window         `json:"window"`
	Metrics   map[string]any `json:"metrics"`
	FetchedAt time.Time      `json:"fetched_at"`
	Backend   string         `json:"backend,omitempty"`
}

// Number returns a metric as a float64.
func (f *LiveFact) Number(name string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f.Metrics[name]
	if !ok || v == nil {
		return 0, false
	}
	return toFloat(v)
}

// Time returns a metric as a timestamp.
func (f *LiveFact) Time(name string) (time.Time, bool) {
	if f == nil {
		return time.Time{}, false
	}
	switch v := f.Metrics[name].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Bool returns a metric as a boolean.
func (f *LiveFact) Bool(name string) (bool, bool) {
	if f == nil {
		return false, false
	}
	switch v := f.Metrics[name].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}

// Has reports whether the metric is present and non-nil.
func (f *LiveFact) Has(name string) bool {
	if f == nil {
		return false
	}
	v, ok := f.Metrics[name]
	return ok && v != nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// String renders the fact for logs.
func (f *LiveFact) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s %s..%s)", f.Operation, f.Party,
		f.Window.Start.Format(time.DateOnly), f.Window.End.Format(time.DateOnly))
}
