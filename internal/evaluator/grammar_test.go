package evaluator

import (
	"errors"
	"testing"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		condition string
		op        Comparator
		value     float64
		percent   bool
	}{
		{"max_discount_percentage <= 10", CmpLE, 10, false},
		{"discount ≤ 10%", CmpLE, 10, true},
		{"Maximum discount not to exceed 10% of list price", CmpLE, 10, true},
		{"Discounts shall not exceed 12.5 percent", CmpLE, 12.5, true},
		{"discount cap 10%", CmpLE, 10, true},
		{"Refunds must be less than 5 per month", CmpLT, 5, false},
		{"at least 500 transactions per quarter", CmpGE, 500, false},
		{"Annual purchase volume of no less than $1,000,000", CmpGE, 1000000, false},
		{"minimum spend 2.5m USD", CmpGE, 2500000, false},
		{"Over a 30 day period, at least 40 transactions", CmpGE, 40, false},
		{"more than 3 orders", CmpGT, 3, false},
		{"10 refunds or fewer", CmpLE, 10, false},
		{"transaction_count >= 25", CmpGE, 25, false},
		{"refund_count = 0", CmpEQ, 0, false},
		{"avg discount => 2", CmpGE, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			th, err := ParseThreshold(tt.condition)
			if err != nil {
				t.Fatalf("ParseThreshold(%q) error = %v", tt.condition, err)
			}
			if th.Op != tt.op {
				t.Errorf("ParseThreshold(%q).Op = %v, want %v", tt.condition, th.Op, tt.op)
			}
			if th.Value != tt.value {
				t.Errorf("ParseThreshold(%q).Value = %v, want %v", tt.condition, th.Value, tt.value)
			}
			if th.Percent != tt.percent {
				t.Errorf("ParseThreshold(%q).Percent = %v, want %v", tt.condition, th.Percent, tt.percent)
			}
		})
	}
}

func TestParseThresholdNone(t *testing.T) {
	for _, condition := range []string{
		"",
		"Supplier must deliver the quarterly report in good faith",
		"Maintain adequate insurance coverage",
		"cap",
	} {
		if _, err := ParseThreshold(condition); !errors.Is(err, ErrNoThreshold) {
			t.Errorf("ParseThreshold(%q) error = %v, want ErrNoThreshold", condition, err)
		}
	}
}

func TestParseThresholdWords(t *testing.T) {
	th, err := ParseThreshold("Average discount at most 8%")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"average", "discount", "at", "most"}
	if len(th.Words) != len(want) {
		t.Fatalf("Words = %v, want %v", th.Words, want)
	}
	for i := range want {
		if th.Words[i] != want[i] {
			t.Errorf("Words[%d] = %q, want %q", i, th.Words[i], want[i])
		}
	}
}
