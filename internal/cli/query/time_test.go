package query

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		// Standard Go durations
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "hours", input: "2h", expected: 2 * time.Hour},
		{name: "mixed", input: "1h30m", expected: 90 * time.Minute},

		// Extended format (days, weeks)
		{name: "days", input: "7d", expected: 7 * 24 * time.Hour},
		{name: "weeks", input: "2w", expected: 14 * 24 * time.Hour},
		{name: "one day", input: "1d", expected: 24 * time.Hour},

		// Case insensitive
		{name: "uppercase", input: "15M", expected: 15 * time.Minute},
		{name: "mixed case", input: "1H", expected: time.Hour},

		// Edge cases
		{name: "zero", input: "0s", expected: 0},
		{name: "large number", input: "365d", expected: 365 * 24 * time.Hour},

		// Invalid inputs
		{name: "invalid unit", input: "5x", wantErr: true},
		{name: "no number", input: "m", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-5m", wantErr: true},
		{name: "decimal", input: "1.5h", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDuration(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseDuration(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		absolute  string
		relative  string
		direction int
		want      *time.Time
		wantErr   bool
	}{
		{name: "neither", want: nil},
		{name: "since 7d", relative: "7d", direction: -1, want: ptr(now.Add(-7 * 24 * time.Hour))},
		{name: "within 30d", relative: "30d", direction: 1, want: ptr(now.Add(30 * 24 * time.Hour))},
		{name: "absolute wins", absolute: "2026-03-01", relative: "7d", direction: 1, want: ptr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))},
		{name: "rfc3339", absolute: "2026-02-01T09:30:00Z", want: ptr(time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC))},
		{name: "bad duration", relative: "soon", wantErr: true},
		{name: "bad time", absolute: "not-a-date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Window(tt.absolute, tt.relative, tt.direction, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Window() expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Window() unexpected error: %v", err)
			}
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("Window() = %v, want %v", got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("Window() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "90m"},
		{2 * time.Hour, "2h"},
		{24 * time.Hour, "1d"},
		{48 * time.Hour, "2d"},
		{7 * 24 * time.Hour, "1w"},
		{14 * 24 * time.Hour, "2w"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := FormatDuration(tt.input)
			if got != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
