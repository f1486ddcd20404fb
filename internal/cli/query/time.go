// Package query parses the time flags accepted by the pactwatch CLI.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Window resolves CLI time flags to an absolute instant. An absolute value
// wins over a relative one; the relative duration is applied to now in the
// given direction (-1 for "since", +1 for "within").
func Window(absolute, relative string, direction int, now time.Time) (*time.Time, error) {
	if absolute != "" {
		t, err := ParseTime(absolute)
		if err != nil {
			return nil, err
		}
		t = t.UTC()
		return &t, nil
	}
	if relative == "" {
		return nil, nil
	}
	d, err := ParseDuration(relative)
	if err != nil {
		return nil, err
	}
	t := now.Add(time.Duration(direction) * d).UTC()
	return &t, nil
}

// ParseTime parses RFC3339, common date-time layouts and "now".
func ParseTime(s string) (time.Time, error) {
	// Handle special values
	switch strings.ToLower(s) {
	case "now":
		return time.Now(), nil
	}

	// Try various formats
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	// Try parsing as local time
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, time.Local); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// durationRegex matches durations like "15m", "1h", "24h", "7d"
var durationRegex = regexp.MustCompile(`^(\d+)(s|m|h|d|w)$`)

// ParseDuration parses a duration string with support for days and weeks
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	// Try standard Go duration first
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	// Try our extended format
	matches := durationRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (examples: 15m, 1h, 24h, 7d)", s)
	}

	value, _ := strconv.Atoi(matches[1])
	unit := matches[2]

	switch unit {
	case "s":
		return time.Duration(value) * time.Second, nil
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "w":
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}
	weeks := days / 7
	return fmt.Sprintf("%dw", weeks)
}
