package parse

import (
	"fmt"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Timestamp parses an upstream timestamp. Values without a zone are read in loc.
func Timestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", raw)
}

// SlotDate normalises a slot date such as "2025-03-10T00:00:00.000Z" to YYYY-MM-DD.
func SlotDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), nil
	}
	t, err := Timestamp(s, time.UTC)
	if err != nil {
		return "", fmt.Errorf("failed to parse slot date %q", raw)
	}
	return t.UTC().Format("2006-01-02"), nil
}

// SlotTime renders a 24h "HH:mm" slot time as "hh:mm AM".
func SlotTime(raw string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse slot time %q", raw)
	}
	return t.Format("03:04 PM"), nil
}
