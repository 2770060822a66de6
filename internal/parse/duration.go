package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	hoursRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:h|hr|hrs|hour|hours)\b`)
	minutesRe = regexp.MustCompile(`(?i)(\d+)\s*(?:m|min|mins|minute|minutes)\b`)
	digitsRe  = regexp.MustCompile(`\d+`)
)

// DurationMinutes reads a session length such as "30 mins", "1 hr 15 mins"
// or "45" and returns it in minutes. Strings without digits parse as 0.
func DurationMinutes(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}

	total := 0
	matched := false
	for _, m := range hoursRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid hours in duration %q: %w", raw, err)
		}
		total += n * 60
		matched = true
	}
	for _, m := range minutesRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid minutes in duration %q: %w", raw, err)
		}
		total += n
		matched = true
	}
	if matched {
		return total, nil
	}

	// Bare number: treat as minutes.
	digits := digitsRe.FindString(s)
	if digits == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return n, nil
}
