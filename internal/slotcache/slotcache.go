// Package slotcache caches mentor slot lists between calendar refreshes.
package slotcache

import (
	"context"
	"fmt"

	"mentorbuddy-backend/internal/mentorapi"
)

// Cache stores slot lists keyed by mentor and date.
type Cache interface {
	Get(ctx context.Context, mentorID, date string) ([]mentorapi.SlotDay, bool, error)
	Set(ctx context.Context, mentorID, date string, days []mentorapi.SlotDay) error
	// Invalidate drops every cached date of a mentor.
	Invalidate(ctx context.Context, mentorID string) error
}

const keyPrefix = "slots:"

func key(mentorID, date string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, mentorID, date)
}

func mentorPrefix(mentorID string) string {
	return fmt.Sprintf("%s%s:", keyPrefix, mentorID)
}
