package slotcache

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"mentorbuddy-backend/internal/mentorapi"
)

// Memory is an in-process cache backed by go-cache.
type Memory struct {
	store *cache.Cache
	ttl   time.Duration
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an in-memory cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (m *Memory) Get(_ context.Context, mentorID, date string) ([]mentorapi.SlotDay, bool, error) {
	v, found := m.store.Get(key(mentorID, date))
	if !found {
		return nil, false, nil
	}
	return v.([]mentorapi.SlotDay), true, nil
}

func (m *Memory) Set(_ context.Context, mentorID, date string, days []mentorapi.SlotDay) error {
	m.store.Set(key(mentorID, date), days, m.ttl)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, mentorID string) error {
	prefix := mentorPrefix(mentorID)
	for k := range m.store.Items() {
		if strings.HasPrefix(k, prefix) {
			m.store.Delete(k)
		}
	}
	return nil
}
