package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mentorbuddy-backend/internal/mentorapi"
)

const scanCount = 100

// Redis shares slot lists between backend instances.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Cache = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, mentorID, date string) ([]mentorapi.SlotDay, bool, error) {
	data, err := r.client.Get(ctx, key(mentorID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached slots: %w", err)
	}

	var days []mentorapi.SlotDay
	if err := json.Unmarshal(data, &days); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached slots: %w", err)
	}
	return days, true, nil
}

func (r *Redis) Set(ctx context.Context, mentorID, date string, days []mentorapi.SlotDay) error {
	data, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to encode slots: %w", err)
	}
	return r.client.Set(ctx, key(mentorID, date), data, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, mentorID string) error {
	var cursor uint64
	match := mentorPrefix(mentorID) + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached slots: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cached slots: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
