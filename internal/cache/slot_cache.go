package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carepoint/slot-booking-service/internal/booking"
)

const slotListKey = "cache:slots:all"

// SlotCache is a TTL cache for the public slot listing, kept out of every
// write path. All failures degrade to a cache miss; the database stays the
// source of truth.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewSlotCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *SlotCache {
	return &SlotCache{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "slot_cache").Logger(),
	}
}

func (c *SlotCache) GetSlots(ctx context.Context) ([]booking.Slot, bool) {
	raw, err := c.client.Get(ctx, slotListKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("slot cache read failed")
		}
		return nil, false
	}

	var slots []booking.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.log.Warn().Err(err).Msg("slot cache entry corrupt, dropping")
		_ = c.client.Del(ctx, slotListKey).Err()
		return nil, false
	}

	return slots, true
}

func (c *SlotCache) SetSlots(ctx context.Context, slots []booking.Slot) {
	raw, err := json.Marshal(slots)
	if err != nil {
		c.log.Warn().Err(err).Msg("marshal slot listing")
		return
	}

	if err := c.client.Set(ctx, slotListKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("slot cache write failed")
	}
}

func (c *SlotCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, slotListKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("slot cache invalidate failed")
	}
}
