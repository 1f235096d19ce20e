package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache holds short-lived booking snapshots and per-trip submission
// locks. Nothing in it is authoritative.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
	}
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// minGenerationTTL keeps a booking's generation counter alive at least as
// long as any snapshot written under it.
const minGenerationTTL = 24 * time.Hour

// setIfGeneration writes the snapshot only when the booking's generation
// still equals the one the caller observed, then bumps the generation.
var setIfGeneration = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return 1
`)

var deleteAndBump = redis.NewScript(`
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return redis.call('DEL', KEYS[1])
`)

var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// GetBooking returns the cached snapshot, or nil on a miss, together with
// the booking's current generation. Pass the generation to SetBooking.
func (c *RedisCache) GetBooking(ctx context.Context, bookingID string) (*domain.BookingAggregate, int64, error) {
	values, err := c.client.MGet(ctx, bookingKey(bookingID), generationKey(bookingID)).Result()
	if err != nil {
		return nil, 0, err
	}

	var generation int64
	if raw, ok := values[1].(string); ok {
		generation, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("cache: parse generation of %s: %w", bookingID, err)
		}
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}
	booking, err := decodeSnapshot([]byte(raw))
	if err != nil {
		return nil, 0, err
	}
	return booking, generation, nil
}

// SetBooking stores the snapshot if no write or delete happened since the
// caller observed generation. It reports whether the snapshot was stored.
func (c *RedisCache) SetBooking(ctx context.Context, booking *domain.BookingAggregate, generation int64, ttl time.Duration) (bool, error) {
	payload, err := encodeSnapshot(booking)
	if err != nil {
		return false, err
	}
	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{bookingKey(booking.ID), generationKey(booking.ID)},
		generation, payload, ttl.Milliseconds(), max(ttl, minGenerationTTL).Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// DeleteBooking drops the snapshot and bumps the generation, so readers that
// loaded the store before the delete cannot write their view back.
func (c *RedisCache) DeleteBooking(ctx context.Context, bookingID string) error {
	return deleteAndBump.Run(ctx, c.client,
		[]string{bookingKey(bookingID), generationKey(bookingID)},
		minGenerationTTL.Milliseconds(),
	).Err()
}

// AcquireTripLock takes the trip's submission lock for token.
func (c *RedisCache) AcquireTripLock(ctx context.Context, tripID int64, token string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, tripLockKey(tripID), token, ttl).Result()
}

// ReleaseTripLock drops the lock only while token still holds it.
func (c *RedisCache) ReleaseTripLock(ctx context.Context, tripID int64, token string) error {
	return releaseIfOwner.Run(ctx, c.client, []string{tripLockKey(tripID)}, token).Err()
}

// encodeSnapshot refuses snapshots without an owner so that every entry
// written carries the metadata readers check.
func encodeSnapshot(booking *domain.BookingAggregate) ([]byte, error) {
	if booking == nil || booking.ID == "" {
		return nil, errors.New("cache: booking snapshot without id")
	}
	if booking.UserID == "" {
		return nil, fmt.Errorf("cache: booking %s snapshot without owner", booking.ID)
	}
	return json.Marshal(booking)
}

func decodeSnapshot(data []byte) (*domain.BookingAggregate, error) {
	var booking domain.BookingAggregate
	if err := json.Unmarshal(data, &booking); err != nil {
		return nil, fmt.Errorf("cache: decode booking snapshot: %w", err)
	}
	return &booking, nil
}

// The snapshot and its generation share a hash tag so the scripts touch a
// single slot.
func bookingKey(bookingID string) string {
	return "cache:booking:{" + bookingID + "}"
}

func generationKey(bookingID string) string {
	return "cache:booking:{" + bookingID + "}:gen"
}

func tripLockKey(tripID int64) string {
	return fmt.Sprintf("lock:trip:%d", tripID)
}
