package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheWithClient(client), server
}

func snapshot(status domain.BookingStatus) *domain.BookingAggregate {
	return &domain.BookingAggregate{ID: "booking_7_1", TripID: 7, UserID: "user-1", Status: status}
}

func TestNewRedisCache(t *testing.T) {
	c := NewRedisCache(config.RedisConfig{Addr: "localhost:6379"})
	assert.NotNil(t, c)
	assert.NoError(t, c.Close())
}

func TestSnapshotRoundTripKeepsOwner(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	booking := &domain.BookingAggregate{
		ID:             "booking_7_1700000000000",
		TripID:         7,
		UserID:         "user-1",
		Status:         domain.BookingStatusPartial,
		TotalCostCents: 35000,
		PaymentStatus:  domain.PaymentStatusPending,
		CreatedAt:      created,
		UpdatedAt:      created,
		Components: []domain.ComponentBooking{
			{BookingID: "booking_7_1700000000000", ComponentType: domain.ComponentFlight, Status: domain.ComponentStatusConfirmed, PriceCents: 35000},
			{BookingID: "booking_7_1700000000000", ComponentType: domain.ComponentHotel, Status: domain.ComponentStatusFailed, PriceCents: 18000},
		},
	}

	data, err := encodeSnapshot(booking)
	require.NoError(t, err)

	decoded, err := decodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, booking, decoded)
}

func TestEncodeSnapshot_RequiresOwner(t *testing.T) {
	_, err := encodeSnapshot(&domain.BookingAggregate{ID: "booking_1_1"})
	assert.Error(t, err)

	_, err = encodeSnapshot(nil)
	assert.Error(t, err)
}

func TestDecodeSnapshot_MissingOwnerDecodesEmpty(t *testing.T) {
	decoded, err := decodeSnapshot([]byte(`{"id":"booking_1_1","status":"confirmed"}`))
	require.NoError(t, err)
	assert.Empty(t, decoded.UserID)

	_, err = decodeSnapshot([]byte(`not json`))
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "cache:booking:{booking_1_2}", bookingKey("booking_1_2"))
	assert.Equal(t, "cache:booking:{booking_1_2}:gen", generationKey("booking_1_2"))
	assert.Equal(t, "lock:trip:42", tripLockKey(42))
}

func TestRedisCache_SetBookingHonoursGeneration(t *testing.T) {
	c, server := newTestCache(t)
	ctx := context.Background()

	cached, generation, err := c.GetBooking(ctx, "booking_7_1")
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.Zero(t, generation)

	stored, err := c.SetBooking(ctx, snapshot(domain.BookingStatusConfirmed), generation, time.Hour)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, time.Hour, server.TTL(bookingKey("booking_7_1")))

	// A second writer that observed the same generation lost the race.
	stored, err = c.SetBooking(ctx, snapshot(domain.BookingStatusProcessing), generation, time.Hour)
	require.NoError(t, err)
	assert.False(t, stored)

	cached, generation, err = c.GetBooking(ctx, "booking_7_1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, domain.BookingStatusConfirmed, cached.Status)
	assert.Equal(t, int64(1), generation)
}

func TestRedisCache_DeleteBlocksEarlierReaders(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// A reader observes the generation, then the booking is cancelled and
	// the writer refreshes the entry before the reader is done.
	_, readerGeneration, err := c.GetBooking(ctx, "booking_7_1")
	require.NoError(t, err)

	_, writerGeneration, err := c.GetBooking(ctx, "booking_7_1")
	require.NoError(t, err)
	stored, err := c.SetBooking(ctx, snapshot(domain.BookingStatusCancelled), writerGeneration, time.Hour)
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = c.SetBooking(ctx, snapshot(domain.BookingStatusConfirmed), readerGeneration, time.Hour)
	require.NoError(t, err)
	assert.False(t, stored)

	cached, _, err := c.GetBooking(ctx, "booking_7_1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cached.Status)

	require.NoError(t, c.DeleteBooking(ctx, "booking_7_1"))
	cached, generation, err := c.GetBooking(ctx, "booking_7_1")
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.Equal(t, int64(2), generation)

	stored, err = c.SetBooking(ctx, snapshot(domain.BookingStatusConfirmed), writerGeneration+1, time.Hour)
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestRedisCache_GetBookingRejectsCorruptEntries(t *testing.T) {
	c, server := newTestCache(t)
	require.NoError(t, server.Set(bookingKey("booking_7_1"), "not json"))

	_, _, err := c.GetBooking(context.Background(), "booking_7_1")
	assert.Error(t, err)
}

func TestRedisCache_TripLockIsReleasedOnlyByOwner(t *testing.T) {
	c, server := newTestCache(t)
	ctx := context.Background()

	locked, err := c.AcquireTripLock(ctx, 7, "booking_7_1", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = c.AcquireTripLock(ctx, 7, "booking_7_2", 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, locked)

	// The first submission outlived its lock and a second one took it over.
	server.FastForward(3 * time.Minute)
	locked, err = c.AcquireTripLock(ctx, 7, "booking_7_2", 2*time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, c.ReleaseTripLock(ctx, 7, "booking_7_1"))
	held, err := server.Get(tripLockKey(7))
	require.NoError(t, err)
	assert.Equal(t, "booking_7_2", held)

	require.NoError(t, c.ReleaseTripLock(ctx, 7, "booking_7_2"))
	assert.False(t, server.Exists(tripLockKey(7)))
}
