package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
http:
  address: ":8080"
kafka:
  brokers: [localhost:9092]
  booking_topic: trip-bookings
booking:
  provider_timeout_seconds: 5
providers:
  allowed:
    flight: [amadeus]
    hotel: [expedia, booking_com]
  simulated:
    failure_rate: 0.1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("KAFKA_BOOKING_TOPIC", "bookings-override")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Address)
	assert.Equal(t, "bookings-override", cfg.Kafka.BookingTopic)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Booking.ProviderTimeout())
	assert.Equal(t, time.Hour, cfg.Booking.ResultCacheTTL())
	assert.Equal(t, 2*time.Minute, cfg.Booking.TripLockTTL())
	assert.Equal(t, 15*time.Minute, cfg.Booking.StaleAfter())
	assert.Equal(t, 5*time.Minute, cfg.Worker.StaleSweepInterval())

	allowed, err := cfg.Providers.AllowedByType()
	require.NoError(t, err)
	assert.Equal(t, []string{"expedia", "booking_com"}, allowed[domain.ComponentHotel])
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "providers:\n  allowed:\n    cruise: [carnival]\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = LoadConfig(writeConfig(t, "providers:\n  allowed:\n    car: []\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "providers:\n  simulated:\n    failure_rate: 1.5\n"))
	assert.Error(t, err)
}
