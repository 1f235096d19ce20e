package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/cache"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/provider"
	"github.com/Domenick1991/tripbooking/internal/repository"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dependencies holds the connections shared by the API and the worker.
type Dependencies struct {
	Pool     *pgxpool.Pool
	Cache    *cache.RedisCache
	Producer *kafka.Producer
	Registry *provider.Registry
	Service  *booking.BookingService
}

func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	registry, err := provider.NewSimulatedRegistry(cfg.Providers)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	redisCache := cache.NewRedisCache(cfg.Redis)
	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)

	service := booking.NewBookingService(
		repository.NewBookingRepository(pool),
		repository.NewPaymentRepository(pool),
		redisCache,
		producer,
		registry,
		booking.WithTopics(booking.Topics{
			Booking:       cfg.Kafka.BookingTopic,
			Notifications: cfg.Kafka.NotificationsTopic,
			Payments:      cfg.Kafka.PaymentsTopic,
		}),
		booking.WithResultTTL(cfg.Booking.ResultCacheTTL()),
		booking.WithTripLockTTL(cfg.Booking.TripLockTTL()),
		booking.WithProviderTimeout(cfg.Booking.ProviderTimeout()),
		booking.WithMaxParallel(cfg.Booking.MaxParallelComponents),
		booking.WithStaleAfter(cfg.Booking.StaleAfter()),
		booking.WithLogger(logger),
	)

	return &Dependencies{
		Pool:     pool,
		Cache:    redisCache,
		Producer: producer,
		Registry: registry,
		Service:  service,
	}, nil
}

func (d *Dependencies) Probes() map[string]Probe {
	return map[string]Probe{
		"postgres": d.Pool.Ping,
		"redis":    d.Cache.Ping,
		"kafka":    d.Producer.CheckConnection,
	}
}

func (d *Dependencies) Close(logger *slog.Logger) {
	if err := d.Producer.Close(); err != nil {
		logger.Warn("close kafka producer", "error", err)
	}
	if err := d.Cache.Close(); err != nil {
		logger.Warn("close redis", "error", err)
	}
	d.Pool.Close()
}

// NewLogger builds the process logger from the log section of the config.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
