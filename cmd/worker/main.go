package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/tripbooking/config"
	"github.com/Domenick1991/tripbooking/internal/bootstrap"
	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/email"
	"github.com/Domenick1991/tripbooking/internal/kafka"
	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := bootstrap.NewLogger(cfg.Log).With("component", "worker")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("wire dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close(logger)

	notifications := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer notifications.Close()
	paymentEvents := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.PaymentEventsTopic, logger)
	defer paymentEvents.Close()

	emailSender := email.NewSender(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return notifications.Consume(gctx, kafka.DecodeJSON(logger, emailSender.Send))
	})
	g.Go(func() error {
		return paymentEvents.Consume(gctx, kafka.DecodeJSON(logger, paymentHandler(deps.Service, logger)))
	})
	g.Go(func() error {
		sweepStale(gctx, deps.Service, cfg.Worker.StaleSweepInterval(), logger)
		return nil
	})

	logger.Info("worker started")
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// paymentHandler applies payment outcomes. Events that can never apply are
// logged and committed so they do not block the partition.
func paymentHandler(service booking.BookingUseCase, logger *slog.Logger) func(context.Context, kafka.PaymentEvent) error {
	return func(ctx context.Context, event kafka.PaymentEvent) error {
		err := service.ApplyPaymentEvent(ctx, event)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			logger.Warn("skipping payment event", "booking_id", event.BookingID, "type", event.Type, "error", err)
			return nil
		}
		return err
	}
}

func sweepStale(ctx context.Context, service booking.BookingUseCase, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := service.ReapStaleComponents(ctx)
			if err != nil {
				logger.Error("stale component sweep failed", "error", err)
				continue
			}
			if len(reaped) > 0 {
				logger.Info("stale components failed", "count", len(reaped))
			}
		}
	}
}
