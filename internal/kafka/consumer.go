package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger.With("topic", topic),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume fetches messages until ctx is done. A message is committed only
// after handler returns nil; a handler error stops consumption so the
// message is redelivered on restart.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return fmt.Errorf("handle message at offset %d: %w", msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// DecodeJSON wraps a typed handler. Undecodable messages are logged and
// skipped rather than blocking the partition.
func DecodeJSON[T any](logger *slog.Logger, handle func(context.Context, T) error) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var v T
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			logger.Warn("skipping undecodable message", "offset", msg.Offset, "error", err)
			return nil
		}
		return handle(ctx, v)
	}
}
