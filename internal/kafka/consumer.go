package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"smec-portal/internal/logger"

	"github.com/segmentio/kafka-go"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer follows registration attempts, e.g. for an organizer's live feed.
type Consumer struct {
	reader MessageReader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

func NewConsumerWithReader(reader MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, logger: log}
}

// Start hands every decodable attempt to handler until ctx is done.
// Undecodable messages are logged and skipped.
func (c *Consumer) Start(ctx context.Context, handler func(RegistrationAttempted)) error {
	c.logger.LogKafka("consume", TopicRegistrationAttempted, "consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		var attempt RegistrationAttempted
		if err := json.Unmarshal(msg.Value, &attempt); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message: %v", err))
			continue
		}
		handler(attempt)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
