package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smec-portal/internal/logger"
	"smec-portal/internal/models"

	"github.com/segmentio/kafka-go"
)

const TopicRegistrationAttempted = "smec.registration.attempted"

// RegistrationAttempted is published when a team starts a purchase.
type RegistrationAttempted struct {
	EventID     string    `json:"eventId"`
	EventTitle  string    `json:"eventTitle"`
	Category    string    `json:"category"`
	TeamSize    int       `json:"teamSize"`
	Remaining   int       `json:"remaining"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Logger *logger.Logger
	now    func() time.Time
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.LogKafka("publish failed", topic, err.Error())
			}
		},
	}
	return &Producer{Writer: writer, Logger: log, now: time.Now}
}

// PublishRegistrationAttempted streams the attempt keyed by event id.
func (p *Producer) PublishRegistrationAttempted(ctx context.Context, event models.Event) error {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	msg := RegistrationAttempted{
		EventID:     event.ID,
		EventTitle:  event.Title,
		Category:    event.Category,
		TeamSize:    event.TeamSize,
		Remaining:   event.Remaining(),
		AttemptedAt: now().UTC(),
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode registration attempt: %w", err)
	}

	p.Logger.LogKafka("publish", TopicRegistrationAttempted, string(msgBytes))

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("failed to publish registration attempt: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// PurchaseCue plays a purchase cue by publishing a registration attempt.
type PurchaseCue struct {
	Producer *Producer
}

func (c PurchaseCue) Play(ctx context.Context, event models.Event) error {
	return c.Producer.PublishRegistrationAttempted(ctx, event)
}
