// Package events forwards attempt lifecycle events to a message bus with Watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"quiz-attempt-engine/internal/domain"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "quiz.attempt.events"

// Publisher implements app.EventPublisher over any Watermill publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// KafkaConfig holds the settings for the Kafka-backed publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Logger  *slog.Logger
}

// NewKafkaPublisher creates a Kafka publisher.
func NewKafkaPublisher(cfg KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, domain.NewConfigurationError("events.brokers", "kafka publisher needs at least one broker")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return New(pub, cfg.Topic, logger), nil
}

// NewGoChannelPublisher keeps events in process. The returned GoChannel can be
// subscribed to directly.
func NewGoChannelPublisher(topic string, logger *slog.Logger) (*Publisher, *gochannel.GoChannel) {
	if logger == nil {
		logger = slog.Default()
	}
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NewSlogLogger(logger))
	return New(ch, topic, logger), ch
}

// New wraps an existing Watermill publisher.
func New(pub message.Publisher, topic string, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{publisher: pub, topic: topic, logger: logger}
}

// Topic returns the topic events are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

func (p *Publisher) Publish(ctx context.Context, event domain.AttemptEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal attempt event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("attempt_id", event.AttemptID)
	msg.Metadata.Set("timestamp", event.At.Format(time.RFC3339))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Error("publish attempt event failed",
			"attempt_id", event.AttemptID,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("publish attempt event: %w", err)
	}
	p.logger.Debug("published attempt event",
		"attempt_id", event.AttemptID,
		"event_type", event.Type,
		"topic", p.topic)
	return nil
}

// Close releases the underlying publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}
