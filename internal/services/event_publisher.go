package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaEventPublisher publishes session outcome events keyed by orderId
type KafkaEventPublisher struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewKafkaEventPublisher creates a publisher writing to topic on brokers
func NewKafkaEventPublisher(topic string, logger *logrus.Logger, brokers ...string) *KafkaEventPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &KafkaEventPublisher{writer: w, logger: logger}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event *SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write session event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"order_id":   event.OrderID,
		"event_type": event.Type,
	}).Debug("Session event published")
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// LogEventPublisher only logs events; used when no brokers are configured
type LogEventPublisher struct {
	logger *logrus.Logger
}

func NewLogEventPublisher(logger *logrus.Logger) *LogEventPublisher {
	return &LogEventPublisher{logger: logger}
}

func (p *LogEventPublisher) Publish(_ context.Context, event *SessionEvent) error {
	p.logger.WithFields(logrus.Fields{
		"order_id":   event.OrderID,
		"event_type": event.Type,
		"outcome":    event.Outcome,
	}).Info("Session event")
	return nil
}
