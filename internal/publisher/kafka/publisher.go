// Package kafka implements a Kafka-backed completion event publisher.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of kafka.Writer used by the publisher.
// It allows for easy mocking in unit tests.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config captures the parameters for the Kafka publisher.
type Config struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
}

// Publisher writes completion events to per-topic Kafka topics.
type Publisher struct {
	writer MessageWriter
}

// New creates a Publisher connected to the configured brokers.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(cfg.Brokers...),
		Balancer: &kafkago.LeastBytes{},
	}
	return &Publisher{writer: writer}, nil
}

// NewWithWriter constructs a Publisher from an existing writer (primarily for testing).
func NewWithWriter(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Publish marshals the payload to JSON and writes it to the topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	return topic, nil
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
