package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka notifier.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaNotifier publishes alerts to a topic keyed by symbol, so the signals
// of one symbol stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
}

// NewKafkaNotifier creates a synchronous, hash-balanced producer.
func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaNotifier{writer: w, topic: cfg.Topic}, nil
}

func (k *KafkaNotifier) Send(ctx context.Context, alert Alert) error {
	v, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(alert.Symbol),
		Value: v,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "level", Value: []byte(alert.Level)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
