package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOptions configure the Kafka channel.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// KafkaNotifier publishes one message per forecast, keyed by symbol.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// NewKafkaNotifier builds a notifier on top of a kafka.Writer.
func NewKafkaNotifier(opts KafkaOptions, logger zerolog.Logger) (*KafkaNotifier, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if opts.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 50 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(opts.RequiredAcks),
		WriteTimeout: opts.WriteTimeout,
		BatchTimeout: opts.BatchTimeout,
	}
	return newKafkaNotifier(writer, opts.Topic, logger), nil
}

func newKafkaNotifier(w messageWriter, topic string, logger zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: w,
		topic:  topic,
		logger: logger.With().Str("component", "alert_kafka").Logger(),
	}
}

// Notify writes the JSON payload to the topic.
func (n *KafkaNotifier) Notify(ctx context.Context, note Notification) error {
	value, err := encodePayload(note)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(note.Result.Symbol),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "cycle_id", Value: []byte(note.CycleID)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}

	n.logger.Debug().
		Str("cycle_id", note.CycleID).
		Str("symbol", note.Result.Symbol).
		Str("topic", n.topic).
		Msg("forecast published")
	return nil
}

// Name identifies the channel in logs and metrics.
func (n *KafkaNotifier) Name() string { return "kafka" }

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
