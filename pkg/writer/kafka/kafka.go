// Package kafka implements a Writer that publishes transactions to a Kafka topic so
// that dashboards can react to new transactions as they arrive.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// DefaultTopic receives transactions when no topic is configured.
const DefaultTopic = "sms.transactions"

// EventNewTransaction is set as the event header on every published message.
const EventNewTransaction = "newTransaction"

// Config holds configuration for the Kafka writer.
type Config struct {
	Brokers []string
	// Topic defaults to DefaultTopic.
	Topic string
}

// Writer publishes one message per transaction, keyed by message ID.
type Writer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// New connects a synchronous producer to the configured brokers.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	return NewWithProducer(producer, cfg.Topic, logger), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Writer{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_writer", "topic", topic),
	}
}

// Write publishes transactions until in is closed or ctx is canceled.
// A transaction is acknowledged once the broker confirmed it.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case txn, ok := <-in:
			if !ok {
				return nil
			}
			if err := w.Publish(txn); err != nil {
				w.logger.Error("failed to publish transaction", "message_id", txn.MessageID, "error", err)
				continue
			}
			if txn.MessageID == "" {
				continue
			}
			select {
			case ackChan <- txn.MessageID:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Publish sends one transaction.
func (w *Writer) Publish(txn *api.Transaction) error {
	data, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("marshaling transaction: %w", err)
	}

	partition, offset, err := w.producer.SendMessage(&sarama.ProducerMessage{
		Topic: w.topic,
		Key:   sarama.StringEncoder(txn.MessageID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(EventNewTransaction)},
		},
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	w.logger.Debug("published transaction", "message_id", txn.MessageID, "partition", partition, "offset", offset)
	return nil
}

// Close closes the producer.
func (w *Writer) Close() error {
	if err := w.producer.Close(); err != nil {
		return fmt.Errorf("closing kafka producer: %w", err)
	}
	return nil
}
