// Package kafka publishes entities to one topic per model, keyed by the
// entity key so that compacted topics keep the latest version.
package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/graphsink/pkg/json"
	"github.com/ajitpratap0/graphsink/pkg/sink"
)

func init() {
	sink.Register("kafka", New)
}

// Sink sends every batch with a sync producer.
type Sink struct {
	producer    sarama.SyncProducer
	topicPrefix string
	logger      *zap.Logger
}

// New creates a Kafka sink. Settings: brokers (required), topic_prefix,
// client_id, acks, compression, idempotent.
func New(_ context.Context, settings sink.Settings, logger *zap.Logger) (sink.Sink, error) {
	brokers := settings.Strings("brokers")
	if len(brokers) == 0 {
		return nil, fmt.Errorf("sink setting %q is required", "brokers")
	}

	producer, err := sarama.NewSyncProducer(brokers, Config(settings))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return &Sink{
		producer:    producer,
		topicPrefix: settings.String("topic_prefix", "graphsink."),
		logger:      logger,
	}, nil
}

// Config builds the producer configuration from settings.
func Config(settings sink.Settings) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = settings.String("client_id", "graphsink")

	switch settings.String("acks", "all") {
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}

	switch settings.String("compression", "") {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Retry.Max = settings.Int("retries", 3)

	if settings.Bool("idempotent", false) {
		config.Version = sarama.V2_1_0_0
		config.Producer.Idempotent = true
		config.Producer.RequiredAcks = sarama.WaitForAll
		config.Net.MaxOpenRequests = 1
	}
	return config
}

// Messages builds the producer messages of a batch.
func Messages(topicPrefix string, b *sink.Batch) ([]*sarama.ProducerMessage, error) {
	messages := make([]*sarama.ProducerMessage, 0, b.Len())
	for _, mb := range b.Models {
		for _, rec := range mb.Records {
			value, err := json.MarshalNoEscape(sink.Entity{Model: mb.Model, Key: rec.Key, Origin: b.Origin, Record: rec.Record})
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s record: %w", mb.Model, err)
			}
			messages = append(messages, &sarama.ProducerMessage{
				Topic: topicPrefix + mb.Model,
				Key:   sarama.StringEncoder(rec.Key),
				Value: sarama.ByteEncoder(value),
				Headers: []sarama.RecordHeader{
					{Key: []byte("model"), Value: []byte(mb.Model)},
					{Key: []byte("batch_id"), Value: []byte(b.ID)},
				},
			})
		}
	}
	return messages, nil
}

func (s *Sink) Write(ctx context.Context, b *sink.Batch) error {
	messages, err := Messages(s.topicPrefix, b)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.producer.SendMessages(messages) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send %d messages: %w", len(messages), err)
		}
		s.logger.Debug("messages sent", zap.Int("messages", len(messages)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) Close(context.Context) error {
	return s.producer.Close()
}
