package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
)

// Publisher writes score events to a Kafka topic, keyed by player so one
// player's events stay ordered within a partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewPublisher connects a synchronous producer to the configured brokers
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	if cfg.RetryAttempts > 0 {
		saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	return NewPublisherWithProducer(producer, cfg.Topic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// RecordEvent publishes one score event
func (p *Publisher) RecordEvent(ctx context.Context, event domain.ScoreEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding score event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.PlayerID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("outcome"), Value: []byte(event.Outcome)},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing score event: %w", err)
	}

	p.logger.Debug("score event published",
		"player_id", event.PlayerID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
