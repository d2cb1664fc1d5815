package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/domain"
)

// EventHandler processes score events read from the topic
type EventHandler interface {
	RecordEvent(ctx context.Context, event domain.ScoreEvent) error
}

// Consumer tails the score event topic through a consumer group
type Consumer struct {
	config        *config.KafkaConfig
	handler       EventHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan struct{}
}

// NewConsumer creates a new Kafka consumer. fromStart replays the topic
// from the oldest retained offset for a group without commits.
func NewConsumer(cfg *config.KafkaConfig, handler EventHandler, fromStart bool, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	if fromStart {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan struct{}),
	}, nil
}

// Start joins the group and returns once the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	ready := c.ready
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &groupHandler{handler: c.handler, logger: c.logger, ready: ready}
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}
			if c.ctx.Err() != nil {
				return
			}
			// Setup runs again after each rebalance.
			ready = nil
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop leaves the group and waits for in-flight events
func (c *Consumer) Stop() error {
	c.logger.Info("stopping kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	handler EventHandler
	logger  *slog.Logger
	ready   chan struct{}
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	if h.ready != nil {
		close(h.ready)
	}
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim hands each event to the handler in partition order.
// Undecodable messages are skipped; handler failures are logged and the
// offset still advances.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var event domain.ScoreEvent
			if err := json.Unmarshal(message.Value, &event); err != nil || event.PlayerID == "" {
				h.logger.Warn("skipping malformed score event",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			ctx, cancel := context.WithTimeout(session.Context(), 10*time.Second)
			if err := h.handler.RecordEvent(ctx, event); err != nil {
				h.logger.Error("failed to handle score event",
					"player_id", event.PlayerID,
					"offset", message.Offset,
					"error", err,
				)
			}
			cancel()
			session.MarkMessage(message, "")
		}
	}
}
