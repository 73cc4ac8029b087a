package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// OrderChangedEvent is published by the orders API whenever orders are written.
type OrderChangedEvent struct {
	Change   string    `json:"change"`
	OrderIDs []string  `json:"order_ids"`
	At       time.Time `json:"at"`
}

// Refresher reloads every open dashboard view.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

type KafkaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	refresher     Refresher
	logger        *logrus.Logger
	topics        []string
}

type consumerGroupHandler struct {
	refresher Refresher
	logger    *logrus.Logger
}

func NewKafkaConsumer(brokers []string, groupID, topic string, refresher Refresher, logger *logrus.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Version = sarama.V2_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	if topic == "" {
		topic = DefaultOrderChangedTopic
	}
	return &KafkaConsumer{
		consumerGroup: consumerGroup,
		refresher:     refresher,
		logger:        logger,
		topics:        []string{topic},
	}, nil
}

// Start consumes until ctx is cancelled or the group fails.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	handler := &consumerGroupHandler{
		refresher: c.refresher,
		logger:    c.logger,
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Kafka consumer context cancelled")
			return nil
		default:
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				c.logger.WithError(err).Error("Error consuming from Kafka")
				return err
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.consumerGroup.Close()
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session setup")
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.logger.Info("Kafka consumer group session cleanup")
	return nil
}

// ConsumeClaim marks every message once handled. A failed refresh is not
// retried: the next order change reloads the views again.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			log := h.logger.WithFields(logrus.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
				"key":       string(message.Key),
			})
			log.Debug("Received Kafka message")

			if err := h.handleMessage(session.Context(), message); err != nil {
				log.WithError(err).Error("Failed to handle message")
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			h.logger.Info("Consumer group session context cancelled")
			return nil
		}
	}
}

func (h *consumerGroupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event OrderChangedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return fmt.Errorf("malformed order change event: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"change":    event.Change,
		"order_ids": event.OrderIDs,
	}).Info("Orders changed, refreshing dashboards")

	return h.refresher.RefreshAll(ctx)
}
