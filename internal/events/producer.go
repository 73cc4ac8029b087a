package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAuditTopic        = "dashboard.actions"
	DefaultOrderChangedTopic = "order.changed"
)

// DashboardActionEvent records a write a dashboard user made through the orders API.
type DashboardActionEvent struct {
	Action    string    `json:"action"`
	OrderIDs  []string  `json:"order_ids"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers []string, topic string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit producer: %w", err)
	}

	return NewKafkaProducerWith(producer, topic, logger), nil
}

// NewKafkaProducerWith wraps an existing producer, e.g. a sarama mock.
func NewKafkaProducerWith(producer sarama.SyncProducer, topic string, logger *logrus.Logger) *KafkaProducer {
	if topic == "" {
		topic = DefaultAuditTopic
	}
	return &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (p *KafkaProducer) PublishDashboardAction(action string, orderIDs []string, sessionID string) error {
	event := DashboardActionEvent{
		Action:    action,
		OrderIDs:  orderIDs,
		SessionID: sessionID,
		At:        time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(sessionID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", p.topic).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":      p.topic,
		"partition":  partition,
		"offset":     offset,
		"action":     action,
		"session_id": sessionID,
	}).Info("Dashboard action published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
