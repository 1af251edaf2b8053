// Package events publishes order lifecycle events to Kafka. Used by the
// mock backend so downstream tooling can observe order flow during demos.
package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	OrderCreatedTopic       = "order.created"
	OrderStatusChangedTopic = "order.status-changed"
)

type OrderCreatedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     int       `json:"order_id"`
	User        string    `json:"user"`
	TotalAmount string    `json:"total_amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	EventTime   time.Time `json:"event_time"`
}

type OrderStatusChangedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   int       `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	EventTime time.Time `json:"event_time"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer([]string{brokers}, config)
	if err != nil {
		return nil, err
	}

	return &KafkaProducer{
		producer: producer,
		logger:   logger,
	}, nil
}

func (p *KafkaProducer) PublishOrderCreated(event OrderCreatedEvent) error {
	event.EventID = uuid.NewString()
	event.EventTime = time.Now()
	return p.publish(OrderCreatedTopic, event.OrderID, event)
}

func (p *KafkaProducer) PublishStatusChanged(event OrderStatusChangedEvent) error {
	event.EventID = uuid.NewString()
	event.EventTime = time.Now()
	return p.publish(OrderStatusChangedTopic, event.OrderID, event)
}

func (p *KafkaProducer) publish(topic string, orderID int, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(strconv.Itoa(orderID)),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  orderID,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
