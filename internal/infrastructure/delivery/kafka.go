package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/paysettle/paysettle/internal/application/checkout"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// Message is the delivery trigger consumed by the fulfilment service.
type Message struct {
	EventID   string             `json:"event_id"`
	OrderID   uint               `json:"order_id"`
	OrderNo   string             `json:"order_no"`
	Email     string             `json:"email"`
	Items     []ordervo.LineItem `json:"items"`
	Fields    map[string]string  `json:"custom_fields,omitempty"`
	TxID      string             `json:"tx_id,omitempty"`
	SettledAt time.Time          `json:"settled_at"`
}

// NewProducerConfig returns the producer settings delivery relies on: the
// broker acknowledges only once every in-sync replica has the message.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	return config
}

// NewSyncProducer connects to brokers with NewProducerConfig.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaDeliverer publishes delivery triggers keyed by order number, so every
// message for one order lands on the same partition.
type KafkaDeliverer struct {
	producer sarama.SyncProducer
	topic    string
	logger   logger.Interface
}

func NewKafkaDeliverer(producer sarama.SyncProducer, topic string, log logger.Interface) *KafkaDeliverer {
	return &KafkaDeliverer{
		producer: producer,
		topic:    topic,
		logger:   log,
	}
}

var _ checkout.Deliverer = (*KafkaDeliverer)(nil)

func (d *KafkaDeliverer) Deliver(ctx context.Context, req checkout.DeliveryRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(newMessage(req))
	if err != nil {
		return fmt.Errorf("failed to marshal delivery message: %w", err)
	}

	messageID := uuid.NewString()
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(req.OrderNo),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_id"), Value: []byte(messageID)},
			{Key: []byte("event_id"), Value: []byte(req.EventID)},
		},
	}

	partition, offset, err := d.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send delivery message: %w", err)
	}

	d.logger.Infow("delivery triggered",
		"order_no", req.OrderNo,
		"event_id", req.EventID,
		"message_id", messageID,
		"topic", d.topic,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (d *KafkaDeliverer) Close() error {
	return d.producer.Close()
}

func newMessage(req checkout.DeliveryRequest) Message {
	return Message{
		EventID:   req.EventID,
		OrderID:   req.OrderID,
		OrderNo:   req.OrderNo,
		Email:     req.Email,
		Items:     req.Items,
		Fields:    req.Fields,
		TxID:      req.TxID,
		SettledAt: req.SettledAt.UTC(),
	}
}
