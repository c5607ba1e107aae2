package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysettle/paysettle/internal/application/checkout"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

type nopLogger struct{}

func (nopLogger) Debugw(string, ...interface{}) {}
func (nopLogger) Infow(string, ...interface{})  {}
func (nopLogger) Warnw(string, ...interface{})  {}
func (nopLogger) Errorw(string, ...interface{}) {}

func (l nopLogger) With(...any) logger.Interface  { return l }
func (l nopLogger) Named(string) logger.Interface { return l }

func testRequest() checkout.DeliveryRequest {
	return checkout.DeliveryRequest{
		EventID: "delivery:ORD_abc123",
		OrderID: 42,
		OrderNo: "ORD_abc123",
		Email:   "buyer@example.com",
		Items: []ordervo.LineItem{
			{ProductID: "ebook", Quantity: 1, UnitPriceCents: 1000},
		},
		Fields:    map[string]string{"discord": "buyer#1"},
		TxID:      "0xfeed",
		SettledAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewProducerConfig(t *testing.T) {
	cfg := NewProducerConfig()
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 5, cfg.Producer.Retry.Max)
	assert.True(t, cfg.Producer.Return.Successes)
}

func TestKafkaDeliverer_Deliver(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.EventID != "delivery:ORD_abc123" || msg.OrderID != 42 || msg.TxID != "0xfeed" {
			return errors.New("unexpected delivery payload")
		}
		if len(msg.Items) != 1 || msg.Items[0].ProductID != "ebook" {
			return errors.New("items missing from payload")
		}
		return nil
	})

	d := NewKafkaDeliverer(producer, "orders.delivery", nopLogger{})
	require.NoError(t, d.Deliver(context.Background(), testRequest()))
	require.NoError(t, d.Close())
}

func TestKafkaDeliverer_SendFails(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrNotEnoughReplicas)

	d := NewKafkaDeliverer(producer, "orders.delivery", nopLogger{})
	err := d.Deliver(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrNotEnoughReplicas)
	require.NoError(t, d.Close())
}

func TestKafkaDeliverer_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	d := NewKafkaDeliverer(producer, "orders.delivery", nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Deliver(ctx, testRequest()), context.Canceled)
	require.NoError(t, d.Close())
}

func TestLogDeliverer(t *testing.T) {
	assert.NoError(t, NewLogDeliverer(nopLogger{}).Deliver(context.Background(), testRequest()))
}
