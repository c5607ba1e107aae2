package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysettle/paysettle/internal/domain/order"
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

func startBus(t *testing.T) (*RedisOrderStatusBus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	bus := NewRedisOrderStatusBus(client, nopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		client.Close()
		mr.Close()
	})

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(OrderStatusChannel)[OrderStatusChannel] == 1
	}, 2*time.Second, 5*time.Millisecond)
	return bus, mr
}

func TestRedisOrderStatusBus_DeliversToOrderListeners(t *testing.T) {
	bus, _ := startBus(t)
	ctx := context.Background()

	events, release, err := bus.Subscribe(ctx, 42)
	require.NoError(t, err)
	defer release()
	other, releaseOther, err := bus.Subscribe(ctx, 7)
	require.NoError(t, err)
	defer releaseOther()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(ctx, order.StatusChangedEvent{
		OrderID:    42,
		OrderNo:    "ORD_abc",
		Status:     ordervo.OrderStatusCompleted,
		TxID:       "0xfeed",
		OccurredAt: at,
	}))

	select {
	case ev := <-events:
		assert.Equal(t, uint(42), ev.OrderID)
		assert.Equal(t, "ORD_abc", ev.OrderNo)
		assert.Equal(t, ordervo.OrderStatusCompleted, ev.Status)
		assert.Equal(t, "0xfeed", ev.TxID)
		assert.True(t, ev.OccurredAt.Equal(at))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-other:
		t.Fatalf("unexpected event for order 7: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisOrderStatusBus_WireFormat(t *testing.T) {
	bus, mr := startBus(t)
	ctx := context.Background()

	events, release, err := bus.Subscribe(ctx, 9)
	require.NoError(t, err)
	defer release()

	mr.Publish(OrderStatusChannel, `{"order_id":9,"order_no":"ORD_x","status":"expired","at":"2025-03-01T12:00:00Z"}`)
	mr.Publish(OrderStatusChannel, `not json`)

	select {
	case ev := <-events:
		assert.Equal(t, ordervo.OrderStatusExpired, ev.Status)
		assert.Empty(t, ev.TxID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisOrderStatusBus_ReleaseClosesChannel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisOrderStatusBus(client, nopLogger{})
	events, release, err := bus.Subscribe(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.ListenerCount())

	release()
	release()
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, bus.ListenerCount())
}

func TestRedisOrderStatusBus_SlowListenerDoesNotBlock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisOrderStatusBus(client, nopLogger{})
	events, release, err := bus.Subscribe(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	for i := 0; i < listenerBuffer+5; i++ {
		bus.dispatch(order.StatusChangedEvent{OrderID: 1, Status: ordervo.OrderStatusProcessing})
	}
	assert.Len(t, events, listenerBuffer)
}
