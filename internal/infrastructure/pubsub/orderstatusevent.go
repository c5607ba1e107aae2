package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/domain/order"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// OrderStatusChannel carries every applied order transition across instances.
const OrderStatusChannel = "paysettle:order_status"

// listenerBuffer bounds how far a slow listener may lag before events are dropped.
// Dropped events are recovered by the poll path.
const listenerBuffer = 8

// RedisOrderStatusBus publishes order transitions on Redis Pub/Sub and fans them
// out to in-process listeners keyed by order id. One Redis subscription serves
// every listener.
type RedisOrderStatusBus struct {
	client *redis.Client
	logger logger.Interface

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint]map[uint64]chan order.StatusChangedEvent
}

// NewRedisOrderStatusBus creates a new Redis-based order status bus
func NewRedisOrderStatusBus(client *redis.Client, logger logger.Interface) *RedisOrderStatusBus {
	return &RedisOrderStatusBus{
		client:    client,
		logger:    logger,
		listeners: make(map[uint]map[uint64]chan order.StatusChangedEvent),
	}
}

var (
	_ checkout.StatusPublisher = (*RedisOrderStatusBus)(nil)
	_ checkout.StatusFeed      = (*RedisOrderStatusBus)(nil)
)

// Publish broadcasts an applied transition.
func (b *RedisOrderStatusBus) Publish(ctx context.Context, event order.StatusChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, OrderStatusChannel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish order status event",
			"order_id", event.OrderID,
			"status", event.Status,
			"error", err,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debugw("order status event published",
		"order_id", event.OrderID,
		"order_no", event.OrderNo,
		"status", event.Status,
	)
	return nil
}

// Subscribe registers a listener for one order. The channel is closed by the
// returned release function.
func (b *RedisOrderStatusBus) Subscribe(ctx context.Context, orderID uint) (<-chan order.StatusChangedEvent, func(), error) {
	ch := make(chan order.StatusChangedEvent, listenerBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.listeners[orderID] == nil {
		b.listeners[orderID] = make(map[uint64]chan order.StatusChangedEvent)
	}
	b.listeners[orderID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.listeners[orderID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.listeners, orderID)
				}
			}
			close(ch)
		})
	}
	return ch, release, nil
}

// Run holds the Redis subscription and dispatches events until ctx is done.
func (b *RedisOrderStatusBus) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, OrderStatusChannel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Infow("subscribed to order status events",
		"channel", OrderStatusChannel,
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("order status subscriber stopped",
				"reason", ctx.Err(),
			)
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("order status channel closed")
				return nil
			}

			var event order.StatusChangedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal order status event",
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}
			b.dispatch(event)
		}
	}
}

func (b *RedisOrderStatusBus) dispatch(event order.StatusChangedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.listeners[event.OrderID] {
		select {
		case ch <- event:
		default:
			b.logger.Warnw("order status listener lagging, event dropped",
				"order_id", event.OrderID,
				"status", event.Status,
			)
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (b *RedisOrderStatusBus) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, set := range b.listeners {
		n += len(set)
	}
	return n
}
