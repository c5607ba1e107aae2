package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// DefaultCheckoutSessionTTL is how long an untouched checkout session survives.
const DefaultCheckoutSessionTTL = 24 * time.Hour

// CheckoutSessionStore keeps checkout sessions in Redis as JSON under
// checkout.SessionKey. Sessions below checkout.StepPayment are never written.
type CheckoutSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Interface
}

// NewCheckoutSessionStore creates a new Redis-backed checkout session store
func NewCheckoutSessionStore(client *redis.Client, ttl time.Duration, logger logger.Interface) *CheckoutSessionStore {
	if ttl <= 0 {
		ttl = DefaultCheckoutSessionTTL
	}
	return &CheckoutSessionStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

var _ checkout.SessionStore = (*CheckoutSessionStore)(nil)

// Persist writes the session through and refreshes its TTL.
func (s *CheckoutSessionStore) Persist(ctx context.Context, orderID uint, sess *checkout.CheckoutSession) error {
	if !sess.Restorable() {
		return nil
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout session: %w", err)
	}
	if err := s.client.Set(ctx, checkout.SessionKey(orderID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store checkout session: %w", err)
	}

	s.logger.Debugw("checkout session persisted",
		"order_id", orderID,
		"step", sess.Step,
	)
	return nil
}

// Restore returns nil when nothing restorable is stored.
func (s *CheckoutSessionStore) Restore(ctx context.Context, orderID uint) (*checkout.CheckoutSession, error) {
	data, err := s.client.Get(ctx, checkout.SessionKey(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}

	var sess checkout.CheckoutSession
	if err := json.Unmarshal(data, &sess); err != nil {
		// A corrupt entry is as good as none
		s.logger.Warnw("discarding unreadable checkout session",
			"order_id", orderID,
			"error", err,
		)
		_ = s.client.Del(ctx, checkout.SessionKey(orderID)).Err()
		return nil, nil
	}
	if !sess.Restorable() {
		return nil, nil
	}
	return &sess, nil
}

// Clear deletes the session.
func (s *CheckoutSessionStore) Clear(ctx context.Context, orderID uint) error {
	if err := s.client.Del(ctx, checkout.SessionKey(orderID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkout session: %w", err)
	}
	return nil
}
