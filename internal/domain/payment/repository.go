package payment

import (
	"context"
	"time"

	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	Update(ctx context.Context, payment *Payment) error
	GetByID(ctx context.Context, id uint) (*Payment, error)
	GetByTrackID(ctx context.Context, provider vo.Provider, trackID string) (*Payment, error)
	// GetLatestByOrderID returns the most recent checkout attempt for an order.
	GetLatestByOrderID(ctx context.Context, orderID uint) (*Payment, error)
	// ListPending returns pending payments that still carry a gateway track id.
	ListPending(ctx context.Context, limit int) ([]*Payment, error)
	// ListExpiredPending returns pending payments whose deadline is before now.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*Payment, error)
}
