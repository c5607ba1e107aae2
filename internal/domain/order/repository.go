package order

import (
	"context"
	"time"

	vo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
)

type Repository interface {
	Create(ctx context.Context, order *Order) error
	// Update persists edits made through Revise. It fails with ErrVersionConflict
	// when the stored version differs from the one the order was loaded with.
	Update(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uint) (*Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*Order, error)
	// AdvanceStatus locks the row, re-reads the stored status and writes next only
	// if the stored status can transition to it. It returns whether the write
	// happened and the status stored afterwards.
	AdvanceStatus(ctx context.Context, id uint, next vo.OrderStatus) (applied bool, current vo.OrderStatus, err error)
	ListOpenCreatedBefore(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
