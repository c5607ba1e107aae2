package checkout

import (
	"context"
	"fmt"

	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// statusWriter performs compare-and-set status writes and announces the ones
// that applied.
type statusWriter struct {
	orders    order.Repository
	publisher StatusPublisher
	metrics   Metrics
	logger    logger.Interface
}

func (w *statusWriter) advance(ctx context.Context, orderID uint, orderNo string, next ordervo.OrderStatus, txID string) (bool, ordervo.OrderStatus, error) {
	applied, current, err := w.orders.AdvanceStatus(ctx, orderID, next)
	if err != nil {
		return false, current, fmt.Errorf("failed to advance order %d to %s: %w", orderID, next, err)
	}
	if !applied {
		w.logger.Debugw("status transition not applied",
			"order_id", orderID,
			"requested", next,
			"current", current,
		)
		return false, current, nil
	}

	w.announce(ctx, orderID, orderNo, next, txID)
	return true, current, nil
}

// announce records and broadcasts a transition that has been committed.
func (w *statusWriter) announce(ctx context.Context, orderID uint, orderNo string, next ordervo.OrderStatus, txID string) {
	w.metrics.OrderTransition(next)
	w.logger.Infow("order status advanced",
		"order_id", orderID,
		"order_no", orderNo,
		"status", next,
	)
	w.publish(ctx, order.StatusChangedEvent{
		OrderID:    orderID,
		OrderNo:    orderNo,
		Status:     next,
		TxID:       txID,
		OccurredAt: biztime.NowUTC(),
	})
}

// publish is best effort: the database row is the source of truth and pollers
// fall back to reading it.
func (w *statusWriter) publish(ctx context.Context, event order.StatusChangedEvent) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		w.logger.Warnw("failed to publish order status",
			"order_id", event.OrderID,
			"status", event.Status,
			"error", err,
		)
	}
}
