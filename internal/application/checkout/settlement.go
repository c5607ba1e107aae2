package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/payment"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/db"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// errAmountMismatch stops a settlement whose payment was opened for another total.
var errAmountMismatch = errors.New("payment amount does not match order total")

// SettleResult reports the outcome of a settlement attempt.
type SettleResult struct {
	// Applied is true only for the caller whose write moved the order to paid.
	Applied bool
	Status  ordervo.OrderStatus
	// Rejected explains why a payment could not settle the order, if it could not.
	Rejected string
}

// SettlementService moves an order to paid exactly once and triggers delivery.
// Pollers, webhooks and the free path all settle through it, so concurrent
// callers race on a single compare-and-set and only the winner delivers.
type SettlementService struct {
	orders    order.Repository
	payments  payment.PaymentRepository
	txManager db.Transactor
	writer    *statusWriter
	deliverer Deliverer
	logger    logger.Interface
}

func NewSettlementService(
	orders order.Repository,
	payments payment.PaymentRepository,
	txManager db.Transactor,
	publisher StatusPublisher,
	deliverer Deliverer,
	metrics Metrics,
	log logger.Interface,
) *SettlementService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SettlementService{
		orders:    orders,
		payments:  payments,
		txManager: txManager,
		writer: &statusWriter{
			orders:    orders,
			publisher: publisher,
			metrics:   metrics,
			logger:    log,
		},
		deliverer: deliverer,
		logger:    log,
	}
}

// Settle marks the order paid together with its payment, then completes and
// delivers it. p is nil for orders that need no payment.
func (s *SettlementService) Settle(ctx context.Context, orderID uint, p *payment.Payment, txID string) (*SettleResult, error) {
	var (
		applied bool
		current ordervo.OrderStatus
	)
	err := s.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		if p != nil {
			o, err := s.orders.GetByID(txCtx, orderID)
			if err != nil {
				return err
			}
			current = o.Status()
			if !p.Amount().Equals(o.Total()) {
				return fmt.Errorf("%w: payment %s, order %s", errAmountMismatch, p.Amount(), o.Total())
			}
		}

		var err error
		applied, current, err = s.orders.AdvanceStatus(txCtx, orderID, ordervo.OrderStatusPaid)
		if err != nil {
			return err
		}
		if !applied || p == nil {
			return nil
		}
		if err := p.MarkAsPaid(txID); err != nil {
			return err
		}
		return s.payments.Update(txCtx, p)
	})
	if errors.Is(err, errAmountMismatch) {
		s.logger.Warnw("payment does not cover the current order total, not settling",
			"order_id", orderID,
			"payment_id", p.ID(),
			"tx_id", txID,
			"error", err,
		)
		return &SettleResult{Applied: false, Status: current, Rejected: err.Error()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to settle order %d: %w", orderID, err)
	}
	if !applied {
		s.logger.Infow("order already settled or closed, skipping settlement",
			"order_id", orderID,
			"status", current,
		)
		return &SettleResult{Applied: false, Status: current}, nil
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload settled order %d: %w", orderID, err)
	}
	s.writer.announce(ctx, orderID, o.OrderNo(), ordervo.OrderStatusPaid, txID)

	status := ordervo.OrderStatusPaid
	if ok, _, err := s.writer.advance(ctx, orderID, o.OrderNo(), ordervo.OrderStatusCompleted, txID); err != nil {
		s.logger.Warnw("failed to complete settled order", "order_id", orderID, "error", err)
	} else if ok {
		status = ordervo.OrderStatusCompleted
	}

	if err := s.deliver(ctx, o, txID); err != nil {
		// The order stays completed; delivery can be replayed from the order record.
		s.logger.Errorw("failed to trigger delivery",
			"order_id", orderID,
			"order_no", o.OrderNo(),
			"error", err,
		)
		return &SettleResult{Applied: true, Status: status}, nil
	}

	if ok, _, err := s.writer.advance(ctx, orderID, o.OrderNo(), ordervo.OrderStatusDelivered, txID); err != nil {
		s.logger.Warnw("failed to mark order delivered", "order_id", orderID, "error", err)
	} else if ok {
		status = ordervo.OrderStatusDelivered
	}
	return &SettleResult{Applied: true, Status: status}, nil
}

func (s *SettlementService) deliver(ctx context.Context, o *order.Order, txID string) error {
	if s.deliverer == nil {
		return fmt.Errorf("no deliverer configured")
	}
	settledAt := biztime.NowUTC()
	if o.SettledAt() != nil {
		settledAt = *o.SettledAt()
	}
	return s.deliverer.Deliver(ctx, DeliveryRequest{
		EventID:   DeliveryEventID(o.OrderNo()),
		OrderID:   o.ID(),
		OrderNo:   o.OrderNo(),
		Email:     o.Email(),
		Items:     o.Items(),
		Fields:    o.CustomFields(),
		TxID:      txID,
		SettledAt: settledAt,
	})
}

// DeliveryEventID is the idempotency key consumers use to drop duplicate deliveries.
func DeliveryEventID(orderNo string) string {
	return "delivery:" + orderNo
}
