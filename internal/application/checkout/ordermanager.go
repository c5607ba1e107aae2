package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
	apperrors "github.com/paysettle/paysettle/internal/shared/errors"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// ItemInput is a cart row as submitted by the storefront.
type ItemInput struct {
	ProductID string
	VariantID string
	Quantity  int
	Price     float64
}

// CreateOrUpdateCommand upserts an order. An empty OrderNo creates a new order.
type CreateOrUpdateCommand struct {
	OrderNo      string
	Email        string
	Items        []ItemInput
	CouponCode   string
	Rail         string
	CustomFields map[string]string
}

// OrderManagerConfig holds pricing policy.
type OrderManagerConfig struct {
	Currency       string
	MinFiatCents   int64
	MinCryptoCents int64
	OrderTTL       time.Duration
}

// OrderManager owns order creation, pricing policy and status writes.
type OrderManager struct {
	orders     order.Repository
	payments   payment.PaymentRepository
	coupons    CouponValidator
	settlement *SettlementService
	writer     *statusWriter
	cfg        OrderManagerConfig
	logger     logger.Interface

	onSuperseded func(orderID, paymentID uint)
}

func NewOrderManager(
	orders order.Repository,
	payments payment.PaymentRepository,
	coupons CouponValidator,
	settlement *SettlementService,
	publisher StatusPublisher,
	metrics Metrics,
	cfg OrderManagerConfig,
	log logger.Interface,
) *OrderManager {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.Currency == "" {
		cfg.Currency = shared.DefaultCurrency
	}
	return &OrderManager{
		orders:     orders,
		payments:   payments,
		coupons:    coupons,
		settlement: settlement,
		writer: &statusWriter{
			orders:    orders,
			publisher: publisher,
			metrics:   metrics,
			logger:    log,
		},
		cfg:    cfg,
		logger: log,
	}
}

// OnPaymentSuperseded registers fn to run after a repricing closes a pending
// payment attempt.
func (m *OrderManager) OnPaymentSuperseded(fn func(orderID, paymentID uint)) {
	m.onSuperseded = fn
}

// CreateOrUpdate prices the cart and writes the order. Re-submitting an identical
// cart for an existing order issues no write.
func (m *OrderManager) CreateOrUpdate(ctx context.Context, cmd CreateOrUpdateCommand) (*order.Order, error) {
	items, err := m.buildItems(cmd.Items)
	if err != nil {
		return nil, err
	}

	var coupon *ordervo.Coupon
	if code := strings.TrimSpace(cmd.CouponCode); code != "" && m.coupons != nil {
		coupon, err = m.coupons.Validate(ctx, code, items)
		if err != nil {
			if apperrors.IsAppError(err) {
				return nil, err
			}
			return nil, apperrors.NewValidationError("invalid coupon", err.Error())
		}
	}

	totals, err := order.ComputeTotals(items, coupon)
	if err != nil {
		return nil, apperrors.NewInvalidAmountError("order total is out of range", err.Error())
	}
	if cmd.Rail != "" {
		rail, err := vo.NewRail(cmd.Rail)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid payment rail", err.Error())
		}
		if err := m.EnforceMinimum(shared.NewMoney(totals.Total, m.cfg.Currency), rail); err != nil {
			return nil, err
		}
	}

	if cmd.OrderNo == "" {
		return m.create(ctx, cmd, items, coupon)
	}
	return m.update(ctx, cmd, items, coupon)
}

func (m *OrderManager) create(ctx context.Context, cmd CreateOrUpdateCommand, items []ordervo.LineItem, coupon *ordervo.Coupon) (*order.Order, error) {
	o, err := order.NewOrder(cmd.Email, items, coupon, m.cfg.Currency)
	if err != nil {
		return nil, mapOrderError(err)
	}
	o.SetCustomFields(cmd.CustomFields)

	if err := m.orders.Create(ctx, o); err != nil {
		m.logger.Errorw("failed to create order", "email", o.Email(), "error", err)
		return nil, apperrors.NewInternalError("failed to create order")
	}

	m.logger.Infow("order created",
		"order_id", o.ID(),
		"order_no", o.OrderNo(),
		"total", o.Total().String(),
		"items", len(items),
	)
	return o, nil
}

func (m *OrderManager) update(ctx context.Context, cmd CreateOrUpdateCommand, items []ordervo.LineItem, coupon *ordervo.Coupon) (*order.Order, error) {
	o, err := m.Get(ctx, cmd.OrderNo)
	if err != nil {
		return nil, err
	}

	before := o.Total()
	changed, err := o.Revise(cmd.Email, items, coupon, cmd.CustomFields)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if !changed {
		m.logger.Debugw("order unchanged, skipping write", "order_no", o.OrderNo())
		return o, nil
	}

	if err := m.orders.Update(ctx, o); err != nil {
		if errors.Is(err, order.ErrVersionConflict) {
			return nil, apperrors.NewConflictError("order was modified concurrently, reload and retry")
		}
		m.logger.Errorw("failed to update order", "order_no", o.OrderNo(), "error", err)
		return nil, apperrors.NewInternalError("failed to update order")
	}

	if !o.Total().Equals(before) {
		m.supersedeOpenPayment(ctx, o.ID())
	}

	m.logger.Infow("order updated",
		"order_id", o.ID(),
		"order_no", o.OrderNo(),
		"total", o.Total().String(),
		"version", o.Version(),
	)
	return o, nil
}

// supersedeOpenPayment closes the pending attempt opened for a previous total,
// so that neither it nor its poller can settle or expire the repriced order.
func (m *OrderManager) supersedeOpenPayment(ctx context.Context, orderID uint) {
	p, err := m.payments.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, payment.ErrPaymentNotFound) {
			m.logger.Warnw("failed to load payment of repriced order", "order_id", orderID, "error", err)
		}
		return
	}
	if !p.Status().IsPending() {
		return
	}
	_ = p.MarkAsExpired()
	if err := m.payments.Update(ctx, p); err != nil {
		m.logger.Warnw("failed to close superseded payment", "payment_id", p.ID(), "error", err)
		return
	}
	m.logger.Infow("payment superseded by repricing",
		"order_id", orderID,
		"payment_id", p.ID(),
		"amount", p.Amount().String(),
	)
	if m.onSuperseded != nil {
		m.onSuperseded(orderID, p.ID())
	}
}

func (m *OrderManager) buildItems(inputs []ItemInput) ([]ordervo.LineItem, error) {
	if len(inputs) == 0 {
		return nil, apperrors.NewValidationError("order must contain at least one item")
	}
	items := make([]ordervo.LineItem, 0, len(inputs))
	for _, in := range inputs {
		item, err := ordervo.NewLineItem(in.ProductID, in.VariantID, in.Quantity, in.Price, m.cfg.Currency)
		if err != nil {
			if errors.Is(err, shared.ErrInvalidAmount) {
				return nil, apperrors.NewInvalidAmountError("invalid item price", err.Error())
			}
			return nil, apperrors.NewValidationError("invalid item", err.Error())
		}
		items = append(items, item)
	}
	return items, nil
}

// CompleteFreeOrder settles an order whose total is zero without touching any
// gateway. A coupon code that is not yet applied is applied first.
func (m *OrderManager) CompleteFreeOrder(ctx context.Context, orderNo, couponCode string) (*order.Order, error) {
	o, err := m.Get(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(couponCode)
	if code != "" && (o.Coupon() == nil || !strings.EqualFold(o.Coupon().Code, code)) {
		if m.coupons == nil {
			return nil, apperrors.NewValidationError("coupons are not enabled")
		}
		coupon, err := m.coupons.Validate(ctx, code, o.Items())
		if err != nil {
			if apperrors.IsAppError(err) {
				return nil, err
			}
			return nil, apperrors.NewValidationError("invalid coupon", err.Error())
		}
		if _, err := o.Revise(o.Email(), o.Items(), coupon, nil); err != nil {
			return nil, mapOrderError(err)
		}
		if err := m.orders.Update(ctx, o); err != nil {
			if errors.Is(err, order.ErrVersionConflict) {
				return nil, apperrors.NewConflictError("order was modified concurrently, reload and retry")
			}
			return nil, fmt.Errorf("failed to apply coupon: %w", err)
		}
	}

	if !o.IsFree() {
		return nil, apperrors.NewValidationError("order is not free", fmt.Sprintf("total %s", o.Total().Decimal()))
	}
	if o.Status().IsSettled() {
		return o, nil
	}
	if !o.Status().IsOpen() {
		return nil, apperrors.NewConflictError("order can no longer be completed", fmt.Sprintf("status %s", o.Status()))
	}

	result, err := m.settlement.Settle(ctx, o.ID(), nil, "")
	if err != nil {
		m.logger.Errorw("failed to complete free order", "order_no", orderNo, "error", err)
		return nil, apperrors.NewInternalError("failed to complete order")
	}
	m.logger.Infow("free order completed",
		"order_id", o.ID(),
		"order_no", o.OrderNo(),
		"applied", result.Applied,
		"status", result.Status,
	)
	return m.Get(ctx, orderNo)
}

// EnforceMinimum rejects totals under the rail's floor. A zero total is exempt
// because it takes the free path.
func (m *OrderManager) EnforceMinimum(total shared.Money, rail vo.Rail) error {
	if total.IsNegative() {
		return apperrors.NewInvalidAmountError("order total is negative")
	}
	if total.IsZero() {
		return nil
	}

	minimum := m.cfg.MinFiatCents
	if rail == vo.RailCrypto {
		minimum = m.cfg.MinCryptoCents
	}
	if total.AmountInCents() < minimum {
		floor := shared.NewMoney(minimum, total.Currency())
		return apperrors.NewBelowMinimumError(
			fmt.Sprintf("minimum %s payment is %s", rail, floor.Decimal()),
			fmt.Sprintf("total %s", total.Decimal()),
		)
	}
	return nil
}

// Get loads an order by its public number.
func (m *OrderManager) Get(ctx context.Context, orderNo string) (*order.Order, error) {
	o, err := m.orders.GetByOrderNo(ctx, orderNo)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, apperrors.NewNotFoundError("order not found", orderNo)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderNo, err)
	}
	return o, nil
}

// GetByID loads an order by its internal id.
func (m *OrderManager) GetByID(ctx context.Context, orderID uint) (*order.Order, error) {
	o, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, apperrors.NewNotFoundError("order not found")
		}
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	return o, nil
}

// CurrentStatus reads the authoritative status from storage.
func (m *OrderManager) CurrentStatus(ctx context.Context, orderID uint) (ordervo.OrderStatus, error) {
	o, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to read order %d status: %w", orderID, err)
	}
	return o.Status(), nil
}

// MarkProcessing records that a payment has been seen but not yet confirmed.
func (m *OrderManager) MarkProcessing(ctx context.Context, orderID uint, orderNo string) (bool, error) {
	applied, _, err := m.writer.advance(ctx, orderID, orderNo, ordervo.OrderStatusProcessing, "")
	return applied, err
}

// Expire closes the payment window of an open order and its latest pending payment.
func (m *OrderManager) Expire(ctx context.Context, orderID uint, orderNo string) (bool, error) {
	applied, current, err := m.writer.advance(ctx, orderID, orderNo, ordervo.OrderStatusExpired, "")
	if err != nil {
		return false, err
	}
	if !applied {
		m.logger.Debugw("order not expired", "order_id", orderID, "status", current)
		return false, nil
	}

	p, err := m.payments.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, payment.ErrPaymentNotFound) {
			m.logger.Warnw("failed to load payment of expired order", "order_id", orderID, "error", err)
		}
		return true, nil
	}
	if p.Status().IsPending() {
		_ = p.MarkAsExpired()
		if err := m.payments.Update(ctx, p); err != nil {
			m.logger.Warnw("failed to expire payment", "payment_id", p.ID(), "error", err)
		}
	}
	return true, nil
}

// IsCurrentPayment reports whether paymentID is the order's latest attempt and
// is still pending.
func (m *OrderManager) IsCurrentPayment(ctx context.Context, orderID, paymentID uint) (bool, error) {
	latest, err := m.payments.GetLatestByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load latest payment of order %d: %w", orderID, err)
	}
	return latest.ID() == paymentID && latest.Status().IsPending(), nil
}

// ExpireAttempt expires the order because payment attempt paymentID closed at
// its processor. A superseded attempt is closed on its own and the order stays
// open for the attempt that replaced it.
func (m *OrderManager) ExpireAttempt(ctx context.Context, orderID uint, orderNo string, paymentID uint) (bool, error) {
	current, err := m.IsCurrentPayment(ctx, orderID, paymentID)
	if err != nil {
		return false, err
	}
	if current {
		return m.Expire(ctx, orderID, orderNo)
	}

	p, err := m.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load payment %d: %w", paymentID, err)
	}
	if p.Status().IsPending() {
		_ = p.MarkAsExpired()
		if err := m.payments.Update(ctx, p); err != nil {
			return false, fmt.Errorf("failed to close superseded payment %d: %w", paymentID, err)
		}
	}
	m.logger.Infow("superseded payment closed, order stays open",
		"order_id", orderID,
		"payment_id", paymentID,
	)
	return false, nil
}

// Cancel is the administrative override. It applies to any status but cancelled.
func (m *OrderManager) Cancel(ctx context.Context, orderNo, reason string) (*order.Order, error) {
	o, err := m.Get(ctx, orderNo)
	if err != nil {
		return nil, err
	}

	applied, current, err := m.writer.advance(ctx, o.ID(), o.OrderNo(), ordervo.OrderStatusCancelled, "")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperrors.NewConflictError("order cannot be cancelled", fmt.Sprintf("status %s", current))
	}

	m.logger.Warnw("order cancelled by administrator",
		"order_id", o.ID(),
		"order_no", o.OrderNo(),
		"previous_status", o.Status(),
		"reason", reason,
	)
	return m.Get(ctx, orderNo)
}

// ExpireStale expires pending orders whose latest payment has passed its deadline
// and pending orders older than the order TTL. It returns how many orders expired.
func (m *OrderManager) ExpireStale(ctx context.Context, now time.Time, batch int) (int, error) {
	expired := 0

	payments, err := m.payments.ListExpiredPending(ctx, now, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired payments: %w", err)
	}
	for _, p := range payments {
		n, err := m.expireForPayment(ctx, p)
		if err != nil {
			m.logger.Warnw("failed to expire payment", "payment_id", p.ID(), "error", err)
			continue
		}
		expired += n
	}

	if m.cfg.OrderTTL <= 0 {
		return expired, nil
	}
	orders, err := m.orders.ListOpenCreatedBefore(ctx, now.Add(-m.cfg.OrderTTL), batch)
	if err != nil {
		return expired, fmt.Errorf("failed to list stale orders: %w", err)
	}
	for _, o := range orders {
		if o.Status() != ordervo.OrderStatusPending {
			continue
		}
		applied, err := m.Expire(ctx, o.ID(), o.OrderNo())
		if err != nil {
			m.logger.Warnw("failed to expire stale order", "order_id", o.ID(), "error", err)
			continue
		}
		if applied {
			expired++
		}
	}
	return expired, nil
}

func (m *OrderManager) expireForPayment(ctx context.Context, p *payment.Payment) (int, error) {
	latest, err := m.payments.GetLatestByOrderID(ctx, p.OrderID())
	if err != nil {
		return 0, err
	}
	// A newer attempt keeps the order open; only the superseded payment expires.
	if latest.ID() != p.ID() {
		_ = p.MarkAsExpired()
		return 0, m.payments.Update(ctx, p)
	}

	o, err := m.orders.GetByID(ctx, p.OrderID())
	if err != nil {
		return 0, err
	}
	if o.Status() != ordervo.OrderStatusPending {
		return 0, nil
	}
	applied, err := m.Expire(ctx, o.ID(), o.OrderNo())
	if err != nil || !applied {
		return 0, err
	}
	return 1, nil
}

func mapOrderError(err error) error {
	switch {
	case errors.Is(err, order.ErrNotEditable):
		return apperrors.NewConflictError("order can no longer be edited", err.Error())
	case errors.Is(err, order.ErrNegativeTotal):
		return apperrors.NewInvalidAmountError("order total is negative")
	case errors.Is(err, shared.ErrInvalidAmount):
		return apperrors.NewInvalidAmountError("order total is out of range", err.Error())
	case errors.Is(err, order.ErrInvalidEmail), errors.Is(err, order.ErrEmptyCart):
		return apperrors.NewValidationError(err.Error())
	default:
		return apperrors.NewValidationError("invalid order", err.Error())
	}
}
