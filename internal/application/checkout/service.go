package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	apperrors "github.com/paysettle/paysettle/internal/shared/errors"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// ServiceConfig holds reconciliation tuning.
type ServiceConfig struct {
	PollInterval     time.Duration
	FailureThreshold int
}

// ServiceDeps wires the checkout service. Tracker, Feed, Sessions and
// OnSurfaced are optional.
type ServiceDeps struct {
	Orders     *OrderManager
	Adapter    *GatewayAdapter
	Verifier   *PaymentVerifier
	Settlement *SettlementService
	Payments   payment.PaymentRepository
	Sessions   SessionStore
	Tracker    StatusTracker
	Feed       StatusFeed
	Pollers    *PollerManager
	Metrics    Metrics
	OnSurfaced func(orderID uint, err error)
}

// Service is the checkout flow controller: it opens payment intents, keeps the
// resumable session and runs a poller per open order.
type Service struct {
	deps   ServiceDeps
	cfg    ServiceConfig
	logger logger.Interface
}

func NewService(deps ServiceDeps, cfg ServiceConfig, log logger.Interface) *Service {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	s := &Service{deps: deps, cfg: cfg, logger: log}
	if deps.Orders != nil {
		deps.Orders.OnPaymentSuperseded(s.stopSupersededPoller)
	}
	return s
}

func (s *Service) stopSupersededPoller(orderID, paymentID uint) {
	if s.deps.Pollers == nil {
		return
	}
	if s.deps.Pollers.StopPayment(orderID, paymentID) {
		s.logger.Infow("stopped poller of superseded payment",
			"order_id", orderID,
			"payment_id", paymentID,
		)
	}
}

// StartPaymentCommand selects a payment method for an order.
type StartPaymentCommand struct {
	OrderNo string
	Method  string
	Step    int
}

type StartPaymentResult struct {
	Order *order.Order
	// Free is true when the order was settled without a gateway.
	Free   bool
	Intent *Intent
}

// StartPayment opens (or reuses) a payment intent and starts reconciling it.
// Zero-total orders settle immediately and never reach a gateway.
func (s *Service) StartPayment(ctx context.Context, cmd StartPaymentCommand) (*StartPaymentResult, error) {
	o, err := s.deps.Orders.Get(ctx, cmd.OrderNo)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(o); err != nil {
		return nil, err
	}

	if o.IsFree() {
		completed, err := s.deps.Orders.CompleteFreeOrder(ctx, o.OrderNo(), "")
		if err != nil {
			return nil, err
		}
		return &StartPaymentResult{Order: completed, Free: true}, nil
	}

	if err := s.deps.Orders.EnforceMinimum(o.Total(), ProviderForMethod(cmd.Method).Rail()); err != nil {
		return nil, err
	}

	intent, err := s.deps.Adapter.CreateIntent(ctx, o, cmd.Method)
	if err != nil {
		return nil, err
	}

	step := cmd.Step
	if step < StepPayment {
		step = StepPayment
	}
	s.saveSession(ctx, &CheckoutSession{
		OrderID:         o.ID(),
		OrderNo:         o.OrderNo(),
		Step:            step,
		Method:          intent.Method,
		Crypto:          intent.Crypto.Clone(),
		SavedItems:      o.Items(),
		SavedTotalCents: o.Total().AmountInCents(),
		UpdatedAt:       biztime.NowUTC(),
	})
	s.startPolling(o, intent.payment, intent.Crypto)

	s.logger.Infow("payment started",
		"order_no", o.OrderNo(),
		"provider", intent.Provider,
		"method", intent.Method,
		"track_id", intent.TrackID,
		"reused", intent.Reused,
	)
	return &StartPaymentResult{Order: o, Intent: intent}, nil
}

func checkPayable(o *order.Order) error {
	switch st := o.Status(); {
	case st.IsSettled():
		return apperrors.NewConflictError("order is already paid")
	case st == ordervo.OrderStatusExpired:
		return apperrors.NewExpiredError("order has expired, please start a new checkout")
	case st == ordervo.OrderStatusCancelled:
		return apperrors.NewConflictError("order has been cancelled")
	}
	return nil
}

func (s *Service) startPolling(o *order.Order, p *payment.Payment, details *CryptoDetails) {
	if s.deps.Pollers == nil || p == nil || !o.Status().IsOpen() {
		return
	}
	if running, ok := s.deps.Pollers.Get(o.ID()); ok {
		if running.PaymentID() == p.ID() {
			return
		}
		s.deps.Pollers.Stop(o.ID())
		s.logger.Infow("replacing poller for new payment attempt",
			"order_no", o.OrderNo(),
			"previous_payment_id", running.PaymentID(),
			"payment_id", p.ID(),
		)
	}

	orderID := o.ID()
	var onSurfaced func(error)
	if s.deps.OnSurfaced != nil {
		onSurfaced = func(err error) { s.deps.OnSurfaced(orderID, err) }
	}

	poller := NewPoller(PollerConfig{
		OrderID:        orderID,
		OrderNo:        o.OrderNo(),
		OrderCreatedAt: o.CreatedAt(),
		FiatTotal:      o.Total(),
		Payment:        p,
		Details:        details,
		Interval:       s.cfg.PollInterval,
	}, PollerDeps{
		Orders:     s.deps.Orders,
		Gateway:    s.deps.Adapter,
		Tracker:    s.deps.Tracker,
		Verifier:   s.deps.Verifier,
		Settlement: s.deps.Settlement,
		Feed:       s.deps.Feed,
		Counter:    NewFailureCounter(s.cfg.FailureThreshold),
		Metrics:    s.deps.Metrics,
		Logger:     s.logger.With("order_no", o.OrderNo()),
		OnSurfaced: onSurfaced,
	})
	s.deps.Pollers.Start(poller)
}

// ResumePolling restarts reconciliation of an open order from its latest payment.
// It reports whether a poller was started.
func (s *Service) ResumePolling(ctx context.Context, o *order.Order) (bool, error) {
	if s.deps.Pollers == nil || !o.Status().IsOpen() {
		return false, nil
	}
	if _, running := s.deps.Pollers.Get(o.ID()); running {
		return false, nil
	}
	p, err := s.deps.Payments.GetLatestByOrderID(ctx, o.ID())
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load payment for order %d: %w", o.ID(), err)
	}
	if !p.Status().IsPending() || p.TrackID() == nil {
		return false, nil
	}

	intent := s.deps.Adapter.intentFromPayment(p)
	s.startPolling(o, p, intent.Crypto)
	return true, nil
}

// ReconcilePending restarts pollers for open orders whose payments are still
// pending, e.g. after a restart. It returns the number of pollers started.
func (s *Service) ReconcilePending(ctx context.Context, batch int) (int, error) {
	pending, err := s.deps.Payments.ListPending(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending payments: %w", err)
	}

	started := 0
	seen := make(map[uint]struct{}, len(pending))
	for _, p := range pending {
		if _, dup := seen[p.OrderID()]; dup {
			continue
		}
		seen[p.OrderID()] = struct{}{}

		o, err := s.deps.Orders.GetByID(ctx, p.OrderID())
		if err != nil {
			s.logger.Warnw("failed to load order for pending payment", "payment_id", p.ID(), "error", err)
			continue
		}
		ok, err := s.ResumePolling(ctx, o)
		if err != nil {
			s.logger.Warnw("failed to resume polling", "order_id", o.ID(), "error", err)
			continue
		}
		if ok {
			started++
		}
	}
	return started, nil
}

// StatusView combines the stored order status with the live poller view.
type StatusView struct {
	OrderNo             string
	Status              ordervo.OrderStatus
	Local               ordervo.OrderStatus
	Polling             bool
	Remaining           time.Duration
	ConsecutiveFailures int
	LastError           string
	Crypto              *CryptoDetails
}

func (s *Service) Status(ctx context.Context, orderNo string) (*StatusView, error) {
	o, err := s.deps.Orders.Get(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	view := &StatusView{OrderNo: o.OrderNo(), Status: o.Status()}
	if s.deps.Pollers == nil {
		return view, nil
	}
	if p, ok := s.deps.Pollers.Get(o.ID()); ok {
		snap := p.Snapshot()
		view.Polling = true
		view.Local = snap.Local
		view.Remaining = snap.Remaining
		view.ConsecutiveFailures = snap.ConsecutiveFailures
		view.LastError = snap.LastError
		view.Crypto = snap.Crypto
	}
	return view, nil
}

// RestoreSession returns the saved checkout, or nil when there is nothing worth
// resuming. Restoring an open order's session resumes its poller.
func (s *Service) RestoreSession(ctx context.Context, orderNo string) (*CheckoutSession, error) {
	o, err := s.deps.Orders.Get(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if s.deps.Sessions == nil {
		return nil, nil
	}
	sess, err := s.deps.Sessions.Restore(ctx, o.ID())
	if err != nil {
		return nil, apperrors.NewTransientNetworkError("failed to restore checkout session")
	}
	if sess == nil {
		return nil, nil
	}
	if _, err := s.ResumePolling(ctx, o); err != nil {
		s.logger.Warnw("failed to resume polling on restore", "order_no", orderNo, "error", err)
	}
	return sess, nil
}

// PersistSession records the buyer's checkout step. Deposit instructions stay
// the ones issued by the server.
func (s *Service) PersistSession(ctx context.Context, orderNo string, step int, method string) (*CheckoutSession, error) {
	o, err := s.deps.Orders.Get(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if s.deps.Sessions == nil {
		return nil, nil
	}

	sess, err := s.deps.Sessions.Restore(ctx, o.ID())
	if err != nil {
		return nil, apperrors.NewTransientNetworkError("failed to load checkout session")
	}
	if sess == nil {
		sess = &CheckoutSession{OrderID: o.ID(), OrderNo: o.OrderNo()}
	}
	sess.Step = step
	if method != "" {
		sess.Method = method
	}
	sess.SavedItems = o.Items()
	sess.SavedTotalCents = o.Total().AmountInCents()
	sess.UpdatedAt = biztime.NowUTC()

	if err := s.deps.Sessions.Persist(ctx, o.ID(), sess); err != nil {
		return nil, apperrors.NewTransientNetworkError("failed to save checkout session")
	}
	return sess, nil
}

// ClearSession forgets the saved checkout and stops polling, as when the buyer
// goes back to the cart.
func (s *Service) ClearSession(ctx context.Context, orderNo string) error {
	o, err := s.deps.Orders.Get(ctx, orderNo)
	if err != nil {
		return err
	}
	if s.deps.Pollers != nil {
		s.deps.Pollers.Stop(o.ID())
	}
	if s.deps.Sessions == nil {
		return nil
	}
	if err := s.deps.Sessions.Clear(ctx, o.ID()); err != nil {
		return apperrors.NewTransientNetworkError("failed to clear checkout session")
	}
	return nil
}

func (s *Service) saveSession(ctx context.Context, sess *CheckoutSession) {
	if s.deps.Sessions == nil {
		return
	}
	if err := s.deps.Sessions.Persist(ctx, sess.OrderID, sess); err != nil {
		s.logger.Warnw("failed to persist checkout session",
			"order_no", sess.OrderNo,
			"error", err,
		)
	}
}

// Cancel is the administrative override; it also stops reconciliation.
func (s *Service) Cancel(ctx context.Context, orderNo, reason string) (*order.Order, error) {
	o, err := s.deps.Orders.Cancel(ctx, orderNo, reason)
	if err != nil {
		return nil, err
	}
	if s.deps.Pollers != nil {
		s.deps.Pollers.Stop(o.ID())
	}
	if s.deps.Sessions != nil {
		if err := s.deps.Sessions.Clear(ctx, o.ID()); err != nil {
			s.logger.Warnw("failed to clear session of cancelled order", "order_no", orderNo, "error", err)
		}
	}
	return o, nil
}

// Events subscribes to status changes of one order.
func (s *Service) Events(ctx context.Context, orderNo string) (*order.Order, <-chan order.StatusChangedEvent, func(), error) {
	o, err := s.deps.Orders.Get(ctx, orderNo)
	if err != nil {
		return nil, nil, nil, err
	}
	if s.deps.Feed == nil {
		return nil, nil, nil, apperrors.NewBadRequestError("status events are not available")
	}
	ch, unsubscribe, err := s.deps.Feed.Subscribe(ctx, o.ID())
	if err != nil {
		return nil, nil, nil, apperrors.NewTransientNetworkError("failed to subscribe to order events")
	}
	return o, ch, unsubscribe, nil
}

// CallbackResult is the outcome of a webhook.
type CallbackResult struct {
	OrderNo string
	Status  ordervo.OrderStatus
	// Duplicate is true when the order had already settled.
	Duplicate bool
	Applied   bool
	Reason    string
}

// HandleCallback reconciles a payment after a processor webhook. The payload is
// only a hint: the processor is re-queried and settlement goes through the same
// verifier and compare-and-set as the pollers.
func (s *Service) HandleCallback(ctx context.Context, data *CallbackData) (*CallbackResult, error) {
	p, err := s.deps.Payments.GetByTrackID(ctx, data.Provider, data.TrackID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return nil, apperrors.NewNotFoundError("payment not found", data.TrackID)
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	o, err := s.deps.Orders.GetByID(ctx, p.OrderID())
	if err != nil {
		return nil, err
	}

	result := &CallbackResult{OrderNo: o.OrderNo(), Status: o.Status()}
	if o.Status().IsSettled() {
		result.Duplicate = true
		return result, nil
	}
	if !o.Status().IsOpen() {
		return result, nil
	}

	st, err := s.deps.Adapter.Status(ctx, p)
	if err != nil {
		s.logger.Warnw("failed to re-query gateway for webhook",
			"provider", data.Provider,
			"track_id", data.TrackID,
			"error", err,
		)
		return nil, apperrors.NewTransientNetworkError("gateway status unavailable")
	}

	switch st.State {
	case GatewayStatePaid:
		verdict, err := s.deps.Verifier.Verify(ctx, VerifyInput{Payment: p, Reported: st})
		if err != nil {
			return nil, apperrors.NewTransientNetworkError("failed to verify payment")
		}
		if !verdict.Verified {
			s.logger.Warnw("webhook paid report not verified",
				"track_id", data.TrackID,
				"reason", verdict.Reason,
			)
			result.Reason = verdict.Reason
			return result, nil
		}
		res, err := s.deps.Settlement.Settle(ctx, o.ID(), p, verdict.TxID)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to settle order")
		}
		result.Applied = res.Applied
		result.Status = res.Status
		result.Duplicate = !res.Applied && res.Status.IsSettled()
		if res.Rejected != "" {
			result.Reason = res.Rejected
		}
	case GatewayStateConfirming:
		if _, err := s.deps.Orders.MarkProcessing(ctx, o.ID(), o.OrderNo()); err != nil {
			return nil, apperrors.NewInternalError("failed to update order")
		}
		result.Status = s.currentStatus(ctx, o)
	case GatewayStateExpired, GatewayStateFailed:
		applied, err := s.deps.Orders.ExpireAttempt(ctx, o.ID(), o.OrderNo(), p.ID())
		if err != nil {
			return nil, apperrors.NewInternalError("failed to update order")
		}
		result.Applied = applied
		result.Status = s.currentStatus(ctx, o)
	}

	s.logger.Infow("webhook processed",
		"provider", data.Provider,
		"track_id", data.TrackID,
		"gateway_state", st.State,
		"status", result.Status,
		"applied", result.Applied,
	)
	return result, nil
}

func (s *Service) currentStatus(ctx context.Context, o *order.Order) ordervo.OrderStatus {
	st, err := s.deps.Orders.CurrentStatus(ctx, o.ID())
	if err != nil {
		return o.Status()
	}
	return st
}

// SupportedMethods lists every payment method label the storefront can offer.
func SupportedMethods() []string {
	methods := []string{"card"}
	for _, m := range vo.SupportedCryptoMethods() {
		methods = append(methods, m.Label)
	}
	return methods
}
