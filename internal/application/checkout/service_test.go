package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	apperrors "github.com/paysettle/paysettle/internal/shared/errors"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[uint]*CheckoutSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[uint]*CheckoutSession{}}
}

func (s *memSessionStore) Persist(_ context.Context, orderID uint, sess *CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sess.Restorable() {
		return nil
	}
	c := *sess
	s.sessions[orderID] = &c
	return nil
}

func (s *memSessionStore) Restore(_ context.Context, orderID uint) (*CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[orderID]
	if !ok || !sess.Restorable() {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (s *memSessionStore) Clear(_ context.Context, orderID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, orderID)
	return nil
}

func withSessions(h *harness) *memSessionStore {
	store := newMemSessionStore()
	h.service.deps.Sessions = store
	return store
}

func TestService_StartPayment_FreeOrderSkipsGateway(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, 10, "FREE")

	res, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin"})
	require.NoError(t, err)

	assert.True(t, res.Free)
	assert.Nil(t, res.Intent)
	assert.Equal(t, ordervo.OrderStatusDelivered, res.Order.Status())
	assert.Empty(t, h.crypto.whiteLabelReqs)
	assert.Zero(t, h.redirect.creates)
	assert.Equal(t, 1, h.deliverer.count())
}

func TestService_StartPayment_Crypto(t *testing.T) {
	h := newHarness(t)
	sessions := withSessions(h)
	o := h.createOrder(t, 10, "SAVE50")
	h.crypto.whiteLabel = btcInvoice("1")

	res, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin", Step: 1})
	require.NoError(t, err)

	require.NotNil(t, res.Intent)
	assert.False(t, res.Free)
	assert.Equal(t, "0.00010000", res.Intent.Crypto.Amount, "$5 at $50,000 per BTC")

	sess, err := sessions.Restore(context.Background(), o.ID())
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, StepPayment, sess.Step)
	assert.Equal(t, "Bitcoin", sess.Method)
	assert.Equal(t, int64(500), sess.SavedTotalCents)
	assert.Equal(t, "0.00010000", sess.Crypto.Amount)
}

func TestService_StartPayment_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		status ordervo.OrderStatus
		method string
		check  func(error) bool
	}{
		{name: "below crypto minimum", price: 0.30, method: "Bitcoin", check: apperrors.IsBelowMinimumError},
		{name: "below card minimum", price: 0.60, method: "card", check: apperrors.IsBelowMinimumError},
		{name: "expired order", price: 10, status: ordervo.OrderStatusExpired, method: "Bitcoin", check: apperrors.IsExpiredError},
		{name: "paid order", price: 10, status: ordervo.OrderStatusPaid, method: "Bitcoin", check: apperrors.IsConflictError},
		{name: "cancelled order", price: 10, status: ordervo.OrderStatusCancelled, method: "card", check: apperrors.IsConflictError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			o := h.createOrder(t, tt.price, "")
			if tt.status != "" {
				_, _, err := h.orders.AdvanceStatus(context.Background(), o.ID(), tt.status)
				require.NoError(t, err)
			}

			_, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: tt.method})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Empty(t, h.crypto.whiteLabelReqs)
			assert.Zero(t, h.redirect.creates)
		})
	}
}

func TestService_HandleCallback_PaidSettlesOnce(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, 10, "")
	h.crypto.whiteLabel = btcInvoice("0.00020000")
	_, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin"})
	require.NoError(t, err)

	h.crypto.setStatus(&GatewayStatus{State: GatewayStatePaid, TxID: "tx1", PayAmount: "0.00020000", PayCurrency: "BTC"})
	data := &CallbackData{Provider: vo.ProviderOxapay, TrackID: "184747701", State: GatewayStatePaid}

	res, err := h.service.HandleCallback(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, ordervo.OrderStatusDelivered, res.Status)

	again, err := h.service.HandleCallback(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.False(t, again.Applied)
	assert.Equal(t, 1, h.deliverer.count())
}

func TestService_HandleCallback_IgnoresPayloadState(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, 10, "")
	h.crypto.whiteLabel = btcInvoice("0.00020000")
	_, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin"})
	require.NoError(t, err)

	// The webhook claims paid but the processor still says confirming.
	h.crypto.setStatus(&GatewayStatus{State: GatewayStateConfirming, PayCurrency: "BTC"})
	res, err := h.service.HandleCallback(context.Background(), &CallbackData{
		Provider: vo.ProviderOxapay,
		TrackID:  "184747701",
		State:    GatewayStatePaid,
	})
	require.NoError(t, err)

	assert.False(t, res.Applied)
	assert.Equal(t, ordervo.OrderStatusProcessing, res.Status)
	assert.Zero(t, h.deliverer.count())
}

func TestService_HandleCallback_Errors(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, 10, "")
	h.crypto.whiteLabel = btcInvoice("0.00020000")
	_, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin"})
	require.NoError(t, err)

	_, err = h.service.HandleCallback(context.Background(), &CallbackData{Provider: vo.ProviderOxapay, TrackID: "unknown"})
	assert.True(t, apperrors.IsNotFoundError(err))

	h.crypto.statusErr = errors.New("timeout")
	_, err = h.service.HandleCallback(context.Background(), &CallbackData{Provider: vo.ProviderOxapay, TrackID: "184747701"})
	assert.True(t, apperrors.IsTransientNetworkError(err))
	assert.Equal(t, ordervo.OrderStatusPending, h.orders.status(o.ID()))
}

func TestService_Sessions(t *testing.T) {
	h := newHarness(t)
	sessions := withSessions(h)
	ctx := context.Background()
	o := h.createOrder(t, 10, "")

	// Step one is not worth restoring.
	_, err := h.service.PersistSession(ctx, o.OrderNo(), 1, "Bitcoin")
	require.NoError(t, err)
	restored, err := h.service.RestoreSession(ctx, o.OrderNo())
	require.NoError(t, err)
	assert.Nil(t, restored)

	_, err = h.service.PersistSession(ctx, o.OrderNo(), 3, "Bitcoin")
	require.NoError(t, err)
	restored, err = h.service.RestoreSession(ctx, o.OrderNo())
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, 3, restored.Step)
	assert.Equal(t, int64(1000), restored.SavedTotalCents)

	require.NoError(t, h.service.ClearSession(ctx, o.OrderNo()))
	s, err := sessions.Restore(ctx, o.ID())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestService_ResumeAndCancel(t *testing.T) {
	h := newHarness(t)
	pollers := NewPollerManager(nopLogger{})
	defer pollers.StopAll()
	h.service.deps.Pollers = pollers
	h.service.cfg.PollInterval = time.Hour

	o := h.createOrder(t, 10, "")
	h.crypto.whiteLabel = btcInvoice("0.00020000")
	_, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin"})
	require.NoError(t, err)

	_, running := pollers.Get(o.ID())
	assert.True(t, running)

	started, err := h.service.ReconcilePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, started, "a running poller is not duplicated")

	cancelled, err := h.service.Cancel(context.Background(), o.OrderNo(), "chargeback risk")
	require.NoError(t, err)
	assert.Equal(t, ordervo.OrderStatusCancelled, cancelled.Status())
	_, running = pollers.Get(o.ID())
	assert.False(t, running)
}

func TestService_SwitchingMethodReplacesPoller(t *testing.T) {
	h := newHarness(t)
	pollers := NewPollerManager(nopLogger{})
	defer pollers.StopAll()
	h.service.deps.Pollers = pollers
	h.service.cfg.PollInterval = time.Hour
	h.redirect.status = &GatewayStatus{State: GatewayStatePending}
	ctx := context.Background()

	o := h.createOrder(t, 10, "")
	h.crypto.whiteLabel = btcInvoice("0.00020000")
	crypto, err := h.service.StartPayment(ctx, StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin"})
	require.NoError(t, err)
	card, err := h.service.StartPayment(ctx, StartPaymentCommand{OrderNo: o.OrderNo(), Method: "card"})
	require.NoError(t, err)
	require.NotEqual(t, crypto.Intent.PaymentID, card.Intent.PaymentID)

	running, ok := pollers.Get(o.ID())
	require.True(t, ok)
	assert.Equal(t, card.Intent.PaymentID, running.PaymentID())

	// The abandoned crypto invoice lapses at the processor.
	h.crypto.setStatus(&GatewayStatus{State: GatewayStateExpired, PayCurrency: "BTC"})
	res, err := h.service.HandleCallback(ctx, &CallbackData{Provider: vo.ProviderOxapay, TrackID: "184747701"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, ordervo.OrderStatusPending, res.Status)
	assert.Equal(t, ordervo.OrderStatusPending, h.orders.status(o.ID()))

	old, err := h.payments.GetByID(ctx, crypto.Intent.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, vo.PaymentStatusExpired, old.Status())

	pollers.StopAll()
	select {
	case <-running.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("card poller did not stop")
	}

	// The live card session still settles the order.
	h.redirect.setStatus(&GatewayStatus{State: GatewayStatePaid, TxID: "pi_1", AmountCents: 1000, Currency: "usd"})
	res, err = h.service.HandleCallback(ctx, &CallbackData{Provider: vo.ProviderStripe, TrackID: "cs_test_1"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, h.deliverer.count())
}

func TestService_CurrentAttemptExpiryExpiresOrder(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, 10, "")
	h.crypto.whiteLabel = btcInvoice("0.00020000")
	_, err := h.service.StartPayment(context.Background(), StartPaymentCommand{OrderNo: o.OrderNo(), Method: "Bitcoin"})
	require.NoError(t, err)

	h.crypto.setStatus(&GatewayStatus{State: GatewayStateExpired, PayCurrency: "BTC"})
	res, err := h.service.HandleCallback(context.Background(), &CallbackData{Provider: vo.ProviderOxapay, TrackID: "184747701"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, ordervo.OrderStatusExpired, h.orders.status(o.ID()))
}

func TestService_RepricedOrderRejectsOldPayment(t *testing.T) {
	h := newHarness(t)
	pollers := NewPollerManager(nopLogger{})
	defer pollers.StopAll()
	h.service.deps.Pollers = pollers
	h.service.cfg.PollInterval = time.Hour
	h.redirect.status = &GatewayStatus{State: GatewayStatePending}
	ctx := context.Background()

	o := h.createOrder(t, 1, "")
	first, err := h.service.StartPayment(ctx, StartPaymentCommand{OrderNo: o.OrderNo(), Method: "card"})
	require.NoError(t, err)
	_, running := pollers.Get(o.ID())
	require.True(t, running)

	repriced, err := h.manager.CreateOrUpdate(ctx, CreateOrUpdateCommand{
		OrderNo: o.OrderNo(),
		Email:   testEmail,
		Items:   []ItemInput{{ProductID: "ebook-1", Quantity: 100, Price: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), repriced.Total().AmountInCents())

	old, err := h.payments.GetByID(ctx, first.Intent.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, vo.PaymentStatusExpired, old.Status())
	_, running = pollers.Get(o.ID())
	assert.False(t, running, "the superseded attempt's poller is stopped")

	// The buyer completes the stale $1 session.
	h.redirect.setStatus(&GatewayStatus{State: GatewayStatePaid, TxID: "pi_old", AmountCents: 100, Currency: "usd"})
	res, err := h.service.HandleCallback(ctx, &CallbackData{Provider: vo.ProviderStripe, TrackID: "cs_test_1"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, ordervo.OrderStatusPending, h.orders.status(o.ID()))
	assert.Zero(t, h.deliverer.count())

	// A fresh attempt at the new total settles.
	h.service.deps.Pollers = nil
	h.redirect.result = &RedirectResult{TrackID: "cs_test_2", PayLink: "https://checkout.stripe.com/c/pay/cs_test_2"}
	second, err := h.service.StartPayment(ctx, StartPaymentCommand{OrderNo: o.OrderNo(), Method: "card"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Intent.PaymentID, second.Intent.PaymentID)

	h.redirect.setStatus(&GatewayStatus{State: GatewayStatePaid, TxID: "pi_new", AmountCents: 10000, Currency: "usd"})
	res, err = h.service.HandleCallback(ctx, &CallbackData{Provider: vo.ProviderStripe, TrackID: "cs_test_2"})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, h.deliverer.count())
	assert.Equal(t, "pi_new", h.deliverer.requests[0].TxID)
}
