package checkout

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

type nopLogger struct{}

func (nopLogger) Debugw(string, ...interface{}) {}
func (nopLogger) Infow(string, ...interface{})  {}
func (nopLogger) Warnw(string, ...interface{})  {}
func (nopLogger) Errorw(string, ...interface{}) {}

func (l nopLogger) With(...any) logger.Interface  { return l }
func (l nopLogger) Named(string) logger.Interface { return l }

// --- orders ---

type memOrderRepo struct {
	mu       sync.Mutex
	nextID   uint
	orders   map[uint]*order.Order
	creates  int
	updates  int
	advances []ordervo.OrderStatus
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[uint]*order.Order{}}
}

func cloneOrder(o *order.Order) *order.Order {
	return order.ReconstructOrderWithParams(order.OrderReconstructParams{
		ID:           o.ID(),
		OrderNo:      o.OrderNo(),
		Email:        o.Email(),
		Items:        o.Items(),
		Coupon:       o.Coupon(),
		Currency:     o.Currency(),
		Subtotal:     o.Subtotal().AmountInCents(),
		Discount:     o.Discount().AmountInCents(),
		Total:        o.Total().AmountInCents(),
		Status:       o.Status(),
		CustomFields: o.CustomFields(),
		SettledAt:    o.SettledAt(),
		Version:      o.Version(),
		CreatedAt:    o.CreatedAt(),
		UpdatedAt:    o.UpdatedAt(),
	})
}

func (r *memOrderRepo) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.SetID(r.nextID)
	r.orders[o.ID()] = cloneOrder(o)
	r.creates++
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID()]; !ok {
		return order.ErrOrderNotFound
	}
	r.orders[o.ID()] = cloneOrder(o)
	r.updates++
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id uint) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrderRepo) GetByOrderNo(_ context.Context, orderNo string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNo() == orderNo {
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (r *memOrderRepo) AdvanceStatus(_ context.Context, id uint, next ordervo.OrderStatus) (bool, ordervo.OrderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, "", order.ErrOrderNotFound
	}
	if !o.Status().CanTransitionTo(next) {
		return false, o.Status(), nil
	}
	c := cloneOrder(o)
	if err := c.TransitionTo(next); err != nil {
		return false, o.Status(), err
	}
	r.orders[id] = c
	r.advances = append(r.advances, next)
	return true, next, nil
}

func (r *memOrderRepo) ListOpenCreatedBefore(_ context.Context, before time.Time, limit int) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*order.Order
	for _, o := range r.orders {
		if o.Status().IsOpen() && o.CreatedAt().Before(before) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// put stores o directly, e.g. to seed a status.
func (r *memOrderRepo) put(o *order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID() == 0 {
		r.nextID++
		o.SetID(r.nextID)
	} else if o.ID() > r.nextID {
		r.nextID = o.ID()
	}
	r.orders[o.ID()] = cloneOrder(o)
}

func (r *memOrderRepo) status(id uint) ordervo.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id].Status()
}

func (r *memOrderRepo) advanceCount(next ordervo.OrderStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.advances {
		if s == next {
			n++
		}
	}
	return n
}

// --- payments ---

type memPaymentRepo struct {
	mu        sync.Mutex
	nextID    uint
	payments  map[uint]*payment.Payment
	createErr error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: map[uint]*payment.Payment{}}
}

func clonePayment(p *payment.Payment) *payment.Payment {
	meta := make(map[string]interface{}, len(p.Metadata()))
	for k, v := range p.Metadata() {
		meta[k] = v
	}
	return payment.ReconstructPaymentWithParams(payment.PaymentReconstructParams{
		ID:            p.ID(),
		PaymentNo:     p.PaymentNo(),
		OrderID:       p.OrderID(),
		Provider:      p.Provider(),
		Method:        p.Method(),
		Amount:        p.Amount(),
		Status:        p.Status(),
		TrackID:       p.TrackID(),
		PaymentURL:    p.PaymentURL(),
		QRCode:        p.QRCode(),
		TransactionID: p.TransactionID(),
		CryptoAddress: p.CryptoAddress(),
		PayCurrency:   p.PayCurrency(),
		Network:       p.Network(),
		CryptoAmount:  p.CryptoAmount(),
		ExchangeRate:  p.ExchangeRate(),
		PaidAt:        p.PaidAt(),
		ExpiresAt:     p.ExpiresAt(),
		Metadata:      meta,
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	})
}

func (r *memPaymentRepo) Create(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	p.SetID(r.nextID)
	r.payments[p.ID()] = clonePayment(p)
	return nil
}

func (r *memPaymentRepo) Update(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID()] = clonePayment(p)
	return nil
}

func (r *memPaymentRepo) GetByID(_ context.Context, id uint) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *memPaymentRepo) GetByTrackID(_ context.Context, provider vo.Provider, trackID string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.Provider() == provider && deref(p.TrackID()) == trackID {
			return clonePayment(p), nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (r *memPaymentRepo) GetLatestByOrderID(_ context.Context, orderID uint) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *payment.Payment
	for _, p := range r.payments {
		if p.OrderID() == orderID && (latest == nil || p.ID() > latest.ID()) {
			latest = p
		}
	}
	if latest == nil {
		return nil, payment.ErrPaymentNotFound
	}
	return clonePayment(latest), nil
}

func (r *memPaymentRepo) ListPending(_ context.Context, limit int) ([]*payment.Payment, error) {
	return r.list(func(p *payment.Payment) bool {
		return p.Status().IsPending() && p.TrackID() != nil
	}, limit), nil
}

func (r *memPaymentRepo) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]*payment.Payment, error) {
	return r.list(func(p *payment.Payment) bool { return p.IsExpired(now) }, limit), nil
}

func (r *memPaymentRepo) list(match func(*payment.Payment) bool, limit int) []*payment.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*payment.Payment
	for _, p := range r.payments {
		if match(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

// --- collaborators ---

type inlineTx struct{}

func (inlineTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingDeliverer struct {
	mu       sync.Mutex
	requests []DeliveryRequest
	err      error
}

func (d *recordingDeliverer) Deliver(_ context.Context, req DeliveryRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.requests = append(d.requests, req)
	return nil
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []order.StatusChangedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev order.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixedPrices map[string]float64

func (f fixedPrices) Price(_ context.Context, code, _ string) (float64, error) {
	price, ok := f[code]
	if !ok {
		return 0, errUnknownPrice
	}
	return price, nil
}

type staticCoupons map[string]*ordervo.Coupon

func (c staticCoupons) Validate(_ context.Context, code string, _ []ordervo.LineItem) (*ordervo.Coupon, error) {
	cp, ok := c[code]
	if !ok {
		return nil, errUnknownCoupon
	}
	return cp, nil
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

const (
	errUnknownPrice  = sentinel("unknown price")
	errUnknownCoupon = sentinel("unknown coupon")
)

// --- gateways ---

type fakeRedirect struct {
	mu      sync.Mutex
	creates int
	result  *RedirectResult
	err     error
	status  *GatewayStatus
}

func (g *fakeRedirect) CreateCheckout(_ context.Context, _ RedirectRequest) (*RedirectResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeRedirect) Status(_ context.Context, _ string) (*GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, nil
}

func (g *fakeRedirect) setStatus(st *GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = st
}

type fakeCrypto struct {
	mu             sync.Mutex
	whiteLabel     *InvoiceResult
	whiteLabelErr  error
	invoice        *InvoiceResult
	whiteLabelReqs []InvoiceRequest
	invoiceReqs    []InvoiceRequest
	statuses       []*GatewayStatus
	statusErr      error
	statusCalls    int
}

func (g *fakeCrypto) CreateWhiteLabel(_ context.Context, req InvoiceRequest) (*InvoiceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.whiteLabelReqs = append(g.whiteLabelReqs, req)
	if g.whiteLabelErr != nil {
		return nil, g.whiteLabelErr
	}
	return g.whiteLabel, nil
}

func (g *fakeCrypto) CreateInvoice(_ context.Context, req InvoiceRequest) (*InvoiceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invoiceReqs = append(g.invoiceReqs, req)
	return g.invoice, nil
}

// Status returns the queued statuses in order, repeating the last one.
func (g *fakeCrypto) Status(_ context.Context, _ string) (*GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if len(g.statuses) == 0 {
		return &GatewayStatus{State: GatewayStatePending}, nil
	}
	st := g.statuses[0]
	if len(g.statuses) > 1 {
		g.statuses = g.statuses[1:]
	}
	return st, nil
}

func (g *fakeCrypto) setStatus(st ...*GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses = st
}

func (g *fakeCrypto) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

type fakeTracker struct {
	mu     sync.Mutex
	status *ChainStatus
	err    error
	calls  int
}

func (t *fakeTracker) Track(_ context.Context, _ TrackQuery) (*ChainStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return t.status, nil
}

type countingMetrics struct {
	mu          sync.Mutex
	ticks       map[string]int
	surfaced    int
	transitions map[ordervo.OrderStatus]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ticks: map[string]int{}, transitions: map[ordervo.OrderStatus]int{}}
}

func (m *countingMetrics) PollTick(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[result]++
}

func (m *countingMetrics) PollFailureSurfaced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surfaced++
}

func (m *countingMetrics) OrderTransition(to ordervo.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[to]++
}

// --- harness ---

const testEmail = "buyer@example.com"

type harness struct {
	orders     *memOrderRepo
	payments   *memPaymentRepo
	deliverer  *recordingDeliverer
	publisher  *recordingPublisher
	redirect   *fakeRedirect
	crypto     *fakeCrypto
	tracker    *fakeTracker
	metrics    *countingMetrics
	manager    *OrderManager
	settlement *SettlementService
	adapter    *GatewayAdapter
	verifier   *PaymentVerifier
	service    *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := nopLogger{}

	save50, err := ordervo.NewCoupon("SAVE50", ordervo.DiscountTypePercentage, 50, nil)
	require.NoError(t, err)
	free, err := ordervo.NewCoupon("FREE", ordervo.DiscountTypePercentage, 100, nil)
	require.NoError(t, err)

	h := &harness{
		orders:    newMemOrderRepo(),
		payments:  newMemPaymentRepo(),
		deliverer: &recordingDeliverer{},
		publisher: &recordingPublisher{},
		redirect: &fakeRedirect{result: &RedirectResult{
			TrackID: "cs_test_1",
			PayLink: "https://checkout.stripe.com/c/pay/cs_test_1",
		}},
		crypto:  &fakeCrypto{},
		tracker: &fakeTracker{},
		metrics: newCountingMetrics(),
	}
	h.settlement = NewSettlementService(h.orders, h.payments, inlineTx{}, h.publisher, h.deliverer, h.metrics, log)
	h.manager = NewOrderManager(h.orders, h.payments, staticCoupons{"SAVE50": save50, "FREE": free},
		h.settlement, h.publisher, h.metrics, OrderManagerConfig{
			Currency:       "USD",
			MinFiatCents:   100,
			MinCryptoCents: 50,
			OrderTTL:       time.Hour,
		}, log)
	h.adapter = NewGatewayAdapter(h.redirect, h.crypto,
		NewConversionService(fixedPrices{"BTC": 50000, "USDT": 1, "ETH": 2500}),
		nil, h.payments, GatewayAdapterConfig{
			StorefrontURL:   "https://shop.example.com",
			CallbackBaseURL: "https://api.example.com",
		}, log)
	h.verifier = NewPaymentVerifier(h.adapter, 0, log)
	h.service = NewService(ServiceDeps{
		Orders:     h.manager,
		Adapter:    h.adapter,
		Verifier:   h.verifier,
		Settlement: h.settlement,
		Payments:   h.payments,
		Metrics:    h.metrics,
	}, ServiceConfig{}, log)
	return h
}

func (h *harness) createOrder(t *testing.T, price float64, coupon string) *order.Order {
	t.Helper()
	o, err := h.manager.CreateOrUpdate(context.Background(), CreateOrUpdateCommand{
		Email:      testEmail,
		Items:      []ItemInput{{ProductID: "ebook-1", Quantity: 1, Price: price}},
		CouponCode: coupon,
	})
	require.NoError(t, err)
	return o
}

// btcInvoice is a white-label answer for a $10 order at $50,000 per BTC.
func btcInvoice(amount string) *InvoiceResult {
	return &InvoiceResult{
		TrackID:     "184747701",
		Address:     "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
		PayAmount:   amount,
		PayCurrency: "BTC",
		Network:     "Bitcoin Network",
		Rate:        50000,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
}
