package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/interfaces/dto"
	"github.com/paysettle/paysettle/internal/interfaces/http/handlers/testutil"
	"github.com/paysettle/paysettle/internal/shared/errors"
)

// =====================================================================
// Mock services
// =====================================================================

type mockOrderService struct {
	order   *order.Order
	err     error
	lastCmd checkout.CreateOrUpdateCommand
	coupon  string
}

func (m *mockOrderService) CreateOrUpdate(ctx context.Context, cmd checkout.CreateOrUpdateCommand) (*order.Order, error) {
	m.lastCmd = cmd
	return m.order, m.err
}

func (m *mockOrderService) CompleteFreeOrder(ctx context.Context, orderNo, couponCode string) (*order.Order, error) {
	m.coupon = couponCode
	return m.order, m.err
}

func (m *mockOrderService) Get(ctx context.Context, orderNo string) (*order.Order, error) {
	return m.order, m.err
}

type mockCheckoutService struct {
	startResult *checkout.StartPaymentResult
	status      *checkout.StatusView
	session     *checkout.CheckoutSession
	err         error

	lastStart   checkout.StartPaymentCommand
	cleared     bool
	eventsOrder *order.Order
	events      chan order.StatusChangedEvent
	unsubscribe bool
}

func (m *mockCheckoutService) StartPayment(ctx context.Context, cmd checkout.StartPaymentCommand) (*checkout.StartPaymentResult, error) {
	m.lastStart = cmd
	return m.startResult, m.err
}

func (m *mockCheckoutService) Status(ctx context.Context, orderNo string) (*checkout.StatusView, error) {
	return m.status, m.err
}

func (m *mockCheckoutService) RestoreSession(ctx context.Context, orderNo string) (*checkout.CheckoutSession, error) {
	return m.session, m.err
}

func (m *mockCheckoutService) PersistSession(ctx context.Context, orderNo string, step int, method string) (*checkout.CheckoutSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &checkout.CheckoutSession{OrderNo: orderNo, Step: step, Method: method}, nil
}

func (m *mockCheckoutService) ClearSession(ctx context.Context, orderNo string) error {
	m.cleared = true
	return m.err
}

func (m *mockCheckoutService) Events(ctx context.Context, orderNo string) (*order.Order, <-chan order.StatusChangedEvent, func(), error) {
	if m.err != nil {
		return nil, nil, nil, m.err
	}
	return m.eventsOrder, m.events, func() { m.unsubscribe = true }, nil
}

// =====================================================================
// Test helpers
// =====================================================================

func createTestOrder(t *testing.T, price float64) *order.Order {
	t.Helper()
	item, err := ordervo.NewLineItem("prod-1", "", 1, price, "USD")
	require.NoError(t, err)
	o, err := order.NewOrder("buyer@example.com", []ordervo.LineItem{item}, nil, "USD")
	require.NoError(t, err)
	o.SetID(7)
	return o
}

func newTestCheckoutHandler(orders orderService, svc checkoutService) *CheckoutHandler {
	return NewCheckoutHandler(orders, svc, testutil.NewMockLogger())
}

// =====================================================================
// TestCheckoutHandler_UpsertOrder
// =====================================================================

func TestCheckoutHandler_UpsertOrder_Success(t *testing.T) {
	o := createTestOrder(t, 10)
	orders := &mockOrderService{order: o}
	handler := newTestCheckoutHandler(orders, nil)

	reqBody := dto.UpsertOrderRequest{
		Email: "buyer@example.com",
		Items: []dto.OrderItemRequest{
			{ProductID: "prod-1", Quantity: 2, Price: 5},
		},
		CouponCode: "SAVE50",
		Rail:       "crypto",
	}
	c, w := testutil.NewTestContext(http.MethodPost, "/orders", reqBody)

	handler.UpsertOrder(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	assert.True(t, resp.Success)

	var data dto.OrderResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, o.OrderNo(), data.OrderNo)
	assert.Equal(t, "10.00", data.Total)
	assert.Equal(t, "pending", data.Status)

	require.Len(t, orders.lastCmd.Items, 1)
	assert.Equal(t, 2, orders.lastCmd.Items[0].Quantity)
	assert.Equal(t, "SAVE50", orders.lastCmd.CouponCode)
	assert.Equal(t, "crypto", orders.lastCmd.Rail)
}

func TestCheckoutHandler_UpsertOrder_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing email", map[string]interface{}{"items": []map[string]interface{}{{"product_id": "p", "quantity": 1, "price": 1}}}},
		{"bad email", map[string]interface{}{"email": "nope", "items": []map[string]interface{}{{"product_id": "p", "quantity": 1, "price": 1}}}},
		{"empty cart", map[string]interface{}{"email": "a@b.co", "items": []map[string]interface{}{}}},
		{"zero quantity", map[string]interface{}{"email": "a@b.co", "items": []map[string]interface{}{{"product_id": "p", "quantity": 0, "price": 1}}}},
		{"unknown rail", map[string]interface{}{"email": "a@b.co", "rail": "barter", "items": []map[string]interface{}{{"product_id": "p", "quantity": 1, "price": 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &mockOrderService{}
			handler := newTestCheckoutHandler(orders, nil)
			c, w := testutil.NewTestContext(http.MethodPost, "/orders", tt.body)

			handler.UpsertOrder(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, orders.lastCmd.Email, "service must not be called")
		})
	}
}

func TestCheckoutHandler_UpsertOrder_BelowMinimum(t *testing.T) {
	orders := &mockOrderService{err: errors.NewBelowMinimumError("order total below minimum", "0.30 < 0.50")}
	handler := newTestCheckoutHandler(orders, nil)

	reqBody := dto.UpsertOrderRequest{
		Email: "buyer@example.com",
		Items: []dto.OrderItemRequest{{ProductID: "prod-1", Quantity: 1, Price: 0.3}},
		Rail:  "crypto",
	}
	c, w := testutil.NewTestContext(http.MethodPost, "/orders", reqBody)

	handler.UpsertOrder(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "below_minimum", resp.Error.Type)
	assert.False(t, resp.Error.Retryable)
}

// =====================================================================
// TestCheckoutHandler_GetOrder
// =====================================================================

func TestCheckoutHandler_GetOrder_NotFound(t *testing.T) {
	handler := newTestCheckoutHandler(&mockOrderService{err: errors.NewNotFoundError("order not found")}, nil)

	c, w := testutil.NewTestContext(http.MethodGet, "/orders/ord_missing", nil)
	testutil.SetURLParam(c, "order_no", "ord_missing")

	handler.GetOrder(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =====================================================================
// TestCheckoutHandler_StartPayment
// =====================================================================

func TestCheckoutHandler_StartPayment_CryptoIntent(t *testing.T) {
	o := createTestOrder(t, 10)
	svc := &mockCheckoutService{startResult: &checkout.StartPaymentResult{
		Order: o,
		Intent: &checkout.Intent{
			PaymentNo: "pay_1",
			Provider:  vo.ProviderOxapay,
			Method:    "BTC",
			TrackID:   "trk-1",
			Crypto: &checkout.CryptoDetails{
				Address:     "bc1qexample",
				Amount:      "0.00020000",
				TrackID:     "trk-1",
				PayCurrency: "BTC",
				Network:     "Bitcoin",
			},
			ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodPost, "/orders/"+o.OrderNo()+"/pay", dto.StartPaymentRequest{Method: "BTC", Step: 2})
	testutil.SetURLParam(c, "order_no", o.OrderNo())

	handler.StartPayment(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, o.OrderNo(), svc.lastStart.OrderNo)
	assert.Equal(t, "BTC", svc.lastStart.Method)
	assert.Equal(t, 2, svc.lastStart.Step)

	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	var data dto.StartPaymentResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.False(t, data.Free)
	require.NotNil(t, data.Intent)
	assert.Equal(t, "oxapay", data.Intent.Provider)
	require.NotNil(t, data.Intent.Crypto)
	assert.Equal(t, "0.00020000", data.Intent.Crypto.Amount)
}

func TestCheckoutHandler_StartPayment_Free(t *testing.T) {
	o := createTestOrder(t, 0)
	svc := &mockCheckoutService{startResult: &checkout.StartPaymentResult{Order: o, Free: true}}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodPost, "/orders/x/pay", dto.StartPaymentRequest{Method: "card"})
	testutil.SetURLParam(c, "order_no", o.OrderNo())

	handler.StartPayment(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	var data dto.StartPaymentResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.True(t, data.Free)
	assert.Nil(t, data.Intent)
}

func TestCheckoutHandler_StartPayment_GatewayFailureIsRetryable(t *testing.T) {
	svc := &mockCheckoutService{err: errors.NewGatewayCreateFailedError("failed to create invoice")}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodPost, "/orders/x/pay", dto.StartPaymentRequest{Method: "BTC"})
	testutil.SetURLParam(c, "order_no", "x")

	handler.StartPayment(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	require.NotNil(t, resp.Error)
	assert.True(t, resp.Error.Retryable)
}

func TestCheckoutHandler_StartPayment_MissingMethod(t *testing.T) {
	svc := &mockCheckoutService{}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodPost, "/orders/x/pay", map[string]string{})
	testutil.SetURLParam(c, "order_no", "x")

	handler.StartPayment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.lastStart.OrderNo)
}

// =====================================================================
// TestCheckoutHandler_CompleteFreeOrder
// =====================================================================

func TestCheckoutHandler_CompleteFreeOrder(t *testing.T) {
	o := createTestOrder(t, 0)
	orders := &mockOrderService{order: o}
	handler := newTestCheckoutHandler(orders, nil)

	c, w := testutil.NewTestContext(http.MethodPost, "/orders/x/free", dto.CompleteFreeOrderRequest{CouponCode: "FREE100"})
	testutil.SetURLParam(c, "order_no", o.OrderNo())

	handler.CompleteFreeOrder(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FREE100", orders.coupon)
}

func TestCheckoutHandler_CompleteFreeOrder_NoBody(t *testing.T) {
	orders := &mockOrderService{err: errors.NewValidationError("order is not free")}
	handler := newTestCheckoutHandler(orders, nil)

	c, w := testutil.NewTestContext(http.MethodPost, "/orders/x/free", nil)
	testutil.SetURLParam(c, "order_no", "x")

	handler.CompleteFreeOrder(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, orders.coupon)
}

// =====================================================================
// TestCheckoutHandler_GetStatus
// =====================================================================

func TestCheckoutHandler_GetStatus(t *testing.T) {
	svc := &mockCheckoutService{status: &checkout.StatusView{
		OrderNo:   "ord_1",
		Status:    ordervo.OrderStatusPending,
		Local:     ordervo.OrderStatusProcessing,
		Polling:   true,
		Remaining: 90 * time.Second,
	}}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodGet, "/orders/ord_1/status", nil)
	testutil.SetURLParam(c, "order_no", "ord_1")

	handler.GetStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	var data dto.StatusResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "pending", data.Status)
	assert.Equal(t, "processing", data.LocalStatus)
	assert.True(t, data.Polling)
	assert.Equal(t, int64(90), data.RemainingSeconds)
}

// =====================================================================
// TestCheckoutHandler_Session
// =====================================================================

func TestCheckoutHandler_RestoreSession(t *testing.T) {
	tests := []struct {
		name       string
		session    *checkout.CheckoutSession
		wantStatus int
	}{
		{"nothing to restore", nil, http.StatusNoContent},
		{"restorable", &checkout.CheckoutSession{OrderNo: "ord_1", Step: 2, Method: "BTC"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestCheckoutHandler(nil, &mockCheckoutService{session: tt.session})
			c, w := testutil.NewTestContext(http.MethodGet, "/orders/ord_1/session", nil)
			testutil.SetURLParam(c, "order_no", "ord_1")

			handler.RestoreSession(c)
			c.Writer.WriteHeaderNow()

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestCheckoutHandler_PersistSession(t *testing.T) {
	handler := newTestCheckoutHandler(nil, &mockCheckoutService{})

	c, w := testutil.NewTestContext(http.MethodPut, "/orders/ord_1/session", dto.PersistSessionRequest{Step: 3, Method: "ETH"})
	testutil.SetURLParam(c, "order_no", "ord_1")

	handler.PersistSession(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	var sess checkout.CheckoutSession
	require.NoError(t, json.Unmarshal(resp.Data, &sess))
	assert.Equal(t, 3, sess.Step)
	assert.Equal(t, "ETH", sess.Method)
}

func TestCheckoutHandler_ClearSession(t *testing.T) {
	svc := &mockCheckoutService{}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodDelete, "/orders/ord_1/session", nil)
	testutil.SetURLParam(c, "order_no", "ord_1")

	handler.ClearSession(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, svc.cleared)
}

// =====================================================================
// TestCheckoutHandler_Events
// =====================================================================

func TestCheckoutHandler_Events_StreamsUntilTerminal(t *testing.T) {
	o := createTestOrder(t, 10)
	events := make(chan order.StatusChangedEvent, 2)
	events <- order.StatusChangedEvent{OrderID: o.ID(), OrderNo: o.OrderNo(), Status: ordervo.OrderStatusPaid, TxID: "0xabc"}
	events <- order.StatusChangedEvent{OrderID: o.ID(), OrderNo: o.OrderNo(), Status: ordervo.OrderStatusDelivered}

	svc := &mockCheckoutService{eventsOrder: o, events: events}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodGet, "/orders/x/events", nil)
	testutil.SetURLParam(c, "order_no", o.OrderNo())

	handler.Events(c)

	body := w.Body.String()
	assert.Equal(t, 3, strings.Count(body, "event:status"))
	assert.Contains(t, body, `"status":"pending"`)
	assert.Contains(t, body, `"tx_id":"0xabc"`)
	assert.Contains(t, body, `"status":"delivered"`)
	assert.True(t, svc.unsubscribe)
}

func TestCheckoutHandler_Events_ClosedFeed(t *testing.T) {
	o := createTestOrder(t, 10)
	events := make(chan order.StatusChangedEvent)
	close(events)

	svc := &mockCheckoutService{eventsOrder: o, events: events}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodGet, "/orders/x/events", nil)
	testutil.SetURLParam(c, "order_no", o.OrderNo())

	handler.Events(c)

	assert.Equal(t, 1, strings.Count(w.Body.String(), "event:status"))
	assert.True(t, svc.unsubscribe)
}

func TestCheckoutHandler_Events_Unavailable(t *testing.T) {
	svc := &mockCheckoutService{err: errors.NewBadRequestError("status events are not available")}
	handler := newTestCheckoutHandler(nil, svc)

	c, w := testutil.NewTestContext(http.MethodGet, "/orders/x/events", nil)
	testutil.SetURLParam(c, "order_no", "x")

	handler.Events(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
