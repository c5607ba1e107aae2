package checkout

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
)

// GatewayState is the normalized status of a payment intent at its processor.
type GatewayState string

const (
	GatewayStatePending    GatewayState = "pending"
	GatewayStateConfirming GatewayState = "confirming"
	GatewayStatePaid       GatewayState = "paid"
	GatewayStateExpired    GatewayState = "expired"
	GatewayStateFailed     GatewayState = "failed"
)

// GatewayStatus is what a processor reports for one track id.
type GatewayStatus struct {
	State GatewayState
	TxID  string
	// Crypto invoices report the deposit address and the amount received in native units.
	Address     string
	PayAmount   string
	PayCurrency string
	// Fiat sessions report the amount captured in cents.
	AmountCents int64
	Currency    string
	// RawStatus is the processor's own status string, kept for logs.
	RawStatus string
}

// RedirectRequest asks a fiat processor for a hosted checkout page.
type RedirectRequest struct {
	OrderNo     string
	Email       string
	Title       string
	AmountCents int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
}

type RedirectResult struct {
	TrackID   string
	PayLink   string
	ExpiresAt time.Time
}

// RedirectGateway is a processor that collects payment on its own hosted page.
type RedirectGateway interface {
	CreateCheckout(ctx context.Context, req RedirectRequest) (*RedirectResult, error)
	Status(ctx context.Context, trackID string) (*GatewayStatus, error)
}

// ErrWhiteLabelUnavailable is returned by CreateWhiteLabel when the processor cannot
// show raw deposit instructions for the requested currency.
var ErrWhiteLabelUnavailable = errors.New("white-label invoice unavailable for currency")

// InvoiceRequest asks a crypto processor for an invoice priced in fiat.
type InvoiceRequest struct {
	OrderNo         string
	Email           string
	Description     string
	Amount          string
	Currency        string
	PayCurrency     string
	Network         string
	CallbackURL     string
	ReturnURL       string
	LifetimeMinutes int
}

type InvoiceResult struct {
	TrackID     string
	PayLink     string
	Address     string
	PayAmount   string
	PayCurrency string
	Network     string
	QRCode      string
	Rate        float64
	ExpiresAt   time.Time
}

// CryptoGateway is a crypto invoice processor.
type CryptoGateway interface {
	CreateWhiteLabel(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error)
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error)
	Status(ctx context.Context, trackID string) (*GatewayStatus, error)
}

// CallbackVerifier authenticates a processor webhook and extracts the track id it refers to.
type CallbackVerifier interface {
	VerifyCallback(r *http.Request, body []byte) (*CallbackData, error)
}

// CallbackData is the verified part of a webhook. Handlers never act on State
// alone; the gateway is re-queried before any transition.
type CallbackData struct {
	Provider  vo.Provider
	TrackID   string
	State     GatewayState
	EventID   string
	RawStatus string
}

// ErrCallbackSignature is returned by a CallbackVerifier when authentication fails.
var ErrCallbackSignature = errors.New("invalid webhook signature")

// PriceSource quotes the price of one unit of a crypto currency in a fiat currency.
type PriceSource interface {
	Price(ctx context.Context, code, fiatCurrency string) (float64, error)
}

// QRCodeRenderer encodes a payload as an image data URL.
type QRCodeRenderer interface {
	DataURL(payload string) (string, error)
}

// ChainState is the state of a deposit as seen directly on chain.
type ChainState string

const (
	ChainStateWaiting   ChainState = "waiting"
	ChainStateDetected  ChainState = "detected"
	ChainStateConfirmed ChainState = "confirmed"
	ChainStateFailed    ChainState = "failed"
)

// ChainStatus is one explorer observation. It is never persisted.
type ChainStatus struct {
	Detected      bool
	Confirmations int
	TxID          string
	Amount        string
	State         ChainState
}

type TrackQuery struct {
	Address  string
	Currency string
	Chain    vo.ChainType
	// MinTimestamp excludes transfers made before the order existed.
	MinTimestamp time.Time
}

// ErrUnsupportedChain is returned by a StatusTracker that has no explorer for a
// chain or token. Pollers do not count it as a failure.
var ErrUnsupportedChain = errors.New("chain not supported by tracker")

// StatusTracker looks up deposits to an address directly on chain.
type StatusTracker interface {
	Track(ctx context.Context, q TrackQuery) (*ChainStatus, error)
}

// SessionStore keeps the in-progress checkout so a reload can resume it.
type SessionStore interface {
	Persist(ctx context.Context, orderID uint, sess *CheckoutSession) error
	Restore(ctx context.Context, orderID uint) (*CheckoutSession, error)
	Clear(ctx context.Context, orderID uint) error
}

// StatusPublisher broadcasts applied order transitions.
type StatusPublisher interface {
	Publish(ctx context.Context, event order.StatusChangedEvent) error
}

// StatusFeed delivers transitions for a single order. The returned function
// releases the subscription.
type StatusFeed interface {
	Subscribe(ctx context.Context, orderID uint) (<-chan order.StatusChangedEvent, func(), error)
}

// DeliveryRequest is handed to the delivery collaborator once per settled order.
type DeliveryRequest struct {
	EventID   string
	OrderID   uint
	OrderNo   string
	Email     string
	Items     []ordervo.LineItem
	Fields    map[string]string
	TxID      string
	SettledAt time.Time
}

// Deliverer triggers digital delivery of a settled order.
type Deliverer interface {
	Deliver(ctx context.Context, req DeliveryRequest) error
}

// CouponValidator resolves a coupon code into a coupon valid for the given items.
type CouponValidator interface {
	Validate(ctx context.Context, code string, items []ordervo.LineItem) (*ordervo.Coupon, error)
}

// Metrics receives reconciliation counters.
type Metrics interface {
	PollTick(result string)
	PollFailureSurfaced()
	OrderTransition(to ordervo.OrderStatus)
}

type nopMetrics struct{}

func (nopMetrics) PollTick(string) {}

func (nopMetrics) PollFailureSurfaced() {}

func (nopMetrics) OrderTransition(ordervo.OrderStatus) {}
