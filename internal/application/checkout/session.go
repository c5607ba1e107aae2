package checkout

import (
	"fmt"
	"time"

	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
)

// StepPayment is the first checkout step worth restoring: the buyer has picked a
// method and a payment intent exists.
const StepPayment = 2

// CryptoDetails are the deposit instructions shown to the payer.
type CryptoDetails struct {
	Address      string    `json:"address"`
	Amount       string    `json:"amount"`
	TrackID      string    `json:"track_id"`
	QRPayload    string    `json:"qr_payload,omitempty"`
	QRCodeURL    string    `json:"qr_code_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	PayCurrency  string    `json:"pay_currency"`
	Network      string    `json:"network"`
	PayLink      string    `json:"pay_link,omitempty"`
	ExchangeRate *float64  `json:"exchange_rate,omitempty"`
}

// Refine fills fields that are still empty from update. Populated fields are kept.
func (d *CryptoDetails) Refine(update CryptoDetails) {
	if d.Address == "" {
		d.Address = update.Address
	}
	if d.Amount == "" {
		d.Amount = update.Amount
	}
	if d.TrackID == "" {
		d.TrackID = update.TrackID
	}
	if d.QRPayload == "" {
		d.QRPayload = update.QRPayload
	}
	if d.QRCodeURL == "" {
		d.QRCodeURL = update.QRCodeURL
	}
	if d.ExpiresAt.IsZero() {
		d.ExpiresAt = update.ExpiresAt
	}
	if d.PayCurrency == "" {
		d.PayCurrency = update.PayCurrency
	}
	if d.Network == "" {
		d.Network = update.Network
	}
	if d.PayLink == "" {
		d.PayLink = update.PayLink
	}
	if d.ExchangeRate == nil && update.ExchangeRate != nil {
		rate := *update.ExchangeRate
		d.ExchangeRate = &rate
	}
}

// Clone returns a deep copy.
func (d *CryptoDetails) Clone() *CryptoDetails {
	if d == nil {
		return nil
	}
	c := *d
	if d.ExchangeRate != nil {
		rate := *d.ExchangeRate
		c.ExchangeRate = &rate
	}
	return &c
}

// CheckoutSession is the resumable state of one order's checkout.
type CheckoutSession struct {
	OrderID         uint               `json:"order_id"`
	OrderNo         string             `json:"order_no"`
	Step            int                `json:"step"`
	Method          string             `json:"method,omitempty"`
	Crypto          *CryptoDetails     `json:"crypto,omitempty"`
	SavedItems      []ordervo.LineItem `json:"saved_items,omitempty"`
	SavedTotalCents int64              `json:"saved_total_cents"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Restorable reports whether the session has progressed far enough to resume.
func (s *CheckoutSession) Restorable() bool {
	return s != nil && s.Step >= StepPayment
}

// SessionKey is the cache key of an order's checkout session.
func SessionKey(orderID uint) string {
	return fmt.Sprintf("checkout_sess_%d", orderID)
}
