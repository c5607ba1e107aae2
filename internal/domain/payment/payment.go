package payment

import (
	"fmt"
	"time"

	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/id"
)

// DefaultTTL is used when the gateway does not report an invoice deadline.
const DefaultTTL = 60 * time.Minute

// CryptoInfo holds the deposit instructions returned for a crypto invoice.
type CryptoInfo struct {
	Address      string
	PayCurrency  string
	Network      string
	Amount       string
	ExchangeRate *float64
}

type Payment struct {
	id        uint
	paymentNo string
	orderID   uint
	provider  vo.Provider
	method    string
	amount    shared.Money
	status    vo.PaymentStatus

	trackID       *string
	paymentURL    *string
	qrCode        *string
	transactionID *string

	// Crypto-specific fields
	cryptoAddress *string
	payCurrency   *string
	network       *string
	cryptoAmount  *string
	exchangeRate  *float64

	paidAt    *time.Time
	expiresAt time.Time

	metadata map[string]interface{}

	version   int
	createdAt time.Time
	updatedAt time.Time
}

func NewPayment(orderID uint, provider vo.Provider, method string, amount shared.Money, expiresAt time.Time) (*Payment, error) {
	if orderID == 0 {
		return nil, fmt.Errorf("order ID is required")
	}
	if !provider.IsValid() {
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}

	paymentNo, err := id.GenerateWithPrefix(id.PrefixPayment, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment number: %w", err)
	}
	now := biztime.NowUTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultTTL)
	}

	return &Payment{
		paymentNo: paymentNo,
		orderID:   orderID,
		provider:  provider,
		method:    method,
		amount:    amount,
		status:    vo.PaymentStatusPending,
		expiresAt: expiresAt.UTC(),
		metadata:  make(map[string]interface{}),
		createdAt: now,
		updatedAt: now,
	}, nil
}

func (p *Payment) MarkAsPaid(transactionID string) error {
	if p.status == vo.PaymentStatusPaid {
		return nil
	}
	if p.status != vo.PaymentStatusPending {
		return fmt.Errorf("cannot mark payment as paid with status %s", p.status)
	}

	now := biztime.NowUTC()
	p.status = vo.PaymentStatusPaid
	if transactionID != "" {
		p.transactionID = &transactionID
	}
	p.paidAt = &now
	p.updatedAt = now
	p.version++
	return nil
}

func (p *Payment) MarkAsFailed(reason string) error {
	if p.status.IsFinal() {
		return fmt.Errorf("cannot mark payment as failed with final status %s", p.status)
	}

	p.status = vo.PaymentStatusFailed
	p.metadata["failure_reason"] = reason
	p.updatedAt = biztime.NowUTC()
	p.version++
	return nil
}

func (p *Payment) MarkAsExpired() error {
	if p.status.IsFinal() {
		return nil
	}

	p.status = vo.PaymentStatusExpired
	p.updatedAt = biztime.NowUTC()
	p.version++
	return nil
}

// SetGatewayInfo records the gateway correlation id and payer-facing links.
func (p *Payment) SetGatewayInfo(trackID, paymentURL, qrCode string) {
	p.trackID = optional(trackID)
	p.paymentURL = optional(paymentURL)
	p.qrCode = optional(qrCode)
	p.updatedAt = biztime.NowUTC()
}

// SetCryptoInfo records deposit instructions. A non-empty address or amount
// already on the payment is only replaced by another non-empty value.
func (p *Payment) SetCryptoInfo(info CryptoInfo) {
	if info.Address != "" {
		p.cryptoAddress = &info.Address
	}
	if info.PayCurrency != "" {
		p.payCurrency = &info.PayCurrency
	}
	if info.Network != "" {
		p.network = &info.Network
	}
	if info.Amount != "" {
		p.cryptoAmount = &info.Amount
	}
	if info.ExchangeRate != nil {
		rate := *info.ExchangeRate
		p.exchangeRate = &rate
	}
	p.updatedAt = biztime.NowUTC()
}

// SetExpiresAt moves the deadline to the one reported by the gateway.
func (p *Payment) SetExpiresAt(t time.Time) {
	if t.IsZero() {
		return
	}
	p.expiresAt = t.UTC()
	p.updatedAt = biztime.NowUTC()
}

// IsExpired reports whether a pending payment has passed its deadline.
func (p *Payment) IsExpired(now time.Time) bool {
	return p.status == vo.PaymentStatusPending && shared.IsExpired(p.expiresAt, now)
}

// IsReusableFor reports whether a retry with the same method can keep using this
// payment instead of opening a new gateway invoice.
func (p *Payment) IsReusableFor(provider vo.Provider, method string, amount shared.Money, now time.Time) bool {
	return p.status == vo.PaymentStatusPending &&
		p.provider == provider &&
		p.method == method &&
		p.amount.Equals(amount) &&
		p.trackID != nil &&
		!p.IsExpired(now)
}

// SetMetadata sets a metadata key-value pair
func (p *Payment) SetMetadata(key string, value interface{}) {
	if p.metadata == nil {
		p.metadata = make(map[string]interface{})
	}
	p.metadata[key] = value
	p.updatedAt = biztime.NowUTC()
}

// SetID sets the payment ID after persistence (used by repository after Create)
func (p *Payment) SetID(id uint) {
	p.id = id
}

func (p *Payment) ID() uint                         { return p.id }
func (p *Payment) PaymentNo() string                { return p.paymentNo }
func (p *Payment) OrderID() uint                    { return p.orderID }
func (p *Payment) Provider() vo.Provider            { return p.provider }
func (p *Payment) Method() string                   { return p.method }
func (p *Payment) Amount() shared.Money             { return p.amount }
func (p *Payment) Status() vo.PaymentStatus         { return p.status }
func (p *Payment) TrackID() *string                 { return p.trackID }
func (p *Payment) PaymentURL() *string              { return p.paymentURL }
func (p *Payment) QRCode() *string                  { return p.qrCode }
func (p *Payment) TransactionID() *string           { return p.transactionID }
func (p *Payment) CryptoAddress() *string           { return p.cryptoAddress }
func (p *Payment) PayCurrency() *string             { return p.payCurrency }
func (p *Payment) Network() *string                 { return p.network }
func (p *Payment) CryptoAmount() *string            { return p.cryptoAmount }
func (p *Payment) ExchangeRate() *float64           { return p.exchangeRate }
func (p *Payment) PaidAt() *time.Time               { return p.paidAt }
func (p *Payment) ExpiresAt() time.Time             { return p.expiresAt }
func (p *Payment) Metadata() map[string]interface{} { return p.metadata }
func (p *Payment) Version() int                     { return p.version }
func (p *Payment) CreatedAt() time.Time             { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time             { return p.updatedAt }

// IsCrypto reports whether the payment settles on a blockchain.
func (p *Payment) IsCrypto() bool {
	return p.provider.Rail() == vo.RailCrypto
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PaymentReconstructParams carries persisted state back into a Payment.
type PaymentReconstructParams struct {
	ID            uint
	PaymentNo     string
	OrderID       uint
	Provider      vo.Provider
	Method        string
	Amount        shared.Money
	Status        vo.PaymentStatus
	TrackID       *string
	PaymentURL    *string
	QRCode        *string
	TransactionID *string
	CryptoAddress *string
	PayCurrency   *string
	Network       *string
	CryptoAmount  *string
	ExchangeRate  *float64
	PaidAt        *time.Time
	ExpiresAt     time.Time
	Metadata      map[string]interface{}
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReconstructPaymentWithParams rebuilds a payment from storage without validation.
func ReconstructPaymentWithParams(params PaymentReconstructParams) *Payment {
	metadata := params.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Payment{
		id:            params.ID,
		paymentNo:     params.PaymentNo,
		orderID:       params.OrderID,
		provider:      params.Provider,
		method:        params.Method,
		amount:        params.Amount,
		status:        params.Status,
		trackID:       params.TrackID,
		paymentURL:    params.PaymentURL,
		qrCode:        params.QRCode,
		transactionID: params.TransactionID,
		cryptoAddress: params.CryptoAddress,
		payCurrency:   params.PayCurrency,
		network:       params.Network,
		cryptoAmount:  params.CryptoAmount,
		exchangeRate:  params.ExchangeRate,
		paidAt:        params.PaidAt,
		expiresAt:     params.ExpiresAt,
		metadata:      metadata,
		version:       params.Version,
		createdAt:     params.CreatedAt,
		updatedAt:     params.UpdatedAt,
	}
}
