package order

import (
	"fmt"
	"maps"
	"net/mail"
	"slices"
	"strings"
	"time"

	vo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/id"
)

type Order struct {
	id           uint
	orderNo      string
	email        string
	items        []vo.LineItem
	coupon       *vo.Coupon
	currency     string
	subtotal     int64
	discount     int64
	total        int64
	status       vo.OrderStatus
	customFields map[string]string
	settledAt    *time.Time
	version      int
	createdAt    time.Time
	updatedAt    time.Time
}

func NewOrder(email string, items []vo.LineItem, coupon *vo.Coupon, currency string) (*Order, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	orderNo, err := id.GenerateWithPrefix(id.PrefixOrder, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order number: %w", err)
	}
	if currency == "" {
		currency = shared.DefaultCurrency
	}

	now := biztime.NowUTC()
	o := &Order{
		orderNo:      orderNo,
		email:        email,
		items:        slices.Clone(items),
		coupon:       coupon,
		currency:     strings.ToUpper(currency),
		status:       vo.OrderStatusPending,
		customFields: map[string]string{},
		version:      1,
		createdAt:    now,
		updatedAt:    now,
	}
	if err := o.reprice(); err != nil {
		return nil, err
	}
	return o, nil
}

// Revise replaces the cart contents of a pending order. It reports whether
// anything changed; an identical revision leaves the order untouched.
func (o *Order) Revise(email string, items []vo.LineItem, coupon *vo.Coupon, customFields map[string]string) (bool, error) {
	if o.status != vo.OrderStatusPending {
		return false, fmt.Errorf("%w: status is %s", ErrNotEditable, o.status)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, ErrEmptyCart
	}
	if customFields == nil {
		customFields = o.customFields
	}

	next, err := ComputeTotals(items, coupon)
	if err != nil {
		return false, err
	}
	if email == o.email && slices.Equal(items, o.items) && coupon.Equals(o.coupon) &&
		next.Total == o.total && maps.Equal(customFields, o.customFields) {
		return false, nil
	}

	o.email = email
	o.items = slices.Clone(items)
	o.coupon = coupon
	o.customFields = maps.Clone(customFields)
	if err := o.reprice(); err != nil {
		return false, err
	}
	o.updatedAt = biztime.NowUTC()
	o.version++
	return true, nil
}

func (o *Order) reprice() error {
	t, err := ComputeTotals(o.items, o.coupon)
	if err != nil {
		return err
	}
	if t.Total < 0 {
		return ErrNegativeTotal
	}
	o.subtotal, o.discount, o.total = t.Subtotal, t.Discount, t.Total
	return nil
}

// TransitionTo moves the order forward. Settling records the settlement time.
func (o *Order) TransitionTo(next vo.OrderStatus) error {
	if !o.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.status, next)
	}
	now := biztime.NowUTC()
	if next.IsSettled() && o.settledAt == nil {
		o.settledAt = &now
	}
	o.status = next
	o.updatedAt = now
	o.version++
	return nil
}

// SetCustomFields replaces storefront-defined fields such as a delivery handle.
func (o *Order) SetCustomFields(fields map[string]string) {
	o.customFields = maps.Clone(fields)
	if o.customFields == nil {
		o.customFields = map[string]string{}
	}
}

// SetID sets the order ID after persistence
func (o *Order) SetID(id uint) {
	o.id = id
}

func (o *Order) ID() uint                        { return o.id }
func (o *Order) OrderNo() string                 { return o.orderNo }
func (o *Order) Email() string                   { return o.email }
func (o *Order) Items() []vo.LineItem            { return slices.Clone(o.items) }
func (o *Order) Coupon() *vo.Coupon              { return o.coupon }
func (o *Order) Currency() string                { return o.currency }
func (o *Order) Subtotal() shared.Money          { return shared.NewMoney(o.subtotal, o.currency) }
func (o *Order) Discount() shared.Money          { return shared.NewMoney(o.discount, o.currency) }
func (o *Order) Total() shared.Money             { return shared.NewMoney(o.total, o.currency) }
func (o *Order) Status() vo.OrderStatus          { return o.status }
func (o *Order) CustomFields() map[string]string { return maps.Clone(o.customFields) }
func (o *Order) SettledAt() *time.Time           { return o.settledAt }
func (o *Order) Version() int                    { return o.version }
func (o *Order) CreatedAt() time.Time            { return o.createdAt }
func (o *Order) UpdatedAt() time.Time            { return o.updatedAt }

// IsFree reports whether the order can be settled without a payment.
func (o *Order) IsFree() bool {
	return o.total == 0
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return strings.ToLower(email), nil
}

// OrderReconstructParams carries persisted state back into an Order.
type OrderReconstructParams struct {
	ID           uint
	OrderNo      string
	Email        string
	Items        []vo.LineItem
	Coupon       *vo.Coupon
	Currency     string
	Subtotal     int64
	Discount     int64
	Total        int64
	Status       vo.OrderStatus
	CustomFields map[string]string
	SettledAt    *time.Time
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReconstructOrderWithParams rebuilds an order from storage without validation.
func ReconstructOrderWithParams(p OrderReconstructParams) *Order {
	fields := p.CustomFields
	if fields == nil {
		fields = map[string]string{}
	}
	return &Order{
		id:           p.ID,
		orderNo:      p.OrderNo,
		email:        p.Email,
		items:        p.Items,
		coupon:       p.Coupon,
		currency:     p.Currency,
		subtotal:     p.Subtotal,
		discount:     p.Discount,
		total:        p.Total,
		status:       p.Status,
		customFields: fields,
		settledAt:    p.SettledAt,
		version:      p.Version,
		createdAt:    p.CreatedAt,
		updatedAt:    p.UpdatedAt,
	}
}
