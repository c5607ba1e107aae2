package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
)

// --- helpers ---

func item(t *testing.T, productID string, qty int, price float64) vo.LineItem {
	t.Helper()
	li, err := vo.NewLineItem(productID, "", qty, price, "USD")
	require.NoError(t, err)
	return li
}

func coupon(t *testing.T, code string, typ vo.DiscountType, value float64, products ...string) *vo.Coupon {
	t.Helper()
	c, err := vo.NewCoupon(code, typ, value, products)
	require.NoError(t, err)
	return c
}

func newPendingOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewOrder("buyer@example.com", []vo.LineItem{item(t, "p1", 1, 10)}, nil, "USD")
	require.NoError(t, err)
	return o
}

// =============================================================================
// Pricing
// =============================================================================

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name   string
		items  []vo.LineItem
		coupon *vo.Coupon
		want   Totals
	}{
		{
			name:  "no coupon",
			items: []vo.LineItem{item(t, "p1", 2, 4.5), item(t, "p2", 1, 1)},
			want:  Totals{Subtotal: 1000, Discount: 0, Total: 1000},
		},
		{
			name:   "half off",
			items:  []vo.LineItem{item(t, "p1", 1, 10)},
			coupon: coupon(t, "SAVE50", vo.DiscountTypePercentage, 50),
			want:   Totals{Subtotal: 1000, Discount: 500, Total: 500},
		},
		{
			name:   "fixed larger than cart floors at zero",
			items:  []vo.LineItem{item(t, "p1", 1, 3)},
			coupon: coupon(t, "BIG", vo.DiscountTypeFixed, 20),
			want:   Totals{Subtotal: 300, Discount: 300, Total: 0},
		},
		{
			name:   "full percentage",
			items:  []vo.LineItem{item(t, "p1", 3, 2.99)},
			coupon: coupon(t, "FREE", vo.DiscountTypePercentage, 100),
			want:   Totals{Subtotal: 897, Discount: 897, Total: 0},
		},
		{
			name:   "scoped coupon only discounts matching items",
			items:  []vo.LineItem{item(t, "p1", 1, 10), item(t, "p2", 1, 10)},
			coupon: coupon(t, "P1HALF", vo.DiscountTypePercentage, 50, "p1"),
			want:   Totals{Subtotal: 2000, Discount: 500, Total: 1500},
		},
		{
			name:   "scoped coupon with no matching items",
			items:  []vo.LineItem{item(t, "p2", 1, 10)},
			coupon: coupon(t, "P1HALF", vo.DiscountTypePercentage, 50, "p1"),
			want:   Totals{Subtotal: 1000, Discount: 0, Total: 1000},
		},
		{
			name:  "free items",
			items: []vo.LineItem{item(t, "p1", 1, 0)},
			want:  Totals{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotals(tt.items, tt.coupon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			again, err := ComputeTotals(tt.items, tt.coupon)
			require.NoError(t, err)
			assert.Equal(t, got, again, "pricing must be deterministic")
			assert.GreaterOrEqual(t, got.Total, int64(0))
			assert.Equal(t, max(0, got.Subtotal-got.Discount), got.Total)
		})
	}
}

func TestComputeTotals_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		items []vo.LineItem
	}{
		{
			name:  "line product wraps int64",
			items: []vo.LineItem{{ProductID: "p1", Quantity: 10, UnitPriceCents: 1e18}},
		},
		{
			name: "sum past the bound",
			items: []vo.LineItem{
				{ProductID: "p1", Quantity: 1, UnitPriceCents: shared.MaxAmountCents},
				{ProductID: "p2", Quantity: 1, UnitPriceCents: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeTotals(tt.items, nil)
			require.ErrorIs(t, err, shared.ErrInvalidAmount)

			_, err = NewOrder("buyer@example.com", tt.items, nil, "USD")
			require.ErrorIs(t, err, shared.ErrInvalidAmount)
		})
	}
}

func TestNewLineItem_RejectsOversizedLine(t *testing.T) {
	_, err := vo.NewLineItem("p1", "", 10, 1e16, "USD")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = vo.NewLineItem("p1", "", 1000, 5e12, "USD")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

// =============================================================================
// Constructor and revision
// =============================================================================

func TestNewOrder(t *testing.T) {
	o, err := NewOrder(" Buyer@Example.com ", []vo.LineItem{item(t, "p1", 1, 10)},
		coupon(t, "SAVE50", vo.DiscountTypePercentage, 50), "usd")
	require.NoError(t, err)

	assert.Equal(t, "buyer@example.com", o.Email())
	assert.Equal(t, "USD", o.Currency())
	assert.Equal(t, int64(500), o.Total().AmountInCents())
	assert.Equal(t, "5.00", o.Total().Decimal())
	assert.Equal(t, vo.OrderStatusPending, o.Status())
	assert.Contains(t, o.OrderNo(), "ORD_")
}

func TestNewOrder_Invalid(t *testing.T) {
	_, err := NewOrder("not-an-email", []vo.LineItem{item(t, "p1", 1, 1)}, nil, "USD")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = NewOrder("a@b.co", nil, nil, "USD")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestOrder_Revise_IdenticalInputIsNoop(t *testing.T) {
	o := newPendingOrder(t)
	version := o.Version()
	updatedAt := o.UpdatedAt()

	changed, err := o.Revise("buyer@example.com", []vo.LineItem{item(t, "p1", 1, 10)}, nil, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, version, o.Version())
	assert.Equal(t, updatedAt, o.UpdatedAt())
}

func TestOrder_Revise_RepricesOnCouponChange(t *testing.T) {
	o := newPendingOrder(t)

	changed, err := o.Revise("buyer@example.com", []vo.LineItem{item(t, "p1", 1, 10)},
		coupon(t, "SAVE50", vo.DiscountTypePercentage, 50), nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(500), o.Total().AmountInCents())
	assert.Equal(t, int64(500), o.Discount().AmountInCents())
}

func TestOrder_Revise_RejectedOnceProcessing(t *testing.T) {
	o := newPendingOrder(t)
	require.NoError(t, o.TransitionTo(vo.OrderStatusProcessing))

	_, err := o.Revise("buyer@example.com", []vo.LineItem{item(t, "p1", 2, 10)}, nil, nil)
	assert.ErrorIs(t, err, ErrNotEditable)
}

// =============================================================================
// Transitions
// =============================================================================

func TestOrder_TransitionTo(t *testing.T) {
	o := newPendingOrder(t)

	require.NoError(t, o.TransitionTo(vo.OrderStatusProcessing))
	require.NoError(t, o.TransitionTo(vo.OrderStatusPaid))
	require.NotNil(t, o.SettledAt())
	settledAt := *o.SettledAt()

	require.NoError(t, o.TransitionTo(vo.OrderStatusDelivered))
	assert.Equal(t, settledAt, *o.SettledAt())

	for _, back := range []vo.OrderStatus{vo.OrderStatusPending, vo.OrderStatusProcessing, vo.OrderStatusExpired, vo.OrderStatusPaid} {
		assert.ErrorIs(t, o.TransitionTo(back), ErrInvalidTransition, back)
	}
	assert.Equal(t, vo.OrderStatusDelivered, o.Status())
}

func TestOrder_IsFree(t *testing.T) {
	o, err := NewOrder("buyer@example.com", []vo.LineItem{item(t, "p1", 1, 10)},
		coupon(t, "FREE", vo.DiscountTypePercentage, 100), "USD")
	require.NoError(t, err)
	assert.True(t, o.IsFree())
	assert.False(t, newPendingOrder(t).IsFree())
}
