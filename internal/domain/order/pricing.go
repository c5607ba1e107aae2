package order

import (
	vo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
)

// Totals is the priced view of a cart, all in cents.
type Totals struct {
	Subtotal int64
	Discount int64
	Total    int64
}

// ComputeTotals prices items with an optional coupon. The coupon only discounts
// items it applies to, and the total never drops below zero. A cart whose sum
// leaves the representable range fails with shared.ErrInvalidAmount.
func ComputeTotals(items []vo.LineItem, coupon *vo.Coupon) (Totals, error) {
	var subtotal, eligible int64
	for _, it := range items {
		s, err := it.SubtotalCents()
		if err != nil {
			return Totals{}, err
		}
		if subtotal, err = shared.AddCents(subtotal, s); err != nil {
			return Totals{}, err
		}
		if coupon != nil && coupon.AppliesTo(it.ProductID) {
			eligible += s
		}
	}

	var discount int64
	if coupon != nil {
		discount = coupon.DiscountCents(eligible)
	}

	total := subtotal - discount
	if total < 0 {
		total = 0
	}
	return Totals{Subtotal: subtotal, Discount: discount, Total: total}, nil
}
