package valueobjects

import (
	"fmt"
	"math"
	"strings"
)

// DiscountType selects how a coupon value is applied.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

// Coupon is an already-validated discount. Value is a percent for percentage
// coupons and an amount in major units for fixed coupons. An empty ProductIDs
// applies the coupon to the whole cart.
type Coupon struct {
	Code       string       `json:"code"`
	Type       DiscountType `json:"type"`
	Value      float64      `json:"value"`
	ProductIDs []string     `json:"product_ids,omitempty"`
}

func NewCoupon(code string, discountType DiscountType, value float64, productIDs []string) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("coupon code is required")
	}
	if !discountType.IsValid() {
		return nil, fmt.Errorf("invalid discount type: %s", discountType)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil, fmt.Errorf("invalid coupon value: %v", value)
	}
	if discountType == DiscountTypePercentage && value > 100 {
		return nil, fmt.Errorf("percentage coupon cannot exceed 100: %v", value)
	}
	return &Coupon{
		Code:       strings.ToUpper(code),
		Type:       discountType,
		Value:      value,
		ProductIDs: append([]string(nil), productIDs...),
	}, nil
}

// AppliesTo reports whether the coupon discounts the given product.
func (c *Coupon) AppliesTo(productID string) bool {
	if len(c.ProductIDs) == 0 {
		return true
	}
	for _, id := range c.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// DiscountCents returns the discount for an eligible subtotal, never more than it.
func (c *Coupon) DiscountCents(eligibleCents int64) int64 {
	if eligibleCents <= 0 {
		return 0
	}
	var d int64
	switch c.Type {
	case DiscountTypePercentage:
		d = int64(math.Round(float64(eligibleCents) * c.Value / 100))
	case DiscountTypeFixed:
		d = int64(math.Round(c.Value * 100))
	}
	if d > eligibleCents {
		d = eligibleCents
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (c *Coupon) Equals(other *Coupon) bool {
	if c == nil || other == nil {
		return c == nil && other == nil
	}
	if c.Code != other.Code || c.Type != other.Type || c.Value != other.Value || len(c.ProductIDs) != len(other.ProductIDs) {
		return false
	}
	for i := range c.ProductIDs {
		if c.ProductIDs[i] != other.ProductIDs[i] {
			return false
		}
	}
	return true
}
