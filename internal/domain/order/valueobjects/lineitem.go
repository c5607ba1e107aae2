package valueobjects

import (
	"fmt"
	"strings"

	"github.com/paysettle/paysettle/internal/domain/shared"
)

// LineItem is one cart row. UnitPriceCents is in the order currency.
type LineItem struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// NewLineItem validates a cart row. Price errors wrap shared.ErrInvalidAmount.
func NewLineItem(productID, variantID string, quantity int, unitPrice float64, currency string) (LineItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return LineItem{}, fmt.Errorf("product id is required")
	}
	if quantity < 1 {
		return LineItem{}, fmt.Errorf("quantity must be at least 1 for product %s", productID)
	}
	price, err := shared.MoneyFromFloat(unitPrice, currency)
	if err != nil {
		return LineItem{}, fmt.Errorf("product %s: %w", productID, err)
	}
	item := LineItem{
		ProductID:      productID,
		VariantID:      strings.TrimSpace(variantID),
		Quantity:       quantity,
		UnitPriceCents: price.AmountInCents(),
	}
	if _, err := item.SubtotalCents(); err != nil {
		return LineItem{}, fmt.Errorf("product %s: %w", productID, err)
	}
	return item, nil
}

// SubtotalCents is price times quantity. It fails with shared.ErrInvalidAmount
// when the product leaves the representable range.
func (li LineItem) SubtotalCents() (int64, error) {
	return shared.MulCents(li.UnitPriceCents, int64(li.Quantity))
}
