package checkout

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paysettle/paysettle/internal/domain/shared"
)

// Conversion is a fiat total expressed in native crypto units.
type Conversion struct {
	// CryptoAmount has exactly eight decimals.
	CryptoAmount string
	USDPrice     float64
}

// ConversionService turns fiat totals into crypto amounts using a PriceSource.
type ConversionService struct {
	prices PriceSource
}

func NewConversionService(prices PriceSource) *ConversionService {
	return &ConversionService{prices: prices}
}

// Convert divides the fiat total by the current unit price of code.
func (s *ConversionService) Convert(ctx context.Context, fiatTotal shared.Money, code string) (*Conversion, error) {
	if !fiatTotal.IsPositive() {
		return nil, fmt.Errorf("fiat total must be positive, got %s", fiatTotal)
	}
	price, err := s.prices.Price(ctx, strings.ToUpper(code), fiatTotal.Currency())
	if err != nil {
		return nil, fmt.Errorf("failed to get %s price: %w", code, err)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("invalid %s price: %v", code, price)
	}

	return &Conversion{
		CryptoAmount: FormatCryptoAmount(fiatTotal.Float() / price),
		USDPrice:     price,
	}, nil
}

// FormatCryptoAmount renders a native amount with eight decimals.
func FormatCryptoAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// majorCurrencies are priced far above one fiat unit, so a gateway amount of
// exactly one coin or equal to the fiat figure is a placeholder.
var majorCurrencies = map[string]struct{}{
	"BTC": {}, "ETH": {}, "BCH": {}, "LTC": {}, "BNB": {},
	"SOL": {}, "XMR": {}, "TRX": {}, "TON": {}, "DOGE": {},
}

var placeholderAmounts = map[string]struct{}{
	"1": {}, "1.0": {}, "1.00": {},
}

// CorrectAmount returns the amount to show the payer. Gateways occasionally return
// a placeholder instead of the real crypto amount; such values are replaced by the
// locally computed one. It reports whether a substitution happened.
func CorrectAmount(gatewayAmount, code string, fiatTotal shared.Money, computed string) (string, bool) {
	if computed == "" {
		return gatewayAmount, false
	}

	raw := strings.TrimSpace(gatewayAmount)
	v, err := strconv.ParseFloat(raw, 64)
	if raw == "" || err != nil || math.IsNaN(v) || v <= 0 {
		return computed, true
	}

	if _, major := majorCurrencies[strings.ToUpper(code)]; !major {
		return gatewayAmount, false
	}
	if _, placeholder := placeholderAmounts[raw]; placeholder {
		return computed, true
	}
	if math.Abs(v-fiatTotal.Float()) < 0.005 {
		return computed, true
	}
	return gatewayAmount, false
}
