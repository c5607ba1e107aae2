package shared

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// DefaultCurrency is used when a Money value is built without a currency.
const DefaultCurrency = "USD"

// ErrInvalidAmount is returned for NaN, infinite or negative amounts.
var ErrInvalidAmount = errors.New("amount must be a finite, non-negative number")

// MaxAmountCents bounds every priced amount so that it stays exact as a float64.
const MaxAmountCents int64 = 1 << 53

// Money is a fiat amount in minor units (cents).
type Money struct {
	amountInCents int64
	currency      string
}

func NewMoney(amountInCents int64, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{
		amountInCents: amountInCents,
		currency:      strings.ToUpper(currency),
	}
}

// MoneyFromFloat converts a decimal amount such as 9.99 into cents, rounding half away from zero.
func MoneyFromFloat(amount float64, currency string) (Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	cents := math.Round(amount * 100)
	if cents > float64(MaxAmountCents) {
		return Money{}, fmt.Errorf("%w: %v is too large", ErrInvalidAmount, amount)
	}
	return NewMoney(int64(cents), currency), nil
}

// MulCents multiplies a non-negative amount by a quantity. Results above
// MaxAmountCents fail with ErrInvalidAmount.
func MulCents(cents, quantity int64) (int64, error) {
	if cents < 0 || quantity < 0 {
		return 0, fmt.Errorf("%w: %d x %d", ErrInvalidAmount, cents, quantity)
	}
	hi, lo := bits.Mul64(uint64(cents), uint64(quantity))
	if hi != 0 || lo > uint64(MaxAmountCents) {
		return 0, fmt.Errorf("%w: %d x %d is too large", ErrInvalidAmount, cents, quantity)
	}
	return int64(lo), nil
}

// AddCents adds two non-negative amounts. Results above MaxAmountCents fail
// with ErrInvalidAmount.
func AddCents(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrInvalidAmount, a, b)
	}
	if a > MaxAmountCents-b {
		return 0, fmt.Errorf("%w: %d + %d is too large", ErrInvalidAmount, a, b)
	}
	return a + b, nil
}

func (m Money) AmountInCents() int64 {
	return m.amountInCents
}

func (m Money) Currency() string {
	return m.currency
}

// Float returns the amount in major units.
func (m Money) Float() float64 {
	return float64(m.amountInCents) / 100.0
}

// Decimal formats the amount with exactly two decimals, e.g. "5.00".
func (m Money) Decimal() string {
	sign := ""
	cents := m.amountInCents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func (m Money) Equals(other Money) bool {
	return m.amountInCents == other.amountInCents && m.currency == other.currency
}

func (m Money) IsZero() bool {
	return m.amountInCents == 0
}

func (m Money) IsPositive() bool {
	return m.amountInCents > 0
}

func (m Money) IsNegative() bool {
	return m.amountInCents < 0
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal(), m.currency)
}
