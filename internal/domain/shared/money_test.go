package shared

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		want    int64
		wantErr bool
	}{
		{"whole dollars", 10, 1000, false},
		{"two decimals", 9.99, 999, false},
		{"float noise rounds", 0.1 + 0.2, 30, false},
		{"zero", 0, 0, false},
		{"negative", -1, 0, true},
		{"nan", math.NaN(), 0, true},
		{"inf", math.Inf(1), 0, true},
		{"above exact float range", 1e17, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := MoneyFromFloat(tt.in, "usd")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.AmountInCents())
			assert.Equal(t, "USD", m.Currency())
		})
	}
}

func TestMulCents(t *testing.T) {
	tests := []struct {
		name     string
		cents    int64
		quantity int64
		want     int64
		wantErr  bool
	}{
		{"simple", 450, 2, 900, false},
		{"zero price", 0, 1000, 0, false},
		{"at the bound", MaxAmountCents, 1, MaxAmountCents, false},
		{"past the bound", MaxAmountCents, 2, 0, true},
		{"wraps int64", 1e18, 10, 0, true},
		{"wraps uint64", math.MaxInt64, math.MaxInt64, 0, true},
		{"negative", -1, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulCents(tt.cents, tt.quantity)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddCents(t *testing.T) {
	got, err := AddCents(100, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(350), got)

	_, err = AddCents(MaxAmountCents, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = AddCents(math.MaxInt64, math.MaxInt64)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMoney_Decimal(t *testing.T) {
	assert.Equal(t, "5.00", NewMoney(500, "").Decimal())
	assert.Equal(t, "0.05", NewMoney(5, "").Decimal())
	assert.Equal(t, "-1.25", NewMoney(-125, "").Decimal())
	assert.Equal(t, "12.34 EUR", NewMoney(1234, "eur").String())
}

func TestRemaining(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, Remaining(now.Add(30*time.Second), now))
	assert.Zero(t, Remaining(now.Add(-time.Second), now))
	assert.True(t, IsExpired(now, now))
	assert.False(t, IsExpired(time.Time{}, now))
}
