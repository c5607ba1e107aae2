package blockchain

import (
	"fmt"
	"strings"
	"time"

	"github.com/paysettle/paysettle/internal/application/checkout"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
)

const (
	// HTTP request timeout shared by all explorers
	requestTimeout = 15 * time.Second
	// Maximum response body size for blockchain API (1MB)
	maxBlockchainResponseSize = 1 << 20
	// Allow 30 seconds buffer for clock skew between system and blockchain
	clockSkewBuffer = 30 * time.Second
)

// deposit is one incoming transfer seen by an explorer.
type deposit struct {
	txID          string
	amount        string
	confirmations int
	at            time.Time
}

// observe turns the best deposit found for an address into a ChainStatus.
// A nil deposit means nothing arrived yet.
func observe(chain vo.ChainType, d *deposit) *checkout.ChainStatus {
	if d == nil {
		return &checkout.ChainStatus{State: checkout.ChainStateWaiting}
	}
	state := checkout.ChainStateDetected
	if d.confirmations >= chain.RequiredConfirmations() {
		state = checkout.ChainStateConfirmed
	}
	return &checkout.ChainStatus{
		Detected:      true,
		Confirmations: d.confirmations,
		TxID:          d.txID,
		Amount:        d.amount,
		State:         state,
	}
}

// better reports whether candidate should replace current as the deposit of record.
func better(candidate, current *deposit) bool {
	if current == nil {
		return true
	}
	return candidate.confirmations > current.confirmations
}

// tooOld reports whether a transfer made at t predates the order.
func tooOld(t, minTimestamp time.Time) bool {
	return !minTimestamp.IsZero() && !t.IsZero() && t.Before(minTimestamp.Add(-clockSkewBuffer))
}

// formatUnits renders an integer amount in the smallest unit as a decimal string.
func formatUnits(raw string, decimals int) (string, error) {
	raw = strings.TrimLeft(strings.TrimSpace(raw), "0")
	if raw == "" {
		return "0", nil
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid amount: %s", raw)
		}
	}
	if decimals <= 0 {
		return raw, nil
	}
	if len(raw) <= decimals {
		raw = strings.Repeat("0", decimals-len(raw)+1) + raw
	}
	whole, frac := raw[:len(raw)-decimals], strings.TrimRight(raw[len(raw)-decimals:], "0")
	if frac == "" {
		return whole, nil
	}
	return whole + "." + frac, nil
}

func unsupported(chain vo.ChainType, currency string) error {
	return fmt.Errorf("%w: %s on %s", checkout.ErrUnsupportedChain, currency, chain)
}
