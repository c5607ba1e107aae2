package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// DefaultAmountTolerance is the fraction a crypto payment may fall short by.
const DefaultAmountTolerance = 0.005

// GatewayStatusReader reads the current status of a payment at its processor.
type GatewayStatusReader interface {
	Status(ctx context.Context, p *payment.Payment) (*GatewayStatus, error)
}

// VerifyInput is a paid report to be checked before settlement.
type VerifyInput struct {
	Payment  *payment.Payment
	Reported *GatewayStatus
	// Chain is the latest explorer observation, if any.
	Chain *ChainStatus
}

// Verification is the verdict on a paid report.
type Verification struct {
	Verified bool
	Reason   string
	TxID     string
}

// PaymentVerifier guards settlement against stale or forged paid reports.
type PaymentVerifier struct {
	gateway   GatewayStatusReader
	tolerance float64
	logger    logger.Interface
}

func NewPaymentVerifier(gateway GatewayStatusReader, tolerance float64, log logger.Interface) *PaymentVerifier {
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = DefaultAmountTolerance
	}
	return &PaymentVerifier{gateway: gateway, tolerance: tolerance, logger: log}
}

// Verify re-reads the processor and checks the amount and, when the chain
// tracker saw the same transaction, its confirmation depth.
func (v *PaymentVerifier) Verify(ctx context.Context, in VerifyInput) (*Verification, error) {
	if in.Payment == nil || in.Reported == nil {
		return nil, fmt.Errorf("payment and reported status are required")
	}
	txID := in.Reported.TxID
	if in.Reported.State != GatewayStatePaid || txID == "" {
		return rejected("report is not paid with a transaction id", txID), nil
	}

	current, err := v.gateway.Status(ctx, in.Payment)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read gateway status: %w", err)
	}
	if current.State != GatewayStatePaid {
		return rejected("gateway no longer reports paid: "+string(current.State), txID), nil
	}
	if current.TxID != txID {
		return rejected("transaction id changed between reads", txID), nil
	}

	if in.Payment.IsCrypto() {
		if reason := v.checkCryptoAmount(in.Payment, current); reason != "" {
			return rejected(reason, txID), nil
		}
		if reason := checkConfirmations(in.Payment, in.Chain, txID); reason != "" {
			return rejected(reason, txID), nil
		}
	} else if current.AmountCents > 0 && current.AmountCents < in.Payment.Amount().AmountInCents() {
		return rejected(fmt.Sprintf("captured %d cents, expected %d", current.AmountCents, in.Payment.Amount().AmountInCents()), txID), nil
	}

	return &Verification{Verified: true, TxID: txID}, nil
}

func (v *PaymentVerifier) checkCryptoAmount(p *payment.Payment, current *GatewayStatus) string {
	expected, okExpected := parsePositive(deref(p.CryptoAmount()))
	paid, okPaid := parsePositive(current.PayAmount)
	if !okExpected || !okPaid {
		return ""
	}
	if paid < expected*(1-v.tolerance) {
		return fmt.Sprintf("paid %s, expected %s", current.PayAmount, deref(p.CryptoAmount()))
	}
	return ""
}

func checkConfirmations(p *payment.Payment, chain *ChainStatus, txID string) string {
	if chain == nil || chain.TxID == "" || !strings.EqualFold(chain.TxID, txID) {
		return ""
	}
	cm, err := vo.ResolveCryptoMethod(p.Method())
	if err != nil {
		return ""
	}
	required := cm.Chain.RequiredConfirmations()
	if chain.Confirmations < required {
		return fmt.Sprintf("%d of %d confirmations", chain.Confirmations, required)
	}
	return ""
}

func parsePositive(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func rejected(reason, txID string) *Verification {
	return &Verification{Verified: false, Reason: reason, TxID: txID}
}
