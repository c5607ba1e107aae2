package oxapay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/paysettle/paysettle/internal/application/checkout"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
)

const signatureHeader = "HMAC"

type callbackPayload struct {
	TrackID string `json:"track_id"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
}

// CallbackVerifier authenticates Oxapay callbacks. The HMAC header carries the
// hex HMAC-SHA512 of the raw body keyed with the merchant API key.
type CallbackVerifier struct {
	key []byte
}

func NewCallbackVerifier(merchantAPIKey string) *CallbackVerifier {
	return &CallbackVerifier{key: []byte(merchantAPIKey)}
}

var _ checkout.CallbackVerifier = (*CallbackVerifier)(nil)

func (v *CallbackVerifier) VerifyCallback(r *http.Request, body []byte) (*checkout.CallbackData, error) {
	if len(v.key) == 0 {
		return nil, fmt.Errorf("%w: merchant key not configured", checkout.ErrCallbackSignature)
	}
	got, err := hex.DecodeString(strings.TrimSpace(r.Header.Get(signatureHeader)))
	if err != nil || len(got) == 0 {
		return nil, checkout.ErrCallbackSignature
	}
	if !hmac.Equal(got, Sign(v.key, body)) {
		return nil, checkout.ErrCallbackSignature
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode oxapay callback: %w", err)
	}
	if payload.TrackID == "" {
		return nil, fmt.Errorf("oxapay callback missing track_id")
	}

	return &checkout.CallbackData{
		Provider:  vo.ProviderOxapay,
		TrackID:   payload.TrackID,
		State:     MapStatus(payload.Status),
		EventID:   payload.TrackID + ":" + strings.ToLower(payload.Status),
		RawStatus: payload.Status,
	}, nil
}

// Sign returns the raw HMAC-SHA512 of body.
func Sign(key, body []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}
