package stripe

import (
	"encoding/json"
	"fmt"
	"net/http"

	stripego "github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/paysettle/paysettle/internal/application/checkout"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
)

const signatureHeader = "Stripe-Signature"

// WebhookVerifier authenticates Stripe webhook deliveries with the endpoint signing secret.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

var _ checkout.CallbackVerifier = (*WebhookVerifier)(nil)

// VerifyCallback checks the signature and extracts the checkout session id.
// Events not about checkout sessions come back with an empty TrackID.
func (v *WebhookVerifier) VerifyCallback(r *http.Request, body []byte) (*checkout.CallbackData, error) {
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get(signatureHeader), v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", checkout.ErrCallbackSignature, err)
	}

	data := &checkout.CallbackData{
		Provider:  vo.ProviderStripe,
		EventID:   event.ID,
		RawStatus: string(event.Type),
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		data.State = checkout.GatewayStatePaid
	case "checkout.session.expired":
		data.State = checkout.GatewayStateExpired
	case "checkout.session.async_payment_failed":
		data.State = checkout.GatewayStateFailed
	default:
		return data, nil
	}

	var sess stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if sess.PaymentStatus != "" && sess.PaymentStatus != stripego.CheckoutSessionPaymentStatusPaid &&
		data.State == checkout.GatewayStatePaid {
		// completed with a delayed method; the async events settle it
		data.State = checkout.GatewayStatePending
	}
	data.TrackID = sess.ID
	return data, nil
}
