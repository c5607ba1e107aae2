// Package stripe implements the fiat rail on Stripe Checkout.
package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

const (
	// Stripe only accepts session expiries between 30 minutes and 24 hours out.
	minSessionLifetime = 30 * time.Minute
	maxSessionLifetime = 24 * time.Hour
)

// sessionAPI is the part of the Checkout Sessions API the gateway calls.
type sessionAPI interface {
	New(params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
	Get(id string, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
}

type liveSessions struct{}

func (liveSessions) New(params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error) {
	return session.New(params)
}

func (liveSessions) Get(id string, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error) {
	return session.Get(id, params)
}

// Gateway is a checkout.RedirectGateway backed by Stripe Checkout Sessions.
type Gateway struct {
	sessions sessionAPI
	logger   logger.Interface
}

// NewGateway configures the Stripe client with secretKey.
func NewGateway(secretKey string, logger logger.Interface) *Gateway {
	stripego.Key = secretKey
	return &Gateway{sessions: liveSessions{}, logger: logger}
}

var _ checkout.RedirectGateway = (*Gateway)(nil)

// CreateCheckout opens a one-line hosted checkout for the order total.
func (g *Gateway) CreateCheckout(ctx context.Context, req checkout.RedirectRequest) (*checkout.RedirectResult, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("stripe checkout amount must be positive, got %d", req.AmountCents)
	}
	title := req.Title
	if title == "" {
		title = "Order " + req.OrderNo
	}

	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.OrderNo),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
					Currency: stripego.String(strings.ToLower(req.Currency)),
					ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripego.String(title),
					},
					UnitAmount: stripego.Int64(req.AmountCents),
				},
				Quantity: stripego.Int64(1),
			},
		},
		ExpiresAt: stripego.Int64(sessionExpiry(req.ExpiresAt, biztime.NowUTC()).Unix()),
	}
	if req.Email != "" {
		params.CustomerEmail = stripego.String(req.Email)
	}
	params.AddMetadata("order_no", req.OrderNo)
	params.Context = ctx

	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}

	g.logger.Infow("stripe checkout session created",
		"order_no", req.OrderNo,
		"session_id", sess.ID,
		"amount_cents", req.AmountCents,
	)

	return &checkout.RedirectResult{
		TrackID:   sess.ID,
		PayLink:   sess.URL,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

// Status re-reads a checkout session.
func (g *Gateway) Status(ctx context.Context, trackID string) (*checkout.GatewayStatus, error) {
	sess, err := g.sessions.Get(trackID, &stripego.CheckoutSessionParams{Params: stripego.Params{Context: ctx}})
	if err != nil {
		return nil, fmt.Errorf("failed to get stripe checkout session: %w", err)
	}
	return sessionStatus(sess), nil
}

func sessionStatus(sess *stripego.CheckoutSession) *checkout.GatewayStatus {
	st := &checkout.GatewayStatus{
		State:       checkout.GatewayStatePending,
		AmountCents: sess.AmountTotal,
		Currency:    strings.ToUpper(string(sess.Currency)),
		RawStatus:   string(sess.Status) + "/" + string(sess.PaymentStatus),
	}
	switch {
	case sess.PaymentStatus == stripego.CheckoutSessionPaymentStatusPaid:
		st.State = checkout.GatewayStatePaid
		if sess.PaymentIntent != nil {
			st.TxID = sess.PaymentIntent.ID
		}
	case sess.Status == stripego.CheckoutSessionStatusExpired:
		st.State = checkout.GatewayStateExpired
	}
	return st
}

func sessionExpiry(want, now time.Time) time.Time {
	switch {
	case want.IsZero(), want.Before(now.Add(minSessionLifetime)):
		return now.Add(minSessionLifetime)
	case want.After(now.Add(maxSessionLifetime)):
		return now.Add(maxSessionLifetime)
	default:
		return want
	}
}
