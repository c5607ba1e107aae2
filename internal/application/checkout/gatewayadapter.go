package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/paysettle/paysettle/internal/domain/order"
	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	apperrors "github.com/paysettle/paysettle/internal/shared/errors"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// Metadata keys stored on crypto payments.
const (
	metaComputedAmount = "computed_amount"
	metaHostedInvoice  = "hosted_invoice"
)

const defaultInvoiceLifetime = 60 * time.Minute

// GatewayAdapterConfig holds the URLs handed to processors.
type GatewayAdapterConfig struct {
	// StorefrontURL receives buyers returning from hosted pages.
	StorefrontURL string
	// CallbackBaseURL is this service's public base URL for webhooks.
	CallbackBaseURL string
	InvoiceLifetime time.Duration
}

// Intent is a payment intent ready to be shown to the payer.
type Intent struct {
	PaymentID  uint
	PaymentNo  string
	Provider   vo.Provider
	Method     string
	TrackID    string
	PayLink    string
	IsRedirect bool
	Crypto     *CryptoDetails
	ExpiresAt  time.Time
	// Reused is true when a still-valid earlier intent was returned.
	Reused bool

	payment *payment.Payment
}

// GatewayAdapter hides the differences between the fiat and crypto processors
// behind one create/status pair and records every intent as a Payment.
type GatewayAdapter struct {
	redirect   RedirectGateway
	crypto     CryptoGateway
	conversion *ConversionService
	qr         QRCodeRenderer
	payments   payment.PaymentRepository
	cfg        GatewayAdapterConfig
	logger     logger.Interface
}

func NewGatewayAdapter(
	redirect RedirectGateway,
	crypto CryptoGateway,
	conversion *ConversionService,
	qr QRCodeRenderer,
	payments payment.PaymentRepository,
	cfg GatewayAdapterConfig,
	log logger.Interface,
) *GatewayAdapter {
	if cfg.InvoiceLifetime <= 0 {
		cfg.InvoiceLifetime = defaultInvoiceLifetime
	}
	return &GatewayAdapter{
		redirect:   redirect,
		crypto:     crypto,
		conversion: conversion,
		qr:         qr,
		payments:   payments,
		cfg:        cfg,
		logger:     log,
	}
}

// ProviderForMethod routes a storefront method to its processor. Card payments go
// to the redirect processor; every other method is a crypto label.
func ProviderForMethod(method string) vo.Provider {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "card", "stripe", "fiat":
		return vo.ProviderStripe
	default:
		return vo.ProviderOxapay
	}
}

// CreateIntent opens a payment intent for the order's current total. A pending,
// unexpired intent for the same method and amount is reused.
func (a *GatewayAdapter) CreateIntent(ctx context.Context, o *order.Order, method string) (*Intent, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, apperrors.NewValidationError("payment method is required")
	}

	provider := ProviderForMethod(method)
	var cryptoMethod vo.CryptoMethod
	if provider == vo.ProviderOxapay {
		cm, err := vo.ResolveCryptoMethod(method)
		if err != nil {
			return nil, apperrors.NewValidationError("unsupported payment method", err.Error())
		}
		cryptoMethod = cm
		method = cm.Label
	} else {
		method = "card"
	}

	if intent := a.reusable(ctx, o, provider, method); intent != nil {
		return intent, nil
	}

	if provider == vo.ProviderStripe {
		return a.createRedirect(ctx, o, method)
	}
	return a.createCrypto(ctx, o, cryptoMethod)
}

func (a *GatewayAdapter) reusable(ctx context.Context, o *order.Order, provider vo.Provider, method string) *Intent {
	p, err := a.payments.GetLatestByOrderID(ctx, o.ID())
	if err != nil {
		if !errors.Is(err, payment.ErrPaymentNotFound) {
			a.logger.Warnw("failed to look up previous payment", "order_id", o.ID(), "error", err)
		}
		return nil
	}
	if !p.IsReusableFor(provider, method, o.Total(), biztime.NowUTC()) {
		return nil
	}

	a.logger.Infow("reusing pending payment",
		"order_id", o.ID(),
		"payment_id", p.ID(),
		"track_id", deref(p.TrackID()),
	)
	intent := a.intentFromPayment(p)
	intent.Reused = true
	return intent
}

func (a *GatewayAdapter) createRedirect(ctx context.Context, o *order.Order, method string) (*Intent, error) {
	if a.redirect == nil {
		return nil, apperrors.NewBadRequestError("card payments are not available")
	}

	expiresAt := biztime.NowUTC().Add(a.cfg.InvoiceLifetime)
	res, err := a.redirect.CreateCheckout(ctx, RedirectRequest{
		OrderNo:     o.OrderNo(),
		Email:       o.Email(),
		Title:       "Order " + o.OrderNo(),
		AmountCents: o.Total().AmountInCents(),
		Currency:    o.Currency(),
		SuccessURL:  a.storefrontURL("/checkout/success", o.OrderNo()),
		CancelURL:   a.storefrontURL("/checkout/cancel", o.OrderNo()),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		a.logger.Warnw("failed to create checkout session",
			"order_no", o.OrderNo(),
			"error", err,
		)
		return nil, apperrors.NewGatewayCreateFailedError("failed to create payment, please try again")
	}
	if !res.ExpiresAt.IsZero() {
		expiresAt = res.ExpiresAt
	}

	p, err := payment.NewPayment(o.ID(), vo.ProviderStripe, method, o.Total(), expiresAt)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create payment", err.Error())
	}
	p.SetGatewayInfo(res.TrackID, res.PayLink, "")

	if err := a.record(ctx, p, res.TrackID); err != nil {
		return nil, err
	}
	return a.intentFromPayment(p), nil
}

func (a *GatewayAdapter) createCrypto(ctx context.Context, o *order.Order, cm vo.CryptoMethod) (*Intent, error) {
	if a.crypto == nil {
		return nil, apperrors.NewBadRequestError("crypto payments are not available")
	}

	conv, err := a.conversion.Convert(ctx, o.Total(), cm.PayCurrency)
	if err != nil {
		a.logger.Warnw("failed to convert order total",
			"order_no", o.OrderNo(),
			"pay_currency", cm.PayCurrency,
			"error", err,
		)
		return nil, apperrors.NewGatewayCreateFailedError("failed to price payment, please try again")
	}

	req := InvoiceRequest{
		OrderNo:         o.OrderNo(),
		Email:           o.Email(),
		Description:     "Order " + o.OrderNo(),
		Amount:          o.Total().Decimal(),
		Currency:        o.Currency(),
		PayCurrency:     cm.PayCurrency,
		Network:         cm.GatewayNetwork,
		CallbackURL:     strings.TrimRight(a.cfg.CallbackBaseURL, "/") + "/webhooks/oxapay",
		ReturnURL:       a.storefrontURL("/checkout/success", o.OrderNo()),
		LifetimeMinutes: int(a.cfg.InvoiceLifetime / time.Minute),
	}

	hosted := false
	res, err := a.crypto.CreateWhiteLabel(ctx, req)
	if errors.Is(err, ErrWhiteLabelUnavailable) {
		a.logger.Infow("white-label unavailable, falling back to hosted invoice",
			"order_no", o.OrderNo(),
			"pay_currency", cm.PayCurrency,
			"network", cm.GatewayNetwork,
		)
		hosted = true
		res, err = a.crypto.CreateInvoice(ctx, req)
	}
	if err != nil {
		a.logger.Warnw("failed to create crypto invoice",
			"order_no", o.OrderNo(),
			"method", cm.Label,
			"error", err,
		)
		return nil, apperrors.NewGatewayCreateFailedError("failed to create payment, please try again")
	}

	amount, corrected := CorrectAmount(res.PayAmount, cm.PayCurrency, o.Total(), conv.CryptoAmount)
	if corrected {
		a.logger.Infow("replaced placeholder crypto amount",
			"order_no", o.OrderNo(),
			"gateway_amount", res.PayAmount,
			"amount", amount,
		)
	}

	rate := conv.USDPrice
	if res.Rate > 0 {
		rate = res.Rate
	}
	details := &CryptoDetails{
		Address:      res.Address,
		Amount:       amount,
		TrackID:      res.TrackID,
		ExpiresAt:    res.ExpiresAt,
		PayCurrency:  firstNonEmpty(res.PayCurrency, cm.PayCurrency),
		Network:      firstNonEmpty(res.Network, cm.GatewayNetwork),
		PayLink:      res.PayLink,
		ExchangeRate: &rate,
	}
	if details.Address != "" {
		details.QRPayload = QRPayload(cm, details.Address, details.Amount)
		details.QRCodeURL = res.QRCode
		if details.QRCodeURL == "" {
			details.QRCodeURL = a.renderQR(details.QRPayload)
		}
	}

	p, err := payment.NewPayment(o.ID(), vo.ProviderOxapay, cm.Label, o.Total(), res.ExpiresAt)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create payment", err.Error())
	}
	p.SetGatewayInfo(res.TrackID, res.PayLink, details.QRPayload)
	p.SetCryptoInfo(payment.CryptoInfo{
		Address:      details.Address,
		PayCurrency:  details.PayCurrency,
		Network:      details.Network,
		Amount:       details.Amount,
		ExchangeRate: details.ExchangeRate,
	})
	p.SetMetadata(metaComputedAmount, conv.CryptoAmount)
	p.SetMetadata(metaHostedInvoice, hosted)

	if err := a.record(ctx, p, res.TrackID); err != nil {
		return nil, err
	}

	intent := a.intentFromPayment(p)
	intent.IsRedirect = hosted
	intent.Crypto = details
	if details.ExpiresAt.IsZero() {
		details.ExpiresAt = p.ExpiresAt()
	}
	return intent, nil
}

// record persists a payment the gateway has already accepted. A failure here
// leaves an orphaned invoice, so it is logged with the track id for manual follow-up.
func (a *GatewayAdapter) record(ctx context.Context, p *payment.Payment, trackID string) error {
	if err := a.payments.Create(ctx, p); err != nil {
		a.logger.Errorw("failed to record payment accepted by gateway",
			"order_id", p.OrderID(),
			"provider", p.Provider(),
			"track_id", trackID,
			"error", err,
		)
		return apperrors.NewPaymentRecordFailedError(
			"payment could not be recorded, please contact support",
			"track_id "+trackID,
		)
	}
	return nil
}

// Status queries the processor holding the payment.
func (a *GatewayAdapter) Status(ctx context.Context, p *payment.Payment) (*GatewayStatus, error) {
	trackID := deref(p.TrackID())
	if trackID == "" {
		return nil, fmt.Errorf("payment %d has no track id", p.ID())
	}

	switch p.Provider() {
	case vo.ProviderStripe:
		if a.redirect == nil {
			return nil, fmt.Errorf("redirect gateway not configured")
		}
		return a.redirect.Status(ctx, trackID)
	case vo.ProviderOxapay:
		if a.crypto == nil {
			return nil, fmt.Errorf("crypto gateway not configured")
		}
		return a.crypto.Status(ctx, trackID)
	default:
		return nil, fmt.Errorf("provider %s has no status endpoint", p.Provider())
	}
}

func (a *GatewayAdapter) intentFromPayment(p *payment.Payment) *Intent {
	intent := &Intent{
		PaymentID:  p.ID(),
		PaymentNo:  p.PaymentNo(),
		Provider:   p.Provider(),
		Method:     p.Method(),
		TrackID:    deref(p.TrackID()),
		PayLink:    deref(p.PaymentURL()),
		IsRedirect: p.Provider() == vo.ProviderStripe,
		ExpiresAt:  p.ExpiresAt(),
		payment:    p,
	}
	if !p.IsCrypto() {
		return intent
	}

	if hosted, ok := p.Metadata()[metaHostedInvoice].(bool); ok {
		intent.IsRedirect = hosted
	}
	details := &CryptoDetails{
		Address:      deref(p.CryptoAddress()),
		Amount:       deref(p.CryptoAmount()),
		TrackID:      intent.TrackID,
		QRPayload:    deref(p.QRCode()),
		ExpiresAt:    p.ExpiresAt(),
		PayCurrency:  deref(p.PayCurrency()),
		Network:      deref(p.Network()),
		PayLink:      intent.PayLink,
		ExchangeRate: p.ExchangeRate(),
	}
	if details.QRPayload != "" {
		details.QRCodeURL = a.renderQR(details.QRPayload)
	}
	intent.Crypto = details
	return intent
}

func (a *GatewayAdapter) renderQR(payload string) string {
	if a.qr == nil || payload == "" {
		return ""
	}
	dataURL, err := a.qr.DataURL(payload)
	if err != nil {
		a.logger.Warnw("failed to render QR code", "error", err)
		return ""
	}
	return dataURL
}

func (a *GatewayAdapter) storefrontURL(path, orderNo string) string {
	base := strings.TrimRight(a.cfg.StorefrontURL, "/")
	return base + path + "?order_no=" + url.QueryEscape(orderNo)
}

// uriSchemes are the BIP21-style schemes wallets understand for native coins.
var uriSchemes = map[vo.ChainType]string{
	vo.ChainTypeBitcoin:     "bitcoin",
	vo.ChainTypeLitecoin:    "litecoin",
	vo.ChainTypeDogecoin:    "dogecoin",
	vo.ChainTypeBitcoinCash: "bitcoincash",
}

// QRPayload is what the payer's wallet scans: a payment URI for native UTXO
// coins, the bare address otherwise.
func QRPayload(cm vo.CryptoMethod, address, amount string) string {
	scheme, ok := uriSchemes[cm.Chain]
	if !ok || cm.Token {
		return address
	}
	address = strings.TrimPrefix(address, scheme+":")
	if amount == "" {
		return scheme + ":" + address
	}
	return fmt.Sprintf("%s:%s?amount=%s", scheme, address, amount)
}

// refineFromStatus folds a status report into the deposit instructions and
// re-applies placeholder correction to the amount.
func refineFromStatus(d *CryptoDetails, st *GatewayStatus, fiatTotal shared.Money, computed string) {
	if d == nil || st == nil {
		return
	}
	d.Refine(CryptoDetails{
		Address:     st.Address,
		Amount:      st.PayAmount,
		PayCurrency: st.PayCurrency,
	})
	if amount, corrected := CorrectAmount(d.Amount, d.PayCurrency, fiatTotal, computed); corrected {
		d.Amount = amount
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
