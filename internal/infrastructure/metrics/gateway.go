package metrics

import (
	"context"
	"errors"

	"github.com/paysettle/paysettle/internal/application/checkout"
)

const (
	resultOK          = "ok"
	resultError       = "error"
	resultUnavailable = "unavailable"
)

func outcome(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, checkout.ErrWhiteLabelUnavailable):
		return resultUnavailable
	default:
		return resultError
	}
}

type instrumentedRedirect struct {
	next     checkout.RedirectGateway
	provider string
	rec      *Recorder
}

// InstrumentRedirect counts every call made through g.
func InstrumentRedirect(g checkout.RedirectGateway, provider string, rec *Recorder) checkout.RedirectGateway {
	return &instrumentedRedirect{next: g, provider: provider, rec: rec}
}

func (g *instrumentedRedirect) CreateCheckout(ctx context.Context, req checkout.RedirectRequest) (*checkout.RedirectResult, error) {
	res, err := g.next.CreateCheckout(ctx, req)
	g.rec.GatewayRequest(g.provider, "create_checkout", outcome(err))
	return res, err
}

func (g *instrumentedRedirect) Status(ctx context.Context, trackID string) (*checkout.GatewayStatus, error) {
	st, err := g.next.Status(ctx, trackID)
	g.rec.GatewayRequest(g.provider, "status", outcome(err))
	return st, err
}

type instrumentedCrypto struct {
	next     checkout.CryptoGateway
	provider string
	rec      *Recorder
}

// InstrumentCrypto counts every call made through g.
func InstrumentCrypto(g checkout.CryptoGateway, provider string, rec *Recorder) checkout.CryptoGateway {
	return &instrumentedCrypto{next: g, provider: provider, rec: rec}
}

func (g *instrumentedCrypto) CreateWhiteLabel(ctx context.Context, req checkout.InvoiceRequest) (*checkout.InvoiceResult, error) {
	res, err := g.next.CreateWhiteLabel(ctx, req)
	g.rec.GatewayRequest(g.provider, "create_white_label", outcome(err))
	return res, err
}

func (g *instrumentedCrypto) CreateInvoice(ctx context.Context, req checkout.InvoiceRequest) (*checkout.InvoiceResult, error) {
	res, err := g.next.CreateInvoice(ctx, req)
	g.rec.GatewayRequest(g.provider, "create_invoice", outcome(err))
	return res, err
}

func (g *instrumentedCrypto) Status(ctx context.Context, trackID string) (*checkout.GatewayStatus, error) {
	st, err := g.next.Status(ctx, trackID)
	g.rec.GatewayRequest(g.provider, "status", outcome(err))
	return st, err
}
