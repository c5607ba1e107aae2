// Package oxapay implements the crypto rail on the Oxapay merchant API.
package oxapay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

const (
	defaultBaseURL  = "https://api.oxapay.com"
	apiKeyHeader    = "merchant_api_key"
	requestTimeout  = 15 * time.Second
	defaultLifetime = 60
	// Maximum response body size (256KB)
	maxResponseSize = 256 << 10
)

// unsupportedKeys are error keys Oxapay returns when a white-label invoice
// cannot be issued for the requested coin or network.
var unsupportedKeys = map[string]bool{
	"invalid_pay_currency":     true,
	"not_supported_currency":   true,
	"invalid_network":          true,
	"not_supported_network":    true,
	"white_label_not_allowed":  true,
	"pay_currency_not_enabled": true,
}

// Config configures the Oxapay client.
type Config struct {
	MerchantAPIKey   string
	BaseURL          string
	LifetimeMinutes  int
	UnderPaidPercent int
	Sandbox          bool
}

// Client is a checkout.CryptoGateway backed by the Oxapay v1 API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     logger.Interface
}

func NewClient(cfg Config, logger logger.Interface) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LifetimeMinutes <= 0 {
		cfg.LifetimeMinutes = defaultLifetime
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

var _ checkout.CryptoGateway = (*Client)(nil)

// APIError is a non-success answer from Oxapay.
type APIError struct {
	Status  int
	Key     string
	Message string
}

func (e *APIError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("oxapay error %d (%s): %s", e.Status, e.Key, e.Message)
	}
	return fmt.Sprintf("oxapay error %d: %s", e.Status, e.Message)
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  int             `json:"status"`
	Error   struct {
		Type    string `json:"type"`
		Key     string `json:"key"`
		Message string `json:"message"`
	} `json:"error"`
}

type invoiceBody struct {
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency,omitempty"`
	PayCurrency       string      `json:"pay_currency,omitempty"`
	Network           string      `json:"network,omitempty"`
	Lifetime          int         `json:"lifetime"`
	FeePaidByPayer    int         `json:"fee_paid_by_payer"`
	UnderPaidCoverage int         `json:"under_paid_coverage,omitempty"`
	CallbackURL       string      `json:"callback_url,omitempty"`
	ReturnURL         string      `json:"return_url,omitempty"`
	Email             string      `json:"email,omitempty"`
	OrderID           string      `json:"order_id"`
	Description       string      `json:"description,omitempty"`
	Sandbox           bool        `json:"sandbox,omitempty"`
}

type whiteLabelData struct {
	TrackID     string      `json:"track_id"`
	Amount      amount `json:"amount"`
	Currency    string `json:"currency"`
	PayAmount   amount `json:"pay_amount"`
	PayCurrency string `json:"pay_currency"`
	Network     string `json:"network"`
	Address     string `json:"address"`
	Rate        amount `json:"rate"`
	QRCode      string `json:"qr_code"`
	ExpiredAt   int64  `json:"expired_at"`
}

// amount is a decimal Oxapay sends as a string, a number, an empty string or
// null. It is kept verbatim; callers parse and validate it.
type amount string

func (a *amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amount(strings.TrimSpace(s))
		return nil
	}
	*a = amount(b)
	return nil
}

func (a amount) String() string {
	return string(a)
}

// Float64 parses the amount; ok is false when it is empty or not a finite number.
func (a amount) Float64() (float64, bool) {
	v, err := strconv.ParseFloat(string(a), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

type invoiceData struct {
	TrackID    string `json:"track_id"`
	PaymentURL string `json:"payment_url"`
	ExpiredAt  int64  `json:"expired_at"`
}

type paymentTx struct {
	TxHash        string `json:"tx_hash"`
	Amount        amount `json:"amount"`
	Currency      string `json:"currency"`
	Network       string `json:"network"`
	Address       string `json:"address"`
	Status        string `json:"status"`
	Confirmations int    `json:"confirmations"`
}

type paymentData struct {
	TrackID  string      `json:"track_id"`
	Status   string      `json:"status"`
	Amount   amount      `json:"amount"`
	Currency string      `json:"currency"`
	Txs      []paymentTx `json:"txs"`
}

// CreateWhiteLabel asks for raw deposit instructions. It returns an error
// wrapping checkout.ErrWhiteLabelUnavailable when the coin cannot be shown that way.
func (c *Client) CreateWhiteLabel(ctx context.Context, req checkout.InvoiceRequest) (*checkout.InvoiceResult, error) {
	var data whiteLabelData
	err := c.do(ctx, http.MethodPost, "/v1/payment/white-label", c.body(req, true), &data)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (unsupportedKeys[apiErr.Key] || strings.Contains(strings.ToLower(apiErr.Message), "not supported")) {
			return nil, fmt.Errorf("%w: %v", checkout.ErrWhiteLabelUnavailable, err)
		}
		return nil, err
	}
	if data.TrackID == "" || data.Address == "" {
		return nil, fmt.Errorf("oxapay white-label response missing track id or address")
	}

	rate, _ := data.Rate.Float64()
	c.logger.Infow("oxapay white-label invoice created",
		"order_no", req.OrderNo,
		"track_id", data.TrackID,
		"pay_currency", data.PayCurrency,
		"network", data.Network,
	)
	return &checkout.InvoiceResult{
		TrackID:     data.TrackID,
		Address:     data.Address,
		PayAmount:   data.PayAmount.String(),
		PayCurrency: data.PayCurrency,
		Network:     data.Network,
		QRCode:      data.QRCode,
		Rate:        rate,
		ExpiresAt:   unixOrZero(data.ExpiredAt),
	}, nil
}

// CreateInvoice creates a hosted invoice the buyer completes on Oxapay's page.
func (c *Client) CreateInvoice(ctx context.Context, req checkout.InvoiceRequest) (*checkout.InvoiceResult, error) {
	var data invoiceData
	if err := c.do(ctx, http.MethodPost, "/v1/payment/invoice", c.body(req, false), &data); err != nil {
		return nil, err
	}
	if data.TrackID == "" || data.PaymentURL == "" {
		return nil, fmt.Errorf("oxapay invoice response missing track id or payment url")
	}

	c.logger.Infow("oxapay hosted invoice created",
		"order_no", req.OrderNo,
		"track_id", data.TrackID,
	)
	return &checkout.InvoiceResult{
		TrackID:     data.TrackID,
		PayLink:     data.PaymentURL,
		PayCurrency: req.PayCurrency,
		Network:     req.Network,
		ExpiresAt:   unixOrZero(data.ExpiredAt),
	}, nil
}

// Status reads the payment information of a track id.
func (c *Client) Status(ctx context.Context, trackID string) (*checkout.GatewayStatus, error) {
	var data paymentData
	if err := c.do(ctx, http.MethodGet, "/v1/payment/"+url.PathEscape(trackID), nil, &data); err != nil {
		return nil, err
	}

	st := &checkout.GatewayStatus{
		State:     MapStatus(data.Status),
		Currency:  data.Currency,
		RawStatus: data.Status,
	}
	applyTxs(st, data.Txs)
	return st, nil
}

// MapStatus normalizes an Oxapay payment status.
func MapStatus(status string) checkout.GatewayState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "confirming":
		return checkout.GatewayStateConfirming
	case "paid", "manual_accept":
		return checkout.GatewayStatePaid
	case "expired":
		return checkout.GatewayStateExpired
	case "refunding", "refunded", "failed":
		return checkout.GatewayStateFailed
	default:
		// new, waiting, paying, underpaid
		return checkout.GatewayStatePending
	}
}

// applyTxs fills the transaction id, deposit address and received amount.
// A confirmed transaction is preferred for the id.
func applyTxs(st *checkout.GatewayStatus, txs []paymentTx) {
	if len(txs) == 0 {
		return
	}
	var (
		total float64
		exact string
	)
	for i, tx := range txs {
		if st.TxID == "" || strings.EqualFold(tx.Status, "confirmed") {
			st.TxID = tx.TxHash
		}
		if st.Address == "" {
			st.Address = tx.Address
			st.PayCurrency = tx.Currency
		}
		if v, ok := tx.Amount.Float64(); ok {
			total += v
		}
		if i == 0 {
			exact = tx.Amount.String()
		}
	}
	if len(txs) == 1 {
		st.PayAmount = exact
	} else {
		st.PayAmount = strconv.FormatFloat(total, 'f', 8, 64)
	}
}

func (c *Client) body(req checkout.InvoiceRequest, whiteLabel bool) invoiceBody {
	lifetime := req.LifetimeMinutes
	if lifetime <= 0 {
		lifetime = c.cfg.LifetimeMinutes
	}
	b := invoiceBody{
		Amount:            json.Number(req.Amount),
		Currency:          req.Currency,
		Lifetime:          lifetime,
		UnderPaidCoverage: c.cfg.UnderPaidPercent,
		CallbackURL:       req.CallbackURL,
		ReturnURL:         req.ReturnURL,
		Email:             req.Email,
		OrderID:           req.OrderNo,
		Description:       req.Description,
		Sandbox:           c.cfg.Sandbox,
	}
	if whiteLabel {
		b.PayCurrency = req.PayCurrency
		b.Network = req.Network
		b.ReturnURL = ""
	}
	return b
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.cfg.MerchantAPIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oxapay request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode oxapay response (http %d): %w", resp.StatusCode, err)
	}

	status := env.Status
	if status == 0 {
		status = resp.StatusCode
	}
	if status != http.StatusOK || resp.StatusCode != http.StatusOK {
		msg := env.Error.Message
		if msg == "" {
			msg = env.Message
		}
		return &APIError{Status: status, Key: env.Error.Key, Message: msg}
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode oxapay data: %w", err)
	}
	return nil
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
