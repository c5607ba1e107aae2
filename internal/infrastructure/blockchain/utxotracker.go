package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paysettle/paysettle/internal/application/checkout"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

const (
	blockcypherAPIURL = "https://api.blockcypher.com"
	utxoDecimals      = 8
	utxoRefLimit      = 50
)

// blockcypherCoins maps a chain to its BlockCypher coin path.
var blockcypherCoins = map[vo.ChainType]string{
	vo.ChainTypeBitcoin:  "btc",
	vo.ChainTypeLitecoin: "ltc",
	vo.ChainTypeDogecoin: "doge",
}

type blockcypherTxRef struct {
	TxHash        string    `json:"tx_hash"`
	BlockHeight   int64     `json:"block_height"`
	TxInputN      int       `json:"tx_input_n"`
	TxOutputN     int       `json:"tx_output_n"`
	Value         int64     `json:"value"`
	Confirmations int       `json:"confirmations"`
	Confirmed     time.Time `json:"confirmed"`
	Received      time.Time `json:"received"`
	DoubleSpend   bool      `json:"double_spend"`
}

type blockcypherAddress struct {
	Address           string             `json:"address"`
	TxRefs            []blockcypherTxRef `json:"txrefs"`
	UnconfirmedTxRefs []blockcypherTxRef `json:"unconfirmed_txrefs"`
	Error             string             `json:"error"`
}

// UTXOTracker looks up Bitcoin, Litecoin and Dogecoin deposits through BlockCypher.
type UTXOTracker struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     logger.Interface
}

// NewUTXOTracker creates a new BlockCypher deposit tracker. The token is optional.
func NewUTXOTracker(token, baseURL string, logger logger.Interface) *UTXOTracker {
	if baseURL == "" {
		baseURL = blockcypherAPIURL
	}
	return &UTXOTracker{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

var _ checkout.StatusTracker = (*UTXOTracker)(nil)

// Track returns the incoming output to q.Address with the most confirmations.
func (t *UTXOTracker) Track(ctx context.Context, q checkout.TrackQuery) (*checkout.ChainStatus, error) {
	coin, ok := blockcypherCoins[q.Chain]
	if !ok {
		return nil, unsupported(q.Chain, q.Currency)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(utxoRefLimit))
	if t.token != "" {
		params.Set("token", t.token)
	}
	endpoint := fmt.Sprintf("%s/v1/%s/main/addrs/%s?%s", t.baseURL, coin, url.PathEscape(q.Address), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch address: %w", err)
	}
	defer resp.Body.Close()

	var addr blockcypherAddress
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBlockchainResponseSize)).Decode(&addr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if addr.Error != "" {
			return nil, fmt.Errorf("BlockCypher API error: %s", addr.Error)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var best *deposit
	refs := append(append([]blockcypherTxRef{}, addr.UnconfirmedTxRefs...), addr.TxRefs...)
	for _, ref := range refs {
		// Only outputs credit the address; tx_input_n is -1 for them
		if ref.TxInputN != -1 || ref.DoubleSpend {
			continue
		}
		at := ref.Confirmed
		if at.IsZero() {
			at = ref.Received
		}
		if tooOld(at, q.MinTimestamp) {
			continue
		}
		amount, err := formatUnits(strconv.FormatInt(ref.Value, 10), utxoDecimals)
		if err != nil {
			continue
		}
		candidate := &deposit{
			txID:          ref.TxHash,
			amount:        amount,
			confirmations: ref.Confirmations,
			at:            at,
		}
		if better(candidate, best) {
			best = candidate
		}
	}
	return observe(q.Chain, best), nil
}
