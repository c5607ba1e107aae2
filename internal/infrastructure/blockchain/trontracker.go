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
	// TronGrid API base URL
	trongridAPIURL = "https://api.trongrid.io"
	// USDT contract address on Tron (TRC-20)
	tronUSDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	tronUSDTDecimals = 6
	// 1 TRX = 1,000,000 sun
	tronNativeDecimals = 6
	tronPageSize       = 20
)

// trc20Transfer represents a TRC-20 transfer from TronGrid
type trc20Transfer struct {
	TransactionID  string `json:"transaction_id"`
	BlockTimestamp int64  `json:"block_timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Value          string `json:"value"`
	TokenInfo      struct {
		Address  string `json:"address"`
		Decimals int    `json:"decimals"`
	} `json:"token_info"`
}

// trc20Response represents the TronGrid TRC-20 transfer response
type trc20Response struct {
	Data    []trc20Transfer `json:"data"`
	Success bool            `json:"success"`
}

// trxTransaction represents a native TRX transaction from TronGrid
type trxTransaction struct {
	TxID           string `json:"txID"`
	BlockNumber    int64  `json:"blockNumber"`
	BlockTimestamp int64  `json:"block_timestamp"`
	Ret            []struct {
		ContractRet string `json:"contractRet"`
	} `json:"ret"`
	RawData struct {
		Contract []struct {
			Type      string `json:"type"`
			Parameter struct {
				Value struct {
					Amount int64 `json:"amount"`
				} `json:"value"`
			} `json:"parameter"`
		} `json:"contract"`
	} `json:"raw_data"`
}

type trxResponse struct {
	Data    []trxTransaction `json:"data"`
	Success bool             `json:"success"`
}

// TronTracker looks up TRX and USDT (TRC-20) deposits through TronGrid.
type TronTracker struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logger.Interface
}

// NewTronTracker creates a new Tron deposit tracker. An empty baseURL selects TronGrid mainnet.
func NewTronTracker(apiKey, baseURL string, logger logger.Interface) *TronTracker {
	if baseURL == "" {
		baseURL = trongridAPIURL
	}
	return &TronTracker{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

var _ checkout.StatusTracker = (*TronTracker)(nil)

// Track returns the best deposit to q.Address made after q.MinTimestamp.
// Note: Tron addresses use Base58Check encoding and are case-sensitive.
func (t *TronTracker) Track(ctx context.Context, q checkout.TrackQuery) (*checkout.ChainStatus, error) {
	if q.Chain != vo.ChainTypeTron {
		return nil, unsupported(q.Chain, q.Currency)
	}

	var (
		best *deposit
		err  error
	)
	switch strings.ToUpper(q.Currency) {
	case "USDT":
		best, err = t.findTRC20(ctx, q)
	case "TRX":
		best, err = t.findNative(ctx, q)
	default:
		return nil, unsupported(q.Chain, q.Currency)
	}
	if err != nil {
		return nil, err
	}
	return observe(q.Chain, best), nil
}

func (t *TronTracker) findTRC20(ctx context.Context, q checkout.TrackQuery) (*deposit, error) {
	params := url.Values{}
	params.Set("only_to", "true")
	params.Set("limit", strconv.Itoa(tronPageSize))
	params.Set("contract_address", tronUSDTContract)
	if !q.MinTimestamp.IsZero() {
		params.Set("min_timestamp", strconv.FormatInt(q.MinTimestamp.Add(-clockSkewBuffer).UnixMilli(), 10))
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", t.baseURL, q.Address, params.Encode())

	var resp trc20Response
	if err := t.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, t.requestFailed()
	}

	var best *deposit
	for _, transfer := range resp.Data {
		if transfer.To != q.Address {
			continue
		}
		txTime := time.UnixMilli(transfer.BlockTimestamp)
		if tooOld(txTime, q.MinTimestamp) {
			t.logger.Debugw("skipping transfer before order creation",
				"tx_hash", transfer.TransactionID,
				"tx_time", txTime,
			)
			continue
		}
		decimals := transfer.TokenInfo.Decimals
		if decimals == 0 {
			decimals = tronUSDTDecimals
		}
		amount, err := formatUnits(transfer.Value, decimals)
		if err != nil {
			t.logger.Warnw("failed to parse transaction amount",
				"tx_hash", transfer.TransactionID,
				"value", transfer.Value,
				"error", err,
			)
			continue
		}

		blockNumber, err := t.transactionBlock(ctx, transfer.TransactionID)
		if err != nil {
			t.logger.Warnw("failed to get transaction details",
				"tx_hash", transfer.TransactionID,
				"error", err,
			)
			continue
		}
		candidate := &deposit{
			txID:          transfer.TransactionID,
			amount:        amount,
			confirmations: t.confirmations(ctx, blockNumber),
			at:            txTime,
		}
		if better(candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

func (t *TronTracker) findNative(ctx context.Context, q checkout.TrackQuery) (*deposit, error) {
	params := url.Values{}
	params.Set("only_to", "true")
	params.Set("only_confirmed", "false")
	params.Set("limit", strconv.Itoa(tronPageSize))
	if !q.MinTimestamp.IsZero() {
		params.Set("min_timestamp", strconv.FormatInt(q.MinTimestamp.Add(-clockSkewBuffer).UnixMilli(), 10))
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions?%s", t.baseURL, q.Address, params.Encode())

	var resp trxResponse
	if err := t.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, t.requestFailed()
	}

	var best *deposit
	for _, tx := range resp.Data {
		if len(tx.Ret) > 0 && tx.Ret[0].ContractRet != "SUCCESS" {
			continue
		}
		if len(tx.RawData.Contract) == 0 || tx.RawData.Contract[0].Type != "TransferContract" {
			continue
		}
		txTime := time.UnixMilli(tx.BlockTimestamp)
		if tooOld(txTime, q.MinTimestamp) {
			continue
		}
		amount, err := formatUnits(strconv.FormatInt(tx.RawData.Contract[0].Parameter.Value.Amount, 10), tronNativeDecimals)
		if err != nil {
			continue
		}
		candidate := &deposit{
			txID:          tx.TxID,
			amount:        amount,
			confirmations: t.confirmations(ctx, tx.BlockNumber),
			at:            txTime,
		}
		if better(candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

// transactionBlock returns the block a transaction was included in, or 0 while unconfirmed.
func (t *TronTracker) transactionBlock(ctx context.Context, txHash string) (int64, error) {
	var txResp struct {
		Data []struct {
			BlockNumber int64 `json:"blockNumber"`
		} `json:"data"`
		Success bool `json:"success"`
	}
	if err := t.get(ctx, fmt.Sprintf("%s/v1/transactions/%s", t.baseURL, txHash), &txResp); err != nil {
		return 0, err
	}
	if !txResp.Success || len(txResp.Data) == 0 {
		return 0, nil
	}
	return txResp.Data[0].BlockNumber, nil
}

// confirmations is zero while the block is unknown or the head cannot be read.
func (t *TronTracker) confirmations(ctx context.Context, blockNumber int64) int {
	if blockNumber <= 0 {
		return 0
	}
	current, err := t.currentBlockNumber(ctx)
	if err != nil {
		t.logger.Debugw("failed to read tron head block", "error", err)
		return 0
	}
	confirmations := current - blockNumber + 1
	if confirmations < 0 {
		return 0
	}
	return int(confirmations)
}

// currentBlockNumber returns the current block number on Tron
func (t *TronTracker) currentBlockNumber(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/wallet/getnowblock", nil)
	if err != nil {
		return 0, err
	}
	t.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var blockResp struct {
		BlockHeader struct {
			RawData struct {
				Number int64 `json:"number"`
			} `json:"raw_data"`
		} `json:"block_header"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBlockchainResponseSize)).Decode(&blockResp); err != nil {
		return 0, err
	}
	return blockResp.BlockHeader.RawData.Number, nil
}

func (t *TronTracker) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	t.authorize(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBlockchainResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (t *TronTracker) authorize(req *http.Request) {
	if t.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", t.apiKey)
	}
}

func (t *TronTracker) requestFailed() error {
	if t.apiKey == "" {
		return fmt.Errorf("TronGrid request failed, trongrid_api_key is not configured")
	}
	return fmt.Errorf("TronGrid API request failed, possibly rate limited or invalid API key")
}
