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
	// Etherscan V2 API base URL (unified for all EVM chains)
	etherscanV2APIURL = "https://api.etherscan.io/v2/api"
	// Maximum pages to scan to prevent DoS
	maxEVMPages = 5
	evmPageSize = 100
	evmDecimals = 18
)

// Etherscan V2 chain ids
var evmChainIDs = map[vo.ChainType]string{
	vo.ChainTypeEthereum: "1",
	vo.ChainTypeBSC:      "56",
	vo.ChainTypePolygon:  "137",
}

// nativeCurrency is the coin paid with txlist rather than tokentx on each chain.
var nativeCurrency = map[vo.ChainType]string{
	vo.ChainTypeEthereum: "ETH",
	vo.ChainTypeBSC:      "BNB",
	vo.ChainTypePolygon:  "POL",
}

// evmTokens maps chain and currency to the token contract.
var evmTokens = map[vo.ChainType]map[string]string{
	vo.ChainTypeEthereum: {
		"USDT": "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		"USDC": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"DAI":  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"SHIB": "0x95aD61b0a150d79219dCF64E1E6Cc01f0B64C4cE",
	},
	vo.ChainTypeBSC: {
		"USDT": "0x55d398326f99059fF775452Ab6C8ae1a5E8E0bC2",
		"USDC": "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d",
		"ETH":  "0x2170Ed0880ac9A755fd29B2688956BD959F933F8",
	},
	vo.ChainTypePolygon: {
		"USDT": "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
	},
}

// etherscanResponse represents the Etherscan API envelope
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// evmTransfer is a row of either txlist or tokentx.
type evmTransfer struct {
	BlockNumber   string `json:"blockNumber"`
	TimeStamp     string `json:"timeStamp"`
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	TokenDecimal  string `json:"tokenDecimal"`
	Confirmations string `json:"confirmations"`
	IsError       string `json:"isError"`
}

// EVMTracker looks up native and token deposits on Ethereum, BSC and Polygon
// through the Etherscan V2 API.
type EVMTracker struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logger.Interface
}

// NewEVMTracker creates a new EVM deposit tracker. An empty baseURL selects Etherscan V2.
func NewEVMTracker(apiKey, baseURL string, logger logger.Interface) *EVMTracker {
	if baseURL == "" {
		baseURL = etherscanV2APIURL
	}
	return &EVMTracker{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

var _ checkout.StatusTracker = (*EVMTracker)(nil)

// Track returns the best deposit to q.Address made after q.MinTimestamp.
func (t *EVMTracker) Track(ctx context.Context, q checkout.TrackQuery) (*checkout.ChainStatus, error) {
	chainID, ok := evmChainIDs[q.Chain]
	if !ok {
		return nil, unsupported(q.Chain, q.Currency)
	}
	// Skip if API key not configured
	if t.apiKey == "" {
		return nil, fmt.Errorf("%w: etherscan_api_key is not configured", checkout.ErrUnsupportedChain)
	}

	currency := strings.ToUpper(q.Currency)
	action, contract := "txlist", ""
	if currency != nativeCurrency[q.Chain] {
		contract, ok = evmTokens[q.Chain][currency]
		if !ok {
			return nil, unsupported(q.Chain, q.Currency)
		}
		action = "tokentx"
	}

	address := strings.ToLower(q.Address)
	var best *deposit
	for page := 1; page <= maxEVMPages; page++ {
		transfers, err := t.fetchTransfers(ctx, chainID, action, contract, address, page)
		if err != nil {
			return nil, err
		}
		if len(transfers) == 0 {
			break
		}

		stop := false
		for _, transfer := range transfers {
			if strings.ToLower(transfer.To) != address || transfer.IsError == "1" {
				continue
			}
			timestamp, _ := strconv.ParseInt(transfer.TimeStamp, 10, 64)
			txTime := time.Unix(timestamp, 0)
			// Results are sorted desc, so everything after an old transfer is older too
			if tooOld(txTime, q.MinTimestamp) {
				stop = true
				break
			}

			decimals := evmDecimals
			if transfer.TokenDecimal != "" {
				if d, err := strconv.Atoi(transfer.TokenDecimal); err == nil {
					decimals = d
				}
			}
			amount, err := formatUnits(transfer.Value, decimals)
			if err != nil {
				t.logger.Warnw("failed to parse transaction amount",
					"tx_hash", transfer.Hash,
					"value", transfer.Value,
					"error", err,
				)
				continue
			}
			confirmations, _ := strconv.Atoi(transfer.Confirmations)
			candidate := &deposit{
				txID:          transfer.Hash,
				amount:        amount,
				confirmations: confirmations,
				at:            txTime,
			}
			if better(candidate, best) {
				best = candidate
			}
		}
		if stop || len(transfers) < evmPageSize {
			break
		}
	}

	if best != nil {
		t.logger.Debugw("found evm deposit",
			"chain", q.Chain,
			"currency", currency,
			"tx_hash", best.txID,
			"confirmations", best.confirmations,
		)
	}
	return observe(q.Chain, best), nil
}

// fetchTransfers fetches a page of transfers from the Etherscan API
func (t *EVMTracker) fetchTransfers(ctx context.Context, chainID, action, contract, address string, page int) ([]evmTransfer, error) {
	params := url.Values{}
	params.Set("chainid", chainID)
	params.Set("module", "account")
	params.Set("action", action)
	if contract != "" {
		params.Set("contractaddress", contract)
	}
	params.Set("address", address)
	params.Set("page", strconv.Itoa(page))
	params.Set("offset", strconv.Itoa(evmPageSize))
	params.Set("sort", "desc")
	params.Set("apikey", t.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer resp.Body.Close()

	var apiResp etherscanResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBlockchainResponseSize)).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Status != "1" {
		if apiResp.Message == "No transactions found" {
			return nil, nil
		}
		// NOTOK typically means rate limited
		var detail string
		if err := json.Unmarshal(apiResp.Result, &detail); err == nil && detail != "" {
			return nil, fmt.Errorf("Etherscan API error: %s", detail)
		}
		return nil, fmt.Errorf("Etherscan API error: %s", apiResp.Message)
	}

	var transfers []evmTransfer
	if err := json.Unmarshal(apiResp.Result, &transfers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transfers: %w", err)
	}
	return transfers, nil
}
