package valueobjects

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyMethodLabel     = errors.New("payment method label is empty")
	ErrUnsupportedCurrency  = errors.New("unsupported crypto currency")
	ErrUnsupportedNetwork   = errors.New("unsupported network for crypto currency")
	ErrMalformedMethodLabel = errors.New("malformed payment method label")
)

// MethodLabel is a storefront payment method such as "Tether (TRC20)" split into
// its base currency name and optional network.
type MethodLabel struct {
	BaseName string
	Network  string
}

func (l MethodLabel) String() string {
	if l.Network == "" {
		return l.BaseName
	}
	return fmt.Sprintf("%s (%s)", l.BaseName, l.Network)
}

// ParseMethodLabel splits "Name (NETWORK)" on its trailing parenthesized suffix.
// A label without parentheses has an empty network.
func ParseMethodLabel(label string) (MethodLabel, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return MethodLabel{}, ErrEmptyMethodLabel
	}

	open := strings.LastIndex(label, "(")
	if open < 0 {
		if strings.Contains(label, ")") {
			return MethodLabel{}, fmt.Errorf("%w: %q", ErrMalformedMethodLabel, label)
		}
		return MethodLabel{BaseName: label}, nil
	}
	if !strings.HasSuffix(label, ")") {
		return MethodLabel{}, fmt.Errorf("%w: %q", ErrMalformedMethodLabel, label)
	}

	base := strings.TrimSpace(label[:open])
	network := strings.TrimSpace(label[open+1 : len(label)-1])
	if base == "" || network == "" || strings.ContainsAny(base, "()") {
		return MethodLabel{}, fmt.Errorf("%w: %q", ErrMalformedMethodLabel, label)
	}
	return MethodLabel{BaseName: base, Network: network}, nil
}

// CryptoMethod is one supported currency/network combination and how the
// gateway and block explorers name it.
type CryptoMethod struct {
	// Label is the canonical storefront label.
	Label string
	// PayCurrency is the gateway currency code.
	PayCurrency string
	// GatewayNetwork is the gateway's network name.
	GatewayNetwork string
	Chain          ChainType
	// Token is true when the currency is a token on Chain rather than its native coin.
	Token bool
}

type methodKey struct {
	base    string
	network string
}

var (
	cryptoMethods = []CryptoMethod{
		{Label: "Bitcoin", PayCurrency: "BTC", GatewayNetwork: "Bitcoin Network", Chain: ChainTypeBitcoin},
		{Label: "Ethereum (ERC20)", PayCurrency: "ETH", GatewayNetwork: "Ethereum Network", Chain: ChainTypeEthereum},
		{Label: "Ethereum (BEP20)", PayCurrency: "ETH", GatewayNetwork: "Binance Smart Chain", Chain: ChainTypeBSC, Token: true},
		{Label: "Tether (ERC20)", PayCurrency: "USDT", GatewayNetwork: "Ethereum Network", Chain: ChainTypeEthereum, Token: true},
		{Label: "Tether (TRC20)", PayCurrency: "USDT", GatewayNetwork: "Tron Network", Chain: ChainTypeTron, Token: true},
		{Label: "Tether (BEP20)", PayCurrency: "USDT", GatewayNetwork: "Binance Smart Chain", Chain: ChainTypeBSC, Token: true},
		{Label: "Tether (Polygon)", PayCurrency: "USDT", GatewayNetwork: "Polygon Network", Chain: ChainTypePolygon, Token: true},
		{Label: "Tether (SOL)", PayCurrency: "USDT", GatewayNetwork: "Solana Network", Chain: ChainTypeSolana, Token: true},
		{Label: "Tether (TON)", PayCurrency: "USDT", GatewayNetwork: "TON Network", Chain: ChainTypeTON, Token: true},
		{Label: "USD Coin (ERC20)", PayCurrency: "USDC", GatewayNetwork: "Ethereum Network", Chain: ChainTypeEthereum, Token: true},
		{Label: "USD Coin (BEP20)", PayCurrency: "USDC", GatewayNetwork: "Binance Smart Chain", Chain: ChainTypeBSC, Token: true},
		{Label: "Litecoin", PayCurrency: "LTC", GatewayNetwork: "Litecoin Network", Chain: ChainTypeLitecoin},
		{Label: "Bitcoin Cash", PayCurrency: "BCH", GatewayNetwork: "Bitcoin Cash Network", Chain: ChainTypeBitcoinCash},
		{Label: "Dogecoin", PayCurrency: "DOGE", GatewayNetwork: "Dogecoin Network", Chain: ChainTypeDogecoin},
		{Label: "TRON (TRC20)", PayCurrency: "TRX", GatewayNetwork: "Tron Network", Chain: ChainTypeTron},
		{Label: "BNB (BEP20)", PayCurrency: "BNB", GatewayNetwork: "Binance Smart Chain", Chain: ChainTypeBSC},
		{Label: "Solana (SOL)", PayCurrency: "SOL", GatewayNetwork: "Solana Network", Chain: ChainTypeSolana},
		{Label: "Toncoin (TON)", PayCurrency: "TON", GatewayNetwork: "TON Network", Chain: ChainTypeTON},
		{Label: "Monero", PayCurrency: "XMR", GatewayNetwork: "Monero Network", Chain: ChainTypeMonero},
		{Label: "Polygon (POL)", PayCurrency: "POL", GatewayNetwork: "Polygon Network", Chain: ChainTypePolygon},
		{Label: "Shiba Inu (ERC20)", PayCurrency: "SHIB", GatewayNetwork: "Ethereum Network", Chain: ChainTypeEthereum, Token: true},
		{Label: "DAI (ERC20)", PayCurrency: "DAI", GatewayNetwork: "Ethereum Network", Chain: ChainTypeEthereum, Token: true},
		{Label: "Notcoin (TON)", PayCurrency: "NOT", GatewayNetwork: "TON Network", Chain: ChainTypeTON, Token: true},
	}

	// byLabel indexes cryptoMethods; defaultNetwork maps a base name to its first entry.
	byLabel        = map[methodKey]CryptoMethod{}
	defaultNetwork = map[string]CryptoMethod{}
)

func init() {
	for _, m := range cryptoMethods {
		l, err := ParseMethodLabel(m.Label)
		if err != nil {
			panic(fmt.Sprintf("invalid crypto method label %q: %v", m.Label, err))
		}
		k := methodKey{base: strings.ToLower(l.BaseName), network: strings.ToUpper(l.Network)}
		if _, dup := byLabel[k]; dup {
			panic(fmt.Sprintf("duplicate crypto method %q", m.Label))
		}
		byLabel[k] = m
		if _, ok := defaultNetwork[k.base]; !ok {
			defaultNetwork[k.base] = m
		}
	}
}

// ResolveCryptoMethod maps a storefront label to its gateway currency and network.
// A label without a network resolves to the currency's first listed network.
func ResolveCryptoMethod(label string) (CryptoMethod, error) {
	l, err := ParseMethodLabel(label)
	if err != nil {
		return CryptoMethod{}, err
	}
	base := strings.ToLower(l.BaseName)

	if l.Network == "" {
		if m, ok := defaultNetwork[base]; ok {
			return m, nil
		}
		return CryptoMethod{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, l.BaseName)
	}
	if m, ok := byLabel[methodKey{base: base, network: strings.ToUpper(l.Network)}]; ok {
		return m, nil
	}
	if _, known := defaultNetwork[base]; known {
		return CryptoMethod{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedNetwork, l.BaseName, l.Network)
	}
	return CryptoMethod{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, l.BaseName)
}

// SupportedCryptoMethods returns every supported combination in display order.
func SupportedCryptoMethods() []CryptoMethod {
	out := make([]CryptoMethod, len(cryptoMethods))
	copy(out, cryptoMethods)
	return out
}
