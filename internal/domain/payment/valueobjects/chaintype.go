package valueobjects

import (
	"fmt"
	"regexp"
)

// ChainType identifies the blockchain a crypto payment settles on.
type ChainType string

const (
	ChainTypeBitcoin     ChainType = "bitcoin"
	ChainTypeLitecoin    ChainType = "litecoin"
	ChainTypeDogecoin    ChainType = "dogecoin"
	ChainTypeBitcoinCash ChainType = "bitcoincash"
	ChainTypeEthereum    ChainType = "ethereum"
	ChainTypeBSC         ChainType = "bsc"
	ChainTypePolygon     ChainType = "polygon"
	ChainTypeTron        ChainType = "tron"
	ChainTypeSolana      ChainType = "solana"
	ChainTypeTON         ChainType = "ton"
	ChainTypeMonero      ChainType = "monero"
)

func NewChainType(chainType string) (ChainType, error) {
	ct := ChainType(chainType)
	if !ct.IsValid() {
		return "", fmt.Errorf("invalid chain type: %s", chainType)
	}
	return ct, nil
}

func (ct ChainType) IsValid() bool {
	_, ok := requiredConfirmations[ct]
	return ok
}

func (ct ChainType) String() string {
	return string(ct)
}

var requiredConfirmations = map[ChainType]int{
	ChainTypeBitcoin:     3,
	ChainTypeLitecoin:    6,
	ChainTypeDogecoin:    6,
	ChainTypeBitcoinCash: 6,
	ChainTypeEthereum:    12,
	ChainTypeBSC:         15,
	ChainTypePolygon:     12,
	ChainTypeTron:        19,
	ChainTypeSolana:      1,
	ChainTypeTON:         1,
	ChainTypeMonero:      10,
}

// RequiredConfirmations returns the block depth at which a transfer is treated as final.
func (ct ChainType) RequiredConfirmations() int {
	return requiredConfirmations[ct]
}

// IsEVM reports whether the chain uses Ethereum-style accounts.
func (ct ChainType) IsEVM() bool {
	return ct == ChainTypeEthereum || ct == ChainTypeBSC || ct == ChainTypePolygon
}

var (
	evmAddressPattern      = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	tronAddressPattern     = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	bitcoinAddressPattern  = regexp.MustCompile(`^(bc1[02-9ac-hj-np-z]{11,71}|[13][1-9A-HJ-NP-Za-km-z]{25,34})$`)
	litecoinAddressPattern = regexp.MustCompile(`^(ltc1[02-9ac-hj-np-z]{11,71}|[LM3][1-9A-HJ-NP-Za-km-z]{26,33})$`)
	dogecoinAddressPattern = regexp.MustCompile(`^[DA9][1-9A-HJ-NP-Za-km-z]{25,34}$`)
)

// ValidateAddress checks the address format where a pattern is known. Chains
// without a pattern accept any non-empty address.
func (ct ChainType) ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	var pattern *regexp.Regexp
	switch {
	case ct.IsEVM():
		pattern = evmAddressPattern
	case ct == ChainTypeTron:
		pattern = tronAddressPattern
	case ct == ChainTypeBitcoin:
		pattern = bitcoinAddressPattern
	case ct == ChainTypeLitecoin:
		pattern = litecoinAddressPattern
	case ct == ChainTypeDogecoin:
		pattern = dogecoinAddressPattern
	default:
		return nil
	}
	if !pattern.MatchString(address) {
		return fmt.Errorf("invalid %s address format: %s", ct, address)
	}
	return nil
}

func (ct ChainType) IsValidAddress(address string) bool {
	return ct.ValidateAddress(address) == nil
}
