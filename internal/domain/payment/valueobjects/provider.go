package valueobjects

import "fmt"

// Rail is the family of payment flow an order goes through.
type Rail string

const (
	RailFiat   Rail = "fiat"
	RailCrypto Rail = "crypto"
)

func NewRail(s string) (Rail, error) {
	r := Rail(s)
	if r != RailFiat && r != RailCrypto {
		return "", fmt.Errorf("invalid payment rail: %s", s)
	}
	return r, nil
}

func (r Rail) String() string {
	return string(r)
}

// Provider identifies the external processor holding the payment intent.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderOxapay Provider = "oxapay"
	// ProviderNone marks orders settled without a gateway, such as free orders.
	ProviderNone Provider = "none"
)

func NewProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payment provider: %s", s)
	}
	return p, nil
}

func (p Provider) IsValid() bool {
	switch p {
	case ProviderStripe, ProviderOxapay, ProviderNone:
		return true
	default:
		return false
	}
}

// Rail returns the flow the provider belongs to.
func (p Provider) Rail() Rail {
	if p == ProviderOxapay {
		return RailCrypto
	}
	return RailFiat
}

func (p Provider) String() string {
	return string(p)
}
