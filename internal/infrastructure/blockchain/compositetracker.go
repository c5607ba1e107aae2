package blockchain

import (
	"context"

	"github.com/paysettle/paysettle/internal/application/checkout"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// CompositeTracker routes a deposit lookup to the explorer for its chain.
type CompositeTracker struct {
	tron   checkout.StatusTracker
	evm    checkout.StatusTracker
	utxo   checkout.StatusTracker
	logger logger.Interface
}

// NewCompositeTracker creates a new composite tracker. Nil trackers leave their chains unsupported.
func NewCompositeTracker(tron, evm, utxo checkout.StatusTracker, logger logger.Interface) *CompositeTracker {
	return &CompositeTracker{
		tron:   tron,
		evm:    evm,
		utxo:   utxo,
		logger: logger,
	}
}

var _ checkout.StatusTracker = (*CompositeTracker)(nil)

func (c *CompositeTracker) Track(ctx context.Context, q checkout.TrackQuery) (*checkout.ChainStatus, error) {
	tracker := c.route(q.Chain)
	if tracker == nil {
		return nil, unsupported(q.Chain, q.Currency)
	}
	return tracker.Track(ctx, q)
}

func (c *CompositeTracker) route(chain vo.ChainType) checkout.StatusTracker {
	switch {
	case chain == vo.ChainTypeTron:
		return c.tron
	case chain.IsEVM():
		return c.evm
	case chain == vo.ChainTypeBitcoin, chain == vo.ChainTypeLitecoin, chain == vo.ChainTypeDogecoin:
		return c.utxo
	default:
		return nil
	}
}
