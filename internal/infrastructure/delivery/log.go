package delivery

import (
	"context"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/shared/logger"
)

// LogDeliverer records delivery triggers without handing them to a broker.
// It stands in when Kafka is disabled.
type LogDeliverer struct {
	logger logger.Interface
}

func NewLogDeliverer(log logger.Interface) *LogDeliverer {
	return &LogDeliverer{logger: log}
}

var _ checkout.Deliverer = (*LogDeliverer)(nil)

func (d *LogDeliverer) Deliver(_ context.Context, req checkout.DeliveryRequest) error {
	d.logger.Infow("delivery requested",
		"order_no", req.OrderNo,
		"event_id", req.EventID,
		"email", req.Email,
		"items", len(req.Items),
		"tx_id", req.TxID,
	)
	return nil
}
