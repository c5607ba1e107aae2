package order

import (
	"time"

	vo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
)

// StatusChangedEvent is emitted after a status transition has been persisted.
type StatusChangedEvent struct {
	OrderID    uint           `json:"order_id"`
	OrderNo    string         `json:"order_no"`
	Status     vo.OrderStatus `json:"status"`
	TxID       string         `json:"tx_id,omitempty"`
	OccurredAt time.Time      `json:"at"`
}
