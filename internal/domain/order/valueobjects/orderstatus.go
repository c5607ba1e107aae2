package valueobjects

import "fmt"

// OrderStatus is the lifecycle state of an order. Forward states are ranked and
// may only move to a higher rank. Expired and cancelled sit outside the ranking.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusExpired    OrderStatus = "expired"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusPaid:       2,
	OrderStatusCompleted:  3,
	OrderStatusDelivered:  4,
}

func NewOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid order status: %s", s)
	}
	return st, nil
}

func (s OrderStatus) IsValid() bool {
	_, ranked := statusRank[s]
	return ranked || s == OrderStatusExpired || s == OrderStatusCancelled
}

// Rank returns the position in the forward ordering, or -1 for expired and cancelled.
func (s OrderStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsSettled reports whether payment has been accepted for the order.
func (s OrderStatus) IsSettled() bool {
	return s == OrderStatusPaid || s == OrderStatusCompleted || s == OrderStatusDelivered
}

// IsOpen reports whether the order still awaits payment.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

// IsTerminal reports whether no automatic transition can leave this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusExpired || s == OrderStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is a legal forward step.
// Cancellation is administrative and allowed from any other status.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next || !next.IsValid() {
		return false
	}
	switch next {
	case OrderStatusCancelled:
		return true
	case OrderStatusExpired:
		return s.IsOpen()
	}
	if s == OrderStatusExpired || s == OrderStatusCancelled {
		return false
	}
	return next.Rank() > s.Rank()
}

func (s OrderStatus) String() string {
	return string(s)
}
