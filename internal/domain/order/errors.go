package order

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNotEditable       = errors.New("order can no longer be edited")
	ErrEmptyCart         = errors.New("order must contain at least one item")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrNegativeTotal     = errors.New("order total is negative")
	ErrVersionConflict   = errors.New("order was modified concurrently")
	ErrOrderNotFound     = errors.New("order not found")
)
