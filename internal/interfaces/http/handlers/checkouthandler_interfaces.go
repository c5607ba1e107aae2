package handlers

import (
	"context"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/domain/order"
)

// Service interfaces for CheckoutHandler

type orderService interface {
	CreateOrUpdate(ctx context.Context, cmd checkout.CreateOrUpdateCommand) (*order.Order, error)
	CompleteFreeOrder(ctx context.Context, orderNo, couponCode string) (*order.Order, error)
	Get(ctx context.Context, orderNo string) (*order.Order, error)
}

type checkoutService interface {
	StartPayment(ctx context.Context, cmd checkout.StartPaymentCommand) (*checkout.StartPaymentResult, error)
	Status(ctx context.Context, orderNo string) (*checkout.StatusView, error)
	RestoreSession(ctx context.Context, orderNo string) (*checkout.CheckoutSession, error)
	PersistSession(ctx context.Context, orderNo string, step int, method string) (*checkout.CheckoutSession, error)
	ClearSession(ctx context.Context, orderNo string) error
	Events(ctx context.Context, orderNo string) (*order.Order, <-chan order.StatusChangedEvent, func(), error)
}

// Service interfaces for WebhookHandler and AdminOrderHandler

type callbackProcessor interface {
	HandleCallback(ctx context.Context, data *checkout.CallbackData) (*checkout.CallbackResult, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, orderNo, reason string) (*order.Order, error)
}
