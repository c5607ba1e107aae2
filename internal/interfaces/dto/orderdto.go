package dto

import (
	"time"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/domain/order"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
)

// OrderItemRequest is one cart row as posted by the storefront.
type OrderItemRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	VariantID string  `json:"variant_id"`
	Quantity  int     `json:"quantity" binding:"required,min=1,max=100000"`
	Price     float64 `json:"price" binding:"min=0,max=10000000"`
}

// UpsertOrderRequest creates an order, or revises it when OrderID is set.
type UpsertOrderRequest struct {
	OrderID      string             `json:"order_id"`
	Email        string             `json:"email" binding:"required,email"`
	Items        []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	CouponCode   string             `json:"coupon_code"`
	Rail         string             `json:"rail" binding:"omitempty,oneof=fiat crypto"`
	CustomFields map[string]string  `json:"custom_fields"`
}

// ToCommand converts the HTTP request to the application command
func (r *UpsertOrderRequest) ToCommand() checkout.CreateOrUpdateCommand {
	items := make([]checkout.ItemInput, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, checkout.ItemInput{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return checkout.CreateOrUpdateCommand{
		OrderNo:      r.OrderID,
		Email:        r.Email,
		Items:        items,
		CouponCode:   r.CouponCode,
		Rail:         r.Rail,
		CustomFields: r.CustomFields,
	}
}

type StartPaymentRequest struct {
	Method string `json:"method" binding:"required"`
	Step   int    `json:"step" binding:"omitempty,min=0"`
}

type CompleteFreeOrderRequest struct {
	CouponCode string `json:"coupon_code"`
}

type PersistSessionRequest struct {
	Step   int    `json:"step" binding:"min=0"`
	Method string `json:"method"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// OrderResponse is the public view of an order. Amounts are decimal strings in
// the order currency.
type OrderResponse struct {
	OrderNo      string             `json:"order_no"`
	Email        string             `json:"email"`
	Items        []ordervo.LineItem `json:"items"`
	CouponCode   string             `json:"coupon_code,omitempty"`
	Currency     string             `json:"currency"`
	Subtotal     string             `json:"subtotal"`
	Discount     string             `json:"discount"`
	Total        string             `json:"total"`
	Status       string             `json:"status"`
	CustomFields map[string]string  `json:"custom_fields,omitempty"`
	SettledAt    *time.Time         `json:"settled_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func ToOrderResponse(o *order.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	resp := &OrderResponse{
		OrderNo:      o.OrderNo(),
		Email:        o.Email(),
		Items:        o.Items(),
		Currency:     o.Currency(),
		Subtotal:     o.Subtotal().Decimal(),
		Discount:     o.Discount().Decimal(),
		Total:        o.Total().Decimal(),
		Status:       o.Status().String(),
		CustomFields: o.CustomFields(),
		SettledAt:    o.SettledAt(),
		CreatedAt:    o.CreatedAt(),
		UpdatedAt:    o.UpdatedAt(),
	}
	if c := o.Coupon(); c != nil {
		resp.CouponCode = c.Code
	}
	return resp
}

// IntentResponse tells the storefront where to send the payer: a redirect
// link, or on-page deposit instructions.
type IntentResponse struct {
	PaymentNo  string                  `json:"payment_no"`
	Provider   string                  `json:"provider"`
	Method     string                  `json:"method"`
	TrackID    string                  `json:"track_id"`
	PayLink    string                  `json:"pay_link,omitempty"`
	IsRedirect bool                    `json:"is_redirect"`
	Crypto     *checkout.CryptoDetails `json:"crypto,omitempty"`
	ExpiresAt  time.Time               `json:"expires_at"`
	Reused     bool                    `json:"reused"`
}

type StartPaymentResponse struct {
	Order  *OrderResponse  `json:"order"`
	Free   bool            `json:"free"`
	Intent *IntentResponse `json:"intent,omitempty"`
}

func ToStartPaymentResponse(r *checkout.StartPaymentResult) *StartPaymentResponse {
	resp := &StartPaymentResponse{Order: ToOrderResponse(r.Order), Free: r.Free}
	if in := r.Intent; in != nil {
		resp.Intent = &IntentResponse{
			PaymentNo:  in.PaymentNo,
			Provider:   in.Provider.String(),
			Method:     in.Method,
			TrackID:    in.TrackID,
			PayLink:    in.PayLink,
			IsRedirect: in.IsRedirect,
			Crypto:     in.Crypto,
			ExpiresAt:  in.ExpiresAt,
			Reused:     in.Reused,
		}
	}
	return resp
}

// StatusResponse is the stored status plus what the order's poller currently sees.
type StatusResponse struct {
	OrderNo             string                  `json:"order_no"`
	Status              string                  `json:"status"`
	Polling             bool                    `json:"polling"`
	LocalStatus         string                  `json:"local_status,omitempty"`
	RemainingSeconds    int64                   `json:"remaining_seconds"`
	ConsecutiveFailures int                     `json:"consecutive_failures,omitempty"`
	LastError           string                  `json:"last_error,omitempty"`
	Crypto              *checkout.CryptoDetails `json:"crypto,omitempty"`
}

func ToStatusResponse(v *checkout.StatusView) *StatusResponse {
	return &StatusResponse{
		OrderNo:             v.OrderNo,
		Status:              v.Status.String(),
		Polling:             v.Polling,
		LocalStatus:         v.Local.String(),
		RemainingSeconds:    int64(v.Remaining / time.Second),
		ConsecutiveFailures: v.ConsecutiveFailures,
		LastError:           v.LastError,
		Crypto:              v.Crypto,
	}
}
