package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/paysettle/paysettle/internal/domain/order"
	vo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/models"
)

func OrderToModel(o *order.Order) (*models.OrderModel, error) {
	items, err := json.Marshal(o.Items())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order items: %w", err)
	}

	model := &models.OrderModel{
		ID:        o.ID(),
		OrderNo:   o.OrderNo(),
		Email:     o.Email(),
		Items:     datatypes.JSON(items),
		Currency:  o.Currency(),
		Subtotal:  o.Subtotal().AmountInCents(),
		Discount:  o.Discount().AmountInCents(),
		Total:     o.Total().AmountInCents(),
		Status:    o.Status().String(),
		SettledAt: o.SettledAt(),
		Version:   o.Version(),
		CreatedAt: o.CreatedAt(),
		UpdatedAt: o.UpdatedAt(),
	}

	if c := o.Coupon(); c != nil {
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal coupon: %w", err)
		}
		model.Coupon = datatypes.JSON(raw)
	}

	if fields := o.CustomFields(); len(fields) > 0 {
		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal custom fields: %w", err)
		}
		model.CustomFields = datatypes.JSON(raw)
	}

	return model, nil
}

func OrderToDomain(model *models.OrderModel) (*order.Order, error) {
	status := vo.OrderStatus(model.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid order status: %s", model.Status)
	}

	var items []vo.LineItem
	if err := json.Unmarshal(model.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}

	var coupon *vo.Coupon
	if len(model.Coupon) > 0 && string(model.Coupon) != "null" {
		coupon = &vo.Coupon{}
		if err := json.Unmarshal(model.Coupon, coupon); err != nil {
			return nil, fmt.Errorf("failed to unmarshal coupon: %w", err)
		}
	}

	fields := map[string]string{}
	if len(model.CustomFields) > 0 {
		if err := json.Unmarshal(model.CustomFields, &fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom fields: %w", err)
		}
	}

	return order.ReconstructOrderWithParams(order.OrderReconstructParams{
		ID:           model.ID,
		OrderNo:      model.OrderNo,
		Email:        model.Email,
		Items:        items,
		Coupon:       coupon,
		Currency:     model.Currency,
		Subtotal:     model.Subtotal,
		Discount:     model.Discount,
		Total:        model.Total,
		Status:       status,
		CustomFields: fields,
		SettledAt:    model.SettledAt,
		Version:      model.Version,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}), nil
}

func OrdersToDomain(ms []models.OrderModel) ([]*order.Order, error) {
	orders := make([]*order.Order, 0, len(ms))
	for i := range ms {
		o, err := OrderToDomain(&ms[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
