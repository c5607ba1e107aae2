package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/paysettle/paysettle/internal/domain/order"
	vo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/mappers"
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/models"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/db"
)

var openOrderStatuses = []string{
	vo.OrderStatusPending.String(),
	vo.OrderStatusProcessing.String(),
}

type OrderRepository struct {
	db  *gorm.DB
	txm *db.TransactionManager
}

func NewOrderRepository(gormDB *gorm.DB) *OrderRepository {
	return &OrderRepository{
		db:  gormDB,
		txm: db.NewTransactionManager(gormDB),
	}
}

var _ order.Repository = (*OrderRepository)(nil)

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	model, err := mappers.OrderToModel(o)
	if err != nil {
		return err
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	o.SetID(model.ID)
	return nil
}

// Update writes the editable columns of an order revised once since it was
// loaded. The row must still carry the version the order was read with.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	model, err := mappers.OrderToModel(o)
	if err != nil {
		return err
	}

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.OrderModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Updates(map[string]interface{}{
			"email":         model.Email,
			"items":         model.Items,
			"coupon":        model.Coupon,
			"currency":      model.Currency,
			"subtotal":      model.Subtotal,
			"discount":      model.Discount,
			"total":         model.Total,
			"custom_fields": model.CustomFields,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update order: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := db.GetTxFromContext(ctx, r.db).
			Model(&models.OrderModel{}).
			Where("id = ?", model.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check order existence: %w", err)
		}
		if count == 0 {
			return order.ErrOrderNotFound
		}
		return order.ErrVersionConflict
	}

	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uint) (*order.Order, error) {
	var model models.OrderModel

	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return mappers.OrderToDomain(&model)
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*order.Order, error) {
	var model models.OrderModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("order_no = ?", orderNo).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order by order_no: %w", err)
	}

	return mappers.OrderToDomain(&model)
}

// AdvanceStatus locks the order row and applies next only when the stored
// status allows it. It joins the caller's transaction when there is one.
func (r *OrderRepository) AdvanceStatus(ctx context.Context, id uint, next vo.OrderStatus) (bool, vo.OrderStatus, error) {
	var (
		applied bool
		current vo.OrderStatus
	)

	err := r.txm.RunInTransaction(ctx, func(txCtx context.Context) error {
		tx := db.GetTxFromContext(txCtx, r.db)

		var model models.OrderModel
		if err := db.ForUpdate(tx).First(&model, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return order.ErrOrderNotFound
			}
			return fmt.Errorf("failed to lock order: %w", err)
		}

		current = vo.OrderStatus(model.Status)
		if !current.CanTransitionTo(next) {
			return nil
		}

		now := biztime.NowUTC()
		updates := map[string]interface{}{
			"status":     next.String(),
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}
		if next.IsSettled() && model.SettledAt == nil {
			updates["settled_at"] = now
		}

		if err := tx.Model(&models.OrderModel{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		applied = true
		current = next
		return nil
	})
	if err != nil {
		return false, current, err
	}

	return applied, current, nil
}

// ListOpenCreatedBefore returns pending and processing orders created before
// the cutoff, oldest first.
func (r *OrderRepository) ListOpenCreatedBefore(ctx context.Context, before time.Time, limit int) ([]*order.Order, error) {
	var orderModels []models.OrderModel

	query := db.GetTxFromContext(ctx, r.db).
		Where("status IN ? AND created_at < ?", openOrderStatuses, before).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&orderModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}

	return mappers.OrdersToDomain(orderModels)
}
