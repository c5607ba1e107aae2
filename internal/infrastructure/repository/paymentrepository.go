package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/mappers"
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/models"
	"github.com/paysettle/paysettle/internal/shared/db"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

var _ payment.PaymentRepository = (*PaymentRepository)(nil)

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	model, err := mappers.PaymentToModel(p)
	if err != nil {
		return err
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	// Write back the auto-generated ID to the domain object
	p.SetID(model.ID)

	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	model, err := mappers.PaymentToModel(p)
	if err != nil {
		return err
	}

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"status":         model.Status,
			"track_id":       model.TrackID,
			"payment_url":    model.PaymentURL,
			"qr_code":        model.QRCode,
			"transaction_id": model.TransactionID,
			"paid_at":        model.PaidAt,
			"expires_at":     model.ExpiresAt,
			"metadata":       model.Metadata,
			"version":        model.Version,
			"updated_at":     model.UpdatedAt,
			// Crypto deposit instructions
			"crypto_address": model.CryptoAddress,
			"pay_currency":   model.PayCurrency,
			"network":        model.Network,
			"crypto_amount":  model.CryptoAmount,
			"exchange_rate":  model.ExchangeRate,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update payment: %w", result.Error)
	}

	// Note: RowsAffected may be 0 when updated values are identical to existing values.

	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*payment.Payment, error) {
	var model models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) GetByTrackID(ctx context.Context, provider vo.Provider, trackID string) (*payment.Payment, error) {
	var model models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("provider = ? AND track_id = ?", string(provider), trackID).
		Order("id DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by track_id: %w", err)
	}

	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) GetLatestByOrderID(ctx context.Context, orderID uint) (*payment.Payment, error) {
	var model models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get latest payment: %w", err)
	}

	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) ListPending(ctx context.Context, limit int) ([]*payment.Payment, error) {
	var paymentModels []models.PaymentModel

	query := db.GetTxFromContext(ctx, r.db).
		Where("status = ? AND track_id IS NOT NULL AND track_id <> ''", vo.PaymentStatusPending.String()).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&paymentModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	return mappers.PaymentsToDomain(paymentModels)
}

func (r *PaymentRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*payment.Payment, error) {
	var paymentModels []models.PaymentModel

	query := db.GetTxFromContext(ctx, r.db).
		Where("status = ? AND expires_at < ?", vo.PaymentStatusPending.String(), now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&paymentModels).Error; err != nil {
		return nil, fmt.Errorf("failed to get expired payments: %w", err)
	}

	return mappers.PaymentsToDomain(paymentModels)
}
