package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/paysettle/paysettle/internal/application/checkout"
	ordervo "github.com/paysettle/paysettle/internal/domain/order/valueobjects"
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/models"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/db"
	apperrors "github.com/paysettle/paysettle/internal/shared/errors"
)

// CouponRepository validates coupon codes against the coupons table.
type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

var _ checkout.CouponValidator = (*CouponRepository)(nil)

// Validate returns the coupon for code if it is active, inside its validity
// window, not exhausted and eligible for at least one of items.
func (r *CouponRepository) Validate(ctx context.Context, code string, items []ordervo.LineItem) (*ordervo.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperrors.NewValidationError("coupon code is required")
	}

	var model models.CouponModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("code = ?", code).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewValidationError("invalid coupon", "unknown code "+code)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	now := biztime.NowUTC()
	switch {
	case !model.Active:
		return nil, apperrors.NewValidationError("invalid coupon", "coupon is disabled")
	case model.StartsAt != nil && now.Before(*model.StartsAt):
		return nil, apperrors.NewValidationError("invalid coupon", "coupon is not active yet")
	case model.EndsAt != nil && !now.Before(*model.EndsAt):
		return nil, apperrors.NewValidationError("invalid coupon", "coupon has expired")
	case model.MaxUses != nil && model.UsedCount >= *model.MaxUses:
		return nil, apperrors.NewValidationError("invalid coupon", "coupon usage limit reached")
	}

	var productIDs []string
	if len(model.ProductIDs) > 0 {
		if err := json.Unmarshal(model.ProductIDs, &productIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal coupon products: %w", err)
		}
	}

	coupon, err := ordervo.NewCoupon(model.Code, ordervo.DiscountType(model.DiscountType), model.Value, productIDs)
	if err != nil {
		return nil, fmt.Errorf("stored coupon %s is malformed: %w", model.Code, err)
	}

	eligible := false
	for _, item := range items {
		if coupon.AppliesTo(item.ProductID) {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil, apperrors.NewValidationError("invalid coupon", "coupon does not apply to any item in the cart")
	}

	return coupon, nil
}
