package models

import (
	"time"

	"gorm.io/datatypes"
)

// CouponModel is a storefront discount code.
type CouponModel struct {
	ID           uint    `gorm:"primaryKey"`
	Code         string  `gorm:"uniqueIndex;size:64;not null"`
	DiscountType string  `gorm:"size:20;not null"`
	Value        float64 `gorm:"not null"`
	// Empty means the whole cart is eligible
	ProductIDs datatypes.JSON
	Active     bool `gorm:"not null;default:true"`
	StartsAt   *time.Time
	EndsAt     *time.Time
	MaxUses    *int
	UsedCount  int `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CouponModel) TableName() string {
	return "coupons"
}
