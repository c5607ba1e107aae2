package models

import (
	"time"

	"gorm.io/datatypes"
)

// OrderModel stores a cart and its lifecycle. Items, coupon and custom fields
// are kept as JSON documents.
type OrderModel struct {
	ID           uint           `gorm:"primaryKey"`
	OrderNo      string         `gorm:"uniqueIndex;size:64;not null"`
	Email        string         `gorm:"size:255;not null;index"`
	Items        datatypes.JSON `gorm:"not null"`
	Coupon       datatypes.JSON
	Currency     string `gorm:"size:10;not null;default:'USD'"`
	Subtotal     int64  `gorm:"not null"`
	Discount     int64  `gorm:"not null;default:0"`
	Total        int64  `gorm:"not null"`
	Status       string `gorm:"size:20;not null;index:idx_orders_status_created,priority:1"`
	CustomFields datatypes.JSON
	SettledAt    *time.Time
	Version      int       `gorm:"not null;default:1"`
	CreatedAt    time.Time `gorm:"index:idx_orders_status_created,priority:2"`
	UpdatedAt    time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}
