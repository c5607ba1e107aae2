package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentModel is one checkout attempt against a gateway.
type PaymentModel struct {
	ID            uint    `gorm:"primaryKey"`
	PaymentNo     string  `gorm:"uniqueIndex;size:64;not null"`
	OrderID       uint    `gorm:"index;not null"`
	Provider      string  `gorm:"size:20;not null;index:idx_payments_provider_track,priority:1"`
	Method        string  `gorm:"size:64;not null"`
	Amount        int64   `gorm:"not null"`
	Currency      string  `gorm:"size:10;not null;default:'USD'"`
	Status        string  `gorm:"size:20;not null;index"`
	TrackID       *string `gorm:"size:128;index:idx_payments_provider_track,priority:2"`
	PaymentURL    *string `gorm:"type:text"`
	QRCode        *string `gorm:"type:text"`
	TransactionID *string `gorm:"size:128"`

	// Crypto deposit instructions
	CryptoAddress *string `gorm:"size:128"`
	PayCurrency   *string `gorm:"size:16"`
	Network       *string `gorm:"size:64"`
	CryptoAmount  *string `gorm:"size:64"`
	ExchangeRate  *float64

	PaidAt    *time.Time
	ExpiresAt time.Time `gorm:"not null;index"`
	Metadata  datatypes.JSON
	Version   int `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PaymentModel) TableName() string {
	return "payments"
}
