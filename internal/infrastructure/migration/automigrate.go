package migration

import (
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/models"
)

func AutoMigrateModels() []interface{} {
	return []interface{}{
		&models.OrderModel{},
		&models.PaymentModel{},
		&models.CouponModel{},
	}
}
