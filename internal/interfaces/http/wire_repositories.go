package http

import (
	"gorm.io/gorm"

	"github.com/paysettle/paysettle/internal/infrastructure/repository"
	"github.com/paysettle/paysettle/internal/shared/db"
)

// repositories holds all repository instances used across the container.
type repositories struct {
	orderRepo   *repository.OrderRepository
	paymentRepo *repository.PaymentRepository
	couponRepo  *repository.CouponRepository
	txManager   *db.TransactionManager
}

// newRepositories creates all repository instances from the database connection.
func newRepositories(gormDB *gorm.DB) *repositories {
	return &repositories{
		orderRepo:   repository.NewOrderRepository(gormDB),
		paymentRepo: repository.NewPaymentRepository(gormDB),
		couponRepo:  repository.NewCouponRepository(gormDB),
		txManager:   db.NewTransactionManager(gormDB),
	}
}
