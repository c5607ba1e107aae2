package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/paysettle/paysettle/internal/domain/payment"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/domain/shared"
	"github.com/paysettle/paysettle/internal/infrastructure/persistence/models"
)

func PaymentToModel(p *payment.Payment) (*models.PaymentModel, error) {
	model := &models.PaymentModel{
		ID:            p.ID(),
		PaymentNo:     p.PaymentNo(),
		OrderID:       p.OrderID(),
		Provider:      string(p.Provider()),
		Method:        p.Method(),
		Amount:        p.Amount().AmountInCents(),
		Currency:      p.Amount().Currency(),
		Status:        p.Status().String(),
		TrackID:       p.TrackID(),
		PaymentURL:    p.PaymentURL(),
		QRCode:        p.QRCode(),
		TransactionID: p.TransactionID(),
		CryptoAddress: p.CryptoAddress(),
		PayCurrency:   p.PayCurrency(),
		Network:       p.Network(),
		CryptoAmount:  p.CryptoAmount(),
		ExchangeRate:  p.ExchangeRate(),
		PaidAt:        p.PaidAt(),
		ExpiresAt:     p.ExpiresAt(),
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	}

	if len(p.Metadata()) > 0 {
		raw, err := json.Marshal(p.Metadata())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payment metadata: %w", err)
		}
		model.Metadata = datatypes.JSON(raw)
	}

	return model, nil
}

func PaymentToDomain(model *models.PaymentModel) (*payment.Payment, error) {
	provider, err := vo.NewProvider(model.Provider)
	if err != nil {
		return nil, err
	}

	status, err := vo.NewPaymentStatus(model.Status)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]interface{})
	if len(model.Metadata) > 0 {
		if err := json.Unmarshal(model.Metadata, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment metadata: %w", err)
		}
	}

	return payment.ReconstructPaymentWithParams(payment.PaymentReconstructParams{
		ID:            model.ID,
		PaymentNo:     model.PaymentNo,
		OrderID:       model.OrderID,
		Provider:      provider,
		Method:        model.Method,
		Amount:        shared.NewMoney(model.Amount, model.Currency),
		Status:        status,
		TrackID:       model.TrackID,
		PaymentURL:    model.PaymentURL,
		QRCode:        model.QRCode,
		TransactionID: model.TransactionID,
		CryptoAddress: model.CryptoAddress,
		PayCurrency:   model.PayCurrency,
		Network:       model.Network,
		CryptoAmount:  model.CryptoAmount,
		ExchangeRate:  model.ExchangeRate,
		PaidAt:        model.PaidAt,
		ExpiresAt:     model.ExpiresAt,
		Metadata:      metadata,
		Version:       model.Version,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}), nil
}

func PaymentsToDomain(ms []models.PaymentModel) ([]*payment.Payment, error) {
	payments := make([]*payment.Payment, len(ms))
	for i := range ms {
		p, err := PaymentToDomain(&ms[i])
		if err != nil {
			return nil, err
		}
		payments[i] = p
	}
	return payments, nil
}
