// Package errors provides application-level error types and utilities.
// It defines the error kinds raised by checkout and reconciliation: validation,
// amount policy, gateway and persistence failures, and terminal payment states.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal_error"
	ErrorTypeBadRequest   ErrorType = "bad_request"

	// Checkout error kinds
	ErrorTypeInvalidAmount       ErrorType = "invalid_amount"
	ErrorTypeBelowMinimum        ErrorType = "below_minimum"
	ErrorTypeGatewayCreateFailed ErrorType = "gateway_create_failed"
	ErrorTypePaymentRecordFailed ErrorType = "payment_record_failed"
	ErrorTypeTransientNetwork    ErrorType = "transient_network"
	ErrorTypeExpired             ErrorType = "expired"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Retryable reports whether the client may retry the same request unchanged.
func (e *AppError) Retryable() bool {
	return e.Type == ErrorTypeGatewayCreateFailed || e.Type == ErrorTypeTransientNetwork
}

func newAppError(t ErrorType, code int, message string, details []string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:    t,
		Message: message,
		Code:    code,
		Details: detail,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, details)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, details)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, message, details)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, details)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, details)
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeBadRequest, http.StatusBadRequest, message, details)
}

// NewInvalidAmountError is raised for NaN, infinite or negative amounts before any I/O.
func NewInvalidAmountError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInvalidAmount, http.StatusBadRequest, message, details)
}

// NewBelowMinimumError is raised when a total is under the rail's floor.
func NewBelowMinimumError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeBelowMinimum, http.StatusUnprocessableEntity, message, details)
}

// NewGatewayCreateFailedError is raised when a payment intent could not be created.
func NewGatewayCreateFailedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeGatewayCreateFailed, http.StatusBadGateway, message, details)
}

// NewPaymentRecordFailedError is raised when the gateway accepted an intent but the
// local payment row could not be written.
func NewPaymentRecordFailedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypePaymentRecordFailed, http.StatusInternalServerError, message, details)
}

// NewTransientNetworkError creates a new transient network error
func NewTransientNetworkError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeTransientNetwork, http.StatusServiceUnavailable, message, details)
}

// NewExpiredError creates a new expired error
func NewExpiredError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeExpired, http.StatusGone, message, details)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func isType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsInvalidAmountError checks if the error is an invalid amount error
func IsInvalidAmountError(err error) bool { return isType(err, ErrorTypeInvalidAmount) }

// IsBelowMinimumError checks if the error is a below minimum error
func IsBelowMinimumError(err error) bool { return isType(err, ErrorTypeBelowMinimum) }

// IsGatewayCreateFailedError checks if the error is a gateway create failure
func IsGatewayCreateFailedError(err error) bool { return isType(err, ErrorTypeGatewayCreateFailed) }

// IsPaymentRecordFailedError checks if the error is a payment record failure
func IsPaymentRecordFailedError(err error) bool { return isType(err, ErrorTypePaymentRecordFailed) }

// IsTransientNetworkError checks if the error is a transient network error
func IsTransientNetworkError(err error) bool { return isType(err, ErrorTypeTransientNetwork) }

// IsExpiredError checks if the error is an expired error
func IsExpiredError(err error) bool { return isType(err, ErrorTypeExpired) }

// IsDuplicateError checks if the error is a database duplicate key error
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// MySQL duplicate entry error
	if strings.Contains(errStr, "Duplicate entry") || strings.Contains(errStr, "duplicate key") {
		return true
	}
	// SQLite / PostgreSQL unique violation
	if strings.Contains(errStr, "UNIQUE constraint") || strings.Contains(errStr, "unique constraint") {
		return true
	}
	return false
}
