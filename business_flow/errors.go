// Package businessflow contains the core business logic and use cases for billing and messaging workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Invoice-related errors
	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrInvoiceVersionConflict = errors.New("invoice was modified by another user")
	ErrInvoiceAlreadyPaid     = errors.New("invoice is already paid")
	ErrInvoiceNotPaid         = errors.New("invoice is not paid")
	ErrInvoiceAccessDenied    = errors.New("invoice access denied")
	ErrReceiptNotFound        = errors.New("receipt not found")
	ErrInvalidBillingDay      = errors.New("billing day must be between 1 and 31")

	// Customer/package errors
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrCustomerAccessDenied  = errors.New("customer access denied")
	ErrPackageNotFound       = errors.New("package not found")
	ErrUserNotFound          = errors.New("user not found")

	// WhatsApp session errors
	ErrConnectInProgress   = errors.New("a connection attempt is already in progress")
	ErrSessionNotConnected = errors.New("whatsapp session is not connected")

	// Queue errors
	ErrMessageNotFound   = errors.New("queued message not found")
	ErrMessageNotPending = errors.New("message is no longer pending")
	ErrMessageNotFailed  = errors.New("message is not in failed state")
	ErrEmptyMessage      = errors.New("message content is empty")
	ErrInvalidCategory   = errors.New("unknown message category")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsInvoiceNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound)
}

func IsInvoiceVersionConflict(err error) bool {
	return errors.Is(err, ErrInvoiceVersionConflict)
}

func IsInvoiceAlreadyPaid(err error) bool {
	return errors.Is(err, ErrInvoiceAlreadyPaid)
}

func IsInvoiceNotPaid(err error) bool {
	return errors.Is(err, ErrInvoiceNotPaid)
}

func IsInvoiceAccessDenied(err error) bool {
	return errors.Is(err, ErrInvoiceAccessDenied)
}

func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

func IsConnectInProgress(err error) bool {
	return errors.Is(err, ErrConnectInProgress)
}

func IsSessionNotConnected(err error) bool {
	return errors.Is(err, ErrSessionNotConnected)
}

func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}

func IsMessageNotPending(err error) bool {
	return errors.Is(err, ErrMessageNotPending)
}

func IsMessageNotFailed(err error) bool {
	return errors.Is(err, ErrMessageNotFailed)
}

func IsReceiptNotFound(err error) bool {
	return errors.Is(err, ErrReceiptNotFound)
}

func IsInvalidBillingDay(err error) bool {
	return errors.Is(err, ErrInvalidBillingDay)
}

func IsCustomerAccessDenied(err error) bool {
	return errors.Is(err, ErrCustomerAccessDenied)
}

func IsPackageNotFound(err error) bool {
	return errors.Is(err, ErrPackageNotFound)
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsEmptyMessage(err error) bool {
	return errors.Is(err, ErrEmptyMessage)
}

func IsInvalidCategory(err error) bool {
	return errors.Is(err, ErrInvalidCategory)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
