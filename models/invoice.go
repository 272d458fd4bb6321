package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus represents the payment status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	// InvoiceStatusPartial is reserved in the schema; no transition produces it yet.
	InvoiceStatusPartial InvoiceStatus = "partial"
)

// String returns the string representation of the status
func (s InvoiceStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPaid, InvoiceStatusPartial:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for InvoiceStatus
func (s *InvoiceStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = InvoiceStatus(v)
	case []byte:
		*s = InvoiceStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into InvoiceStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for InvoiceStatus
func (s InvoiceStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid InvoiceStatus: %s", s)
	}
	return string(s), nil
}

// Invoice represents one billing period's charge for a customer.
// Exactly one row exists per (customer, period); mutation goes through the
// version-gated pay/unpay transitions only.
type Invoice struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_invoices_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;index:idx_invoices_customer_id;uniqueIndex:uk_invoices_customer_period" json:"customer_id"`
	Customer   *Customer `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	OwnerID    uint      `gorm:"not null;index:idx_invoices_owner_id" json:"owner_id"`
	Owner      *User     `gorm:"foreignKey:OwnerID;references:ID" json:"owner,omitempty"`

	// Period is the billing month in YYYY-MM form (pre-paid: generated one period ahead)
	Period      string        `gorm:"size:7;not null;index:idx_invoices_period;uniqueIndex:uk_invoices_customer_period" json:"period"`
	Amount      int64         `gorm:"not null" json:"amount"`
	Discount    int64         `gorm:"not null;default:0" json:"discount"`
	TotalAmount int64         `gorm:"not null" json:"total_amount"`
	Status      InvoiceStatus `gorm:"type:payment_status;not null;default:'unpaid';index:idx_invoices_status" json:"status"`

	PaidAt        *time.Time `json:"paid_at,omitempty"`
	PaidBy        *uint      `json:"paid_by,omitempty"`
	PaymentMethod *string    `gorm:"size:50" json:"payment_method,omitempty"`
	PaymentNote   *string    `gorm:"type:text" json:"payment_note,omitempty"`

	DueDate      time.Time `gorm:"type:date;not null;index:idx_invoices_due_date" json:"due_date"`
	ReceiptToken string    `gorm:"size:100;uniqueIndex:uk_invoices_receipt_token" json:"receipt_token"`

	ReminderSentAt  *time.Time `json:"reminder_sent_at,omitempty"`
	ReceiptSentAt   *time.Time `json:"receipt_sent_at,omitempty"`
	IsolationSentAt *time.Time `json:"isolation_sent_at,omitempty"`

	// Version is the optimistic-concurrency token; every successful
	// pay/unpay increments it by exactly one.
	Version int `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

// InvoiceFilter represents filter criteria for invoice queries
type InvoiceFilter struct {
	ID           *uint
	UUID         *uuid.UUID
	CustomerID   *uint
	OwnerID      *uint
	Period       *string
	Status       *InvoiceStatus
	DueBefore    *time.Time
	DueAfter     *time.Time
	ReceiptToken *string
}
