package models

import "time"

// Message log statuses (terminal delivery outcomes only)
const (
	MessageLogStatusSent   = "sent"
	MessageLogStatusFailed = "failed"
)

// MessageLog is the immutable audit record of a terminal send attempt.
// Rows are written once and never updated.
type MessageLog struct {
	ID         uint  `gorm:"primaryKey" json:"id"`
	SessionID  *uint `gorm:"index:idx_wa_logs_session_id" json:"session_id,omitempty"`
	CustomerID *uint `gorm:"index:idx_wa_logs_customer_id" json:"customer_id,omitempty"`
	InvoiceID  *uint `json:"invoice_id,omitempty"`

	Category     string  `gorm:"size:50;not null;index:idx_wa_logs_category" json:"category"`
	Phone        string  `gorm:"size:20;not null" json:"phone"`
	Content      string  `gorm:"type:text;not null" json:"content"`
	Status       string  `gorm:"size:20;not null" json:"status"`
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	SentAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_wa_logs_sent_at" json:"sent_at"`
}

func (MessageLog) TableName() string {
	return "wa_message_logs"
}

// MessageLogFilter represents filter criteria for message log queries
type MessageLogFilter struct {
	ID         *uint
	SessionID  *uint
	CustomerID *uint
	InvoiceID  *uint
	Category   *string
	Status     *string
}
