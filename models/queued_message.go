package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// QueueStatus represents the delivery state of a queued message
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSending QueueStatus = "sending"
	QueueStatusSent    QueueStatus = "sent"
	QueueStatusFailed  QueueStatus = "failed"
)

// String returns the string representation of the status
func (s QueueStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusSending, QueueStatusSent, QueueStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for QueueStatus
func (s *QueueStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = QueueStatus(v)
	case []byte:
		*s = QueueStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into QueueStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for QueueStatus
func (s QueueStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid QueueStatus: %s", s)
	}
	return string(s), nil
}

// Message categories
const (
	MessageCategoryReminder  = "reminder"
	MessageCategoryReceipt   = "receipt"
	MessageCategoryIsolation = "isolation"
	MessageCategoryManual    = "manual"
	MessageCategoryCustom    = "custom"
)

// QueuedMessage is one unit of outbound WhatsApp work. Rows are created by the
// scheduler or manual-send callers and mutated only by the queue processor.
// Session/customer/invoice references are for audit, not ownership: deleting
// a session clears the reference, the message itself survives.
type QueuedMessage struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	SessionID  *uint      `gorm:"index:idx_wa_queue_session_id" json:"session_id,omitempty"`
	Session    *WASession `gorm:"foreignKey:SessionID;references:ID" json:"session,omitempty"`
	CustomerID *uint      `json:"customer_id,omitempty"`
	InvoiceID  *uint      `json:"invoice_id,omitempty"`

	Category string      `gorm:"size:50;not null;default:'reminder';index:idx_wa_queue_category" json:"category"`
	Phone    string      `gorm:"size:20;not null" json:"phone"`
	Content  string      `gorm:"type:text;not null" json:"content"`
	Priority int         `gorm:"not null;default:0" json:"priority"`
	Status   QueueStatus `gorm:"size:20;not null;default:'pending';index:idx_wa_queue_status_scheduled" json:"status"`

	RetryCount int `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries int `gorm:"not null;default:3" json:"max_retries"`

	// ScheduledAt is the earliest-send timestamp; the processor never claims
	// a message before it.
	ScheduledAt  time.Time  `gorm:"not null;index:idx_wa_queue_status_scheduled" json:"scheduled_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (QueuedMessage) TableName() string {
	return "wa_message_queue"
}

func (m *QueuedMessage) IsTerminal() bool {
	return m.Status == QueueStatusSent || m.Status == QueueStatusFailed
}

// QueuedMessageFilter represents filter criteria for queue queries
type QueuedMessageFilter struct {
	ID              *uint
	SessionID       *uint
	CustomerID      *uint
	InvoiceID       *uint
	Category        *string
	Status          *QueueStatus
	ScheduledBefore *time.Time
}

// QueueStats aggregates queue entry counts by status
type QueueStats struct {
	Pending int64 `json:"pending"`
	Sending int64 `json:"sending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Total   int64 `json:"total"`
}
