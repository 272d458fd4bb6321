package dto

import "time"

// WAStatusResponse reports the connection state of the caller's session
type WAStatusResponse struct {
	Status          string     `json:"status"`
	PhoneNumber     *string    `json:"phone_number,omitempty"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
	Registered      bool       `json:"registered"`
}

// WAConnectResponse acknowledges a connect attempt; the QR code (when needed)
// arrives over the realtime channel, not in this response
type WAConnectResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// WADisconnectResponse acknowledges a disconnect
type WADisconnectResponse struct {
	Message string `json:"message"`
}

// SendTestMessageRequest carries a free-form message to an arbitrary number
type SendTestMessageRequest struct {
	UserID  uint   `json:"-"`
	Phone   string `json:"phone" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// SendTestMessageResponse reports the immediate send outcome
type SendTestMessageResponse struct {
	Message string `json:"message"`
}

// SendManualRequest delivers one templated (or free-form) message to a
// customer immediately over the owner's live connection
type SendManualRequest struct {
	UserID        uint    `json:"-"`
	Role          string  `json:"-"`
	CustomerID    uint    `json:"customer_id" validate:"required"`
	InvoiceID     *uint   `json:"invoice_id,omitempty"`
	Template      string  `json:"template" validate:"required,oneof=reminder receipt isolation custom"`
	CustomMessage *string `json:"custom_message,omitempty"`
}

// SendManualResponse reports the send outcome
type SendManualResponse struct {
	Message string `json:"message"`
}

// BulkSendRequest enqueues templated messages for many customers with the
// same stagger walk the scheduler uses
type BulkSendRequest struct {
	UserID        uint    `json:"-"`
	Role          string  `json:"-"`
	CustomerIDs   []uint  `json:"customer_ids" validate:"required,min=1"`
	Template      string  `json:"template" validate:"required,oneof=reminder custom"`
	CustomMessage *string `json:"custom_message,omitempty"`
}

// BulkSendResponse reports how many messages were enqueued
type BulkSendResponse struct {
	Message string `json:"message"`
	Queued  int    `json:"queued"`
}

// CheckNumberRequest asks whether a phone number is reachable on WhatsApp
type CheckNumberRequest struct {
	UserID uint   `json:"-"`
	Phone  string `json:"phone" validate:"required"`
}

// CheckNumberResponse reports number existence
type CheckNumberResponse struct {
	Phone      string `json:"phone"`
	Registered bool   `json:"registered"`
}

// MessageLogItem is one row in the send-history listing
type MessageLogItem struct {
	ID           uint    `json:"id"`
	Category     string  `json:"category"`
	Phone        string  `json:"phone"`
	Content      string  `json:"content"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
	SentAt       string  `json:"sent_at"`
}

// ListMessageLogsRequest pages through the send history of the caller
type ListMessageLogsRequest struct {
	UserID   uint    `json:"-"`
	Role     string  `json:"-"`
	Category *string `json:"category,omitempty"`
	Page     uint    `json:"page,omitempty"`
	PageSize uint    `json:"page_size,omitempty"`
}

// ListMessageLogsResponse returns message log rows
type ListMessageLogsResponse struct {
	Message string           `json:"message"`
	Items   []MessageLogItem `json:"items"`
	Total   int64            `json:"total"`
}

// QueueStatsResponse aggregates queue entry counts by status
type QueueStatsResponse struct {
	Pending int64 `json:"pending"`
	Sending int64 `json:"sending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Total   int64 `json:"total"`
}

// RetryMessageRequest moves a failed queue entry back to pending
type RetryMessageRequest struct {
	UserID    uint `json:"-"`
	MessageID uint `json:"-"`
}

// RetryMessageResponse acknowledges the retry
type RetryMessageResponse struct {
	Message string `json:"message"`
}

// CancelMessageRequest removes a still-pending queue entry
type CancelMessageRequest struct {
	UserID    uint `json:"-"`
	MessageID uint `json:"-"`
}

// CancelMessageResponse acknowledges the cancellation
type CancelMessageResponse struct {
	Message string `json:"message"`
}
