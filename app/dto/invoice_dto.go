package dto

import "time"

// InvoiceItem represents an invoice row in listings
type InvoiceItem struct {
	ID            uint       `json:"id"`
	UUID          string     `json:"uuid"`
	CustomerID    uint       `json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	Period        string     `json:"period"`
	Amount        int64      `json:"amount"`
	Discount      int64      `json:"discount"`
	TotalAmount   int64      `json:"total_amount"`
	Status        string     `json:"status"`
	DueDate       string     `json:"due_date"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	Version       int        `json:"version"`
}

// ListInvoicesRequest filters invoice listings. OwnerID is injected from the
// auth context; superadmins see all owners unless they filter explicitly.
type ListInvoicesRequest struct {
	UserID   uint    `json:"-"`
	Role     string  `json:"-"`
	OwnerID  *uint   `json:"owner_id,omitempty"`
	Period   *string `json:"period,omitempty"`
	Status   *string `json:"status,omitempty"`
	Page     uint    `json:"page,omitempty"`
	PageSize uint    `json:"page_size,omitempty"`
}

// ListInvoicesResponse returns invoice rows plus per-status totals
type ListInvoicesResponse struct {
	Message string           `json:"message"`
	Items   []InvoiceItem    `json:"items"`
	Total   int64            `json:"total"`
	Sums    map[string]int64 `json:"sums,omitempty"`
}

// GetInvoiceRequest fetches one invoice by id, scoped to the caller
type GetInvoiceRequest struct {
	UserID    uint   `json:"-"`
	Role      string `json:"-"`
	InvoiceID uint   `json:"-"`
}

// GetInvoiceResponse returns one invoice
type GetInvoiceResponse struct {
	Message string      `json:"message"`
	Invoice InvoiceItem `json:"invoice"`
}

// PayInvoiceRequest marks an invoice paid. Version is the value the caller
// last read; a mismatch is rejected as a conflict.
type PayInvoiceRequest struct {
	UserID        uint    `json:"-"`
	Role          string  `json:"-"`
	InvoiceID     uint    `json:"-"`
	Version       int     `json:"version" validate:"required,min=1"`
	PaymentMethod *string `json:"payment_method,omitempty"`
	PaymentNote   *string `json:"payment_note,omitempty"`
}

// PayInvoiceResponse returns the post-transition invoice state
type PayInvoiceResponse struct {
	Message string      `json:"message"`
	Invoice InvoiceItem `json:"invoice"`
}

// UnpayInvoiceRequest reverses a paid invoice under the same version gate
type UnpayInvoiceRequest struct {
	UserID    uint   `json:"-"`
	Role      string `json:"-"`
	InvoiceID uint   `json:"-"`
	Version   int    `json:"version" validate:"required,min=1"`
}

// UnpayInvoiceResponse returns the post-reversal invoice state
type UnpayInvoiceResponse struct {
	Message string      `json:"message"`
	Invoice InvoiceItem `json:"invoice"`
}

// GenerateInvoicesRequest triggers invoice generation for a billing day
// outside the daily tick. Day defaults to tomorrow's day-of-month.
type GenerateInvoicesRequest struct {
	UserID  uint  `json:"-"`
	Day     *int  `json:"day,omitempty" validate:"omitempty,min=1,max=31"`
	OwnerID *uint `json:"owner_id,omitempty"`
}

// GenerateInvoicesResponse reports how many invoices were created
type GenerateInvoicesResponse struct {
	Message string `json:"message"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
}

// GetReceiptRequest fetches the public receipt view by token
type GetReceiptRequest struct {
	Token string `json:"-"`
}

// GetReceiptResponse is the public receipt view; no account data beyond the
// business name leaves this shape
type GetReceiptResponse struct {
	BusinessName string     `json:"business_name"`
	CustomerName string     `json:"customer_name"`
	Period       string     `json:"period"`
	TotalAmount  int64      `json:"total_amount"`
	Status       string     `json:"status"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

// ExportInvoicesRequest exports a period's invoices as an XLSX workbook
type ExportInvoicesRequest struct {
	UserID uint   `json:"-"`
	Role   string `json:"-"`
	Period string `json:"-"`
}
