package businessflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/fibernode/backoffice/app/dto"
	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	"github.com/fibernode/backoffice/utils"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// InvoiceFlow defines operations on the payment ledger
type InvoiceFlow interface {
	ListInvoices(ctx context.Context, req *dto.ListInvoicesRequest, metadata *ClientMetadata) (*dto.ListInvoicesResponse, error)
	GetInvoice(ctx context.Context, req *dto.GetInvoiceRequest, metadata *ClientMetadata) (*dto.GetInvoiceResponse, error)
	PayInvoice(ctx context.Context, req *dto.PayInvoiceRequest, metadata *ClientMetadata) (*dto.PayInvoiceResponse, error)
	UnpayInvoice(ctx context.Context, req *dto.UnpayInvoiceRequest, metadata *ClientMetadata) (*dto.UnpayInvoiceResponse, error)
	GenerateInvoices(ctx context.Context, req *dto.GenerateInvoicesRequest, metadata *ClientMetadata) (*dto.GenerateInvoicesResponse, error)
	GenerateForBillingDay(ctx context.Context, day int, ownerID *uint) (created, skipped int, err error)
	GetReceipt(ctx context.Context, req *dto.GetReceiptRequest) (*dto.GetReceiptResponse, error)
	ExportInvoices(ctx context.Context, req *dto.ExportInvoicesRequest) ([]byte, error)
}

// InvoiceFlowImpl implements InvoiceFlow
type InvoiceFlowImpl struct {
	invoiceRepo  repository.InvoiceRepository
	customerRepo repository.CustomerRepository
	activityRepo repository.ActivityLogRepository
}

// NewInvoiceFlow creates a new invoice flow
func NewInvoiceFlow(invoiceRepo repository.InvoiceRepository, customerRepo repository.CustomerRepository, activityRepo repository.ActivityLogRepository) InvoiceFlow {
	return &InvoiceFlowImpl{
		invoiceRepo:  invoiceRepo,
		customerRepo: customerRepo,
		activityRepo: activityRepo,
	}
}

const defaultPageSize = 20

// ListInvoices returns invoices visible to the caller. Mitra accounts are
// pinned to their own rows regardless of the requested owner filter.
func (f *InvoiceFlowImpl) ListInvoices(ctx context.Context, req *dto.ListInvoicesRequest, metadata *ClientMetadata) (*dto.ListInvoicesResponse, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize > 100 {
		return nil, NewBusinessError("INVALID_PAGE_SIZE", "page size must be between 1 and 100", ErrInvalidPageSize)
	}

	filter := models.InvoiceFilter{Period: req.Period}
	if req.Status != nil {
		status := models.InvoiceStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessErrorf("INVALID_STATUS", "unknown invoice status %q", nil, *req.Status)
		}
		filter.Status = &status
	}
	if req.Role == models.UserRoleMitra {
		filter.OwnerID = &req.UserID
	} else if req.OwnerID != nil {
		filter.OwnerID = req.OwnerID
	}

	total, err := f.invoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count invoices: %w", err)
	}

	invoices, err := f.invoiceRepo.ByFilter(ctx, filter, "due_date DESC", int(pageSize), int((page-1)*pageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	items := make([]dto.InvoiceItem, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, toInvoiceItem(inv))
	}

	resp := &dto.ListInvoicesResponse{
		Message: "Invoices retrieved successfully",
		Items:   items,
		Total:   total,
	}

	if req.Period != nil {
		sums, err := f.invoiceRepo.SumByStatus(ctx, filter.OwnerID, *req.Period)
		if err != nil {
			log.Printf("[InvoiceFlow] Failed to aggregate sums for period %s: %v", *req.Period, err)
		} else {
			resp.Sums = make(map[string]int64, len(sums))
			for status, sum := range sums {
				resp.Sums[status.String()] = sum
			}
		}
	}

	return resp, nil
}

// GetInvoice returns one invoice, scoped to the caller
func (f *InvoiceFlowImpl) GetInvoice(ctx context.Context, req *dto.GetInvoiceRequest, metadata *ClientMetadata) (*dto.GetInvoiceResponse, error) {
	invoice, err := f.loadScoped(ctx, req.InvoiceID, req.UserID, req.Role)
	if err != nil {
		return nil, err
	}

	return &dto.GetInvoiceResponse{
		Message: "Invoice retrieved successfully",
		Invoice: toInvoiceItem(invoice),
	}, nil
}

// PayInvoice transitions unpaid -> paid under the optimistic version gate
func (f *InvoiceFlowImpl) PayInvoice(ctx context.Context, req *dto.PayInvoiceRequest, metadata *ClientMetadata) (*dto.PayInvoiceResponse, error) {
	invoice, err := f.loadScoped(ctx, req.InvoiceID, req.UserID, req.Role)
	if err != nil {
		return nil, err
	}
	if invoice.IsPaid() {
		return nil, NewBusinessError("INVOICE_ALREADY_PAID", "invoice is already paid", ErrInvoiceAlreadyPaid)
	}

	method := req.PaymentMethod
	if method == nil || *method == "" {
		cash := "cash"
		method = &cash
	}

	affected, err := f.invoiceRepo.MarkPaid(ctx, req.InvoiceID, req.Version, req.UserID, method, req.PaymentNote, utils.UTCNow())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, NewBusinessError("INVOICE_CONFLICT", "invoice was modified by another user, refresh and retry", ErrInvoiceVersionConflict)
	}

	recordActivity(ctx, f.activityRepo, req.UserID, models.ActivityActionInvoicePaid, "invoices", req.InvoiceID, metadata, map[string]any{
		"payment_method": *method,
	})

	updated, err := f.invoiceRepo.ByID(ctx, req.InvoiceID)
	if err != nil || updated == nil {
		return nil, fmt.Errorf("failed to reload invoice after payment: %w", err)
	}

	return &dto.PayInvoiceResponse{
		Message: "Invoice marked as paid",
		Invoice: toInvoiceItem(updated),
	}, nil
}

// UnpayInvoice reverses paid -> unpaid under the same version gate
func (f *InvoiceFlowImpl) UnpayInvoice(ctx context.Context, req *dto.UnpayInvoiceRequest, metadata *ClientMetadata) (*dto.UnpayInvoiceResponse, error) {
	invoice, err := f.loadScoped(ctx, req.InvoiceID, req.UserID, req.Role)
	if err != nil {
		return nil, err
	}
	if !invoice.IsPaid() {
		return nil, NewBusinessError("INVOICE_NOT_PAID", "invoice is not paid", ErrInvoiceNotPaid)
	}

	affected, err := f.invoiceRepo.MarkUnpaid(ctx, req.InvoiceID, req.Version)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, NewBusinessError("INVOICE_CONFLICT", "invoice was modified by another user, refresh and retry", ErrInvoiceVersionConflict)
	}

	recordActivity(ctx, f.activityRepo, req.UserID, models.ActivityActionInvoiceUnpaid, "invoices", req.InvoiceID, metadata, nil)

	updated, err := f.invoiceRepo.ByID(ctx, req.InvoiceID)
	if err != nil || updated == nil {
		return nil, fmt.Errorf("failed to reload invoice after reversal: %w", err)
	}

	return &dto.UnpayInvoiceResponse{
		Message: "Invoice payment reversed",
		Invoice: toInvoiceItem(updated),
	}, nil
}

// GenerateInvoices triggers generation outside the daily tick. Day defaults
// to tomorrow's day-of-month, matching what the scheduler would do tonight.
func (f *InvoiceFlowImpl) GenerateInvoices(ctx context.Context, req *dto.GenerateInvoicesRequest, metadata *ClientMetadata) (*dto.GenerateInvoicesResponse, error) {
	day := utils.UTCNow().AddDate(0, 0, 1).Day()
	if req.Day != nil {
		if *req.Day < 1 || *req.Day > 31 {
			return nil, NewBusinessError("INVALID_BILLING_DAY", "billing day must be between 1 and 31", ErrInvalidBillingDay)
		}
		day = *req.Day
	}

	created, skipped, err := f.GenerateForBillingDay(ctx, day, req.OwnerID)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, f.activityRepo, req.UserID, models.ActivityActionInvoiceGenerated, "invoices", 0, metadata, map[string]any{
		"day":     day,
		"created": created,
		"skipped": skipped,
	})

	return &dto.GenerateInvoicesResponse{
		Message: "Invoice generation completed",
		Created: created,
		Skipped: skipped,
	}, nil
}

// GenerateForBillingDay creates next-period (pre-paid) invoices for every
// billable customer whose billing day matches. Existing (customer, period)
// rows are left untouched; a missing package skips the customer with a
// warning instead of aborting the batch.
func (f *InvoiceFlowImpl) GenerateForBillingDay(ctx context.Context, day int, ownerID *uint) (int, int, error) {
	customers, err := f.customerRepo.ListBillableByBillingDay(ctx, day, ownerID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list customers for billing day %d: %w", day, err)
	}
	if len(customers) == 0 {
		log.Printf("[InvoiceFlow] No customers to bill on day %d", day)
		return 0, 0, nil
	}

	now := utils.UTCNow()
	next := now.AddDate(0, 1, 0)
	period := next.Format(utils.PeriodLayout)

	created := 0
	skipped := 0
	for _, customer := range customers {
		if customer.Package == nil {
			log.Printf("[InvoiceFlow] Customer %d has no package, skipping", customer.ID)
			skipped++
			continue
		}

		token, err := generateReceiptToken()
		if err != nil {
			return created, skipped, fmt.Errorf("failed to generate receipt token: %w", err)
		}

		// Due date is the billing day of the current month; the period
		// being billed is next month (pre-paid).
		dueDate := time.Date(now.Year(), now.Month(), customer.BillingDay, 0, 0, 0, 0, time.UTC)

		invoice := &models.Invoice{
			UUID:         uuid.New(),
			CustomerID:   customer.ID,
			OwnerID:      customer.OwnerID,
			Period:       period,
			Amount:       customer.Package.Price,
			Discount:     customer.Discount,
			TotalAmount:  customer.TotalBill,
			Status:       models.InvoiceStatusUnpaid,
			DueDate:      dueDate,
			ReceiptToken: token,
			Version:      1,
		}

		inserted, err := f.invoiceRepo.InsertIfAbsent(ctx, invoice)
		if err != nil {
			log.Printf("[InvoiceFlow] Failed to generate invoice for customer %d: %v", customer.ID, err)
			skipped++
			continue
		}
		if inserted {
			created++
		} else {
			skipped++
		}
	}

	log.Printf("[InvoiceFlow] Generation for day %d: %d created, %d skipped", day, created, skipped)
	return created, skipped, nil
}

// GetReceipt returns the public receipt view by token
func (f *InvoiceFlowImpl) GetReceipt(ctx context.Context, req *dto.GetReceiptRequest) (*dto.GetReceiptResponse, error) {
	invoice, err := f.invoiceRepo.ByReceiptToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, NewBusinessError("RECEIPT_NOT_FOUND", "receipt not found", ErrReceiptNotFound)
	}

	resp := &dto.GetReceiptResponse{
		Period:      invoice.Period,
		TotalAmount: invoice.TotalAmount,
		Status:      invoice.Status.String(),
		PaidAt:      invoice.PaidAt,
	}
	if invoice.Customer != nil {
		resp.CustomerName = invoice.Customer.Name
	}
	if invoice.Owner != nil {
		resp.BusinessName = invoice.Owner.BusinessName
	}
	return resp, nil
}

// ExportInvoices renders a period's invoices as an XLSX workbook
func (f *InvoiceFlowImpl) ExportInvoices(ctx context.Context, req *dto.ExportInvoicesRequest) ([]byte, error) {
	filter := models.InvoiceFilter{Period: &req.Period}
	if req.Role == models.UserRoleMitra {
		filter.OwnerID = &req.UserID
	}

	invoices, err := f.invoiceRepo.ByFilter(ctx, filter, "due_date ASC", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for export: %w", err)
	}

	file := excelize.NewFile()
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("[InvoiceFlow] Failed to close export workbook: %v", err)
		}
	}()

	sheet := "Invoices"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("failed to rename export sheet: %w", err)
	}

	headers := []string{"ID", "Customer", "Phone", "Period", "Amount", "Discount", "Total", "Status", "Due Date", "Paid At", "Method"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write export header: %w", err)
		}
	}

	for rowIdx, inv := range invoices {
		item := toInvoiceItem(inv)
		values := []any{
			item.ID, item.CustomerName, item.CustomerPhone, item.Period,
			item.Amount, item.Discount, item.TotalAmount, item.Status, item.DueDate,
		}
		if inv.PaidAt != nil {
			values = append(values, inv.PaidAt.Format(time.RFC3339))
		} else {
			values = append(values, "")
		}
		if inv.PaymentMethod != nil {
			values = append(values, *inv.PaymentMethod)
		} else {
			values = append(values, "")
		}

		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := file.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write export row: %w", err)
			}
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize export workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// loadScoped fetches an invoice and enforces the ownership rule: mitra see
// only their own rows, superadmins see everything.
func (f *InvoiceFlowImpl) loadScoped(ctx context.Context, invoiceID, userID uint, role string) (*models.Invoice, error) {
	invoice, err := f.invoiceRepo.ByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, NewBusinessError("INVOICE_NOT_FOUND", "invoice not found", ErrInvoiceNotFound)
	}
	if role == models.UserRoleMitra && invoice.OwnerID != userID {
		return nil, NewBusinessError("INVOICE_ACCESS_DENIED", "invoice access denied", ErrInvoiceAccessDenied)
	}
	return invoice, nil
}

func toInvoiceItem(inv *models.Invoice) dto.InvoiceItem {
	item := dto.InvoiceItem{
		ID:            inv.ID,
		UUID:          inv.UUID.String(),
		CustomerID:    inv.CustomerID,
		Period:        inv.Period,
		Amount:        inv.Amount,
		Discount:      inv.Discount,
		TotalAmount:   inv.TotalAmount,
		Status:        inv.Status.String(),
		DueDate:       inv.DueDate.Format("2006-01-02"),
		PaidAt:        inv.PaidAt,
		PaymentMethod: inv.PaymentMethod,
		Version:       inv.Version,
	}
	if inv.Customer != nil {
		item.CustomerName = inv.Customer.Name
		item.CustomerPhone = inv.Customer.Phone
	}
	return item
}

// generateReceiptToken produces the public receipt token (32 hex chars)
func generateReceiptToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
