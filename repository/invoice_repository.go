package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fibernode/backoffice/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceRepositoryImpl implements InvoiceRepository interface
type InvoiceRepositoryImpl struct {
	*BaseRepository[models.Invoice, models.InvoiceFilter]
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &InvoiceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Invoice, models.InvoiceFilter](db),
	}
}

// ByUUID retrieves an invoice by UUID
func (r *InvoiceRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Invoice, error) {
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice UUID: %w", err)
	}
	rows, err := r.ByFilter(ctx, models.InvoiceFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByReceiptToken retrieves an invoice by its public receipt token
func (r *InvoiceRepositoryImpl) ByReceiptToken(ctx context.Context, token string) (*models.Invoice, error) {
	db := r.getDB(ctx)

	var invoice models.Invoice
	err := db.Where("receipt_token = ?", token).
		Preload("Customer").
		Preload("Customer.Package").
		Preload("Owner").
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find invoice by receipt token: %w", err)
	}
	return &invoice, nil
}

// ByCustomerAndPeriod retrieves the single invoice of a customer for a period
func (r *InvoiceRepositoryImpl) ByCustomerAndPeriod(ctx context.Context, customerID uint, period string) (*models.Invoice, error) {
	rows, err := r.ByFilter(ctx, models.InvoiceFilter{CustomerID: &customerID, Period: &period}, "", 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice by customer and period: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// InsertIfAbsent inserts the invoice unless one already exists for the same
// (customer, period). The unique index uk_invoices_customer_period backs the
// conflict target, so concurrent generators cannot double-bill a month.
func (r *InvoiceRepositoryImpl) InsertIfAbsent(ctx context.Context, invoice *models.Invoice) (bool, error) {
	db := r.getDB(ctx)

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_id"}, {Name: "period"}},
		DoNothing: true,
	}).Create(invoice)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert invoice: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkPaid transitions unpaid -> paid. The WHERE clause carries both the
// status and the caller's version; zero rows affected means another writer
// committed first and the caller must re-read.
func (r *InvoiceRepositoryImpl) MarkPaid(ctx context.Context, invoiceID uint, version int, paidBy uint, method, note *string, paidAt time.Time) (int64, error) {
	db := r.getDB(ctx)

	result := db.Model(&models.Invoice{}).
		Where("id = ? AND version = ? AND status = ?", invoiceID, version, models.InvoiceStatusUnpaid).
		Updates(map[string]any{
			"status":         models.InvoiceStatusPaid,
			"paid_at":        paidAt,
			"paid_by":        paidBy,
			"payment_method": method,
			"payment_note":   note,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     paidAt,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark invoice paid: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkUnpaid reverses paid -> unpaid under the same version gate, clearing
// every payment detail so the row looks never-paid again.
func (r *InvoiceRepositoryImpl) MarkUnpaid(ctx context.Context, invoiceID uint, version int) (int64, error) {
	db := r.getDB(ctx)

	result := db.Model(&models.Invoice{}).
		Where("id = ? AND version = ? AND status = ?", invoiceID, version, models.InvoiceStatusPaid).
		Updates(map[string]any{
			"status":         models.InvoiceStatusUnpaid,
			"paid_at":        nil,
			"paid_by":        nil,
			"payment_method": nil,
			"payment_note":   nil,
			"receipt_sent_at": nil,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark invoice unpaid: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkReminderSent stamps the reminder dispatch time
func (r *InvoiceRepositoryImpl) MarkReminderSent(ctx context.Context, invoiceID uint, at time.Time) error {
	return r.stampNotification(ctx, invoiceID, "reminder_sent_at", at)
}

// MarkReceiptSent stamps the receipt dispatch time
func (r *InvoiceRepositoryImpl) MarkReceiptSent(ctx context.Context, invoiceID uint, at time.Time) error {
	return r.stampNotification(ctx, invoiceID, "receipt_sent_at", at)
}

// MarkIsolationSent stamps the isolation-notice dispatch time
func (r *InvoiceRepositoryImpl) MarkIsolationSent(ctx context.Context, invoiceID uint, at time.Time) error {
	return r.stampNotification(ctx, invoiceID, "isolation_sent_at", at)
}

func (r *InvoiceRepositoryImpl) stampNotification(ctx context.Context, invoiceID uint, column string, at time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Invoice{}).
		Where("id = ?", invoiceID).
		Update(column, at).Error
	if err != nil {
		return fmt.Errorf("failed to stamp %s: %w", column, err)
	}
	return nil
}

// ListUnpaidDueBefore retrieves a merchant's unpaid invoices past due
func (r *InvoiceRepositoryImpl) ListUnpaidDueBefore(ctx context.Context, ownerID uint, before time.Time) ([]*models.Invoice, error) {
	db := r.getDB(ctx)

	var invoices []*models.Invoice
	err := db.Where("owner_id = ? AND status = ? AND due_date < ?", ownerID, models.InvoiceStatusUnpaid, before).
		Order("due_date ASC").
		Preload("Customer").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue invoices: %w", err)
	}
	return invoices, nil
}

// SumByStatus aggregates invoice totals per status for a period. A nil
// ownerID aggregates platform-wide.
func (r *InvoiceRepositoryImpl) SumByStatus(ctx context.Context, ownerID *uint, period string) (map[models.InvoiceStatus]int64, error) {
	db := r.getDB(ctx)

	type row struct {
		Status models.InvoiceStatus
		Total  int64
	}
	var rows []row

	query := db.Model(&models.Invoice{}).
		Select("status, COALESCE(SUM(total_amount), 0) AS total").
		Where("period = ?", period).
		Group("status")
	if ownerID != nil {
		query = query.Where("owner_id = ?", *ownerID)
	}

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to sum invoices by status: %w", err)
	}

	sums := make(map[models.InvoiceStatus]int64, len(rows))
	for _, r := range rows {
		sums[r.Status] = r.Total
	}
	return sums, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *InvoiceRepositoryImpl) applyFilter(query *gorm.DB, filter models.InvoiceFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Period != nil {
		query = query.Where("period = ?", *filter.Period)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		query = query.Where("due_date > ?", *filter.DueAfter)
	}
	if filter.ReceiptToken != nil {
		query = query.Where("receipt_token = ?", *filter.ReceiptToken)
	}
	return query
}

// ByFilter retrieves invoices based on filter criteria
func (r *InvoiceRepositoryImpl) ByFilter(ctx context.Context, filter models.InvoiceFilter, orderBy string, limit, offset int) ([]*models.Invoice, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Invoice{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.Invoice
	if err := query.Preload("Customer").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns number of invoices matching filter
func (r *InvoiceRepositoryImpl) Count(ctx context.Context, filter models.InvoiceFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Invoice{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any invoice matches the filter
func (r *InvoiceRepositoryImpl) Exists(ctx context.Context, filter models.InvoiceFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
