// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/fibernode/backoffice/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// UserRepository defines operations for merchant accounts
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByUUID(ctx context.Context, uuidStr string) (*models.User, error)
	ByUsername(ctx context.Context, username string) (*models.User, error)
	ListActiveMitra(ctx context.Context) ([]*models.User, error)
	UpdateLastLogin(ctx context.Context, userID uint, at time.Time) error
}

// PackageRepository defines operations for service plans
type PackageRepository interface {
	Repository[models.Package, models.PackageFilter]
	ByUUID(ctx context.Context, uuidStr string) (*models.Package, error)
	ListActive(ctx context.Context) ([]*models.Package, error)
}

// CustomerRepository defines operations for subscribers
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]
	ByUUID(ctx context.Context, uuidStr string) (*models.Customer, error)
	ByPhone(ctx context.Context, ownerID uint, phone string) (*models.Customer, error)
	ListByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Customer, error)
	ListBillableByBillingDay(ctx context.Context, day int, ownerID *uint) ([]*models.Customer, error)
	UpdateStatus(ctx context.Context, customerID uint, status models.CustomerStatus) error
}

// InvoiceRepository defines operations for the payment ledger
type InvoiceRepository interface {
	Repository[models.Invoice, models.InvoiceFilter]
	ByUUID(ctx context.Context, uuidStr string) (*models.Invoice, error)
	ByReceiptToken(ctx context.Context, token string) (*models.Invoice, error)
	ByCustomerAndPeriod(ctx context.Context, customerID uint, period string) (*models.Invoice, error)
	// InsertIfAbsent inserts the invoice unless one already exists for the
	// same (customer, period); returns true when a row was created.
	InsertIfAbsent(ctx context.Context, invoice *models.Invoice) (bool, error)
	// MarkPaid transitions unpaid -> paid iff the stored version matches;
	// returns the number of rows affected (0 means a concurrent writer won).
	MarkPaid(ctx context.Context, invoiceID uint, version int, paidBy uint, method, note *string, paidAt time.Time) (int64, error)
	// MarkUnpaid reverses paid -> unpaid under the same version gate.
	MarkUnpaid(ctx context.Context, invoiceID uint, version int) (int64, error)
	MarkReminderSent(ctx context.Context, invoiceID uint, at time.Time) error
	MarkReceiptSent(ctx context.Context, invoiceID uint, at time.Time) error
	MarkIsolationSent(ctx context.Context, invoiceID uint, at time.Time) error
	ListUnpaidDueBefore(ctx context.Context, ownerID uint, before time.Time) ([]*models.Invoice, error)
	SumByStatus(ctx context.Context, ownerID *uint, period string) (map[models.InvoiceStatus]int64, error)
}

// WASessionRepository defines operations for WhatsApp session state
type WASessionRepository interface {
	Repository[models.WASession, models.WASessionFilter]
	ByUserID(ctx context.Context, userID uint) (*models.WASession, error)
	ListConnected(ctx context.Context) ([]*models.WASession, error)
	// UpsertStatus creates or updates the single session row of an account.
	UpsertStatus(ctx context.Context, userID uint, status models.WASessionStatus, phoneNumber *string, connectedAt *time.Time) error
}

// MessageQueueRepository defines operations for the outbound message queue
type MessageQueueRepository interface {
	Repository[models.QueuedMessage, models.QueuedMessageFilter]
	// ClaimNextPending atomically claims the highest-priority due pending
	// message of a session, moving it to sending. Returns nil when no
	// message is claimable.
	ClaimNextPending(ctx context.Context, sessionID uint, now time.Time) (*models.QueuedMessage, error)
	MarkSent(ctx context.Context, messageID uint, sentAt time.Time) error
	MarkFailed(ctx context.Context, messageID uint, errorMessage string) error
	// RescheduleRetry returns a claimed message to pending with a bumped
	// retry count and a new earliest-send time.
	RescheduleRetry(ctx context.Context, messageID uint, retryCount int, nextAt time.Time, errorMessage string) error
	// CancelPending deletes a message iff it is still pending; returns rows
	// affected so callers can distinguish "already picked up".
	CancelPending(ctx context.Context, messageID uint) (int64, error)
	// ResetFailed moves a failed message back to pending for another round.
	ResetFailed(ctx context.Context, messageID uint, scheduledAt time.Time) (int64, error)
	SessionIDsWithPending(ctx context.Context, now time.Time) ([]uint, error)
	Stats(ctx context.Context, sessionID *uint) (*models.QueueStats, error)
}

// MessageLogRepository defines operations for the immutable send audit trail
type MessageLogRepository interface {
	Repository[models.MessageLog, models.MessageLogFilter]
	ListBySession(ctx context.Context, sessionID uint, limit, offset int) ([]*models.MessageLog, error)
}

// ActivityLogRepository defines operations for human-auditable actions
type ActivityLogRepository interface {
	Repository[models.ActivityLog, models.ActivityLogFilter]
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.ActivityLog, error)
}
