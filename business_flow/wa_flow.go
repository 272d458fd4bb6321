package businessflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fibernode/backoffice/app/dto"
	"github.com/fibernode/backoffice/app/services"
	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	"github.com/fibernode/backoffice/utils"
)

// SessionGateway is the slice of the session registry the flow needs; the
// narrow interface keeps the flow testable without a live transport.
type SessionGateway interface {
	Connect(ctx context.Context, accountID uint) error
	Disconnect(ctx context.Context, accountID uint) error
	IsRegistered(accountID uint) bool
	Send(ctx context.Context, accountID uint, phone, message string) bool
	CheckNumber(ctx context.Context, accountID uint, phone string) (bool, error)
}

// WAFlow defines the WhatsApp-facing operations
type WAFlow interface {
	GetStatus(ctx context.Context, userID uint) (*dto.WAStatusResponse, error)
	Connect(ctx context.Context, userID uint) (*dto.WAConnectResponse, error)
	Disconnect(ctx context.Context, userID uint) (*dto.WADisconnectResponse, error)
	SendTest(ctx context.Context, req *dto.SendTestMessageRequest) (*dto.SendTestMessageResponse, error)
	SendManual(ctx context.Context, req *dto.SendManualRequest) (*dto.SendManualResponse, error)
	SendBulk(ctx context.Context, req *dto.BulkSendRequest) (*dto.BulkSendResponse, error)
	CheckNumber(ctx context.Context, req *dto.CheckNumberRequest) (*dto.CheckNumberResponse, error)
	GetLogs(ctx context.Context, req *dto.ListMessageLogsRequest) (*dto.ListMessageLogsResponse, error)
	GetQueueStats(ctx context.Context, userID uint) (*dto.QueueStatsResponse, error)
	RetryMessage(ctx context.Context, req *dto.RetryMessageRequest) (*dto.RetryMessageResponse, error)
	CancelMessage(ctx context.Context, req *dto.CancelMessageRequest) (*dto.CancelMessageResponse, error)
}

// WAFlowImpl implements WAFlow
type WAFlowImpl struct {
	gateway      SessionGateway
	sessionRepo  repository.WASessionRepository
	customerRepo repository.CustomerRepository
	userRepo     repository.UserRepository
	packageRepo  repository.PackageRepository
	invoiceRepo  repository.InvoiceRepository
	queueRepo    repository.MessageQueueRepository
	logRepo      repository.MessageLogRepository
	maxRetries   int
	rng          *rand.Rand
}

// NewWAFlow creates a new WhatsApp flow
func NewWAFlow(
	gateway SessionGateway,
	sessionRepo repository.WASessionRepository,
	customerRepo repository.CustomerRepository,
	userRepo repository.UserRepository,
	packageRepo repository.PackageRepository,
	invoiceRepo repository.InvoiceRepository,
	queueRepo repository.MessageQueueRepository,
	logRepo repository.MessageLogRepository,
	maxRetries int,
) WAFlow {
	return &WAFlowImpl{
		gateway:      gateway,
		sessionRepo:  sessionRepo,
		customerRepo: customerRepo,
		userRepo:     userRepo,
		packageRepo:  packageRepo,
		invoiceRepo:  invoiceRepo,
		queueRepo:    queueRepo,
		logRepo:      logRepo,
		maxRetries:   maxRetries,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Bulk-send stagger bounds: each message lands 8-20 s after the previous one
const (
	bulkStaggerMin = 8 * time.Second
	bulkStaggerMax = 20 * time.Second
)

// GetStatus reports the persisted and live connection state of the caller
func (f *WAFlowImpl) GetStatus(ctx context.Context, userID uint) (*dto.WAStatusResponse, error) {
	session, err := f.sessionRepo.ByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &dto.WAStatusResponse{
		Status:     models.WASessionStatusDisconnected.String(),
		Registered: f.gateway.IsRegistered(userID),
	}
	if session != nil {
		resp.Status = session.Status.String()
		resp.PhoneNumber = session.PhoneNumber
		resp.LastConnectedAt = session.LastConnectedAt
	}
	return resp, nil
}

// Connect starts a connection attempt for the caller's account
func (f *WAFlowImpl) Connect(ctx context.Context, userID uint) (*dto.WAConnectResponse, error) {
	if err := f.gateway.Connect(ctx, userID); err != nil {
		if errors.Is(err, services.ErrConnectInProgress) {
			return nil, NewBusinessError("CONNECT_IN_PROGRESS", "a connection attempt is already in progress", ErrConnectInProgress)
		}
		return nil, err
	}
	return &dto.WAConnectResponse{
		Message: "Koneksi WA dimulai. Scan QR code.",
		Status:  models.WASessionStatusConnecting.String(),
	}, nil
}

// Disconnect tears down the caller's connection
func (f *WAFlowImpl) Disconnect(ctx context.Context, userID uint) (*dto.WADisconnectResponse, error) {
	if err := f.gateway.Disconnect(ctx, userID); err != nil {
		return nil, err
	}
	return &dto.WADisconnectResponse{Message: "WA terputus"}, nil
}

// SendTest delivers a free-form message to an arbitrary number immediately
func (f *WAFlowImpl) SendTest(ctx context.Context, req *dto.SendTestMessageRequest) (*dto.SendTestMessageResponse, error) {
	if req.Message == "" {
		return nil, NewBusinessError("EMPTY_MESSAGE", "message content is empty", ErrEmptyMessage)
	}
	if !f.gateway.IsRegistered(req.UserID) {
		return nil, NewBusinessError("SESSION_NOT_CONNECTED", "connect WhatsApp first", ErrSessionNotConnected)
	}

	success := f.gateway.Send(ctx, req.UserID, req.Phone, req.Message)
	f.appendLog(ctx, req.UserID, nil, nil, models.MessageCategoryCustom, req.Phone, req.Message, success, "failed to deliver message")

	if !success {
		return nil, NewBusinessError("SEND_FAILED", "failed to deliver message", nil)
	}
	return &dto.SendTestMessageResponse{Message: "Pesan terkirim"}, nil
}

// SendManual delivers one templated or free-form message to a customer over
// the owner's live connection, synchronously
func (f *WAFlowImpl) SendManual(ctx context.Context, req *dto.SendManualRequest) (*dto.SendManualResponse, error) {
	customer, err := f.customerRepo.ByID(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "customer not found", ErrCustomerNotFound)
	}
	if req.Role == models.UserRoleMitra && customer.OwnerID != req.UserID {
		return nil, NewBusinessError("CUSTOMER_ACCESS_DENIED", "customer access denied", ErrCustomerAccessDenied)
	}

	ownerID := customer.OwnerID
	if !f.gateway.IsRegistered(ownerID) {
		return nil, NewBusinessError("SESSION_NOT_CONNECTED", "connect WhatsApp first", ErrSessionNotConnected)
	}

	owner, err := f.userRepo.ByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, NewBusinessError("USER_NOT_FOUND", "user not found", ErrUserNotFound)
	}

	content, category, err := f.buildContent(ctx, req.Template, req.CustomMessage, req.InvoiceID, customer, owner)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, NewBusinessError("EMPTY_MESSAGE", "message content is empty", ErrEmptyMessage)
	}

	success := f.gateway.Send(ctx, ownerID, customer.Phone, content)
	f.appendLog(ctx, ownerID, &customer.ID, req.InvoiceID, category, customer.Phone, content, success, "failed to deliver message")

	if !success {
		return nil, NewBusinessError("SEND_FAILED", "failed to deliver message", nil)
	}
	return &dto.SendManualResponse{Message: "Pesan terkirim"}, nil
}

// SendBulk enqueues templated messages for many customers. Messages are
// staggered 8-20 s apart so the queue processor never bursts.
func (f *WAFlowImpl) SendBulk(ctx context.Context, req *dto.BulkSendRequest) (*dto.BulkSendResponse, error) {
	session, err := f.sessionRepo.ByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.IsConnected() {
		return nil, NewBusinessError("SESSION_NOT_CONNECTED", "connect WhatsApp first", ErrSessionNotConnected)
	}

	owner, err := f.userRepo.ByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, NewBusinessError("USER_NOT_FOUND", "user not found", ErrUserNotFound)
	}

	scheduledAt := utils.UTCNow()
	queued := 0

	for _, customerID := range req.CustomerIDs {
		customer, err := f.customerRepo.ByID(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			continue
		}
		if req.Role == models.UserRoleMitra && customer.OwnerID != req.UserID {
			continue
		}

		content, category, err := f.buildContent(ctx, req.Template, req.CustomMessage, nil, customer, owner)
		if err != nil || content == "" {
			continue
		}

		stagger := bulkStaggerMin + time.Duration(f.rng.Int63n(int64(bulkStaggerMax-bulkStaggerMin)))
		scheduledAt = scheduledAt.Add(stagger)

		msg := &models.QueuedMessage{
			SessionID:   &session.ID,
			CustomerID:  &customer.ID,
			Category:    category,
			Phone:       customer.Phone,
			Content:     content,
			Status:      models.QueueStatusPending,
			MaxRetries:  f.maxRetries,
			ScheduledAt: scheduledAt,
		}
		if err := f.queueRepo.Save(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to enqueue message for customer %d: %w", customer.ID, err)
		}
		queued++
	}

	return &dto.BulkSendResponse{
		Message: fmt.Sprintf("%d pesan dijadwalkan", queued),
		Queued:  queued,
	}, nil
}

// CheckNumber asks the live connection whether a number exists on WhatsApp
func (f *WAFlowImpl) CheckNumber(ctx context.Context, req *dto.CheckNumberRequest) (*dto.CheckNumberResponse, error) {
	registered, err := f.gateway.CheckNumber(ctx, req.UserID, req.Phone)
	if err != nil {
		if errors.Is(err, services.ErrNotConnected) {
			return nil, NewBusinessError("SESSION_NOT_CONNECTED", "connect WhatsApp first", ErrSessionNotConnected)
		}
		return nil, err
	}
	return &dto.CheckNumberResponse{Phone: req.Phone, Registered: registered}, nil
}

// GetLogs pages through the send history visible to the caller
func (f *WAFlowImpl) GetLogs(ctx context.Context, req *dto.ListMessageLogsRequest) (*dto.ListMessageLogsResponse, error) {
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

	filter := models.MessageLogFilter{Category: req.Category}
	if req.Role == models.UserRoleMitra {
		session, err := f.sessionRepo.ByUserID(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return &dto.ListMessageLogsResponse{Message: "Message logs retrieved successfully", Items: []dto.MessageLogItem{}}, nil
		}
		filter.SessionID = &session.ID
	}

	total, err := f.logRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	logs, err := f.logRepo.ByFilter(ctx, filter, "sent_at DESC", int(pageSize), int((page-1)*pageSize))
	if err != nil {
		return nil, err
	}

	items := make([]dto.MessageLogItem, 0, len(logs))
	for _, entry := range logs {
		items = append(items, dto.MessageLogItem{
			ID:           entry.ID,
			Category:     entry.Category,
			Phone:        entry.Phone,
			Content:      entry.Content,
			Status:       entry.Status,
			ErrorMessage: entry.ErrorMessage,
			SentAt:       entry.SentAt.Format(time.RFC3339),
		})
	}

	return &dto.ListMessageLogsResponse{
		Message: "Message logs retrieved successfully",
		Items:   items,
		Total:   total,
	}, nil
}

// GetQueueStats aggregates the caller's queue entry counts by status
func (f *WAFlowImpl) GetQueueStats(ctx context.Context, userID uint) (*dto.QueueStatsResponse, error) {
	session, err := f.sessionRepo.ByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &dto.QueueStatsResponse{}, nil
	}

	stats, err := f.queueRepo.Stats(ctx, &session.ID)
	if err != nil {
		return nil, err
	}
	return &dto.QueueStatsResponse{
		Pending: stats.Pending,
		Sending: stats.Sending,
		Sent:    stats.Sent,
		Failed:  stats.Failed,
		Total:   stats.Total,
	}, nil
}

// RetryMessage moves a failed queue entry back to pending for a fresh round
func (f *WAFlowImpl) RetryMessage(ctx context.Context, req *dto.RetryMessageRequest) (*dto.RetryMessageResponse, error) {
	msg, err := f.queueRepo.ByID(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, NewBusinessError("MESSAGE_NOT_FOUND", "queued message not found", ErrMessageNotFound)
	}

	affected, err := f.queueRepo.ResetFailed(ctx, req.MessageID, utils.UTCNow())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, NewBusinessError("MESSAGE_NOT_FAILED", "only failed messages can be retried", ErrMessageNotFailed)
	}
	return &dto.RetryMessageResponse{Message: "Pesan dijadwalkan ulang"}, nil
}

// CancelMessage removes a queue entry that has not been picked up yet
func (f *WAFlowImpl) CancelMessage(ctx context.Context, req *dto.CancelMessageRequest) (*dto.CancelMessageResponse, error) {
	msg, err := f.queueRepo.ByID(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, NewBusinessError("MESSAGE_NOT_FOUND", "queued message not found", ErrMessageNotFound)
	}

	affected, err := f.queueRepo.CancelPending(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, NewBusinessError("MESSAGE_NOT_PENDING", "only pending messages can be cancelled", ErrMessageNotPending)
	}
	return &dto.CancelMessageResponse{Message: "Pesan dibatalkan"}, nil
}

// buildContent renders the message for a template. Custom templates use the
// caller's text; receipt requires a paid invoice to render from.
func (f *WAFlowImpl) buildContent(ctx context.Context, template string, customMessage *string, invoiceID *uint, customer *models.Customer, owner *models.User) (string, string, error) {
	switch template {
	case "reminder":
		pkg, err := f.packageRepo.ByID(ctx, customer.PackageID)
		if err != nil {
			return "", "", err
		}
		if pkg == nil {
			return "", "", NewBusinessError("PACKAGE_NOT_FOUND", "package not found", ErrPackageNotFound)
		}
		next := utils.UTCNow().AddDate(0, 1, 0)
		content := BuildReminderMessage(f.rng, ReminderData{
			CustomerName: customer.Name,
			NextMonth:    MonthName(next.Month()),
			Year:         next.Year(),
			PackageName:  pkg.Name,
			Speed:        pkg.Speed,
			TotalBill:    customer.TotalBill,
			BillingDate:  customer.BillingDay,
			BankName:     owner.BankName,
			BankAccount:  owner.BankAccount,
			BankHolder:   owner.BankHolder,
			BusinessName: owner.BusinessName,
		})
		return content, models.MessageCategoryReminder, nil

	case "isolation":
		content := BuildIsolationMessage(IsolationData{
			CustomerName: customer.Name,
			BankName:     owner.BankName,
			BankAccount:  owner.BankAccount,
			BankHolder:   owner.BankHolder,
			BusinessName: owner.BusinessName,
		})
		return content, models.MessageCategoryIsolation, nil

	case "receipt":
		if invoiceID == nil {
			return "", "", NewBusinessError("INVOICE_NOT_FOUND", "receipt template requires an invoice", ErrInvoiceNotFound)
		}
		invoice, err := f.invoiceRepo.ByID(ctx, *invoiceID)
		if err != nil {
			return "", "", err
		}
		if invoice == nil {
			return "", "", NewBusinessError("INVOICE_NOT_FOUND", "invoice not found", ErrInvoiceNotFound)
		}
		paidAt := ""
		if invoice.PaidAt != nil {
			paidAt = invoice.PaidAt.Format("02-01-2006")
		}
		area := ""
		if customer.Address != nil {
			area = *customer.Address
		}
		packageName := ""
		if pkg, err := f.packageRepo.ByID(ctx, customer.PackageID); err == nil && pkg != nil {
			packageName = pkg.Name
		}
		content := BuildReceiptMessage(ReceiptData{
			CustomerName:  customer.Name,
			NIK:           customer.NIK,
			Area:          area,
			PackageName:   packageName,
			Period:        invoice.Period,
			Discount:      invoice.Discount,
			TotalAmount:   invoice.TotalAmount,
			PaymentMethod: invoice.PaymentMethod,
			PaidAt:        paidAt,
			PaidByName:    owner.Name,
			ReceiptURL:    "/receipt/" + invoice.ReceiptToken,
			BusinessName:  owner.BusinessName,
		})
		return content, models.MessageCategoryReceipt, nil

	case "custom":
		if customMessage == nil {
			return "", models.MessageCategoryManual, nil
		}
		return *customMessage, models.MessageCategoryManual, nil

	default:
		return "", "", NewBusinessErrorf("INVALID_CATEGORY", "unknown message template %q", ErrInvalidCategory, template)
	}
}

// appendLog writes one immutable audit row; failures are swallowed because
// the audit trail never gates a send.
func (f *WAFlowImpl) appendLog(ctx context.Context, ownerID uint, customerID, invoiceID *uint, category, phone, content string, success bool, failMessage string) {
	entry := &models.MessageLog{
		CustomerID: customerID,
		InvoiceID:  invoiceID,
		Category:   category,
		Phone:      phone,
		Content:    content,
		Status:     models.MessageLogStatusSent,
		SentAt:     utils.UTCNow(),
	}
	if session, err := f.sessionRepo.ByUserID(ctx, ownerID); err == nil && session != nil {
		entry.SessionID = &session.ID
	}
	if !success {
		entry.Status = models.MessageLogStatusFailed
		entry.ErrorMessage = &failMessage
	}
	_ = f.logRepo.Save(ctx, entry)
}
