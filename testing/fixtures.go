// Package testing provides test utilities and database setup for the billing back office test suite
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates a test user with the given role
func (tf *TestFixtures) CreateTestUser(role string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	suffix := rand.Intn(10000000)
	phone := fmt.Sprintf("+628%s", fmt.Sprintf("%010d", rand.Intn(900000000)+100000000))

	user := &models.User{
		UUID:         uuid.New(),
		Username:     fmt.Sprintf("%s_%d", role, suffix),
		PasswordHash: string(hashedPassword),
		Name:         "Test User",
		Role:         role,
		Phone:        &phone,
		BusinessName: fmt.Sprintf("Test Net %d", suffix),
		BankName:     utils.ToPtr("BCA"),
		BankAccount:  utils.ToPtr("1234567890"),
		BankHolder:   utils.ToPtr("Test User"),
		IsActive:     utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}

	return user, nil
}

// CreateTestPackage creates a test service plan
func (tf *TestFixtures) CreateTestPackage(price int64) (*models.Package, error) {
	pkg := &models.Package{
		UUID:     uuid.New(),
		Name:     fmt.Sprintf("Paket %d Mbps", rand.Intn(90)+10),
		Speed:    "20 Mbps",
		Price:    price,
		IsActive: utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(pkg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test package: %w", err)
	}

	return pkg, nil
}

// CreateTestCustomer creates a test subscriber owned by the given user
func (tf *TestFixtures) CreateTestCustomer(ownerID, packageID uint, billingDay int) (*models.Customer, error) {
	phone := fmt.Sprintf("+628%s", fmt.Sprintf("%010d", rand.Intn(900000000)+100000000))

	customer := &models.Customer{
		UUID:         uuid.New(),
		OwnerID:      ownerID,
		PackageID:    packageID,
		Name:         fmt.Sprintf("Pelanggan %d", rand.Intn(10000)),
		Phone:        phone,
		Address:      utils.ToPtr("Jl. Merdeka No. 1, Jakarta"),
		BillingDay:   billingDay,
		Discount:     0,
		TotalBill:    150000,
		Status:       models.CustomerStatusActive,
		RegisterDate: time.Now().AddDate(0, -3, 0),
	}

	if err := tf.DB.DB.Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create test customer: %w", err)
	}

	return customer, nil
}

// CreateTestInvoice creates an unpaid invoice for the given customer and period
func (tf *TestFixtures) CreateTestInvoice(customer *models.Customer, period string) (*models.Invoice, error) {
	invoice := &models.Invoice{
		UUID:         uuid.New(),
		CustomerID:   customer.ID,
		OwnerID:      customer.OwnerID,
		Period:       period,
		Amount:       customer.TotalBill,
		Discount:     customer.Discount,
		TotalAmount:  customer.TotalBill - customer.Discount,
		Status:       models.InvoiceStatusUnpaid,
		DueDate:      time.Now().AddDate(0, 1, 0),
		ReceiptToken: uuid.NewString(),
		Version:      1,
	}

	if err := tf.DB.DB.Create(invoice).Error; err != nil {
		return nil, fmt.Errorf("failed to create test invoice: %w", err)
	}

	return invoice, nil
}

// CreateTestWASession creates a session row for the given user
func (tf *TestFixtures) CreateTestWASession(userID uint, status models.WASessionStatus) (*models.WASession, error) {
	session := &models.WASession{
		UserID: userID,
		Status: status,
	}

	if status == models.WASessionStatusConnected {
		session.PhoneNumber = utils.ToPtr("+6281234567890")
		session.LastConnectedAt = utils.ToPtr(time.Now())
	}

	if err := tf.DB.DB.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create test session: %w", err)
	}

	return session, nil
}

// CreateTestQueuedMessage creates a pending queue entry scheduled at the given time
func (tf *TestFixtures) CreateTestQueuedMessage(sessionID uint, scheduledAt time.Time) (*models.QueuedMessage, error) {
	msg := &models.QueuedMessage{
		SessionID:   &sessionID,
		Category:    models.MessageCategoryReminder,
		Phone:       "+6281234567890",
		Content:     "Test message body",
		Status:      models.QueueStatusPending,
		MaxRetries:  3,
		ScheduledAt: scheduledAt,
	}

	if err := tf.DB.DB.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test queued message: %w", err)
	}

	return msg, nil
}
