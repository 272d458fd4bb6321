// Package tests contains database-backed test cases for flows, models and repositories
package tests

import (
	"testing"

	"github.com/fibernode/backoffice/models"
	testingutil "github.com/fibernode/backoffice/testing"
	"github.com/fibernode/backoffice/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestStatusEnums(t *testing.T) {
	t.Run("CustomerStatus", func(t *testing.T) {
		assert.True(t, models.CustomerStatusActive.Valid())
		assert.True(t, models.CustomerStatusIsolated.Valid())
		assert.True(t, models.CustomerStatusInactive.Valid())
		assert.False(t, models.CustomerStatus("suspended").Valid())
	})

	t.Run("InvoiceStatus", func(t *testing.T) {
		assert.True(t, models.InvoiceStatusUnpaid.Valid())
		assert.True(t, models.InvoiceStatusPaid.Valid())
		assert.True(t, models.InvoiceStatusPartial.Valid())
		assert.False(t, models.InvoiceStatus("void").Valid())

		_, err := models.InvoiceStatus("void").Value()
		assert.Error(t, err)
	})

	t.Run("QueueStatus", func(t *testing.T) {
		for _, s := range []models.QueueStatus{
			models.QueueStatusPending, models.QueueStatusSending,
			models.QueueStatusSent, models.QueueStatusFailed,
		} {
			assert.True(t, s.Valid())
		}
		assert.False(t, models.QueueStatus("stuck").Valid())
	})

	t.Run("WASessionStatus", func(t *testing.T) {
		var s models.WASessionStatus
		require.NoError(t, s.Scan([]byte("connected")))
		assert.Equal(t, models.WASessionStatusConnected, s)
		assert.Error(t, s.Scan(42))
	})
}

func TestModelHelpers(t *testing.T) {
	t.Run("UserIsSuperadmin", func(t *testing.T) {
		admin := &models.User{Role: models.UserRoleSuperadmin}
		mitra := &models.User{Role: models.UserRoleMitra}
		assert.True(t, admin.IsSuperadmin())
		assert.False(t, mitra.IsSuperadmin())
	})

	t.Run("CustomerIsBillable", func(t *testing.T) {
		assert.True(t, (&models.Customer{Status: models.CustomerStatusActive}).IsBillable())
		assert.True(t, (&models.Customer{Status: models.CustomerStatusInactive}).IsBillable())
		assert.False(t, (&models.Customer{Status: models.CustomerStatusIsolated}).IsBillable())
	})

	t.Run("InvoiceIsPaid", func(t *testing.T) {
		assert.True(t, (&models.Invoice{Status: models.InvoiceStatusPaid}).IsPaid())
		assert.False(t, (&models.Invoice{Status: models.InvoiceStatusUnpaid}).IsPaid())
	})

	t.Run("QueuedMessageIsTerminal", func(t *testing.T) {
		assert.True(t, (&models.QueuedMessage{Status: models.QueueStatusSent}).IsTerminal())
		assert.True(t, (&models.QueuedMessage{Status: models.QueueStatusFailed}).IsTerminal())
		assert.False(t, (&models.QueuedMessage{Status: models.QueueStatusPending}).IsTerminal())
		assert.False(t, (&models.QueuedMessage{Status: models.QueueStatusSending}).IsTerminal())
	})

	t.Run("WASessionIsConnected", func(t *testing.T) {
		assert.True(t, (&models.WASession{Status: models.WASessionStatusConnected}).IsConnected())
		assert.False(t, (&models.WASession{Status: models.WASessionStatusConnecting}).IsConnected())
	})
}

func TestModelPersistence(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		t.Run("CreateUser", func(t *testing.T) {
			user, err := fixtures.CreateTestUser(models.UserRoleMitra)
			require.NoError(t, err)
			assert.NotZero(t, user.ID)
			assert.Equal(t, models.UserRoleMitra, user.Role)
			assert.True(t, *user.IsActive)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("TestPass123!")))
		})

		t.Run("EnumRoundTrip", func(t *testing.T) {
			owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
			require.NoError(t, err)
			pkg, err := fixtures.CreateTestPackage(150000)
			require.NoError(t, err)
			customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
			require.NoError(t, err)

			var reloaded models.Customer
			require.NoError(t, testDB.DB.First(&reloaded, customer.ID).Error)
			assert.Equal(t, models.CustomerStatusActive, reloaded.Status)
			assert.Equal(t, 15, reloaded.BillingDay)
		})

		t.Run("CustomerPeriodUniqueness", func(t *testing.T) {
			owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
			require.NoError(t, err)
			pkg, err := fixtures.CreateTestPackage(150000)
			require.NoError(t, err)
			customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
			require.NoError(t, err)

			_, err = fixtures.CreateTestInvoice(customer, "2026-09")
			require.NoError(t, err)
			_, err = fixtures.CreateTestInvoice(customer, "2026-09")
			assert.Error(t, err, "duplicate (customer, period) must violate the unique index")
			_, err = fixtures.CreateTestInvoice(customer, "2026-10")
			assert.NoError(t, err)
		})

		t.Run("SingleSessionPerUser", func(t *testing.T) {
			owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
			require.NoError(t, err)

			_, err = fixtures.CreateTestWASession(owner.ID, models.WASessionStatusConnected)
			require.NoError(t, err)
			_, err = fixtures.CreateTestWASession(owner.ID, models.WASessionStatusDisconnected)
			assert.Error(t, err, "second session row for a user must violate the unique index")
		})

		t.Run("ActivityLogMetadata", func(t *testing.T) {
			owner, err := fixtures.CreateTestUser(models.UserRoleSuperadmin)
			require.NoError(t, err)

			entry := &models.ActivityLog{
				UserID:   &owner.ID,
				Action:   models.ActivityActionInvoicePaid,
				Resource: utils.ToPtr("invoices"),
				Metadata: []byte(`{"payment_method":"cash"}`),
			}
			require.NoError(t, testDB.DB.Create(entry).Error)

			var reloaded models.ActivityLog
			require.NoError(t, testDB.DB.First(&reloaded, entry.ID).Error)
			assert.JSONEq(t, `{"payment_method":"cash"}`, string(reloaded.Metadata))
		})

		return nil
	})
	require.NoError(t, err)
}
