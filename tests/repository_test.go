// Package tests contains database-backed test cases for flows, models and repositories
package tests

import (
	"testing"
	"time"

	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	testingutil "github.com/fibernode/backoffice/testing"
	"github.com/fibernode/backoffice/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageQueueRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := repository.NewMessageQueueRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		session, err := fixtures.CreateTestWASession(owner.ID, models.WASessionStatusConnected)
		require.NoError(t, err)

		now := utils.UTCNow()
		past := now.Add(-time.Minute)

		t.Run("ClaimOrdersByPriorityThenID", func(t *testing.T) {
			low, err := fixtures.CreateTestQueuedMessage(session.ID, past)
			require.NoError(t, err)
			urgent, err := fixtures.CreateTestQueuedMessage(session.ID, past)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(urgent).Update("priority", 10).Error)

			claimed, err := repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)
			require.NotNil(t, claimed)
			assert.Equal(t, urgent.ID, claimed.ID)
			assert.Equal(t, models.QueueStatusSending, claimed.Status)

			claimed, err = repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)
			require.NotNil(t, claimed)
			assert.Equal(t, low.ID, claimed.ID)

			claimed, err = repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)
			assert.Nil(t, claimed)

			require.NoError(t, repo.MarkSent(ctx, urgent.ID, utils.UTCNow()))
			require.NoError(t, repo.MarkSent(ctx, low.ID, utils.UTCNow()))
		})

		t.Run("ClaimHonorsScheduledAt", func(t *testing.T) {
			future, err := fixtures.CreateTestQueuedMessage(session.ID, now.Add(time.Hour))
			require.NoError(t, err)

			claimed, err := repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)
			assert.Nil(t, claimed)

			affected, err := repo.CancelPending(ctx, future.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 1, affected)
		})

		t.Run("MarkSentRequiresSendingState", func(t *testing.T) {
			msg, err := fixtures.CreateTestQueuedMessage(session.ID, past)
			require.NoError(t, err)

			// Still pending, never claimed
			assert.Error(t, repo.MarkSent(ctx, msg.ID, utils.UTCNow()))

			_, err = repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)
			assert.NoError(t, repo.MarkSent(ctx, msg.ID, utils.UTCNow()))
		})

		t.Run("RetryLifecycle", func(t *testing.T) {
			msg, err := fixtures.CreateTestQueuedMessage(session.ID, past)
			require.NoError(t, err)

			claimed, err := repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)
			require.Equal(t, msg.ID, claimed.ID)

			nextAt := utils.UTCNow().Add(10 * time.Minute)
			require.NoError(t, repo.RescheduleRetry(ctx, msg.ID, 1, nextAt, "failed to deliver message"))

			reloaded, err := repo.ByID(ctx, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusPending, reloaded.Status)
			assert.Equal(t, 1, reloaded.RetryCount)
			require.NotNil(t, reloaded.ErrorMessage)

			// Not due yet, so unclaimable until the backoff elapses
			claimed, err = repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)
			assert.Nil(t, claimed)

			claimed, err = repo.ClaimNextPending(ctx, session.ID, nextAt.Add(time.Second))
			require.NoError(t, err)
			require.NotNil(t, claimed)
			require.NoError(t, repo.MarkFailed(ctx, msg.ID, "max retries exceeded"))

			reloaded, err = repo.ByID(ctx, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusFailed, reloaded.Status)
			// The terminal failure counts as an attempt too
			assert.Equal(t, 2, reloaded.RetryCount)
		})

		t.Run("ResetFailed", func(t *testing.T) {
			var failed models.QueuedMessage
			require.NoError(t, testDB.DB.Where("status = ?", models.QueueStatusFailed).First(&failed).Error)

			affected, err := repo.ResetFailed(ctx, failed.ID, utils.UTCNow())
			require.NoError(t, err)
			assert.EqualValues(t, 1, affected)

			reloaded, err := repo.ByID(ctx, failed.ID)
			require.NoError(t, err)
			assert.Equal(t, models.QueueStatusPending, reloaded.Status)
			assert.Zero(t, reloaded.RetryCount)
			assert.Nil(t, reloaded.ErrorMessage)

			// Resetting a non-failed message is a no-op
			affected, err = repo.ResetFailed(ctx, failed.ID, utils.UTCNow())
			require.NoError(t, err)
			assert.Zero(t, affected)

			_, err = repo.CancelPending(ctx, failed.ID)
			require.NoError(t, err)
		})

		t.Run("CancelPendingAlreadyClaimed", func(t *testing.T) {
			msg, err := fixtures.CreateTestQueuedMessage(session.ID, past)
			require.NoError(t, err)

			_, err = repo.ClaimNextPending(ctx, session.ID, utils.UTCNow())
			require.NoError(t, err)

			affected, err := repo.CancelPending(ctx, msg.ID)
			require.NoError(t, err)
			assert.Zero(t, affected)

			require.NoError(t, repo.MarkSent(ctx, msg.ID, utils.UTCNow()))
		})

		t.Run("SessionIDsWithPendingAndStats", func(t *testing.T) {
			_, err := fixtures.CreateTestQueuedMessage(session.ID, past)
			require.NoError(t, err)

			ids, err := repo.SessionIDsWithPending(ctx, utils.UTCNow())
			require.NoError(t, err)
			assert.Equal(t, []uint{session.ID}, ids)

			stats, err := repo.Stats(ctx, &session.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 1, stats.Pending)
			assert.GreaterOrEqual(t, stats.Sent, int64(3))
			assert.Equal(t, stats.Pending+stats.Sending+stats.Sent+stats.Failed, stats.Total)
		})

		t.Run("SessionDeleteClearsReference", func(t *testing.T) {
			msg, err := fixtures.CreateTestQueuedMessage(session.ID, past)
			require.NoError(t, err)

			require.NoError(t, testDB.DB.Delete(&models.WASession{}, session.ID).Error)

			// The message survives with its session reference cleared
			reloaded, err := repo.ByID(ctx, msg.ID)
			require.NoError(t, err)
			require.NotNil(t, reloaded)
			assert.Nil(t, reloaded.SessionID)

			// Orphaned messages never surface as claimable work
			ids, err := repo.SessionIDsWithPending(ctx, utils.UTCNow())
			require.NoError(t, err)
			assert.Empty(t, ids)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestWASessionRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := repository.NewWASessionRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)

		t.Run("UpsertCreatesSingleRow", func(t *testing.T) {
			require.NoError(t, repo.UpsertStatus(ctx, owner.ID, models.WASessionStatusConnecting, nil, nil))

			session, err := repo.ByUserID(ctx, owner.ID)
			require.NoError(t, err)
			require.NotNil(t, session)
			assert.Equal(t, models.WASessionStatusConnecting, session.Status)

			phone := "+6281234567890"
			now := utils.UTCNow()
			require.NoError(t, repo.UpsertStatus(ctx, owner.ID, models.WASessionStatusConnected, &phone, &now))

			updated, err := repo.ByUserID(ctx, owner.ID)
			require.NoError(t, err)
			assert.Equal(t, session.ID, updated.ID, "upsert must reuse the same row")
			assert.Equal(t, models.WASessionStatusConnected, updated.Status)
			require.NotNil(t, updated.PhoneNumber)
			assert.Equal(t, phone, *updated.PhoneNumber)
			assert.NotNil(t, updated.LastConnectedAt)
		})

		t.Run("DisconnectKeepsPhoneNumber", func(t *testing.T) {
			require.NoError(t, repo.UpsertStatus(ctx, owner.ID, models.WASessionStatusDisconnected, nil, nil))

			session, err := repo.ByUserID(ctx, owner.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WASessionStatusDisconnected, session.Status)
			// The last-known pairing survives disconnects
			require.NotNil(t, session.PhoneNumber)
			assert.NotNil(t, session.LastConnectedAt)
		})

		t.Run("ListConnected", func(t *testing.T) {
			other, err := fixtures.CreateTestUser(models.UserRoleMitra)
			require.NoError(t, err)
			_, err = fixtures.CreateTestWASession(other.ID, models.WASessionStatusConnected)
			require.NoError(t, err)

			connected, err := repo.ListConnected(ctx)
			require.NoError(t, err)
			require.Len(t, connected, 1)
			assert.Equal(t, other.ID, connected[0].UserID)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCustomerRepositoryBilling(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := repository.NewCustomerRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		ownerA, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		ownerB, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)

		active, err := fixtures.CreateTestCustomer(ownerA.ID, pkg.ID, 15)
		require.NoError(t, err)
		_, err = fixtures.CreateTestCustomer(ownerB.ID, pkg.ID, 15)
		require.NoError(t, err)
		isolated, err := fixtures.CreateTestCustomer(ownerA.ID, pkg.ID, 15)
		require.NoError(t, err)
		require.NoError(t, repo.UpdateStatus(ctx, isolated.ID, models.CustomerStatusIsolated))

		t.Run("ExcludesIsolated", func(t *testing.T) {
			customers, err := repo.ListBillableByBillingDay(ctx, 15, nil)
			require.NoError(t, err)
			assert.Len(t, customers, 2)
			for _, c := range customers {
				assert.NotEqual(t, isolated.ID, c.ID)
			}
		})

		t.Run("PreloadsPackageAndOwner", func(t *testing.T) {
			customers, err := repo.ListBillableByBillingDay(ctx, 15, &ownerA.ID)
			require.NoError(t, err)
			require.Len(t, customers, 1)
			assert.Equal(t, active.ID, customers[0].ID)
			require.NotNil(t, customers[0].Package)
			assert.Equal(t, pkg.Price, customers[0].Package.Price)
			require.NotNil(t, customers[0].Owner)
			assert.Equal(t, ownerA.BusinessName, customers[0].Owner.BusinessName)
		})

		t.Run("NoMatchesOnOtherDay", func(t *testing.T) {
			customers, err := repo.ListBillableByBillingDay(ctx, 28, nil)
			require.NoError(t, err)
			assert.Empty(t, customers)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestInvoiceRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		repo := repository.NewInvoiceRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)
		customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)

		t.Run("InsertIfAbsent", func(t *testing.T) {
			invoice := &models.Invoice{
				UUID:         uuid.New(),
				CustomerID:   customer.ID,
				OwnerID:      owner.ID,
				Period:       "2026-09",
				Amount:       150000,
				TotalAmount:  150000,
				Status:       models.InvoiceStatusUnpaid,
				DueDate:      time.Now().AddDate(0, 1, 0),
				ReceiptToken: uuid.NewString(),
				Version:      1,
			}
			inserted, err := repo.InsertIfAbsent(ctx, invoice)
			require.NoError(t, err)
			assert.True(t, inserted)

			duplicate := &models.Invoice{
				UUID:         uuid.New(),
				CustomerID:   customer.ID,
				OwnerID:      owner.ID,
				Period:       "2026-09",
				Amount:       150000,
				TotalAmount:  150000,
				Status:       models.InvoiceStatusUnpaid,
				DueDate:      time.Now().AddDate(0, 1, 0),
				ReceiptToken: uuid.NewString(),
				Version:      1,
			}
			inserted, err = repo.InsertIfAbsent(ctx, duplicate)
			require.NoError(t, err)
			assert.False(t, inserted, "second insert for the same period must be a no-op")

			count, err := repo.Count(ctx, models.InvoiceFilter{CustomerID: &customer.ID})
			require.NoError(t, err)
			assert.EqualValues(t, 1, count)
		})

		t.Run("ByReceiptTokenPreloads", func(t *testing.T) {
			invoice, err := repo.ByCustomerAndPeriod(ctx, customer.ID, "2026-09")
			require.NoError(t, err)
			require.NotNil(t, invoice)

			byToken, err := repo.ByReceiptToken(ctx, invoice.ReceiptToken)
			require.NoError(t, err)
			require.NotNil(t, byToken)
			require.NotNil(t, byToken.Customer)
			assert.Equal(t, customer.Name, byToken.Customer.Name)
			require.NotNil(t, byToken.Owner)
			assert.Equal(t, owner.BusinessName, byToken.Owner.BusinessName)
		})

		t.Run("ConcurrentPaySingleWinner", func(t *testing.T) {
			invoice, err := repo.ByCustomerAndPeriod(ctx, customer.ID, "2026-09")
			require.NoError(t, err)

			first, err := repo.MarkPaid(ctx, invoice.ID, invoice.Version, owner.ID, nil, nil, utils.UTCNow())
			require.NoError(t, err)
			assert.EqualValues(t, 1, first)

			// A second writer holding the same stale version must lose
			second, err := repo.MarkPaid(ctx, invoice.ID, invoice.Version, owner.ID, nil, nil, utils.UTCNow())
			require.NoError(t, err)
			assert.Zero(t, second)

			reloaded, err := repo.ByID(ctx, invoice.ID)
			require.NoError(t, err)
			assert.Equal(t, invoice.Version+1, reloaded.Version)
		})

		t.Run("SumByStatus", func(t *testing.T) {
			sums, err := repo.SumByStatus(ctx, &owner.ID, "2026-09")
			require.NoError(t, err)
			assert.EqualValues(t, 150000, sums[models.InvoiceStatusPaid])
			assert.Zero(t, sums[models.InvoiceStatusUnpaid])
		})

		return nil
	})
	require.NoError(t, err)
}
