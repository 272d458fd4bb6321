// Package tests contains database-backed test cases for flows, models and repositories
package tests

import (
	"testing"

	"github.com/fibernode/backoffice/app/dto"
	businessflow "github.com/fibernode/backoffice/business_flow"
	"github.com/fibernode/backoffice/models"
	"github.com/fibernode/backoffice/repository"
	testingutil "github.com/fibernode/backoffice/testing"
	"github.com/fibernode/backoffice/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoiceFlow(testDB *testingutil.TestDB) businessflow.InvoiceFlow {
	return businessflow.NewInvoiceFlow(
		repository.NewInvoiceRepository(testDB.DB),
		repository.NewCustomerRepository(testDB.DB),
		repository.NewActivityLogRepository(testDB.DB),
	)
}

func TestPayInvoice(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)
		customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)
		invoice, err := fixtures.CreateTestInvoice(customer, "2026-09")
		require.NoError(t, err)

		t.Run("Success", func(t *testing.T) {
			resp, err := flow.PayInvoice(ctx, &dto.PayInvoiceRequest{
				UserID:        owner.ID,
				Role:          models.UserRoleMitra,
				InvoiceID:     invoice.ID,
				Version:       1,
				PaymentMethod: utils.ToPtr("transfer"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, string(models.InvoiceStatusPaid), resp.Invoice.Status)
			assert.Equal(t, 2, resp.Invoice.Version)
			assert.NotNil(t, resp.Invoice.PaidAt)
			require.NotNil(t, resp.Invoice.PaymentMethod)
			assert.Equal(t, "transfer", *resp.Invoice.PaymentMethod)
		})

		t.Run("AlreadyPaid", func(t *testing.T) {
			_, err := flow.PayInvoice(ctx, &dto.PayInvoiceRequest{
				UserID:    owner.ID,
				Role:      models.UserRoleMitra,
				InvoiceID: invoice.ID,
				Version:   2,
			}, nil)
			assert.True(t, businessflow.IsInvoiceAlreadyPaid(err))
		})

		t.Run("PaymentRecordedInActivityLog", func(t *testing.T) {
			activityRepo := repository.NewActivityLogRepository(testDB.DB)
			entries, err := activityRepo.ListByUser(ctx, owner.ID, 10, 0)
			require.NoError(t, err)
			require.NotEmpty(t, entries)
			assert.Equal(t, models.ActivityActionInvoicePaid, entries[0].Action)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestPayInvoiceVersionConflict(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)
		customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)
		invoice, err := fixtures.CreateTestInvoice(customer, "2026-09")
		require.NoError(t, err)

		// A stale version must be rejected without touching the row
		_, err = flow.PayInvoice(ctx, &dto.PayInvoiceRequest{
			UserID:    owner.ID,
			Role:      models.UserRoleMitra,
			InvoiceID: invoice.ID,
			Version:   99,
		}, nil)
		assert.True(t, businessflow.IsInvoiceVersionConflict(err))

		invoiceRepo := repository.NewInvoiceRepository(testDB.DB)
		reloaded, err := invoiceRepo.ByID(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceStatusUnpaid, reloaded.Status)
		assert.Equal(t, 1, reloaded.Version)

		return nil
	})
	require.NoError(t, err)
}

func TestUnpayInvoice(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)
		customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)
		invoice, err := fixtures.CreateTestInvoice(customer, "2026-09")
		require.NoError(t, err)

		t.Run("NotPaidYet", func(t *testing.T) {
			_, err := flow.UnpayInvoice(ctx, &dto.UnpayInvoiceRequest{
				UserID:    owner.ID,
				Role:      models.UserRoleMitra,
				InvoiceID: invoice.ID,
				Version:   1,
			}, nil)
			assert.True(t, businessflow.IsInvoiceNotPaid(err))
		})

		t.Run("ReversesPayment", func(t *testing.T) {
			payResp, err := flow.PayInvoice(ctx, &dto.PayInvoiceRequest{
				UserID:    owner.ID,
				Role:      models.UserRoleMitra,
				InvoiceID: invoice.ID,
				Version:   1,
			}, nil)
			require.NoError(t, err)

			unpayResp, err := flow.UnpayInvoice(ctx, &dto.UnpayInvoiceRequest{
				UserID:    owner.ID,
				Role:      models.UserRoleMitra,
				InvoiceID: invoice.ID,
				Version:   payResp.Invoice.Version,
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, string(models.InvoiceStatusUnpaid), unpayResp.Invoice.Status)
			assert.Equal(t, 3, unpayResp.Invoice.Version)
			assert.Nil(t, unpayResp.Invoice.PaidAt)
			assert.Nil(t, unpayResp.Invoice.PaymentMethod)
		})

		t.Run("StaleVersionRejected", func(t *testing.T) {
			// Pay again, then try to reverse with the pre-payment version
			payResp, err := flow.PayInvoice(ctx, &dto.PayInvoiceRequest{
				UserID:    owner.ID,
				Role:      models.UserRoleMitra,
				InvoiceID: invoice.ID,
				Version:   3,
			}, nil)
			require.NoError(t, err)
			require.Equal(t, 4, payResp.Invoice.Version)

			_, err = flow.UnpayInvoice(ctx, &dto.UnpayInvoiceRequest{
				UserID:    owner.ID,
				Role:      models.UserRoleMitra,
				InvoiceID: invoice.ID,
				Version:   3,
			}, nil)
			assert.True(t, businessflow.IsInvoiceVersionConflict(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestInvoiceOwnershipScoping(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()

		ownerA, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		ownerB, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		admin, err := fixtures.CreateTestUser(models.UserRoleSuperadmin)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)
		customer, err := fixtures.CreateTestCustomer(ownerA.ID, pkg.ID, 15)
		require.NoError(t, err)
		invoice, err := fixtures.CreateTestInvoice(customer, "2026-09")
		require.NoError(t, err)

		t.Run("ForeignMitraDenied", func(t *testing.T) {
			_, err := flow.GetInvoice(ctx, &dto.GetInvoiceRequest{
				UserID:    ownerB.ID,
				Role:      models.UserRoleMitra,
				InvoiceID: invoice.ID,
			}, nil)
			assert.True(t, businessflow.IsInvoiceAccessDenied(err))
		})

		t.Run("SuperadminSeesAll", func(t *testing.T) {
			resp, err := flow.GetInvoice(ctx, &dto.GetInvoiceRequest{
				UserID:    admin.ID,
				Role:      models.UserRoleSuperadmin,
				InvoiceID: invoice.ID,
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, invoice.ID, resp.Invoice.ID)
		})

		t.Run("MitraListPinnedToOwnRows", func(t *testing.T) {
			resp, err := flow.ListInvoices(ctx, &dto.ListInvoicesRequest{
				UserID:  ownerB.ID,
				Role:    models.UserRoleMitra,
				OwnerID: &ownerA.ID, // must be ignored for mitra
			}, nil)
			require.NoError(t, err)
			assert.Zero(t, resp.Total)
			assert.Empty(t, resp.Items)
		})

		t.Run("NotFound", func(t *testing.T) {
			_, err := flow.GetInvoice(ctx, &dto.GetInvoiceRequest{
				UserID:    admin.ID,
				Role:      models.UserRoleSuperadmin,
				InvoiceID: 99999,
			}, nil)
			assert.True(t, businessflow.IsInvoiceNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGenerateForBillingDay(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)

		billable, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)
		otherDay, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 20)
		require.NoError(t, err)

		isolated, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)
		customerRepo := repository.NewCustomerRepository(testDB.DB)
		require.NoError(t, customerRepo.UpdateStatus(ctx, isolated.ID, models.CustomerStatusIsolated))

		t.Run("CreatesForMatchingBillableCustomers", func(t *testing.T) {
			created, skipped, err := flow.GenerateForBillingDay(ctx, 15, nil)
			require.NoError(t, err)
			assert.Equal(t, 1, created)
			assert.Zero(t, skipped)

			invoiceRepo := repository.NewInvoiceRepository(testDB.DB)
			period := utils.UTCNow().AddDate(0, 1, 0).Format(utils.PeriodLayout)

			invoice, err := invoiceRepo.ByCustomerAndPeriod(ctx, billable.ID, period)
			require.NoError(t, err)
			require.NotNil(t, invoice)
			assert.Equal(t, models.InvoiceStatusUnpaid, invoice.Status)
			assert.Equal(t, pkg.Price, invoice.Amount)
			assert.Equal(t, billable.TotalBill, invoice.TotalAmount)
			assert.Equal(t, 1, invoice.Version)
			assert.NotEmpty(t, invoice.ReceiptToken)

			// Isolated customers and other billing days never get a row
			none, err := invoiceRepo.ByCustomerAndPeriod(ctx, isolated.ID, period)
			require.NoError(t, err)
			assert.Nil(t, none)
			none, err = invoiceRepo.ByCustomerAndPeriod(ctx, otherDay.ID, period)
			require.NoError(t, err)
			assert.Nil(t, none)
		})

		t.Run("RerunIsIdempotent", func(t *testing.T) {
			created, skipped, err := flow.GenerateForBillingDay(ctx, 15, nil)
			require.NoError(t, err)
			assert.Zero(t, created)
			assert.Equal(t, 1, skipped)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGetReceipt(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)
		customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)
		invoice, err := fixtures.CreateTestInvoice(customer, "2026-09")
		require.NoError(t, err)

		t.Run("ByToken", func(t *testing.T) {
			resp, err := flow.GetReceipt(ctx, &dto.GetReceiptRequest{Token: invoice.ReceiptToken})
			require.NoError(t, err)
			assert.Equal(t, customer.Name, resp.CustomerName)
			assert.Equal(t, owner.BusinessName, resp.BusinessName)
			assert.Equal(t, "2026-09", resp.Period)
			assert.Equal(t, invoice.TotalAmount, resp.TotalAmount)
		})

		t.Run("UnknownToken", func(t *testing.T) {
			_, err := flow.GetReceipt(ctx, &dto.GetReceiptRequest{Token: "no-such-token"})
			assert.True(t, businessflow.IsReceiptNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestExportInvoices(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()

		owner, err := fixtures.CreateTestUser(models.UserRoleMitra)
		require.NoError(t, err)
		pkg, err := fixtures.CreateTestPackage(150000)
		require.NoError(t, err)
		customer, err := fixtures.CreateTestCustomer(owner.ID, pkg.ID, 15)
		require.NoError(t, err)
		_, err = fixtures.CreateTestInvoice(customer, "2026-09")
		require.NoError(t, err)

		data, err := flow.ExportInvoices(ctx, &dto.ExportInvoicesRequest{
			UserID: owner.ID,
			Role:   models.UserRoleMitra,
			Period: "2026-09",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		// XLSX is a zip container
		assert.Equal(t, []byte{'P', 'K'}, data[:2])

		return nil
	})
	require.NoError(t, err)
}
