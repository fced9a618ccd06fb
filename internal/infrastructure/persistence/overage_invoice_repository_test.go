package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOverageInvoiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&OverageInvoiceModel{})
	require.NoError(t, err)

	return db
}

func mustInvoice(t *testing.T, tenantID uuid.UUID, period time.Time, externalID string) *billing.OverageInvoice {
	t.Helper()
	invoice, err := billing.NewOverageInvoice(tenantID, period, externalID, []billing.InvoiceLine{
		{
			Service:     metering.ServiceSMS,
			Description: "sms overage for 2026-07 (30 beyond plan quota)",
			Quantity:    30,
			UnitPrice:   decimal.NewFromFloat(0.10),
			Amount:      decimal.NewFromFloat(3.00),
		},
	}, 14*24*time.Hour)
	require.NoError(t, err)
	return invoice
}

func TestOverageInvoiceRepository_Save(t *testing.T) {
	db := setupOverageInvoiceTestDB(t)
	repo := NewOverageInvoiceRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("saves and reloads an invoice", func(t *testing.T) {
		invoice := mustInvoice(t, tenantID, july, "in_1001")
		require.NoError(t, repo.Save(ctx, invoice))

		found, err := repo.FindByTenantAndPeriod(ctx, tenantID, july)
		require.NoError(t, err)
		assert.Equal(t, invoice.ID, found.ID)
		assert.Equal(t, "in_1001", found.ExternalInvoiceID)
		assert.Equal(t, billing.InvoiceStatusPending, found.Status)
		assert.True(t, decimal.NewFromFloat(3.00).Equal(found.Amount))
		require.Len(t, found.Lines, 1)
		assert.Equal(t, metering.ServiceSMS, found.Lines[0].Service)
		assert.Equal(t, int64(30), found.Lines[0].Quantity)
	})

	t.Run("second invoice for the same tenant and period is rejected", func(t *testing.T) {
		duplicate := mustInvoice(t, tenantID, july, "in_1002")
		err := repo.Save(ctx, duplicate)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("the next period settles independently", func(t *testing.T) {
		august := mustInvoice(t, tenantID, july.AddDate(0, 1, 0), "in_1003")
		assert.NoError(t, repo.Save(ctx, august))
	})
}

func TestOverageInvoiceRepository_FindByTenantAndPeriod(t *testing.T) {
	db := setupOverageInvoiceTestDB(t)
	repo := NewOverageInvoiceRepository(db)
	ctx := context.Background()

	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.FindByTenantAndPeriod(ctx, uuid.New(), july)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOverageInvoiceRepository_ListByPeriod(t *testing.T) {
	db := setupOverageInvoiceTestDB(t)
	repo := NewOverageInvoiceRepository(db)
	ctx := context.Background()

	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, mustInvoice(t, uuid.New(), july, "in_2001")))
	require.NoError(t, repo.Save(ctx, mustInvoice(t, uuid.New(), july, "in_2002")))
	require.NoError(t, repo.Save(ctx, mustInvoice(t, uuid.New(), july.AddDate(0, 1, 0), "in_2003")))

	invoices, err := repo.ListByPeriod(ctx, july)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)
}

func TestOverageInvoiceRepository_UpdateStatus(t *testing.T) {
	db := setupOverageInvoiceTestDB(t)
	repo := NewOverageInvoiceRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	invoice := mustInvoice(t, tenantID, july, "in_3001")
	require.NoError(t, repo.Save(ctx, invoice))

	t.Run("marks an invoice paid", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, invoice.ID, billing.InvoiceStatusPaid))

		found, err := repo.FindByTenantAndPeriod(ctx, tenantID, july)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusPaid, found.Status)
	})

	t.Run("not found for an unknown invoice", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, uuid.New(), billing.InvoiceStatusFailed)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
