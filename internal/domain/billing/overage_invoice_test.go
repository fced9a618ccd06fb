package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOverageInvoice(t *testing.T) {
	tenantID := uuid.New()
	period := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	lines := []InvoiceLine{
		{
			Service:     metering.ServiceSignature,
			Description: "10 × €2.00",
			Quantity:    10,
			UnitPrice:   decimal.NewFromInt(2),
			Amount:      decimal.NewFromInt(20),
		},
		{
			Service:     metering.ServiceSMS,
			Description: "25 × €0.12",
			Quantity:    25,
			UnitPrice:   decimal.NewFromFloat(0.12),
			Amount:      decimal.NewFromInt(3),
		},
	}

	t.Run("sums line amounts and starts pending", func(t *testing.T) {
		invoice, err := NewOverageInvoice(tenantID, period, "in_1abc", lines, 14*24*time.Hour)
		require.NoError(t, err)

		assert.Equal(t, "23", invoice.Amount.String())
		assert.Equal(t, InvoiceStatusPending, invoice.Status)
		assert.Equal(t, period, invoice.Period)
		assert.Equal(t, "in_1abc", invoice.ExternalInvoiceID)
		assert.WithinDuration(t, time.Now().Add(14*24*time.Hour), invoice.DueAt, time.Second)
	})

	t.Run("rejects missing external id", func(t *testing.T) {
		_, err := NewOverageInvoice(tenantID, period, "", lines, time.Hour)
		assert.Error(t, err)
	})

	t.Run("rejects empty line set", func(t *testing.T) {
		_, err := NewOverageInvoice(tenantID, period, "in_1abc", nil, time.Hour)
		assert.Error(t, err)
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		zero := []InvoiceLine{{Service: metering.ServiceSMS, Amount: decimal.Zero}}
		_, err := NewOverageInvoice(tenantID, period, "in_1abc", zero, time.Hour)
		assert.Error(t, err)
	})
}

func TestInvoiceStatusIsValid(t *testing.T) {
	assert.True(t, InvoiceStatusPending.IsValid())
	assert.True(t, InvoiceStatusPaid.IsValid())
	assert.True(t, InvoiceStatusFailed.IsValid())
	assert.False(t, InvoiceStatus("void").IsValid())
}
