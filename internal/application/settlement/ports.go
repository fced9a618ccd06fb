package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/shopspring/decimal"
)

// InvoiceRequest describes the overage invoice to create with the external
// payment processor. The processor derives its idempotency keys from
// TenantID and Period, so retrying the same request never double-bills.
type InvoiceRequest struct {
	CustomerID string // payment processor customer reference
	TenantID   uuid.UUID
	Period     time.Time // settled period, first-of-month UTC instant
	Lines      []billing.InvoiceLine
	Currency   string
	DueIn      time.Duration
}

// PaymentProcessor creates overage invoices with the external billing
// provider. Implementations live in infrastructure/billing.
type PaymentProcessor interface {
	// CreateOverageInvoice creates and finalizes an invoice, returning the
	// processor's invoice id
	CreateOverageInvoice(ctx context.Context, req InvoiceRequest) (string, error)
}

// OverageReceipt is the message handed to the mailer after an invoice was
// created
type OverageReceipt struct {
	Tenant  *identity.Tenant
	Invoice *billing.OverageInvoice
	Period  string // formatted period key, e.g. "2026-08"
	Total   decimal.Decimal
}

// ReceiptMailer delivers overage receipts to the tenant's billing contact
type ReceiptMailer interface {
	// SendOverageReceipt sends one receipt email
	SendOverageReceipt(ctx context.Context, receipt OverageReceipt) error
}
