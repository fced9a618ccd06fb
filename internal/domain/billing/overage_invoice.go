package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks the lifecycle of an overage invoice. Transitions out
// of pending are driven by the payment processor's webhook.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusFailed  InvoiceStatus = "failed"
)

// IsValid returns true for a known invoice status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusFailed:
		return true
	}
	return false
}

// InvoiceLine is one service's billable overage on an invoice
type InvoiceLine struct {
	Service     metering.Service `json:"service"`
	Description string           `json:"description"`
	Quantity    int64            `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Amount      decimal.Decimal  `json:"amount"`
}

// OverageInvoice is the append-only local record of an invoice created with
// the external payment processor for one tenant and settled period. At most
// one exists per (tenant, period); the repository enforces this with a
// unique key.
type OverageInvoice struct {
	shared.BaseEntity
	TenantID          uuid.UUID
	Period            time.Time // first-of-month UTC instant of the settled month
	ExternalInvoiceID string    // payment processor invoice id
	Lines             []InvoiceLine
	Amount            decimal.Decimal
	Currency          string
	Status            InvoiceStatus
	IssuedAt          time.Time
	DueAt             time.Time
}

// NewOverageInvoice creates a pending invoice record for a settled period
func NewOverageInvoice(tenantID uuid.UUID, period time.Time, externalID string, lines []InvoiceLine, dueIn time.Duration) (*OverageInvoice, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if externalID == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE", "External invoice ID cannot be empty")
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice must have at least one line")
	}

	amount := decimal.Zero
	for _, line := range lines {
		amount = amount.Add(line.Amount)
	}
	if amount.Sign() <= 0 {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice amount must be positive")
	}

	now := time.Now()
	return &OverageInvoice{
		BaseEntity:        shared.NewBaseEntity(),
		TenantID:          tenantID,
		Period:            metering.PeriodOf(period),
		ExternalInvoiceID: externalID,
		Lines:             lines,
		Amount:            amount,
		Currency:          "EUR",
		Status:            InvoiceStatusPending,
		IssuedAt:          now,
		DueAt:             now.Add(dueIn),
	}, nil
}

// OverageInvoiceRepository persists overage invoice records
type OverageInvoiceRepository interface {
	// Save persists a new invoice record; shared.ErrAlreadyExists when one
	// already exists for the (tenant, period) key
	Save(ctx context.Context, invoice *OverageInvoice) error

	// FindByTenantAndPeriod retrieves the invoice for a tenant and period;
	// shared.ErrNotFound when the period has not been settled for the tenant
	FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) (*OverageInvoice, error)

	// ListByPeriod retrieves all invoices created for a settled period
	ListByPeriod(ctx context.Context, period time.Time) ([]*OverageInvoice, error)

	// UpdateStatus records the externally observed payment outcome
	UpdateStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) error
}
