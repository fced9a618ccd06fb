package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OverageInvoiceModel is the GORM model for overage invoice records. The
// unique index on (tenant_id, period) is the settlement idempotency guard;
// a second settle of the same period fails at the database no matter how
// the sweeps race.
type OverageInvoiceModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_tenant_period"`
	Period            time.Time       `gorm:"not null;uniqueIndex:idx_invoice_tenant_period;index"`
	ExternalInvoiceID string          `gorm:"type:varchar(255);not null"`
	Lines             []byte          `gorm:"type:jsonb;not null;default:'[]'"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null;default:'EUR'"`
	Status            string          `gorm:"type:varchar(20);not null;default:'pending'"`
	IssuedAt          time.Time       `gorm:"not null"`
	DueAt             time.Time       `gorm:"not null"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (OverageInvoiceModel) TableName() string {
	return "overage_invoices"
}

// ToEntity converts the model to a domain entity
func (m *OverageInvoiceModel) ToEntity() *billing.OverageInvoice {
	var lines []billing.InvoiceLine
	if len(m.Lines) > 0 {
		_ = json.Unmarshal(m.Lines, &lines)
	}

	return &billing.OverageInvoice{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:          m.TenantID,
		Period:            m.Period.UTC(),
		ExternalInvoiceID: m.ExternalInvoiceID,
		Lines:             lines,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Status:            billing.InvoiceStatus(m.Status),
		IssuedAt:          m.IssuedAt,
		DueAt:             m.DueAt,
	}
}

// OverageInvoiceModelFromEntity creates a model from a domain entity
func OverageInvoiceModelFromEntity(e *billing.OverageInvoice) *OverageInvoiceModel {
	linesBytes, _ := json.Marshal(e.Lines)

	return &OverageInvoiceModel{
		ID:                e.ID,
		TenantID:          e.TenantID,
		Period:            e.Period,
		ExternalInvoiceID: e.ExternalInvoiceID,
		Lines:             linesBytes,
		Amount:            e.Amount,
		Currency:          e.Currency,
		Status:            string(e.Status),
		IssuedAt:          e.IssuedAt,
		DueAt:             e.DueAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

// OverageInvoiceRepository implements the billing.OverageInvoiceRepository interface
type OverageInvoiceRepository struct {
	db *gorm.DB
}

// NewOverageInvoiceRepository creates a new overage invoice repository
func NewOverageInvoiceRepository(db *gorm.DB) *OverageInvoiceRepository {
	return &OverageInvoiceRepository{db: db}
}

// Save persists a new invoice record; shared.ErrAlreadyExists when one
// already exists for the (tenant, period) key
func (r *OverageInvoiceRepository) Save(ctx context.Context, invoice *billing.OverageInvoice) error {
	model := OverageInvoiceModelFromEntity(invoice)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByTenantAndPeriod retrieves the invoice for a tenant and period
func (r *OverageInvoiceRepository) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) (*billing.OverageInvoice, error) {
	var model OverageInvoiceModel
	err := r.db.WithContext(ctx).
		First(&model, "tenant_id = ? AND period = ?", tenantID, metering.PeriodOf(period)).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// ListByPeriod retrieves all invoices created for a settled period
func (r *OverageInvoiceRepository) ListByPeriod(ctx context.Context, period time.Time) ([]*billing.OverageInvoice, error) {
	var models []OverageInvoiceModel
	err := r.db.WithContext(ctx).
		Where("period = ?", metering.PeriodOf(period)).
		Order("issued_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	invoices := make([]*billing.OverageInvoice, len(models))
	for i, model := range models {
		invoices[i] = model.ToEntity()
	}
	return invoices, nil
}

// UpdateStatus records the externally observed payment outcome
func (r *OverageInvoiceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status billing.InvoiceStatus) error {
	result := r.db.WithContext(ctx).
		Model(&OverageInvoiceModel{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
