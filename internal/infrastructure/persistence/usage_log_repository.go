package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UsageLogModel is the GORM model for usage log entries
type UsageLogModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_usage_log_tenant_period"`
	Service    string          `gorm:"type:varchar(50);not null"`
	Variant    string          `gorm:"type:varchar(50)"`
	Quantity   int64           `gorm:"not null"`
	Cost       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency   string          `gorm:"type:varchar(3);not null;default:'EUR'"`
	Period     time.Time       `gorm:"not null;index:idx_usage_log_tenant_period"`
	RecordedAt time.Time       `gorm:"not null;index"`
	SourceType string          `gorm:"type:varchar(100)"`
	SourceID   string          `gorm:"type:varchar(255)"`
	Metadata   []byte          `gorm:"type:jsonb;default:'{}'"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageLogModel) TableName() string {
	return "usage_log_entries"
}

// ToEntity converts the model to a domain entity
func (m *UsageLogModel) ToEntity() *metering.UsageLogEntry {
	var metadata metering.Metadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &metadata)
	}
	if metadata == nil {
		metadata = make(metering.Metadata)
	}

	return &metering.UsageLogEntry{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:   m.TenantID,
		Service:    metering.Service(m.Service),
		Variant:    m.Variant,
		Quantity:   m.Quantity,
		Cost:       m.Cost,
		Currency:   m.Currency,
		Period:     m.Period.UTC(),
		RecordedAt: m.RecordedAt,
		SourceType: m.SourceType,
		SourceID:   m.SourceID,
		Metadata:   metadata,
	}
}

// UsageLogModelFromEntity creates a model from a domain entity
func UsageLogModelFromEntity(e *metering.UsageLogEntry) *UsageLogModel {
	var metadataBytes []byte
	if e.Metadata != nil {
		metadataBytes, _ = json.Marshal(e.Metadata)
	} else {
		metadataBytes = []byte("{}")
	}

	return &UsageLogModel{
		ID:         e.ID,
		TenantID:   e.TenantID,
		Service:    string(e.Service),
		Variant:    e.Variant,
		Quantity:   e.Quantity,
		Cost:       e.Cost,
		Currency:   e.Currency,
		Period:     e.Period,
		RecordedAt: e.RecordedAt,
		SourceType: e.SourceType,
		SourceID:   e.SourceID,
		Metadata:   metadataBytes,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// UsageLogRepository implements the metering.UsageLogRepository interface
type UsageLogRepository struct {
	db *gorm.DB
}

// NewUsageLogRepository creates a new usage log repository
func NewUsageLogRepository(db *gorm.DB) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

// Save persists a new log entry
func (r *UsageLogRepository) Save(ctx context.Context, entry *metering.UsageLogEntry) error {
	model := UsageLogModelFromEntity(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID retrieves a log entry by its ID
func (r *UsageLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.UsageLogEntry, error) {
	var model UsageLogModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// ListByTenantAndPeriod retrieves all entries for a tenant in a period
func (r *UsageLogRepository) ListByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) ([]*metering.UsageLogEntry, error) {
	var models []UsageLogModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, metering.PeriodOf(period)).
		Order("recorded_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*metering.UsageLogEntry, len(models))
	for i, model := range models {
		entries[i] = model.ToEntity()
	}
	return entries, nil
}

// SumByService aggregates quantity and cost per service for a tenant and period
func (r *UsageLogRepository) SumByService(ctx context.Context, tenantID uuid.UUID, period time.Time) (map[metering.Service]metering.ServiceTotals, error) {
	type row struct {
		Service  string
		Quantity int64
		Cost     decimal.Decimal
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&UsageLogModel{}).
		Select("service, SUM(quantity) AS quantity, SUM(cost) AS cost").
		Where("tenant_id = ? AND period = ?", tenantID, metering.PeriodOf(period)).
		Group("service").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[metering.Service]metering.ServiceTotals, len(rows))
	for _, row := range rows {
		totals[metering.Service(row.Service)] = metering.ServiceTotals{
			Quantity: row.Quantity,
			Cost:     row.Cost,
		}
	}
	return totals, nil
}

// DeleteOlderThan removes entries recorded before the cutoff
func (r *UsageLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recorded_at < ?", before).
		Delete(&UsageLogModel{})
	return result.RowsAffected, result.Error
}
