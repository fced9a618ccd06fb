package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// AlertRecordModel is the GORM model for dispatched-alert markers
type AlertRecordModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index:idx_alert_dedup"`
	Service   string    `gorm:"type:varchar(50);not null;index:idx_alert_dedup"`
	Threshold int       `gorm:"not null;index:idx_alert_dedup"`
	Period    time.Time `gorm:"not null;index:idx_alert_dedup"`
	SentAt    time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (AlertRecordModel) TableName() string {
	return "alert_records"
}

// ToEntity converts the model to a domain entity
func (m *AlertRecordModel) ToEntity() *billing.AlertRecord {
	return &billing.AlertRecord{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:  m.TenantID,
		Service:   metering.Service(m.Service),
		Threshold: billing.AlertThreshold(m.Threshold),
		Period:    m.Period.UTC(),
		SentAt:    m.SentAt,
	}
}

// AlertRecordModelFromEntity creates a model from a domain entity
func AlertRecordModelFromEntity(e *billing.AlertRecord) *AlertRecordModel {
	return &AlertRecordModel{
		ID:        e.ID,
		TenantID:  e.TenantID,
		Service:   string(e.Service),
		Threshold: int(e.Threshold),
		Period:    e.Period,
		SentAt:    e.SentAt,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// AlertRecordRepository implements the billing.AlertRecordRepository interface
type AlertRecordRepository struct {
	db *gorm.DB
}

// NewAlertRecordRepository creates a new alert record repository
func NewAlertRecordRepository(db *gorm.DB) *AlertRecordRepository {
	return &AlertRecordRepository{db: db}
}

// Save persists a new alert record
func (r *AlertRecordRepository) Save(ctx context.Context, record *billing.AlertRecord) error {
	model := AlertRecordModelFromEntity(record)
	return r.db.WithContext(ctx).Create(model).Error
}

// ExistsWithin reports whether an identical alert was sent after the since instant
func (r *AlertRecordRepository) ExistsWithin(ctx context.Context, tenantID uuid.UUID, service metering.Service, threshold billing.AlertThreshold, period time.Time, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&AlertRecordModel{}).
		Where("tenant_id = ? AND service = ? AND threshold = ? AND period = ? AND sent_at > ?",
			tenantID, string(service), int(threshold), metering.PeriodOf(period), since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByTenantAndPeriod retrieves a tenant's alert history for a period
func (r *AlertRecordRepository) ListByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) ([]*billing.AlertRecord, error) {
	var models []AlertRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, metering.PeriodOf(period)).
		Order("sent_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]*billing.AlertRecord, len(models))
	for i, model := range models {
		records[i] = model.ToEntity()
	}
	return records, nil
}
