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
	"gorm.io/gorm/clause"
)

// MonthlySummaryModel is the GORM model for monthly usage summaries. The
// unique index on (tenant_id, period) makes the summary a true upsert target.
type MonthlySummaryModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_summary_tenant_period"`
	Period           time.Time       `gorm:"not null;uniqueIndex:idx_summary_tenant_period;index"`
	PlanID           string          `gorm:"type:varchar(50);not null"`
	Services         []byte          `gorm:"type:jsonb;not null;default:'{}'"`
	TotalCost        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalOverageCost decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency         string          `gorm:"type:varchar(3);not null;default:'EUR'"`
	ComputedAt       time.Time       `gorm:"not null"`
	CreatedAt        time.Time       `gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (MonthlySummaryModel) TableName() string {
	return "monthly_summaries"
}

// ToEntity converts the model to a domain entity
func (m *MonthlySummaryModel) ToEntity() *metering.MonthlySummary {
	services := make(map[metering.Service]metering.ServiceUsage)
	if len(m.Services) > 0 {
		_ = json.Unmarshal(m.Services, &services)
	}

	return &metering.MonthlySummary{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:         m.TenantID,
		Period:           m.Period.UTC(),
		PlanID:           m.PlanID,
		Services:         services,
		TotalCost:        m.TotalCost,
		TotalOverageCost: m.TotalOverageCost,
		Currency:         m.Currency,
		ComputedAt:       m.ComputedAt,
	}
}

// MonthlySummaryModelFromEntity creates a model from a domain entity
func MonthlySummaryModelFromEntity(e *metering.MonthlySummary) *MonthlySummaryModel {
	servicesBytes, _ := json.Marshal(e.Services)

	return &MonthlySummaryModel{
		ID:               e.ID,
		TenantID:         e.TenantID,
		Period:           e.Period,
		PlanID:           e.PlanID,
		Services:         servicesBytes,
		TotalCost:        e.TotalCost,
		TotalOverageCost: e.TotalOverageCost,
		Currency:         e.Currency,
		ComputedAt:       e.ComputedAt,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

// MonthlySummaryRepository implements the metering.MonthlySummaryRepository interface
type MonthlySummaryRepository struct {
	db *gorm.DB
}

// NewMonthlySummaryRepository creates a new monthly summary repository
func NewMonthlySummaryRepository(db *gorm.DB) *MonthlySummaryRepository {
	return &MonthlySummaryRepository{db: db}
}

// Upsert creates or fully overwrites the summary row for the summary's
// (tenant, period) key
func (r *MonthlySummaryRepository) Upsert(ctx context.Context, summary *metering.MonthlySummary) error {
	model := MonthlySummaryModelFromEntity(summary)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"plan_id", "services", "total_cost", "total_overage_cost",
				"currency", "computed_at", "updated_at",
			}),
		}).
		Create(model).Error
}

// FindByTenantAndPeriod retrieves the summary for a tenant and period
func (r *MonthlySummaryRepository) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) (*metering.MonthlySummary, error) {
	var model MonthlySummaryModel
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

// ListByPeriod retrieves all summaries for a period
func (r *MonthlySummaryRepository) ListByPeriod(ctx context.Context, period time.Time) ([]*metering.MonthlySummary, error) {
	var models []MonthlySummaryModel
	err := r.db.WithContext(ctx).
		Where("period = ?", metering.PeriodOf(period)).
		Order("tenant_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]*metering.MonthlySummary, len(models))
	for i, model := range models {
		summaries[i] = model.ToEntity()
	}
	return summaries, nil
}
