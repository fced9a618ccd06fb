package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// planQuotaDoc is the JSON shape of one service quota inside PlanModel.Quotas
type planQuotaDoc struct {
	Included         int64            `json:"included"`
	OverageUnitPrice *decimal.Decimal `json:"overage_unit_price,omitempty"`
}

// PlanModel is the GORM model for subscription plan definitions. Plans use a
// stable string key ("starter", "pro") rather than a generated id because the
// subscription subsystem references them by name.
type PlanModel struct {
	ID        string    `gorm:"type:varchar(50);primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Quotas    []byte    `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (PlanModel) TableName() string {
	return "plans"
}

// ToEntity converts the model to a domain entity
func (m *PlanModel) ToEntity() *metering.Plan {
	docs := make(map[string]planQuotaDoc)
	if len(m.Quotas) > 0 {
		_ = json.Unmarshal(m.Quotas, &docs)
	}

	quotas := make(map[metering.Service]metering.PlanQuota, len(docs))
	for service, doc := range docs {
		quotas[metering.Service(service)] = metering.PlanQuota{
			Included:         doc.Included,
			OverageUnitPrice: doc.OverageUnitPrice,
		}
	}

	return &metering.Plan{
		ID:     m.ID,
		Name:   m.Name,
		Quotas: quotas,
	}
}

// PlanModelFromEntity creates a model from a domain entity
func PlanModelFromEntity(e *metering.Plan) *PlanModel {
	docs := make(map[string]planQuotaDoc, len(e.Quotas))
	for service, quota := range e.Quotas {
		docs[string(service)] = planQuotaDoc{
			Included:         quota.Included,
			OverageUnitPrice: quota.OverageUnitPrice,
		}
	}
	quotasBytes, _ := json.Marshal(docs)

	return &PlanModel{
		ID:     e.ID,
		Name:   e.Name,
		Quotas: quotasBytes,
	}
}

// PlanRepository implements the metering.PlanDirectory interface
type PlanRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Save persists a plan definition, overwriting any existing one with the
// same id. Plan management lives in the subscription subsystem; this write
// path exists for provisioning and tests.
func (r *PlanRepository) Save(ctx context.Context, plan *metering.Plan) error {
	model := PlanModelFromEntity(plan)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID retrieves a plan definition; shared.ErrPlanNotFound when the
// plan id is unknown
func (r *PlanRepository) FindByID(ctx context.Context, planID string) (*metering.Plan, error) {
	var model PlanModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", planID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrPlanNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// List retrieves all plan definitions
func (r *PlanRepository) List(ctx context.Context) ([]*metering.Plan, error) {
	var models []PlanModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	plans := make([]*metering.Plan, len(models))
	for i, model := range models {
		plans[i] = model.ToEntity()
	}
	return plans, nil
}
