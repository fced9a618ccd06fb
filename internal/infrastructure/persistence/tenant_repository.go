package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// TenantModel is the GORM model for tenant directory entries
type TenantModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name              string    `gorm:"type:varchar(255);not null"`
	Status            string    `gorm:"type:varchar(20);not null;default:'active';index"`
	PlanID            string    `gorm:"type:varchar(50);not null"`
	BillingEmail      string    `gorm:"type:varchar(255)"`
	PaymentCustomerID string    `gorm:"type:varchar(255)"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (TenantModel) TableName() string {
	return "tenants"
}

// ToEntity converts the model to a domain entity
func (m *TenantModel) ToEntity() *identity.Tenant {
	return &identity.Tenant{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:              m.Name,
		Status:            identity.TenantStatus(m.Status),
		PlanID:            m.PlanID,
		BillingEmail:      m.BillingEmail,
		PaymentCustomerID: m.PaymentCustomerID,
	}
}

// TenantModelFromEntity creates a model from a domain entity
func TenantModelFromEntity(e *identity.Tenant) *TenantModel {
	return &TenantModel{
		ID:                e.ID,
		Name:              e.Name,
		Status:            string(e.Status),
		PlanID:            e.PlanID,
		BillingEmail:      e.BillingEmail,
		PaymentCustomerID: e.PaymentCustomerID,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

// TenantRepository implements the identity.TenantDirectory interface
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Save persists a tenant directory entry. Tenant management lives in the
// identity subsystem; this write path exists for provisioning and tests.
func (r *TenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	model := TenantModelFromEntity(tenant)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID retrieves a tenant; shared.ErrTenantNotFound when unknown
func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var model TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrTenantNotFound
		}
		return nil, err
	}
	return model.ToEntity(), nil
}

// ListActive retrieves all tenants participating in metering sweeps
func (r *TenantRepository) ListActive(ctx context.Context) ([]*identity.Tenant, error) {
	var models []TenantModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{
			string(identity.TenantStatusActive),
			string(identity.TenantStatusTrial),
		}).
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	tenants := make([]*identity.Tenant, len(models))
	for i, model := range models {
		tenants[i] = model.ToEntity()
	}
	return tenants, nil
}
