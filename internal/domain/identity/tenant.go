package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/shared"
)

// TenantStatus represents the lifecycle status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusClosed    TenantStatus = "closed"
)

// IsValid returns true for a known tenant status
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusActive, TenantStatusTrial, TenantStatusSuspended, TenantStatusClosed:
		return true
	}
	return false
}

// Tenant is the directory entry for one property-management agency. The
// tenant lifecycle is owned by the identity subsystem; the metering engine
// reads the plan reference, billing contact and payment customer id.
type Tenant struct {
	shared.BaseEntity
	Name              string
	Status            TenantStatus
	PlanID            string
	BillingEmail      string // billing contact; empty means no email dispatch
	PaymentCustomerID string // external payment processor customer reference
}

// NewTenant creates an active tenant on the given plan
func NewTenant(name, planID string) (*Tenant, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant name cannot be empty")
	}
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID cannot be empty")
	}

	return &Tenant{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		Status:     TenantStatusActive,
		PlanID:     planID,
	}, nil
}

// IsActive reports whether the tenant participates in metering sweeps
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive || t.Status == TenantStatusTrial
}

// HasPaymentCustomer reports whether overage can be invoiced for the tenant
func (t *Tenant) HasPaymentCustomer() bool {
	return t.PaymentCustomerID != ""
}

// TenantDirectory resolves tenants for the metering engine. Read-only;
// tenant management lives elsewhere.
type TenantDirectory interface {
	// FindByID retrieves a tenant; shared.ErrTenantNotFound when unknown
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// ListActive retrieves all tenants participating in metering sweeps
	ListActive(ctx context.Context) ([]*Tenant, error)
}
