package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
)

// AlertThreshold is the quota percentage a threshold alert fires at
type AlertThreshold int

const (
	// ThresholdWarning fires when usage reaches 80% of the quota
	ThresholdWarning AlertThreshold = 80

	// ThresholdCritical fires when usage reaches or exceeds the quota
	ThresholdCritical AlertThreshold = 100
)

// IsValid returns true for a known threshold
func (t AlertThreshold) IsValid() bool {
	return t == ThresholdWarning || t == ThresholdCritical
}

// ClassifyUsage maps a usage percentage to the threshold it crosses, if any.
// 100 takes precedence over 80 so a service never fires both in one pass.
func ClassifyUsage(percentage float64) (AlertThreshold, bool) {
	switch {
	case percentage >= 100:
		return ThresholdCritical, true
	case percentage >= 80:
		return ThresholdWarning, true
	default:
		return 0, false
	}
}

// AlertRecord is the append-only marker proving an alert was dispatched.
// It is written only after a confirmed successful send, so a failed dispatch
// stays eligible for the next sweep pass.
type AlertRecord struct {
	shared.BaseEntity
	TenantID  uuid.UUID
	Service   metering.Service
	Threshold AlertThreshold
	Period    time.Time // first-of-month UTC instant
	SentAt    time.Time
}

// NewAlertRecord creates a dispatched-alert marker
func NewAlertRecord(tenantID uuid.UUID, service metering.Service, threshold AlertThreshold, period time.Time) (*AlertRecord, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !service.IsValid() {
		return nil, shared.NewDomainError("INVALID_SERVICE", "Unknown metered service: "+string(service))
	}
	if !threshold.IsValid() {
		return nil, shared.NewDomainError("INVALID_THRESHOLD", "Alert threshold must be 80 or 100")
	}

	return &AlertRecord{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		Service:    service,
		Threshold:  threshold,
		Period:     metering.PeriodOf(period),
		SentAt:     time.Now(),
	}, nil
}

// AlertRecordRepository persists dispatched-alert markers
type AlertRecordRepository interface {
	// Save persists a new alert record
	Save(ctx context.Context, record *AlertRecord) error

	// ExistsWithin reports whether an alert with the same (tenant, service,
	// threshold, period) key was sent after the since instant. The alerter
	// uses this for its dedup window.
	ExistsWithin(ctx context.Context, tenantID uuid.UUID, service metering.Service, threshold AlertThreshold, period time.Time, since time.Time) (bool, error)

	// ListByTenantAndPeriod retrieves a tenant's alert history for a period
	ListByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) ([]*AlertRecord, error)
}
