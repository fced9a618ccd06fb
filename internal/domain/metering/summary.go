package metering

import (
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ServiceUsage is one service's slice of a monthly summary. Limit is a
// snapshot of the plan quota at recompute time; Overage is always
// max(0, Used-Limit) and never negative.
type ServiceUsage struct {
	Used        int64           `json:"used"`
	Limit       int64           `json:"limit"`
	Cost        decimal.Decimal `json:"cost"`
	Overage     int64           `json:"overage"`
	OverageCost decimal.Decimal `json:"overage_cost"`
}

// Percentage returns used/limit as a percentage, 0 when no limit is set
func (u ServiceUsage) Percentage() float64 {
	if u.Limit <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Limit) * 100
}

// Remaining returns the unconsumed quota, never negative
func (u ServiceUsage) Remaining() int64 {
	remaining := u.Limit - u.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MonthlySummary is the mutable per-(tenant, period) aggregate. It is owned
// and fully overwritten by the aggregator's recompute; admission control,
// threshold alerting and overage settlement only read it.
type MonthlySummary struct {
	shared.BaseEntity
	TenantID         uuid.UUID
	Period           time.Time // first-of-month UTC instant
	PlanID           string    // plan snapshot at recompute time
	Services         map[Service]ServiceUsage
	TotalCost        decimal.Decimal
	TotalOverageCost decimal.Decimal
	Currency         string
	ComputedAt       time.Time
}

// NewMonthlySummary creates an empty summary for a tenant and period
func NewMonthlySummary(tenantID uuid.UUID, period time.Time, planID string) *MonthlySummary {
	return &MonthlySummary{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		Period:     PeriodOf(period),
		PlanID:     planID,
		Services:   make(map[Service]ServiceUsage),
		Currency:   "EUR",
		ComputedAt: time.Now(),
	}
}

// SetUsage records one service's aggregate and folds it into the totals
func (s *MonthlySummary) SetUsage(service Service, usage ServiceUsage) {
	s.Services[service] = usage
	s.recalculateTotals()
}

// recalculateTotals rebuilds the cost totals from the per-service slices
func (s *MonthlySummary) recalculateTotals() {
	total := decimal.Zero
	overage := decimal.Zero
	for _, usage := range s.Services {
		total = total.Add(usage.Cost)
		overage = overage.Add(usage.OverageCost)
	}
	s.TotalCost = total
	s.TotalOverageCost = overage
}

// Usage returns the slice for one service; the zero value means no usage
// and no entitlement.
func (s *MonthlySummary) Usage(service Service) ServiceUsage {
	return s.Services[service]
}

// HasOverage returns true if any service exceeded its quota
func (s *MonthlySummary) HasOverage() bool {
	for _, usage := range s.Services {
		if usage.Overage > 0 {
			return true
		}
	}
	return false
}

// OverageAmount computes overage = max(0, used-limit). A non-positive limit
// means the service is not entitled, in which case all usage is overage only
// when usage was somehow logged anyway; entitlement gating happens in
// admission control, so overage is reported as 0 to avoid billing for a
// service the plan never included.
func OverageAmount(used, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	if used <= limit {
		return 0
	}
	return used - limit
}
