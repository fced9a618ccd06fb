package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageLogRepository persists and queries the append-only usage log
type UsageLogRepository interface {
	// Save persists a new log entry
	Save(ctx context.Context, entry *UsageLogEntry) error

	// FindByID retrieves a log entry by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*UsageLogEntry, error)

	// ListByTenantAndPeriod retrieves all entries for a tenant in a period,
	// ordered by recording time. The aggregator's full re-derive reads this.
	ListByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) ([]*UsageLogEntry, error)

	// SumByService aggregates quantity and cost per service for a tenant and
	// period, pushing the arithmetic into the database.
	SumByService(ctx context.Context, tenantID uuid.UUID, period time.Time) (map[Service]ServiceTotals, error)

	// DeleteOlderThan removes entries recorded before the cutoff (data
	// retention; the policy itself lives elsewhere)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// ServiceTotals is the per-service aggregation result of a usage log scan
type ServiceTotals struct {
	Quantity int64
	Cost     decimal.Decimal
}

// MonthlySummaryRepository persists the per-(tenant, period) summaries
type MonthlySummaryRepository interface {
	// Upsert creates or fully overwrites the summary row for the summary's
	// (tenant, period) key
	Upsert(ctx context.Context, summary *MonthlySummary) error

	// FindByTenantAndPeriod retrieves the summary for a tenant and period;
	// shared.ErrNotFound when no events have been logged yet
	FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) (*MonthlySummary, error)

	// ListByPeriod retrieves all summaries for a period (settlement sweep)
	ListByPeriod(ctx context.Context, period time.Time) ([]*MonthlySummary, error)
}

// PlanDirectory resolves plan definitions. Owned by the subscription
// subsystem; read-only here.
type PlanDirectory interface {
	// FindByID retrieves a plan definition; shared.ErrPlanNotFound when the
	// plan id is unknown
	FindByID(ctx context.Context, planID string) (*Plan, error)
}
