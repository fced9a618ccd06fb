package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AggregatorService rebuilds monthly summaries from the usage log. Recompute
// is a full re-derive, not an incremental delta: running it twice with no new
// events yields an identical summary, which keeps it safe for backfills and
// corrections.
type AggregatorService struct {
	logRepo     metering.UsageLogRepository
	summaryRepo metering.MonthlySummaryRepository
	tenants     identity.TenantDirectory
	plans       metering.PlanDirectory
	cache       SummaryCache
	logger      *zap.Logger

	locks    *keyedMutex
	cacheTTL time.Duration
}

// AggregatorConfig contains configuration for the aggregator
type AggregatorConfig struct {
	// CacheTTL is how long recomputed summaries stay in the hot-path cache
	CacheTTL time.Duration
}

// DefaultAggregatorConfig returns default configuration
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// NewAggregatorService creates a new aggregator. The cache is optional; a
// nil cache disables hot-path caching.
func NewAggregatorService(
	logRepo metering.UsageLogRepository,
	summaryRepo metering.MonthlySummaryRepository,
	tenants identity.TenantDirectory,
	plans metering.PlanDirectory,
	cache SummaryCache,
	logger *zap.Logger,
	config AggregatorConfig,
) *AggregatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregatorService{
		logRepo:     logRepo,
		summaryRepo: summaryRepo,
		tenants:     tenants,
		plans:       plans,
		cache:       cache,
		logger:      logger,
		locks:       newKeyedMutex(),
		cacheTTL:    config.CacheTTL,
	}
}

// Recompute rebuilds the summary for (tenant, period) from all usage log
// entries in that period and upserts it. Execution is serialized per
// (tenant, period) key so concurrent trackUsage calls cannot lose updates.
func (s *AggregatorService) Recompute(ctx context.Context, tenantID uuid.UUID, period time.Time) (*metering.MonthlySummary, error) {
	period = metering.PeriodOf(period)

	unlock := s.locks.Lock(recomputeKey(tenantID, period))
	defer unlock()

	totals, err := s.logRepo.SumByService(ctx, tenantID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage log: %w", err)
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	plan, err := s.plans.FindByID(ctx, tenant.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan %q: %w", tenant.PlanID, err)
	}

	summary := metering.NewMonthlySummary(tenantID, period, plan.ID)

	for _, service := range metering.AllServices() {
		total := totals[service]
		quota := plan.QuotaFor(service)
		if total.Quantity == 0 && quota.Included == 0 {
			continue
		}

		overage := metering.OverageAmount(total.Quantity, quota.Included)
		overageCost := decimal.Zero
		if overage > 0 {
			price, priceErr := plan.OveragePriceFor(service)
			if priceErr != nil {
				return nil, fmt.Errorf("no overage price for %s: %w", service, priceErr)
			}
			overageCost = price.CostOf(overage)
		}

		summary.SetUsage(service, metering.ServiceUsage{
			Used:        total.Quantity,
			Limit:       quota.Included,
			Cost:        total.Cost,
			Overage:     overage,
			OverageCost: overageCost,
		})
	}

	if err := s.summaryRepo.Upsert(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to upsert summary: %w", err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, summary, s.cacheTTL); cacheErr != nil {
			s.logger.Warn("Failed to cache recomputed summary",
				zap.String("tenant_id", tenantID.String()),
				zap.String("period", metering.PeriodKey(period)),
				zap.Error(cacheErr))
		}
	}

	s.logger.Debug("Recomputed monthly summary",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", metering.PeriodKey(period)),
		zap.String("total_cost", summary.TotalCost.String()),
		zap.String("overage_cost", summary.TotalOverageCost.String()))

	return summary, nil
}

func recomputeKey(tenantID uuid.UUID, period time.Time) string {
	return tenantID.String() + ":" + metering.PeriodKey(period)
}
