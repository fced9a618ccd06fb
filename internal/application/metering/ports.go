package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/metering"
)

// SummaryCache caches monthly summaries for the admission-control hot path.
// Implementations live in infrastructure/cache (Redis for distributed
// deployments, in-memory for single instances and tests).
type SummaryCache interface {
	// Get retrieves a cached summary; (nil, nil) on a cache miss
	Get(ctx context.Context, tenantID uuid.UUID, period time.Time) (*metering.MonthlySummary, error)

	// Set caches a summary with a TTL
	Set(ctx context.Context, summary *metering.MonthlySummary, ttl time.Duration) error

	// Invalidate removes a cached summary
	Invalidate(ctx context.Context, tenantID uuid.UUID, period time.Time) error
}
