package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/metering"
	"go.uber.org/zap"
)

// TrackerService is the single write path into the usage log. Every billable
// action flows through TrackUsage, which appends an immutable log entry and
// then refreshes the monthly summary for the event's period.
type TrackerService struct {
	logRepo    metering.UsageLogRepository
	aggregator *AggregatorService
	logger     *zap.Logger
}

// NewTrackerService creates a new TrackerService
func NewTrackerService(
	logRepo metering.UsageLogRepository,
	aggregator *AggregatorService,
	logger *zap.Logger,
) *TrackerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackerService{
		logRepo:    logRepo,
		aggregator: aggregator,
		logger:     logger,
	}
}

// TrackUsage appends a usage log entry for the event and recomputes the
// affected monthly summary. The log append is the source of truth; a failed
// recompute leaves the entry in place and is surfaced as an error so callers
// can retry the recompute without re-logging.
func (s *TrackerService) TrackUsage(ctx context.Context, event metering.UsageEvent) (*metering.UsageLogEntry, error) {
	entry, err := metering.NewUsageLogEntry(event)
	if err != nil {
		return nil, err
	}

	if err := s.logRepo.Save(ctx, entry); err != nil {
		s.logger.Error("Failed to save usage log entry",
			zap.String("tenant_id", entry.TenantID.String()),
			zap.String("service", entry.Service.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to save usage log entry: %w", err)
	}

	if _, err := s.aggregator.Recompute(ctx, entry.TenantID, entry.Period); err != nil {
		s.logger.Error("Usage logged but summary recompute failed",
			zap.String("tenant_id", entry.TenantID.String()),
			zap.String("entry_id", entry.ID.String()),
			zap.String("period", metering.PeriodKey(entry.Period)),
			zap.Error(err))
		return nil, fmt.Errorf("usage logged but summary recompute failed: %w", err)
	}

	s.logger.Info("Tracked usage",
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("service", entry.Service.String()),
		zap.String("variant", entry.Variant),
		zap.Int64("quantity", entry.Quantity),
		zap.String("cost", entry.Cost.String()))

	return entry, nil
}

// TrackSignature records one signature request of the given variant
func (s *TrackerService) TrackSignature(ctx context.Context, tenantID uuid.UUID, variant, sourceType, sourceID string) (*metering.UsageLogEntry, error) {
	return s.TrackUsage(ctx, metering.UsageEvent{
		TenantID:   tenantID,
		Service:    metering.ServiceSignature,
		Variant:    variant,
		Quantity:   1,
		SourceType: sourceType,
		SourceID:   sourceID,
	})
}

// TrackSMS records one outbound SMS
func (s *TrackerService) TrackSMS(ctx context.Context, tenantID uuid.UUID, sourceType, sourceID string) (*metering.UsageLogEntry, error) {
	return s.TrackUsage(ctx, metering.UsageEvent{
		TenantID:   tenantID,
		Service:    metering.ServiceSMS,
		Quantity:   1,
		SourceType: sourceType,
		SourceID:   sourceID,
	})
}

// TrackEmail records one outbound transactional email
func (s *TrackerService) TrackEmail(ctx context.Context, tenantID uuid.UUID, sourceType, sourceID string) (*metering.UsageLogEntry, error) {
	return s.TrackUsage(ctx, metering.UsageEvent{
		TenantID:   tenantID,
		Service:    metering.ServiceEmail,
		Quantity:   1,
		SourceType: sourceType,
		SourceID:   sourceID,
	})
}

// TrackStorage records a storage delta in bytes
func (s *TrackerService) TrackStorage(ctx context.Context, tenantID uuid.UUID, bytes int64, sourceType, sourceID string) (*metering.UsageLogEntry, error) {
	return s.TrackUsage(ctx, metering.UsageEvent{
		TenantID:   tenantID,
		Service:    metering.ServiceStorage,
		Quantity:   bytes,
		SourceType: sourceType,
		SourceID:   sourceID,
	})
}

// TrackAITokens records consumed AI tokens
func (s *TrackerService) TrackAITokens(ctx context.Context, tenantID uuid.UUID, tokens int64, sourceType, sourceID string) (*metering.UsageLogEntry, error) {
	return s.TrackUsage(ctx, metering.UsageEvent{
		TenantID:   tenantID,
		Service:    metering.ServiceAI,
		Quantity:   tokens,
		SourceType: sourceType,
		SourceID:   sourceID,
	})
}

// PurgeOlderThan removes log entries recorded before the cutoff. Summaries
// for purged periods are kept; they remain the billing record.
func (s *TrackerService) PurgeOlderThan(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := s.logRepo.DeleteOlderThan(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge usage log: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Purged usage log entries",
			zap.Int64("deleted", deleted),
			zap.Time("before", before))
	}
	return deleted, nil
}
