package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/propfolio/backend/internal/application/metering"
	"go.uber.org/zap"
)

// RetentionScheduler purges usage log entries past the retention window once
// per day. Summaries are never purged; only the raw log shrinks.
type RetentionScheduler struct {
	tracker   *metering.TrackerService
	logger    *zap.Logger
	config    RetentionSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// RetentionSchedulerConfig holds configuration for the retention scheduler
type RetentionSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Retention is how long usage log entries are kept
	Retention time.Duration

	// PurgeHour is the hour (0-23) when the daily purge runs
	PurgeHour int

	// PurgeTimeout is the maximum time for one purge run
	PurgeTimeout time.Duration
}

// DefaultRetentionSchedulerConfig returns default configuration. Thirteen
// months keeps a full year of history plus the open month.
func DefaultRetentionSchedulerConfig() RetentionSchedulerConfig {
	return RetentionSchedulerConfig{
		Enabled:      true,
		Retention:    13 * 30 * 24 * time.Hour,
		PurgeHour:    3,
		PurgeTimeout: 15 * time.Minute,
	}
}

// NewRetentionScheduler creates a new retention scheduler
func NewRetentionScheduler(
	tracker *metering.TrackerService,
	logger *zap.Logger,
	config RetentionSchedulerConfig,
) *RetentionScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionScheduler{
		tracker: tracker,
		logger:  logger,
		config:  config,
	}
}

// Start starts the retention scheduler
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Retention scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Retention scheduler started",
		zap.Duration("retention", s.config.Retention),
		zap.Int("purge_hour", s.config.PurgeHour))

	return nil
}

// Stop gracefully stops the scheduler
func (s *RetentionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Retention scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Retention scheduler stop timed out")
		return ctx.Err()
	}
}

// run executes the purge once per day at the configured hour
func (s *RetentionScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now()
		nextRun := time.Date(now.Year(), now.Month(), now.Day(), s.config.PurgeHour, 0, 0, 0, now.Location())
		if now.After(nextRun) {
			nextRun = nextRun.Add(24 * time.Hour)
		}
		delay := time.Until(nextRun)

		s.logger.Info("Usage log purge scheduled",
			zap.Time("next_run", nextRun),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			s.logger.Debug("Retention loop stopping")
			return
		case <-time.After(delay):
			s.executePurge(ctx)
		}
	}
}

// executePurge deletes log entries older than the retention window
func (s *RetentionScheduler) executePurge(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, s.config.PurgeTimeout)
	defer cancel()

	cutoff := time.Now().Add(-s.config.Retention)
	startTime := time.Now()
	deleted, err := s.tracker.PurgeOlderThan(purgeCtx, cutoff)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Usage log purge failed",
			zap.Time("cutoff", cutoff),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}

	s.logger.Info("Usage log purge completed",
		zap.Time("cutoff", cutoff),
		zap.Duration("duration", duration),
		zap.Int64("deleted_count", deleted))
}

// TriggerImmediatePurge triggers one purge run outside the daily schedule
func (s *RetentionScheduler) TriggerImmediatePurge(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate usage log purge")

	go func() {
		defer s.wg.Done()
		s.executePurge(ctx)
	}()

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
