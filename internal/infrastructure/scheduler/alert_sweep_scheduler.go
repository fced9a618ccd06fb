package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/propfolio/backend/internal/application/alerting"
	"go.uber.org/zap"
)

// AlertSweepScheduler periodically runs the threshold alert sweep across all
// active tenants
type AlertSweepScheduler struct {
	service   *alerting.AlertService
	logger    *zap.Logger
	config    AlertSweepSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// AlertSweepSchedulerConfig holds configuration for the alert sweep scheduler
type AlertSweepSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// SweepInterval is how often the sweep runs
	SweepInterval time.Duration

	// SweepTimeout is the maximum time for one sweep run
	SweepTimeout time.Duration
}

// DefaultAlertSweepSchedulerConfig returns default configuration
func DefaultAlertSweepSchedulerConfig() AlertSweepSchedulerConfig {
	return AlertSweepSchedulerConfig{
		Enabled:       true,
		SweepInterval: time.Hour,
		SweepTimeout:  15 * time.Minute,
	}
}

// NewAlertSweepScheduler creates a new alert sweep scheduler
func NewAlertSweepScheduler(
	service *alerting.AlertService,
	logger *zap.Logger,
	config AlertSweepSchedulerConfig,
) *AlertSweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertSweepScheduler{
		service: service,
		logger:  logger,
		config:  config,
	}
}

// Start starts the alert sweep scheduler
func (s *AlertSweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Alert sweep scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Alert sweep scheduler started",
		zap.Duration("sweep_interval", s.config.SweepInterval))

	return nil
}

// Stop gracefully stops the scheduler
func (s *AlertSweepScheduler) Stop(ctx context.Context) error {
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
		s.logger.Info("Alert sweep scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Alert sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// run executes the sweep on a fixed interval until the context is cancelled
func (s *AlertSweepScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Alert sweep loop stopping")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

// executeSweep runs one sweep across all active tenants
func (s *AlertSweepScheduler) executeSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	startTime := time.Now()
	result, err := s.service.CheckAllTenants(sweepCtx)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Threshold alert sweep failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}

	s.logger.Info("Threshold alert sweep completed",
		zap.Duration("duration", duration),
		zap.Int("tenants_checked", result.TenantsChecked),
		zap.Int("alerts_sent", result.AlertsSent),
		zap.Int("tenant_errors", len(result.Errors)))
}

// TriggerImmediateSweep triggers one sweep outside the regular interval
func (s *AlertSweepScheduler) TriggerImmediateSweep(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate threshold alert sweep")

	go func() {
		defer s.wg.Done()
		s.executeSweep(ctx)
	}()

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *AlertSweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
