package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/propfolio/backend/internal/application/settlement"
	"github.com/propfolio/backend/internal/domain/metering"
	"go.uber.org/zap"
)

// SettlementScheduler periodically settles the previous billing period. The
// settlement itself is idempotent, so checking more often than once per month
// is safe; the interval only bounds how soon after month rollover invoices
// go out.
type SettlementScheduler struct {
	service   *settlement.SettlementService
	logger    *zap.Logger
	config    SettlementSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// SettlementSchedulerConfig holds configuration for the settlement scheduler
type SettlementSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// CheckInterval is how often the previous period is (re)settled
	CheckInterval time.Duration

	// SettleTimeout is the maximum time for one settlement run
	SettleTimeout time.Duration
}

// DefaultSettlementSchedulerConfig returns default configuration
func DefaultSettlementSchedulerConfig() SettlementSchedulerConfig {
	return SettlementSchedulerConfig{
		Enabled:       true,
		CheckInterval: 6 * time.Hour,
		SettleTimeout: 30 * time.Minute,
	}
}

// NewSettlementScheduler creates a new settlement scheduler
func NewSettlementScheduler(
	service *settlement.SettlementService,
	logger *zap.Logger,
	config SettlementSchedulerConfig,
) *SettlementScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementScheduler{
		service: service,
		logger:  logger,
		config:  config,
	}
}

// Start starts the settlement scheduler
func (s *SettlementScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Settlement scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Settlement scheduler started",
		zap.Duration("check_interval", s.config.CheckInterval))

	return nil
}

// Stop gracefully stops the scheduler
func (s *SettlementScheduler) Stop(ctx context.Context) error {
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
		s.logger.Info("Settlement scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Settlement scheduler stop timed out")
		return ctx.Err()
	}
}

// run executes the settlement check on a fixed interval until the context is
// cancelled
func (s *SettlementScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Settlement loop stopping")
			return
		case <-ticker.C:
			s.executeSettlement(ctx)
		}
	}
}

// executeSettlement settles the previous period once
func (s *SettlementScheduler) executeSettlement(ctx context.Context) {
	settleCtx, cancel := context.WithTimeout(ctx, s.config.SettleTimeout)
	defer cancel()

	period := metering.PreviousPeriod(time.Now())
	startTime := time.Now()
	report, err := s.service.SettlePreviousPeriod(settleCtx)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Overage settlement failed",
			zap.String("period", metering.PeriodKey(period)),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}

	s.logger.Info("Overage settlement completed",
		zap.String("period", metering.PeriodKey(period)),
		zap.Duration("duration", duration),
		zap.Int("summaries_seen", report.SummariesSeen),
		zap.Int("invoices_created", report.InvoicesCreated),
		zap.String("total_invoiced", report.TotalInvoiced.String()),
		zap.Int("skipped", report.Skipped),
		zap.Int("tenant_errors", len(report.Errors)))
}

// TriggerImmediateSettlement triggers one settlement run outside the regular
// interval
func (s *SettlementScheduler) TriggerImmediateSettlement(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate overage settlement")

	go func() {
		defer s.wg.Done()
		s.executeSettlement(ctx)
	}()

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *SettlementScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
