package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// AlertService scans monthly summaries for quota threshold crossings and
// dispatches alerts. An AlertRecord is written only after every configured
// channel delivered, so a failed dispatch is retried on the next sweep and
// the dedup window keeps retries from spamming the tenant.
type AlertService struct {
	summaryRepo metering.MonthlySummaryRepository
	tenants     identity.TenantDirectory
	alertRepo   billing.AlertRecordRepository
	notifRepo   billing.NotificationRepository
	mailer      AlertMailer
	logger      *zap.Logger

	dedupWindow time.Duration
	workerCount int
}

// AlertConfig contains configuration for AlertService
type AlertConfig struct {
	// DedupWindow suppresses re-sending an identical alert within this window
	DedupWindow time.Duration

	// WorkerCount bounds how many tenants are evaluated concurrently
	WorkerCount int
}

// DefaultAlertConfig returns default configuration
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		DedupWindow: 24 * time.Hour,
		WorkerCount: 8,
	}
}

// NewAlertService creates a new AlertService. The mailer is optional; a nil
// mailer limits dispatch to in-app notifications.
func NewAlertService(
	summaryRepo metering.MonthlySummaryRepository,
	tenants identity.TenantDirectory,
	alertRepo billing.AlertRecordRepository,
	notifRepo billing.NotificationRepository,
	mailer AlertMailer,
	logger *zap.Logger,
	config AlertConfig,
) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DedupWindow <= 0 {
		config.DedupWindow = DefaultAlertConfig().DedupWindow
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultAlertConfig().WorkerCount
	}
	return &AlertService{
		summaryRepo: summaryRepo,
		tenants:     tenants,
		alertRepo:   alertRepo,
		notifRepo:   notifRepo,
		mailer:      mailer,
		logger:      logger,
		dedupWindow: config.DedupWindow,
		workerCount: config.WorkerCount,
	}
}

// TenantError records one tenant's failure during a sweep
type TenantError struct {
	TenantID uuid.UUID
	Err      error
}

// SweepResult summarizes one alert sweep pass
type SweepResult struct {
	TenantsChecked int
	AlertsSent     int
	Errors         []TenantError
}

// CheckAllTenants evaluates every active tenant's current-period summary.
// Tenants are processed by a bounded pool; one tenant's failure is recorded
// in the result and never aborts the sweep.
func (s *AlertService) CheckAllTenants(ctx context.Context) (*SweepResult, error) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}

	result := &SweepResult{TenantsChecked: len(tenants)}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workerCount)
	)

	for _, tenant := range tenants {
		wg.Add(1)
		sem <- struct{}{}
		go func(tenant *identity.Tenant) {
			defer wg.Done()
			defer func() { <-sem }()

			sent, checkErr := s.CheckTenant(ctx, tenant)

			mu.Lock()
			defer mu.Unlock()
			result.AlertsSent += sent
			if checkErr != nil {
				result.Errors = append(result.Errors, TenantError{TenantID: tenant.ID, Err: checkErr})
			}
		}(tenant)
	}
	wg.Wait()

	s.logger.Info("Alert sweep finished",
		zap.Int("tenants_checked", result.TenantsChecked),
		zap.Int("alerts_sent", result.AlertsSent),
		zap.Int("errors", len(result.Errors)))

	return result, nil
}

// CheckTenant evaluates one tenant's current-period summary and dispatches
// any due threshold alerts. Returns how many alerts were sent.
func (s *AlertService) CheckTenant(ctx context.Context, tenant *identity.Tenant) (int, error) {
	period := metering.CurrentPeriod()

	summary, err := s.summaryRepo.FindByTenantAndPeriod(ctx, tenant.ID, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// No usage logged this period, nothing to alert on.
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load summary: %w", err)
	}

	sent := 0
	var firstErr error

	for _, service := range metering.AllServices() {
		usage, ok := summary.Services[service]
		if !ok || usage.Limit <= 0 {
			continue
		}

		threshold, crossed := billing.ClassifyUsage(usage.Percentage())
		if !crossed {
			continue
		}

		dispatched, dispatchErr := s.dispatch(ctx, tenant, service, threshold, usage, period)
		if dispatchErr != nil {
			s.logger.Error("Failed to dispatch threshold alert",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("service", service.String()),
				zap.Int("threshold", int(threshold)),
				zap.Error(dispatchErr))
			if firstErr == nil {
				firstErr = dispatchErr
			}
			continue
		}
		if dispatched {
			sent++
		}
	}

	return sent, firstErr
}

// dispatch sends one alert over the configured channels and records it.
// Returns false without error when the dedup window suppressed the alert.
func (s *AlertService) dispatch(
	ctx context.Context,
	tenant *identity.Tenant,
	service metering.Service,
	threshold billing.AlertThreshold,
	usage metering.ServiceUsage,
	period time.Time,
) (bool, error) {
	since := time.Now().Add(-s.dedupWindow)
	exists, err := s.alertRepo.ExistsWithin(ctx, tenant.ID, service, threshold, period, since)
	if err != nil {
		return false, fmt.Errorf("failed to check alert history: %w", err)
	}
	if exists {
		return false, nil
	}

	// Email goes out first. A failed send leaves neither the in-app row nor
	// the AlertRecord behind, so the next sweep retries the whole dispatch
	// instead of stacking duplicate notifications.
	if s.mailer != nil && tenant.BillingEmail != "" {
		alert := UsageAlert{
			Tenant:    tenant,
			Service:   service,
			Threshold: threshold,
			Usage:     usage,
			Period:    metering.PeriodKey(period),
		}
		if err := s.mailer.SendUsageAlert(ctx, alert); err != nil {
			return false, fmt.Errorf("failed to send alert email: %w", err)
		}
	} else if tenant.BillingEmail == "" {
		s.logger.Warn("Tenant has no billing email, alert limited to in-app",
			zap.String("tenant_id", tenant.ID.String()))
	}

	notification := buildNotification(tenant.ID, service, threshold, usage)
	if err := s.notifRepo.Save(ctx, notification); err != nil {
		return false, fmt.Errorf("failed to save in-app notification: %w", err)
	}

	record, err := billing.NewAlertRecord(tenant.ID, service, threshold, period)
	if err != nil {
		return false, err
	}
	if err := s.alertRepo.Save(ctx, record); err != nil {
		return false, fmt.Errorf("failed to record dispatched alert: %w", err)
	}

	s.logger.Info("Dispatched threshold alert",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("service", service.String()),
		zap.Int("threshold", int(threshold)),
		zap.Float64("percentage", usage.Percentage()))

	return true, nil
}

// buildNotification renders the in-app notification for a threshold crossing
func buildNotification(tenantID uuid.UUID, service metering.Service, threshold billing.AlertThreshold, usage metering.ServiceUsage) *billing.Notification {
	kind := billing.NotificationUsageWarning
	title := fmt.Sprintf("%s usage at %.0f%% of your monthly quota", service.DisplayName(), usage.Percentage())
	if threshold == billing.ThresholdCritical {
		kind = billing.NotificationUsageLimit
		title = fmt.Sprintf("%s monthly quota reached", service.DisplayName())
	}

	body := fmt.Sprintf(
		"You have used %s of your %s quota this month. Additional usage is billed at your plan's overage rate.",
		service.Unit().FormatValue(usage.Used),
		service.Unit().FormatValue(usage.Limit),
	)

	return billing.NewNotification(tenantID, kind, title, body)
}
