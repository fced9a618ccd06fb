package metering

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Denial codes returned when admission is refused
const (
	DenialTenantInactive     = "TENANT_INACTIVE"
	DenialServiceNotIncluded = "SERVICE_NOT_INCLUDED"
	DenialLimitExceeded      = "LIMIT_EXCEEDED"
)

// Denial describes why an operation was refused. RetryAfterSeconds is set
// for quota exhaustion (the quota resets at the next period) and zero for
// refusals that waiting will not fix.
type Denial struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// Error implements the error interface
func (d *Denial) Error() string {
	return d.Message
}

// HTTPStatusCode maps the denial to its transport status
func (d *Denial) HTTPStatusCode() int {
	switch d.Code {
	case DenialLimitExceeded:
		return http.StatusTooManyRequests
	case DenialTenantInactive:
		return http.StatusForbidden
	default:
		return http.StatusPaymentRequired
	}
}

// Warning signals that usage crossed the soft threshold but the operation
// is still admitted
type Warning struct {
	Service    metering.Service `json:"service"`
	Used       int64            `json:"used"`
	Limit      int64            `json:"limit"`
	Percentage float64          `json:"percentage"`
	Message    string           `json:"message"`
}

// UsageSnapshot is the usage state the decision was based on
type UsageSnapshot struct {
	Service   metering.Service `json:"service"`
	Used      int64            `json:"used"`
	Limit     int64            `json:"limit"`
	Remaining int64            `json:"remaining"`
}

// AdmissionResult is the outcome of an admission check
type AdmissionResult struct {
	Allowed bool          `json:"allowed"`
	Usage   UsageSnapshot `json:"usage"`
	Warning *Warning      `json:"warning,omitempty"`
	Denial  *Denial       `json:"error,omitempty"`
}

// AdmissionService decides whether a tenant may perform a metered action.
// Checks run in order: tenant status, plan entitlement, quota headroom.
// Reads go through the summary cache when one is configured; a cache error
// degrades to the repository instead of refusing admission.
type AdmissionService struct {
	summaryRepo metering.MonthlySummaryRepository
	tenants     identity.TenantDirectory
	plans       metering.PlanDirectory
	cache       SummaryCache
	logger      *zap.Logger

	warningPercent float64
}

// AdmissionConfig contains configuration for AdmissionService
type AdmissionConfig struct {
	// WarningPercent is the soft threshold as a percentage of the quota
	WarningPercent float64
}

// DefaultAdmissionConfig returns default configuration
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		WarningPercent: 80.0,
	}
}

// NewAdmissionService creates a new AdmissionService
func NewAdmissionService(
	summaryRepo metering.MonthlySummaryRepository,
	tenants identity.TenantDirectory,
	plans metering.PlanDirectory,
	cache SummaryCache,
	logger *zap.Logger,
	config AdmissionConfig,
) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WarningPercent <= 0 {
		config.WarningPercent = DefaultAdmissionConfig().WarningPercent
	}
	return &AdmissionService{
		summaryRepo:    summaryRepo,
		tenants:        tenants,
		plans:          plans,
		cache:          cache,
		logger:         logger,
		warningPercent: config.WarningPercent,
	}
}

// CheckService decides whether one more discrete event (signature, sms,
// email) may be admitted. With requireExact the check demands headroom and
// refuses once the quota is fully consumed, so the admitted event is always
// within quota. Without it the check is lenient: a tenant sitting exactly at
// the limit is still admitted and only usage past the limit refuses. Lenient
// checks suit callers that tolerate one event of overshoot, such as
// fire-and-forget notification sends.
func (s *AdmissionService) CheckService(ctx context.Context, tenantID uuid.UUID, service metering.Service, requireExact bool) (*AdmissionResult, error) {
	rule := ruleAtLimitAdmits
	if requireExact {
		rule = ruleHeadroomRequired
	}
	return s.check(ctx, tenantID, service, 1, rule)
}

// CheckStorage decides whether an upload of the given size may be admitted.
// The incoming bytes are projected onto current usage, so a single oversized
// upload cannot blow far past the quota.
func (s *AdmissionService) CheckStorage(ctx context.Context, tenantID uuid.UUID, incomingBytes int64) (*AdmissionResult, error) {
	if incomingBytes < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Incoming bytes cannot be negative")
	}
	return s.check(ctx, tenantID, metering.ServiceStorage, incomingBytes, ruleProjected)
}

// CheckAI decides whether an AI request with the given token estimate may be
// admitted. Estimates are best effort; the actual consumption is logged
// afterwards and may differ.
func (s *AdmissionService) CheckAI(ctx context.Context, tenantID uuid.UUID, estimatedTokens int64) (*AdmissionResult, error) {
	if estimatedTokens < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Estimated tokens cannot be negative")
	}
	return s.check(ctx, tenantID, metering.ServiceAI, estimatedTokens, ruleProjected)
}

// quotaRule selects how the quota comparison treats usage at the boundary.
type quotaRule int

const (
	// ruleHeadroomRequired refuses once the quota is fully consumed
	ruleHeadroomRequired quotaRule = iota
	// ruleAtLimitAdmits refuses only after usage has passed the quota
	ruleAtLimitAdmits
	// ruleProjected refuses when usage plus the incoming amount would pass
	// the quota
	ruleProjected
)

// check runs the three admission checks in order: tenant status, plan
// entitlement, quota comparison under the given rule.
func (s *AdmissionService) check(ctx context.Context, tenantID uuid.UUID, service metering.Service, incoming int64, rule quotaRule) (*AdmissionResult, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !service.IsValid() {
		return nil, shared.NewDomainError("INVALID_SERVICE", "Unknown metered service: "+service.String())
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrTenantNotFound) {
			return nil, shared.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	if !tenant.IsActive() {
		return &AdmissionResult{
			Allowed: false,
			Usage:   UsageSnapshot{Service: service},
			Denial: &Denial{
				Code:    DenialTenantInactive,
				Message: fmt.Sprintf("Tenant account is %s", tenant.Status),
			},
		}, nil
	}

	usage, err := s.loadUsage(ctx, tenant, service)
	if err != nil {
		return nil, err
	}

	snapshot := UsageSnapshot{
		Service:   service,
		Used:      usage.Used,
		Limit:     usage.Limit,
		Remaining: usage.Remaining(),
	}

	if usage.Limit == 0 {
		return &AdmissionResult{
			Allowed: false,
			Usage:   snapshot,
			Denial: &Denial{
				Code:    DenialServiceNotIncluded,
				Message: fmt.Sprintf("%s is not included in the current plan", service.DisplayName()),
			},
		}, nil
	}

	exceeded := false
	switch rule {
	case ruleHeadroomRequired:
		exceeded = usage.Used >= usage.Limit
	case ruleAtLimitAdmits:
		exceeded = usage.Used > usage.Limit
	default:
		exceeded = usage.Used+incoming > usage.Limit
	}

	if exceeded {
		retryAfter := metering.SecondsUntilPeriodEnd(time.Now())
		s.logger.Info("Admission refused, quota exhausted",
			zap.String("tenant_id", tenantID.String()),
			zap.String("service", service.String()),
			zap.Int64("used", usage.Used),
			zap.Int64("limit", usage.Limit))
		return &AdmissionResult{
			Allowed: false,
			Usage:   snapshot,
			Denial: &Denial{
				Code: DenialLimitExceeded,
				Message: fmt.Sprintf(
					"%s quota exhausted: %s of %s used this month",
					service.DisplayName(),
					service.Unit().FormatValue(usage.Used),
					service.Unit().FormatValue(usage.Limit),
				),
				RetryAfterSeconds: retryAfter,
			},
		}, nil
	}

	result := &AdmissionResult{
		Allowed: true,
		Usage:   snapshot,
	}

	projected := metering.ServiceUsage{Used: usage.Used + incoming, Limit: usage.Limit}
	if pct := projected.Percentage(); pct >= s.warningPercent {
		result.Warning = &Warning{
			Service:    service,
			Used:       usage.Used,
			Limit:      usage.Limit,
			Percentage: pct,
			Message: fmt.Sprintf(
				"%s usage is at %.1f%% of the monthly quota",
				service.DisplayName(), pct,
			),
		}
	}

	return result, nil
}

// loadUsage resolves the current usage slice for one service: summary cache
// first, then the summary repository, then a plan-derived zero-usage slice
// when no events have been logged this period yet.
func (s *AdmissionService) loadUsage(ctx context.Context, tenant *identity.Tenant, service metering.Service) (metering.ServiceUsage, error) {
	period := metering.CurrentPeriod()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, tenant.ID, period)
		if err != nil {
			s.logger.Warn("Summary cache read failed, falling back to repository",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err))
		} else if cached != nil {
			return cached.Usage(service), nil
		}
	}

	summary, err := s.summaryRepo.FindByTenantAndPeriod(ctx, tenant.ID, period)
	if err == nil {
		return summary.Usage(service), nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return metering.ServiceUsage{}, fmt.Errorf("failed to load summary: %w", err)
	}

	// No events logged this period: derive the slice from the plan.
	plan, err := s.plans.FindByID(ctx, tenant.PlanID)
	if err != nil {
		return metering.ServiceUsage{}, fmt.Errorf("failed to resolve plan %q: %w", tenant.PlanID, err)
	}
	return metering.ServiceUsage{Used: 0, Limit: plan.QuotaFor(service).Included}, nil
}
