package settlement

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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementService turns a closed period's overages into invoices with the
// external payment processor. Settlement is idempotent per (tenant, period):
// a pre-check, the invoice table's unique key and the processor's idempotency
// keys each independently prevent double billing, so the sweep can be rerun
// after partial failures.
type SettlementService struct {
	summaryRepo metering.MonthlySummaryRepository
	tenants     identity.TenantDirectory
	plans       metering.PlanDirectory
	invoiceRepo billing.OverageInvoiceRepository
	notifRepo   billing.NotificationRepository
	processor   PaymentProcessor
	mailer      ReceiptMailer
	logger      *zap.Logger

	dueIn       time.Duration
	workerCount int
}

// SettlementConfig contains configuration for SettlementService
type SettlementConfig struct {
	// DueIn is the payment term applied to created invoices
	DueIn time.Duration

	// WorkerCount bounds how many tenants are settled concurrently
	WorkerCount int
}

// DefaultSettlementConfig returns default configuration
func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		DueIn:       14 * 24 * time.Hour,
		WorkerCount: 4,
	}
}

// NewSettlementService creates a new SettlementService. The mailer is
// optional; a nil mailer skips receipt emails.
func NewSettlementService(
	summaryRepo metering.MonthlySummaryRepository,
	tenants identity.TenantDirectory,
	plans metering.PlanDirectory,
	invoiceRepo billing.OverageInvoiceRepository,
	notifRepo billing.NotificationRepository,
	processor PaymentProcessor,
	mailer ReceiptMailer,
	logger *zap.Logger,
	config SettlementConfig,
) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DueIn <= 0 {
		config.DueIn = DefaultSettlementConfig().DueIn
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultSettlementConfig().WorkerCount
	}
	return &SettlementService{
		summaryRepo: summaryRepo,
		tenants:     tenants,
		plans:       plans,
		invoiceRepo: invoiceRepo,
		notifRepo:   notifRepo,
		processor:   processor,
		mailer:      mailer,
		logger:      logger,
		dueIn:       config.DueIn,
		workerCount: config.WorkerCount,
	}
}

// TenantError records one tenant's failure during a settlement sweep
type TenantError struct {
	TenantID uuid.UUID
	Err      error
}

// SettlementReport summarizes one settlement sweep
type SettlementReport struct {
	Period          time.Time
	SummariesSeen   int
	InvoicesCreated int
	TotalInvoiced   decimal.Decimal
	Skipped         int
	Errors          []TenantError
}

// SettlePreviousPeriod settles the period before the one containing now.
// This is what the monthly scheduler invokes shortly after rollover.
func (s *SettlementService) SettlePreviousPeriod(ctx context.Context) (*SettlementReport, error) {
	return s.SettlePeriod(ctx, metering.PreviousPeriod(time.Now()))
}

// SettlePeriod settles all overages of one closed period. Tenants are
// processed by a bounded pool; one tenant's failure is recorded in the
// report and never aborts the sweep.
func (s *SettlementService) SettlePeriod(ctx context.Context, period time.Time) (*SettlementReport, error) {
	period = metering.PeriodOf(period)

	summaries, err := s.summaryRepo.ListByPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries for %s: %w", metering.PeriodKey(period), err)
	}

	report := &SettlementReport{
		Period:        period,
		SummariesSeen: len(summaries),
		TotalInvoiced: decimal.Zero,
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workerCount)
	)

	for _, summary := range summaries {
		wg.Add(1)
		sem <- struct{}{}
		go func(summary *metering.MonthlySummary) {
			defer wg.Done()
			defer func() { <-sem }()

			invoice, settleErr := s.settleTenant(ctx, summary)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case settleErr != nil:
				report.Errors = append(report.Errors, TenantError{TenantID: summary.TenantID, Err: settleErr})
			case invoice == nil:
				report.Skipped++
			default:
				report.InvoicesCreated++
				report.TotalInvoiced = report.TotalInvoiced.Add(invoice.Amount)
			}
		}(summary)
	}
	wg.Wait()

	s.logger.Info("Settlement sweep finished",
		zap.String("period", metering.PeriodKey(period)),
		zap.Int("summaries", report.SummariesSeen),
		zap.Int("invoices_created", report.InvoicesCreated),
		zap.String("total_invoiced", report.TotalInvoiced.String()),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)))

	return report, nil
}

// settleTenant settles one tenant's summary. A nil invoice with nil error
// means the tenant was skipped (no overage, no payment customer, or already
// settled).
func (s *SettlementService) settleTenant(ctx context.Context, summary *metering.MonthlySummary) (*billing.OverageInvoice, error) {
	if !summary.HasOverage() || summary.TotalOverageCost.Sign() <= 0 {
		return nil, nil
	}

	periodKey := metering.PeriodKey(summary.Period)

	tenant, err := s.tenants.FindByID(ctx, summary.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	if !tenant.HasPaymentCustomer() {
		s.logger.Warn("Tenant has overage but no payment customer, skipping",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("period", periodKey),
			zap.String("overage_cost", summary.TotalOverageCost.String()))
		return nil, nil
	}

	// Pre-check before talking to the processor. The unique key on the
	// invoice table backs this up against concurrent sweeps.
	if _, err := s.invoiceRepo.FindByTenantAndPeriod(ctx, tenant.ID, summary.Period); err == nil {
		s.logger.Debug("Period already settled for tenant",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("period", periodKey))
		return nil, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing invoice: %w", err)
	}

	lines, err := s.buildLines(ctx, summary)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	externalID, err := s.processor.CreateOverageInvoice(ctx, InvoiceRequest{
		CustomerID: tenant.PaymentCustomerID,
		TenantID:   tenant.ID,
		Period:     summary.Period,
		Lines:      lines,
		Currency:   summary.Currency,
		DueIn:      s.dueIn,
	})
	if err != nil {
		return nil, fmt.Errorf("payment processor rejected invoice: %w", err)
	}

	invoice, err := billing.NewOverageInvoice(tenant.ID, summary.Period, externalID, lines, s.dueIn)
	if err != nil {
		return nil, err
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// A concurrent sweep won the race after our pre-check. The
			// processor side is idempotent, so nothing was double-billed.
			s.logger.Warn("Concurrent settlement detected, keeping existing invoice",
				zap.String("tenant_id", tenant.ID.String()),
				zap.String("period", periodKey))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to persist invoice record: %w", err)
	}

	s.notifyTenant(ctx, tenant, invoice, periodKey)

	s.logger.Info("Created overage invoice",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("period", periodKey),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("external_invoice_id", externalID),
		zap.String("amount", invoice.Amount.String()))

	return invoice, nil
}

// buildLines turns a summary's overages into invoice lines, one per service
func (s *SettlementService) buildLines(ctx context.Context, summary *metering.MonthlySummary) ([]billing.InvoiceLine, error) {
	plan, err := s.plans.FindByID(ctx, summary.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan %q: %w", summary.PlanID, err)
	}

	periodKey := metering.PeriodKey(summary.Period)
	var lines []billing.InvoiceLine

	for _, service := range metering.AllServices() {
		usage, ok := summary.Services[service]
		if !ok || usage.Overage <= 0 || usage.OverageCost.Sign() <= 0 {
			continue
		}

		price, err := plan.OveragePriceFor(service)
		if err != nil {
			return nil, fmt.Errorf("no overage price for %s: %w", service, err)
		}

		lines = append(lines, billing.InvoiceLine{
			Service: service,
			Description: fmt.Sprintf("%s overage for %s (%s beyond plan quota)",
				service.DisplayName(), periodKey, service.Unit().FormatValue(usage.Overage)),
			Quantity:  usage.Overage,
			UnitPrice: price.Amount,
			Amount:    usage.OverageCost,
		})
	}

	return lines, nil
}

// notifyTenant dispatches the receipt. Notification failures are logged and
// never unwind the settlement; the invoice already exists on both sides.
func (s *SettlementService) notifyTenant(ctx context.Context, tenant *identity.Tenant, invoice *billing.OverageInvoice, periodKey string) {
	notification := billing.NewNotification(
		tenant.ID,
		billing.NotificationOverageReceipt,
		fmt.Sprintf("Overage invoice for %s", periodKey),
		fmt.Sprintf("Your usage beyond the plan quota in %s was invoiced at %s %s.",
			periodKey, invoice.Amount.StringFixed(2), invoice.Currency),
	)
	if err := s.notifRepo.Save(ctx, notification); err != nil {
		s.logger.Error("Failed to save overage receipt notification",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err))
	}

	if s.mailer == nil {
		return
	}
	if tenant.BillingEmail == "" {
		s.logger.Warn("Tenant has no billing email, receipt limited to in-app",
			zap.String("tenant_id", tenant.ID.String()))
		return
	}
	receipt := OverageReceipt{
		Tenant:  tenant,
		Invoice: invoice,
		Period:  periodKey,
		Total:   invoice.Amount,
	}
	if err := s.mailer.SendOverageReceipt(ctx, receipt); err != nil {
		s.logger.Error("Failed to send overage receipt email",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err))
	}
}
