package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// PaymentWebhookService applies payment processor webhook events to local
// overage invoice records. Invoices are matched through the tenant and
// period metadata stamped on them at creation time.
type PaymentWebhookService struct {
	webhookSecret string
	invoices      billing.OverageInvoiceRepository
	logger        *zap.Logger
}

// NewPaymentWebhookService creates a new PaymentWebhookService
func NewPaymentWebhookService(
	webhookSecret string,
	invoices billing.OverageInvoiceRepository,
	logger *zap.Logger,
) *PaymentWebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentWebhookService{
		webhookSecret: webhookSecret,
		invoices:      invoices,
		logger:        logger,
	}
}

// WebhookResult contains the result of processing a webhook event
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies and applies one webhook event. A nil result means
// the signature did not verify; callers should answer 401.
func (s *PaymentWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		s.logger.Error("Webhook signature verification failed", zap.Error(err))
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	s.logger.Info("Processing payment webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	switch event.Type {
	case "invoice.paid":
		err = s.handleInvoiceStatus(ctx, event, billing.InvoiceStatusPaid)
	case "invoice.payment_failed":
		err = s.handleInvoiceStatus(ctx, event, billing.InvoiceStatusFailed)
	default:
		result.Message = "Event type not handled"
	}

	if err != nil {
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	return result, nil
}

// handleInvoiceStatus records the externally observed payment outcome on the
// matching local invoice. Events for invoices this engine did not create, or
// for records already purged, are acknowledged without effect so the
// processor stops retrying them.
func (s *PaymentWebhookService) handleInvoiceStatus(ctx context.Context, event stripe.Event, status billing.InvoiceStatus) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if inv.Metadata["kind"] != "usage_overage" {
		s.logger.Debug("Ignoring non-overage invoice event",
			zap.String("invoice_id", inv.ID))
		return nil
	}

	tenantID, err := uuid.Parse(inv.Metadata["tenant_id"])
	if err != nil {
		s.logger.Warn("Overage invoice event without a valid tenant_id",
			zap.String("invoice_id", inv.ID))
		return nil
	}

	periodValue, err := time.Parse("2006-01", inv.Metadata["period"])
	if err != nil {
		s.logger.Warn("Overage invoice event without a valid period",
			zap.String("invoice_id", inv.ID))
		return nil
	}
	period := metering.PeriodOf(periodValue)

	record, err := s.invoices.FindByTenantAndPeriod(ctx, tenantID, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("No local invoice for webhook event",
				zap.String("tenant_id", tenantID.String()),
				zap.String("period", metering.PeriodKey(period)))
			return nil
		}
		return fmt.Errorf("failed to resolve local invoice: %w", err)
	}

	if err := s.invoices.UpdateStatus(ctx, record.ID, status); err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}

	s.logger.Info("Updated overage invoice status",
		zap.String("tenant_id", tenantID.String()),
		zap.String("period", metering.PeriodKey(period)),
		zap.String("status", string(status)))

	return nil
}
