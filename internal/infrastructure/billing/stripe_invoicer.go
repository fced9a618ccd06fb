package billing

import (
	"context"
	"fmt"

	"github.com/propfolio/backend/internal/application/settlement"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/invoice"
	"github.com/stripe/stripe-go/v81/invoiceitem"
	"go.uber.org/zap"
)

// StripeInvoicer implements overage settlement against the Stripe API. Every
// Stripe call carries an idempotency key derived from the tenant and settled
// period, so a retried settlement reuses the invoice Stripe already created
// instead of billing the tenant twice.
type StripeInvoicer struct {
	config *StripeConfig
	logger *zap.Logger
}

// NewStripeInvoicer creates a new Stripe invoicer
func NewStripeInvoicer(config *StripeConfig, logger *zap.Logger) (*StripeInvoicer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.InitStripeClient()

	if logger == nil {
		logger = zap.NewNop()
	}

	return &StripeInvoicer{
		config: config,
		logger: logger,
	}, nil
}

// CreateOverageInvoice creates and finalizes an invoice, returning the
// Stripe invoice id
func (i *StripeInvoicer) CreateOverageInvoice(ctx context.Context, req settlement.InvoiceRequest) (string, error) {
	periodKey := metering.PeriodKey(req.Period)
	keyBase := fmt.Sprintf("overage:%s:%s", req.TenantID, periodKey)

	i.logger.Debug("Creating Stripe overage invoice",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("customer_id", req.CustomerID),
		zap.String("period", periodKey))

	currency := req.Currency
	if currency == "" {
		currency = i.config.DefaultCurrency
	}

	// Pending invoice items first; the invoice created below collects them
	for _, line := range req.Lines {
		itemParams := &stripe.InvoiceItemParams{
			Customer:    stripe.String(req.CustomerID),
			Currency:    stripe.String(currency),
			Amount:      stripe.Int64(toMinorUnits(line.Amount)),
			Description: stripe.String(line.Description),
		}
		itemParams.Metadata = map[string]string{
			"tenant_id": req.TenantID.String(),
			"period":    periodKey,
			"service":   string(line.Service),
		}
		itemParams.SetIdempotencyKey(keyBase + ":" + string(line.Service))

		if _, err := invoiceitem.New(itemParams); err != nil {
			i.logger.Error("Failed to create Stripe invoice item",
				zap.String("tenant_id", req.TenantID.String()),
				zap.String("service", string(line.Service)),
				zap.Error(err))
			return "", fmt.Errorf("stripe: failed to create invoice item: %w", err)
		}
	}

	daysUntilDue := int64(req.DueIn.Hours() / 24)
	if daysUntilDue < 1 {
		daysUntilDue = 1
	}

	invoiceParams := &stripe.InvoiceParams{
		Customer:                    stripe.String(req.CustomerID),
		Currency:                    stripe.String(currency),
		CollectionMethod:            stripe.String("send_invoice"),
		DaysUntilDue:                stripe.Int64(daysUntilDue),
		PendingInvoiceItemsBehavior: stripe.String("include"),
		AutoAdvance:                 stripe.Bool(true),
	}
	invoiceParams.Metadata = map[string]string{
		"tenant_id": req.TenantID.String(),
		"period":    periodKey,
		"kind":      "usage_overage",
	}
	invoiceParams.SetIdempotencyKey(keyBase)

	inv, err := invoice.New(invoiceParams)
	if err != nil {
		i.logger.Error("Failed to create Stripe invoice",
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("customer_id", req.CustomerID),
			zap.Error(err))
		return "", fmt.Errorf("stripe: failed to create invoice: %w", err)
	}

	finalizeParams := &stripe.InvoiceFinalizeInvoiceParams{}
	finalizeParams.SetIdempotencyKey(keyBase + ":finalize")

	finalized, err := invoice.FinalizeInvoice(inv.ID, finalizeParams)
	if err != nil {
		i.logger.Error("Failed to finalize Stripe invoice",
			zap.String("invoice_id", inv.ID),
			zap.Error(err))
		return "", fmt.Errorf("stripe: failed to finalize invoice: %w", err)
	}

	i.logger.Info("Created Stripe overage invoice",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("invoice_id", finalized.ID),
		zap.String("period", periodKey),
		zap.Int64("amount_due", finalized.AmountDue))

	return finalized.ID, nil
}

// toMinorUnits converts a decimal major-unit amount to the integer minor
// units (cents) Stripe expects
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Ensure StripeInvoicer implements PaymentProcessor
var _ settlement.PaymentProcessor = (*StripeInvoicer)(nil)
