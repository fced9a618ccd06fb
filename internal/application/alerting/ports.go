package alerting

import (
	"context"

	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/metering"
)

// UsageAlert is the message handed to the mailer when a threshold fires
type UsageAlert struct {
	Tenant    *identity.Tenant
	Service   metering.Service
	Threshold billing.AlertThreshold
	Usage     metering.ServiceUsage
	Period    string // formatted period key, e.g. "2026-08"
}

// AlertMailer delivers threshold alerts to the tenant's billing contact.
// Implementations live in infrastructure/notification.
type AlertMailer interface {
	// SendUsageAlert sends one threshold alert email; the returned error
	// means the message was not accepted for delivery
	SendUsageAlert(ctx context.Context, alert UsageAlert) error
}
