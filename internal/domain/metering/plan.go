package metering

import (
	"github.com/shopspring/decimal"
)

// PlanQuota defines one service's entitlement within a plan. Included is the
// quantity covered by the subscription fee in raw metric units; a zero
// Included means the service is not part of the plan. OverageUnitPrice, when
// set, overrides the system default overage price and applies per billable
// unit of the service (see OverageUnitSize).
type PlanQuota struct {
	Included         int64
	OverageUnitPrice *decimal.Decimal
}

// Plan is a read-only directory entry describing a subscription plan's
// per-service quotas. Plans are owned by the subscription subsystem; the
// metering engine only reads them.
type Plan struct {
	ID     string
	Name   string
	Quotas map[Service]PlanQuota
}

// QuotaFor returns the quota for a service; the zero value (not included)
// is returned when the plan omits the service.
func (p *Plan) QuotaFor(service Service) PlanQuota {
	if p == nil || p.Quotas == nil {
		return PlanQuota{}
	}
	return p.Quotas[service]
}

// Includes returns true if the plan covers any amount of the service
func (p *Plan) Includes(service Service) bool {
	return p.QuotaFor(service).Included > 0
}

// OveragePriceFor resolves the overage price for a service: the plan's own
// price when set, otherwise the system default from the pricing table.
func (p *Plan) OveragePriceFor(service Service) (Price, error) {
	quota := p.QuotaFor(service)
	if quota.OverageUnitPrice != nil {
		return Price{
			Service:  service,
			Amount:   *quota.OverageUnitPrice,
			PerUnit:  OverageUnitSize(service),
			Currency: "EUR",
		}, nil
	}
	return DefaultOveragePrice(service)
}
