package metering

import (
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Price defines the unit cost of one metered service variant. For discrete
// services PerUnit is 1; for continuous services the price applies per
// PerUnit of the raw metric (e.g. per GiB of storage, per million AI tokens).
type Price struct {
	Service  Service
	Variant  string
	Amount   decimal.Decimal // price in EUR per PerUnit
	PerUnit  int64           // billable unit size in raw metric units
	Currency string
}

// CostOf derives the cost of a raw quantity under this price
func (p Price) CostOf(quantity int64) decimal.Decimal {
	if p.PerUnit <= 1 {
		return p.Amount.Mul(decimal.NewFromInt(quantity))
	}
	return p.Amount.
		Mul(decimal.NewFromInt(quantity)).
		Div(decimal.NewFromInt(p.PerUnit))
}

const (
	// VariantSimple is a standard electronic signature
	VariantSimple = "simple"

	// VariantQualified is a qualified electronic signature
	VariantQualified = "qualified"

	gibibyte      = int64(1) << 30
	tokensPerUnit = int64(1_000_000)
)

// priceKey identifies a pricing table row
type priceKey struct {
	service Service
	variant string
}

// pricingTable is the static map from (service, variant) to unit cost.
// Prices are in EUR. Services without variants use the empty variant.
var pricingTable = map[priceKey]Price{
	{ServiceSignature, VariantSimple}:    {ServiceSignature, VariantSimple, decimal.NewFromFloat(1.50), 1, "EUR"},
	{ServiceSignature, VariantQualified}: {ServiceSignature, VariantQualified, decimal.NewFromFloat(3.00), 1, "EUR"},
	{ServiceSMS, ""}:                     {ServiceSMS, "", decimal.NewFromFloat(0.09), 1, "EUR"},
	{ServiceEmail, ""}:                   {ServiceEmail, "", decimal.NewFromFloat(0.005), 1, "EUR"},
	{ServiceStorage, ""}:                 {ServiceStorage, "", decimal.NewFromFloat(0.02), gibibyte, "EUR"},
	{ServiceAI, ""}:                      {ServiceAI, "", decimal.NewFromFloat(2.00), tokensPerUnit, "EUR"},
}

// defaultOveragePrices is the fallback per-unit overage price applied when a
// tenant's plan does not set one for the service.
var defaultOveragePrices = map[Service]Price{
	ServiceSignature: {ServiceSignature, "", decimal.NewFromFloat(2.00), 1, "EUR"},
	ServiceSMS:       {ServiceSMS, "", decimal.NewFromFloat(0.12), 1, "EUR"},
	ServiceEmail:     {ServiceEmail, "", decimal.NewFromFloat(0.01), 1, "EUR"},
	ServiceStorage:   {ServiceStorage, "", decimal.NewFromFloat(0.05), gibibyte, "EUR"},
	ServiceAI:        {ServiceAI, "", decimal.NewFromFloat(3.00), tokensPerUnit, "EUR"},
}

// PriceFor looks up the unit price for a service and variant. Services
// without variants must be looked up with an empty variant.
func PriceFor(service Service, variant string) (Price, error) {
	if !service.IsValid() {
		return Price{}, shared.NewDomainError("INVALID_SERVICE", "Unknown metered service: "+string(service))
	}
	price, ok := pricingTable[priceKey{service, variant}]
	if !ok {
		return Price{}, shared.ErrPriceNotFound
	}
	return price, nil
}

// DefaultOveragePrice returns the fallback overage price for a service
func DefaultOveragePrice(service Service) (Price, error) {
	price, ok := defaultOveragePrices[service]
	if !ok {
		return Price{}, shared.ErrPriceNotFound
	}
	return price, nil
}

// OverageUnitSize returns the billable unit size used when pricing overage
// for a service (1 for discrete services, GiB for storage, 1M for AI tokens).
func OverageUnitSize(service Service) int64 {
	if price, ok := defaultOveragePrices[service]; ok {
		return price.PerUnit
	}
	return 1
}
