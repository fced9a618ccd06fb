package metering

import (
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UsageEvent is the transient input describing one billable action. Events
// are produced by callers and never persisted directly; only the derived
// UsageLogEntry is stored.
type UsageEvent struct {
	TenantID   uuid.UUID
	Service    Service
	Variant    string // optional pricing variant (e.g. signature type)
	Quantity   int64  // raw metric units; discrete services use 1
	SourceType string // origin of the event (e.g. "lease_contract")
	SourceID   string
	Metadata   Metadata
	OccurredAt time.Time // zero value means "now"
}

// Metadata holds additional context about a usage log entry
type Metadata map[string]any

// UsageLogEntry is the immutable, append-only record derived from a
// UsageEvent. Once created it is never mutated or deleted; corrections are
// made with new entries so the audit trail stays complete.
type UsageLogEntry struct {
	shared.BaseEntity
	TenantID   uuid.UUID
	Service    Service
	Variant    string
	Quantity   int64
	Cost       decimal.Decimal // derived from the pricing table at insert time
	Currency   string
	Period     time.Time // first-of-month UTC instant
	RecordedAt time.Time
	SourceType string
	SourceID   string
	Metadata   Metadata
}

// NewUsageLogEntry derives a log entry from an event, pricing it via the
// static pricing table. The entry is tagged with the period containing the
// event's occurrence time.
func NewUsageLogEntry(event UsageEvent) (*UsageLogEntry, error) {
	if event.TenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !event.Service.IsValid() {
		return nil, shared.NewDomainError("INVALID_SERVICE", "Unknown metered service: "+string(event.Service))
	}
	if event.Quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}

	price, err := PriceFor(event.Service, event.Variant)
	if err != nil {
		return nil, err
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = make(Metadata)
	}

	return &UsageLogEntry{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   event.TenantID,
		Service:    event.Service,
		Variant:    event.Variant,
		Quantity:   event.Quantity,
		Cost:       price.CostOf(event.Quantity),
		Currency:   price.Currency,
		Period:     PeriodOf(occurredAt),
		RecordedAt: occurredAt,
		SourceType: event.SourceType,
		SourceID:   event.SourceID,
		Metadata:   metadata,
	}, nil
}
