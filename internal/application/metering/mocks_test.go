package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/stretchr/testify/mock"
)

// Mock implementations

type mockUsageLogRepository struct {
	mock.Mock
}

func (m *mockUsageLogRepository) Save(ctx context.Context, entry *metering.UsageLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockUsageLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.UsageLogEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.UsageLogEntry), args.Error(1)
}

func (m *mockUsageLogRepository) ListByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) ([]*metering.UsageLogEntry, error) {
	args := m.Called(ctx, tenantID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*metering.UsageLogEntry), args.Error(1)
}

func (m *mockUsageLogRepository) SumByService(ctx context.Context, tenantID uuid.UUID, period time.Time) (map[metering.Service]metering.ServiceTotals, error) {
	args := m.Called(ctx, tenantID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[metering.Service]metering.ServiceTotals), args.Error(1)
}

func (m *mockUsageLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockMonthlySummaryRepository struct {
	mock.Mock
}

func (m *mockMonthlySummaryRepository) Upsert(ctx context.Context, summary *metering.MonthlySummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *mockMonthlySummaryRepository) FindByTenantAndPeriod(ctx context.Context, tenantID uuid.UUID, period time.Time) (*metering.MonthlySummary, error) {
	args := m.Called(ctx, tenantID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.MonthlySummary), args.Error(1)
}

func (m *mockMonthlySummaryRepository) ListByPeriod(ctx context.Context, period time.Time) ([]*metering.MonthlySummary, error) {
	args := m.Called(ctx, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*metering.MonthlySummary), args.Error(1)
}

type mockTenantDirectory struct {
	mock.Mock
}

func (m *mockTenantDirectory) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *mockTenantDirectory) ListActive(ctx context.Context) ([]*identity.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*identity.Tenant), args.Error(1)
}

type mockPlanDirectory struct {
	mock.Mock
}

func (m *mockPlanDirectory) FindByID(ctx context.Context, planID string) (*metering.Plan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Plan), args.Error(1)
}

type mockSummaryCache struct {
	mock.Mock
}

func (m *mockSummaryCache) Get(ctx context.Context, tenantID uuid.UUID, period time.Time) (*metering.MonthlySummary, error) {
	args := m.Called(ctx, tenantID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.MonthlySummary), args.Error(1)
}

func (m *mockSummaryCache) Set(ctx context.Context, summary *metering.MonthlySummary, ttl time.Duration) error {
	args := m.Called(ctx, summary, ttl)
	return args.Error(0)
}

func (m *mockSummaryCache) Invalidate(ctx context.Context, tenantID uuid.UUID, period time.Time) error {
	args := m.Called(ctx, tenantID, period)
	return args.Error(0)
}
