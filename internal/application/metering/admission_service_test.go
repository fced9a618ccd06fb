package metering

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAdmission(summaryRepo *mockMonthlySummaryRepository, tenants *mockTenantDirectory, plans *mockPlanDirectory, cache SummaryCache) *AdmissionService {
	return NewAdmissionService(summaryRepo, tenants, plans, cache, zap.NewNop(), DefaultAdmissionConfig())
}

func summaryWith(tenantID uuid.UUID, service metering.Service, used, limit int64) *metering.MonthlySummary {
	summary := metering.NewMonthlySummary(tenantID, metering.CurrentPeriod(), "pro")
	summary.SetUsage(service, metering.ServiceUsage{Used: used, Limit: limit})
	return summary
}

func TestCheckService(t *testing.T) {
	ctx := context.Background()
	period := metering.CurrentPeriod()

	t.Run("admits within quota", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSMS, 40, 100), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSMS, true)
		require.NoError(t, err)

		assert.True(t, result.Allowed)
		assert.Nil(t, result.Denial)
		assert.Nil(t, result.Warning)
		assert.Equal(t, int64(40), result.Usage.Used)
		assert.Equal(t, int64(60), result.Usage.Remaining)
	})

	t.Run("warns above the soft threshold", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSMS, 85, 100), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSMS, true)
		require.NoError(t, err)

		assert.True(t, result.Allowed)
		require.NotNil(t, result.Warning)
		assert.InDelta(t, 86.0, result.Warning.Percentage, 0.01)
	})

	t.Run("refuses when quota is fully consumed", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSignature, 10, 10), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSignature, true)
		require.NoError(t, err)

		assert.False(t, result.Allowed)
		require.NotNil(t, result.Denial)
		assert.Equal(t, DenialLimitExceeded, result.Denial.Code)
		assert.Positive(t, result.Denial.RetryAfterSeconds)
		assert.LessOrEqual(t, result.Denial.RetryAfterSeconds, int64(32*24*3600))
		assert.Equal(t, 429, result.Denial.HTTPStatusCode())
	})

	t.Run("lenient rule admits at exactly the limit", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSignature, 10, 10), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)

		// Same usage, opposite outcomes: the boundary rule is the only
		// difference between the two calls.
		lenient, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSignature, false)
		require.NoError(t, err)
		assert.True(t, lenient.Allowed)
		assert.Nil(t, lenient.Denial)

		exact, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSignature, true)
		require.NoError(t, err)
		assert.False(t, exact.Allowed)
		require.NotNil(t, exact.Denial)
		assert.Equal(t, DenialLimitExceeded, exact.Denial.Code)
	})

	t.Run("lenient rule still refuses past the limit", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSignature, 11, 10), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSignature, false)
		require.NoError(t, err)

		assert.False(t, result.Allowed)
		require.NotNil(t, result.Denial)
		assert.Equal(t, DenialLimitExceeded, result.Denial.Code)
	})

	t.Run("refuses services outside the plan", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSMS, 5, 100), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceAI, true)
		require.NoError(t, err)

		assert.False(t, result.Allowed)
		require.NotNil(t, result.Denial)
		assert.Equal(t, DenialServiceNotIncluded, result.Denial.Code)
		assert.Zero(t, result.Denial.RetryAfterSeconds, "waiting for the next period does not help")
	})

	t.Run("refuses suspended tenants", func(t *testing.T) {
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenant.Status = identity.TenantStatusSuspended
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)

		svc := newTestAdmission(new(mockMonthlySummaryRepository), tenants, new(mockPlanDirectory), nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSMS, true)
		require.NoError(t, err)

		assert.False(t, result.Allowed)
		require.NotNil(t, result.Denial)
		assert.Equal(t, DenialTenantInactive, result.Denial.Code)
		assert.Equal(t, 403, result.Denial.HTTPStatusCode())
	})

	t.Run("admits trial tenants", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenant.Status = identity.TenantStatusTrial
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSMS, 1, 100), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSMS, true)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		tenants := new(mockTenantDirectory)
		tenants.On("FindByID", ctx, mock.Anything).Return(nil, shared.ErrTenantNotFound)

		svc := newTestAdmission(new(mockMonthlySummaryRepository), tenants, new(mockPlanDirectory), nil)
		_, err := svc.CheckService(ctx, uuid.New(), metering.ServiceSMS, true)
		assert.ErrorIs(t, err, shared.ErrTenantNotFound)
	})

	t.Run("validates input", func(t *testing.T) {
		svc := newTestAdmission(new(mockMonthlySummaryRepository), new(mockTenantDirectory), new(mockPlanDirectory), nil)

		_, err := svc.CheckService(ctx, uuid.Nil, metering.ServiceSMS, true)
		assert.Error(t, err)

		_, err = svc.CheckService(ctx, uuid.New(), metering.Service("fax"), true)
		assert.Error(t, err)
	})
}

func TestCheckServiceQuotaFallbacks(t *testing.T) {
	ctx := context.Background()
	period := metering.CurrentPeriod()

	t.Run("no summary yet falls back to the plan", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)
		plans := new(mockPlanDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).Return(nil, shared.ErrNotFound)
		plans.On("FindByID", ctx, "pro").Return(testPlan(), nil)

		svc := newTestAdmission(summaryRepo, tenants, plans, nil)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSMS, true)
		require.NoError(t, err)

		assert.True(t, result.Allowed)
		assert.Equal(t, int64(0), result.Usage.Used)
		assert.Equal(t, int64(100), result.Usage.Limit)
	})

	t.Run("cache hit skips the repository", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)
		cache := new(mockSummaryCache)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		cache.On("Get", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSMS, 10, 100), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), cache)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSMS, true)
		require.NoError(t, err)

		assert.True(t, result.Allowed)
		summaryRepo.AssertNotCalled(t, "FindByTenantAndPeriod", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache failure degrades to the repository", func(t *testing.T) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)
		cache := new(mockSummaryCache)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		cache.On("Get", ctx, tenant.ID, period).Return(nil, assert.AnError)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceSMS, 10, 100), nil)

		svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), cache)
		result, err := svc.CheckService(ctx, tenant.ID, metering.ServiceSMS, true)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})
}

func TestCheckStorage(t *testing.T) {
	ctx := context.Background()
	period := metering.CurrentPeriod()
	quota := int64(5 << 30)

	setup := func(used int64) (*AdmissionService, *identity.Tenant) {
		summaryRepo := new(mockMonthlySummaryRepository)
		tenants := new(mockTenantDirectory)

		tenant := testTenant("pro")
		tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
		summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
			Return(summaryWith(tenant.ID, metering.ServiceStorage, used, quota), nil)
		return newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil), tenant
	}

	t.Run("admits an upload that fits", func(t *testing.T) {
		svc, tenant := setup(1 << 30)
		result, err := svc.CheckStorage(ctx, tenant.ID, 1<<30)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("refuses an upload that would exceed the quota", func(t *testing.T) {
		svc, tenant := setup(4 << 30)
		result, err := svc.CheckStorage(ctx, tenant.ID, 2<<30)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		require.NotNil(t, result.Denial)
		assert.Equal(t, DenialLimitExceeded, result.Denial.Code)
	})

	t.Run("admits an upload landing exactly on the quota", func(t *testing.T) {
		svc, tenant := setup(4 << 30)
		result, err := svc.CheckStorage(ctx, tenant.ID, 1<<30)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})

	t.Run("warns on projected usage", func(t *testing.T) {
		// 3 GiB used, 1.5 GiB incoming: 90% projected, warn before the
		// upload rather than after.
		svc, tenant := setup(3 << 30)
		result, err := svc.CheckStorage(ctx, tenant.ID, 3<<29)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		require.NotNil(t, result.Warning)
		assert.InDelta(t, 90.0, result.Warning.Percentage, 0.01)
	})

	t.Run("rejects negative sizes", func(t *testing.T) {
		svc, tenant := setup(0)
		_, err := svc.CheckStorage(ctx, tenant.ID, -1)
		assert.Error(t, err)
	})
}

func TestCheckAI(t *testing.T) {
	ctx := context.Background()
	period := metering.CurrentPeriod()

	summaryRepo := new(mockMonthlySummaryRepository)
	tenants := new(mockTenantDirectory)

	tenant := testTenant("pro")
	tenants.On("FindByID", ctx, tenant.ID).Return(tenant, nil)
	summaryRepo.On("FindByTenantAndPeriod", ctx, tenant.ID, period).
		Return(summaryWith(tenant.ID, metering.ServiceAI, 900_000, 1_000_000), nil)

	svc := newTestAdmission(summaryRepo, tenants, new(mockPlanDirectory), nil)

	t.Run("admits an estimate with headroom", func(t *testing.T) {
		result, err := svc.CheckAI(ctx, tenant.ID, 50_000)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		require.NotNil(t, result.Warning, "95% projected usage crosses the soft threshold")
	})

	t.Run("refuses an estimate beyond the quota", func(t *testing.T) {
		result, err := svc.CheckAI(ctx, tenant.ID, 200_000)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		require.NotNil(t, result.Denial)
		assert.Equal(t, DenialLimitExceeded, result.Denial.Code)
	})
}

func TestDenialRetryAfterTracksPeriodEnd(t *testing.T) {
	now := time.Now().UTC()
	retry := metering.SecondsUntilPeriodEnd(now)
	expected := int64(metering.PeriodEnd(now).Sub(now).Seconds())
	assert.InDelta(t, expected, retry, 2)
}
