package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	appmetering "github.com/propfolio/backend/internal/application/metering"
	"github.com/propfolio/backend/internal/domain/identity"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupAdmission builds an admission service over sqlite-backed repositories.
// The fixture plan covers 2 SMS and 100 storage bytes.
func setupAdmission(t *testing.T) (*appmetering.AdmissionService, *appmetering.TrackerService, *identity.Tenant) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&persistence.UsageLogModel{},
		&persistence.MonthlySummaryModel{},
		&persistence.TenantModel{},
		&persistence.PlanModel{},
	))

	ctx := context.Background()

	planRepo := persistence.NewPlanRepository(db)
	require.NoError(t, planRepo.Save(ctx, &metering.Plan{
		ID:   "starter",
		Name: "Starter",
		Quotas: map[metering.Service]metering.PlanQuota{
			metering.ServiceSMS:     {Included: 2},
			metering.ServiceStorage: {Included: 100},
		},
	}))

	tenant, err := identity.NewTenant("Agence du Port", "starter")
	require.NoError(t, err)
	tenantRepo := persistence.NewTenantRepository(db)
	require.NoError(t, tenantRepo.Save(ctx, tenant))

	logRepo := persistence.NewUsageLogRepository(db)
	summaryRepo := persistence.NewMonthlySummaryRepository(db)

	aggregator := appmetering.NewAggregatorService(
		logRepo, summaryRepo, tenantRepo, planRepo, nil,
		zap.NewNop(), appmetering.DefaultAggregatorConfig())
	tracker := appmetering.NewTrackerService(logRepo, aggregator, zap.NewNop())
	admission := appmetering.NewAdmissionService(
		summaryRepo, tenantRepo, planRepo, nil,
		zap.NewNop(), appmetering.DefaultAdmissionConfig())

	return admission, tracker, tenant
}

func TestRequireService(t *testing.T) {
	admission, tracker, tenant := setupAdmission(t)
	ctx := context.Background()

	newEngine := func() *gin.Engine {
		engine := gin.New()
		engine.Use(RequireTenant())
		engine.POST("/sms",
			RequireService(admission, metering.ServiceSMS, zap.NewNop()),
			func(c *gin.Context) { c.Status(http.StatusAccepted) })
		return engine
	}

	send := func(engine *gin.Engine, tenantID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/sms", nil)
		if tenantID != "" {
			req.Header.Set(TenantHeader, tenantID)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	t.Run("admits under quota", func(t *testing.T) {
		w := send(newEngine(), tenant.ID.String())
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("refuses when the quota is exhausted", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := tracker.TrackSMS(ctx, tenant.ID, "notice", "notice-1")
			require.NoError(t, err)
		}

		w := send(newEngine(), tenant.ID.String())
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "LIMIT_EXCEEDED")
	})

	t.Run("refuses without a tenant", func(t *testing.T) {
		w := send(newEngine(), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireServiceNotIncluded(t *testing.T) {
	admission, _, tenant := setupAdmission(t)

	engine := gin.New()
	engine.Use(RequireTenant())
	engine.POST("/ai",
		RequireService(admission, metering.ServiceAI, zap.NewNop()),
		func(c *gin.Context) { c.Status(http.StatusAccepted) })

	req := httptest.NewRequest("POST", "/ai", nil)
	req.Header.Set(TenantHeader, tenant.ID.String())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "SERVICE_NOT_INCLUDED")
}

func TestRequireStorageHeadroom(t *testing.T) {
	admission, _, tenant := setupAdmission(t)

	engine := gin.New()
	engine.Use(RequireTenant())
	engine.POST("/upload",
		RequireStorageHeadroom(admission, zap.NewNop()),
		func(c *gin.Context) { c.Status(http.StatusAccepted) })

	upload := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/upload", strings.NewReader(body))
		req.Header.Set(TenantHeader, tenant.ID.String())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	t.Run("admits an upload within the quota", func(t *testing.T) {
		w := upload(strings.Repeat("x", 50))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("refuses an upload that would exceed the quota", func(t *testing.T) {
		w := upload(strings.Repeat("x", 500))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}
