package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

// setupUsageAPI wires the usage handler against sqlite-backed repositories
// and returns the router plus the fixture tenant. The plan covers 3 SMS and
// 1000 storage bytes and omits the AI service.
func setupUsageAPI(t *testing.T) (*gin.Engine, *identity.Tenant) {
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
			metering.ServiceSMS:     {Included: 3},
			metering.ServiceStorage: {Included: 1000},
		},
	}))

	tenant, err := identity.NewTenant("Agence Lumière", "starter")
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

	engine := gin.New()
	api := engine.Group("/api/v1")
	NewUsageHandler(tracker, admission, summaryRepo, zap.NewNop()).RegisterRoutes(api)

	return engine, tenant
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestUsageHandlerTrackEvent(t *testing.T) {
	engine, tenant := setupUsageAPI(t)
	tenantID := tenant.ID.String()

	t.Run("records a discrete event with implicit quantity", func(t *testing.T) {
		w := doJSON(t, engine, "POST", "/api/v1/usage/events", tenantID, gin.H{
			"service":     "sms",
			"source_type": "lease_contract",
			"source_id":   "lease-42",
		})

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp struct {
			Success bool               `json:"success"`
			Data    TrackEventResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "sms", resp.Data.Service)
		assert.Equal(t, int64(1), resp.Data.Quantity)
		assert.Equal(t, metering.PeriodKey(metering.CurrentPeriod()), resp.Data.Period)
		assert.NotEmpty(t, resp.Data.ID)
	})

	t.Run("rejects unknown service", func(t *testing.T) {
		w := doJSON(t, engine, "POST", "/api/v1/usage/events", tenantID, gin.H{
			"service": "fax",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing tenant", func(t *testing.T) {
		w := doJSON(t, engine, "POST", "/api/v1/usage/events", "", gin.H{
			"service": "sms",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/usage/events", bytes.NewBufferString("{"))
		req.Header.Set("X-Tenant-ID", tenantID)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUsageHandlerGetSummary(t *testing.T) {
	engine, tenant := setupUsageAPI(t)
	tenantID := tenant.ID.String()

	w := doJSON(t, engine, "POST", "/api/v1/usage/events", tenantID, gin.H{"service": "sms"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("returns the current period summary", func(t *testing.T) {
		w := doJSON(t, engine, "GET", "/api/v1/usage/summary", tenantID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Data SummaryResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "starter", resp.Data.PlanID)
		assert.Equal(t, "EUR", resp.Data.Currency)

		var sms *ServiceUsageResponse
		for i := range resp.Data.Services {
			if resp.Data.Services[i].Service == "sms" {
				sms = &resp.Data.Services[i]
			}
		}
		require.NotNil(t, sms)
		assert.Equal(t, int64(1), sms.Used)
		assert.Equal(t, int64(3), sms.Limit)
		assert.Equal(t, int64(2), sms.Remaining)
	})

	t.Run("404 for a period without usage", func(t *testing.T) {
		w := doJSON(t, engine, "GET", "/api/v1/usage/summary?period=1999-01", tenantID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("400 for a malformed period", func(t *testing.T) {
		w := doJSON(t, engine, "GET", "/api/v1/usage/summary?period=last-month", tenantID, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUsageHandlerCheckAdmission(t *testing.T) {
	engine, tenant := setupUsageAPI(t)
	tenantID := tenant.ID.String()

	t.Run("admits under quota", func(t *testing.T) {
		w := doJSON(t, engine, "POST", "/api/v1/usage/check", tenantID, gin.H{"service": "sms"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result appmetering.AdmissionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Allowed)
	})

	t.Run("402 for a service outside the plan", func(t *testing.T) {
		w := doJSON(t, engine, "POST", "/api/v1/usage/check", tenantID, gin.H{
			"service":  "ai",
			"quantity": 100,
		})
		assert.Equal(t, http.StatusPaymentRequired, w.Code)
	})

	t.Run("429 with Retry-After when the quota is exhausted", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			w := doJSON(t, engine, "POST", "/api/v1/usage/events", tenantID, gin.H{"service": "sms"})
			require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		}

		w := doJSON(t, engine, "POST", "/api/v1/usage/check", tenantID, gin.H{"service": "sms"})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		var result appmetering.AdmissionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.False(t, result.Allowed)
		require.NotNil(t, result.Denial)
		assert.Equal(t, appmetering.DenialLimitExceeded, result.Denial.Code)
	})

	t.Run("200 at the limit when exact headroom is not required", func(t *testing.T) {
		// Same exhausted quota as above; the lenient rule admits usage
		// sitting exactly on the limit.
		w := doJSON(t, engine, "POST", "/api/v1/usage/check", tenantID, gin.H{
			"service":       "sms",
			"require_exact": false,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result appmetering.AdmissionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Allowed)
	})

	t.Run("429 when a storage upload would exceed the quota", func(t *testing.T) {
		w := doJSON(t, engine, "POST", "/api/v1/usage/check", tenantID, gin.H{
			"service":  "storage",
			"quantity": 5000,
		})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("404 for an unknown tenant", func(t *testing.T) {
		w := doJSON(t, engine, "POST", "/api/v1/usage/check",
			"7f9c24e8-3b3d-4c52-9f2b-000000000000", gin.H{"service": "sms"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
