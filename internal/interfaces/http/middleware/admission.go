package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appmetering "github.com/propfolio/backend/internal/application/metering"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// RequireService guards a route behind the admission check for a discrete
// service. Denied requests are answered with the denial's status code and,
// when the quota resets at the period boundary, a Retry-After header.
// Admission errors refuse the request; quota enforcement never fails open.
func RequireService(admission *appmetering.AdmissionService, service metering.Service, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		tenantID, ok := contextTenantID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "Tenant identification required"))
			return
		}

		// Guarded routes demand headroom: the request about to run is the
		// event being admitted.
		result, err := admission.CheckService(c.Request.Context(), tenantID, service, true)
		if err != nil {
			logger.Error("Admission check failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("service", service.String()),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(
				dto.ErrCodeInternal, "Admission check failed"))
			return
		}

		if !result.Allowed {
			abortWithDenial(c, result)
			return
		}

		c.Next()
	}
}

// RequireStorageHeadroom guards an upload route behind the storage admission
// check, projecting the request body size onto current usage
func RequireStorageHeadroom(admission *appmetering.AdmissionService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		tenantID, ok := contextTenantID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "Tenant identification required"))
			return
		}

		incoming := c.Request.ContentLength
		if incoming < 0 {
			incoming = 0
		}

		result, err := admission.CheckStorage(c.Request.Context(), tenantID, incoming)
		if err != nil {
			logger.Error("Storage admission check failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Int64("incoming_bytes", incoming),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(
				dto.ErrCodeInternal, "Admission check failed"))
			return
		}

		if !result.Allowed {
			abortWithDenial(c, result)
			return
		}

		c.Next()
	}
}

// contextTenantID reads the tenant set by RequireTenant
func contextTenantID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString("tenant_id")
	if raw == "" {
		return uuid.Nil, false
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return tenantID, true
}

// abortWithDenial writes the admission result with the denial's status and
// Retry-After hint
func abortWithDenial(c *gin.Context, result *appmetering.AdmissionResult) {
	status := http.StatusForbidden
	if result.Denial != nil {
		status = result.Denial.HTTPStatusCode()
		if result.Denial.RetryAfterSeconds > 0 {
			c.Header("Retry-After", strconv.FormatInt(result.Denial.RetryAfterSeconds, 10))
		}
	}
	c.AbortWithStatusJSON(status, result)
}
