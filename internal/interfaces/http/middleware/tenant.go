package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/interfaces/http/dto"
)

// TenantHeader carries the caller's tenant on every request. Tenant identity
// is established upstream by the platform gateway; this service trusts the
// header.
const TenantHeader = "X-Tenant-ID"

// RequireTenant resolves the tenant from the request header and stores it in
// the context for handlers. Requests without a valid tenant ID are refused.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "Missing "+TenantHeader+" header"))
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "Invalid "+TenantHeader+" header"))
			return
		}

		c.Set("tenant_id", tenantID.String())
		c.Next()
	}
}
