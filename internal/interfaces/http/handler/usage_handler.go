package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	appmetering "github.com/propfolio/backend/internal/application/metering"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/propfolio/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// UsageHandler exposes usage tracking, summaries and admission checks
type UsageHandler struct {
	BaseHandler
	tracker   *appmetering.TrackerService
	admission *appmetering.AdmissionService
	summaries metering.MonthlySummaryRepository
	logger    *zap.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(
	tracker *appmetering.TrackerService,
	admission *appmetering.AdmissionService,
	summaries metering.MonthlySummaryRepository,
	logger *zap.Logger,
) *UsageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageHandler{
		tracker:   tracker,
		admission: admission,
		summaries: summaries,
		logger:    logger,
	}
}

// RegisterRoutes registers usage routes on the given router group
func (h *UsageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	usage := rg.Group("/usage")
	{
		usage.POST("/events", h.TrackEvent)
		usage.POST("/check", h.CheckAdmission)
		usage.GET("/summary", h.GetSummary)
	}
}

// TrackEventRequest is the payload for recording one usage event
type TrackEventRequest struct {
	Service    string         `json:"service" binding:"required"`
	Variant    string         `json:"variant"`
	Quantity   int64          `json:"quantity"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id"`
	Metadata   map[string]any `json:"metadata"`
	OccurredAt *time.Time     `json:"occurred_at"`
}

// TrackEventResponse describes the stored log entry
type TrackEventResponse struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Variant    string    `json:"variant,omitempty"`
	Quantity   int64     `json:"quantity"`
	Cost       string    `json:"cost"`
	Currency   string    `json:"currency"`
	Period     string    `json:"period"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TrackEvent records a usage event and refreshes the monthly summary
func (h *UsageHandler) TrackEvent(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant identification required")
		return
	}

	var req TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	service, err := metering.ParseService(req.Service)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
		return
	}

	quantity := req.Quantity
	if quantity == 0 && service.MetricKind() == metering.MetricDiscrete {
		quantity = 1
	}

	event := metering.UsageEvent{
		TenantID:   tenantID,
		Service:    service,
		Variant:    req.Variant,
		Quantity:   quantity,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		Metadata:   req.Metadata,
	}
	if req.OccurredAt != nil {
		event.OccurredAt = *req.OccurredAt
	}

	entry, err := h.tracker.TrackUsage(c.Request.Context(), event)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, TrackEventResponse{
		ID:         entry.ID.String(),
		Service:    entry.Service.String(),
		Variant:    entry.Variant,
		Quantity:   entry.Quantity,
		Cost:       entry.Cost.StringFixed(4),
		Currency:   entry.Currency,
		Period:     metering.PeriodKey(entry.Period),
		RecordedAt: entry.RecordedAt,
	})
}

// CheckAdmissionRequest is the payload for a pre-flight admission check.
// Quantity carries the incoming bytes or estimated tokens for continuous
// services and is ignored for discrete ones. RequireExact controls the
// discrete boundary rule: omitted or true demands headroom, false admits a
// tenant sitting exactly at the limit.
type CheckAdmissionRequest struct {
	Service      string `json:"service" binding:"required"`
	Quantity     int64  `json:"quantity"`
	RequireExact *bool  `json:"require_exact"`
}

// CheckAdmission runs the admission check without recording any usage
func (h *UsageHandler) CheckAdmission(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant identification required")
		return
	}

	var req CheckAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	service, err := metering.ParseService(req.Service)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
		return
	}

	var result *appmetering.AdmissionResult
	switch service {
	case metering.ServiceStorage:
		result, err = h.admission.CheckStorage(c.Request.Context(), tenantID, req.Quantity)
	case metering.ServiceAI:
		result, err = h.admission.CheckAI(c.Request.Context(), tenantID, req.Quantity)
	default:
		requireExact := req.RequireExact == nil || *req.RequireExact
		result, err = h.admission.CheckService(c.Request.Context(), tenantID, service, requireExact)
	}
	if err != nil {
		if errors.Is(err, shared.ErrTenantNotFound) {
			h.NotFound(c, "Tenant not found")
			return
		}
		h.HandleError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Allowed && result.Denial != nil {
		status = result.Denial.HTTPStatusCode()
		if result.Denial.RetryAfterSeconds > 0 {
			c.Header("Retry-After", strconv.FormatInt(result.Denial.RetryAfterSeconds, 10))
		}
	}
	c.JSON(status, result)
}

// ServiceUsageResponse is one service's slice of a summary
type ServiceUsageResponse struct {
	Service     string `json:"service"`
	Used        int64  `json:"used"`
	Limit       int64  `json:"limit"`
	Remaining   int64  `json:"remaining"`
	Percentage  string `json:"percentage"`
	Cost        string `json:"cost"`
	Overage     int64  `json:"overage"`
	OverageCost string `json:"overage_cost"`
}

// SummaryResponse describes a tenant's monthly usage summary
type SummaryResponse struct {
	Period           string                 `json:"period"`
	PlanID           string                 `json:"plan_id"`
	Services         []ServiceUsageResponse `json:"services"`
	TotalCost        string                 `json:"total_cost"`
	TotalOverageCost string                 `json:"total_overage_cost"`
	Currency         string                 `json:"currency"`
	ComputedAt       time.Time              `json:"computed_at"`
}

// GetSummary returns the tenant's usage summary for a period. The period
// query parameter takes YYYY-MM; empty means the current period.
func (h *UsageHandler) GetSummary(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant identification required")
		return
	}

	period, err := parsePeriod(c.Query("period"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "period must be formatted as YYYY-MM")
		return
	}

	summary, err := h.summaries.FindByTenantAndPeriod(c.Request.Context(), tenantID, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "No usage recorded for this period")
			return
		}
		h.HandleError(c, err)
		return
	}

	resp := SummaryResponse{
		Period:           metering.PeriodKey(summary.Period),
		PlanID:           summary.PlanID,
		Services:         make([]ServiceUsageResponse, 0, len(summary.Services)),
		TotalCost:        summary.TotalCost.StringFixed(2),
		TotalOverageCost: summary.TotalOverageCost.StringFixed(2),
		Currency:         summary.Currency,
		ComputedAt:       summary.ComputedAt,
	}
	// Stable service ordering so clients render consistently.
	for _, service := range metering.AllServices() {
		usage, ok := summary.Services[service]
		if !ok {
			continue
		}
		resp.Services = append(resp.Services, ServiceUsageResponse{
			Service:     service.String(),
			Used:        usage.Used,
			Limit:       usage.Limit,
			Remaining:   usage.Remaining(),
			Percentage:  strconv.FormatFloat(usage.Percentage(), 'f', 1, 64),
			Cost:        usage.Cost.StringFixed(2),
			Overage:     usage.Overage,
			OverageCost: usage.OverageCost.StringFixed(2),
		})
	}

	h.Success(c, resp)
}

// parsePeriod parses a YYYY-MM query value; empty means the current period
func parsePeriod(value string) (time.Time, error) {
	if value == "" {
		return metering.CurrentPeriod(), nil
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, err
	}
	return metering.PeriodOf(t), nil
}
