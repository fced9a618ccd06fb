package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/metering"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/propfolio/backend/internal/interfaces/http/dto"
)

// BillingHandler exposes a tenant's alert history and overage invoices
type BillingHandler struct {
	BaseHandler
	alerts   billing.AlertRecordRepository
	invoices billing.OverageInvoiceRepository
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(
	alerts billing.AlertRecordRepository,
	invoices billing.OverageInvoiceRepository,
) *BillingHandler {
	return &BillingHandler{
		alerts:   alerts,
		invoices: invoices,
	}
}

// RegisterRoutes registers billing routes on the given router group
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	billingGroup := rg.Group("/billing")
	{
		billingGroup.GET("/alerts", h.ListAlerts)
		billingGroup.GET("/invoices/overage", h.GetOverageInvoice)
	}
}

// AlertRecordResponse describes one dispatched threshold alert
type AlertRecordResponse struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Threshold int       `json:"threshold"`
	Period    string    `json:"period"`
	SentAt    time.Time `json:"sent_at"`
}

// ListAlerts returns the tenant's dispatched alerts for a period,
// newest first
func (h *BillingHandler) ListAlerts(c *gin.Context) {
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

	records, err := h.alerts.ListByTenantAndPeriod(c.Request.Context(), tenantID, period)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]AlertRecordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, AlertRecordResponse{
			ID:        record.ID.String(),
			Service:   record.Service.String(),
			Threshold: int(record.Threshold),
			Period:    metering.PeriodKey(record.Period),
			SentAt:    record.SentAt,
		})
	}

	h.Success(c, resp)
}

// InvoiceLineResponse is one service's billable overage on an invoice
type InvoiceLineResponse struct {
	Service     string `json:"service"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

// OverageInvoiceResponse describes a settled period's overage invoice
type OverageInvoiceResponse struct {
	ID                string                `json:"id"`
	Period            string                `json:"period"`
	ExternalInvoiceID string                `json:"external_invoice_id"`
	Lines             []InvoiceLineResponse `json:"lines"`
	Amount            string                `json:"amount"`
	Currency          string                `json:"currency"`
	Status            string                `json:"status"`
	IssuedAt          time.Time             `json:"issued_at"`
	DueAt             time.Time             `json:"due_at"`
}

// GetOverageInvoice returns the tenant's overage invoice for a period.
// The period query parameter takes YYYY-MM; empty means the previous period,
// the most recently settleable month.
func (h *BillingHandler) GetOverageInvoice(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant identification required")
		return
	}

	var period time.Time
	if raw := c.Query("period"); raw == "" {
		period = metering.PreviousPeriod(time.Now())
	} else {
		period, err = parsePeriod(raw)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "period must be formatted as YYYY-MM")
			return
		}
	}

	invoice, err := h.invoices.FindByTenantAndPeriod(c.Request.Context(), tenantID, period)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "No overage invoice for this period")
			return
		}
		h.HandleError(c, err)
		return
	}

	lines := make([]InvoiceLineResponse, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		lines = append(lines, InvoiceLineResponse{
			Service:     line.Service.String(),
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.String(),
			Amount:      line.Amount.StringFixed(2),
		})
	}

	h.Success(c, OverageInvoiceResponse{
		ID:                invoice.ID.String(),
		Period:            metering.PeriodKey(invoice.Period),
		ExternalInvoiceID: invoice.ExternalInvoiceID,
		Lines:             lines,
		Amount:            invoice.Amount.StringFixed(2),
		Currency:          invoice.Currency,
		Status:            string(invoice.Status),
		IssuedAt:          invoice.IssuedAt,
		DueAt:             invoice.DueAt,
	})
}
