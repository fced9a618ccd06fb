package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/propfolio/backend/internal/application/settlement"
)

// Stripe webhook payloads are small; anything larger is rejected outright.
const maxWebhookPayloadSize = 65536

// PaymentWebhookHandler receives payment processor webhook events. These
// endpoints are called by the processor and carry their own signature
// instead of a tenant header.
type PaymentWebhookHandler struct {
	BaseHandler
	webhooks *settlement.PaymentWebhookService
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(webhooks *settlement.PaymentWebhookService) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{webhooks: webhooks}
}

// RegisterRoutes registers webhook routes on the given router group
func (h *PaymentWebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/stripe", h.HandleStripeWebhook)
}

// WebhookResponse acknowledges a webhook delivery
type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandleStripeWebhook verifies and applies one Stripe webhook event. The raw
// body is needed for signature verification, so binding is done by hand.
func (h *PaymentWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, WebhookResponse{
			Received: false,
			Message:  "Failed to read request body",
		})
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, WebhookResponse{
			Received: false,
			Message:  "Payload too large",
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusUnauthorized, WebhookResponse{
			Received: false,
			Message:  "Missing Stripe-Signature header",
		})
		return
	}

	result, err := h.webhooks.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if result == nil {
			c.JSON(http.StatusUnauthorized, WebhookResponse{
				Received: false,
				Message:  "Webhook signature verification failed",
			})
			return
		}

		// Processing errors still acknowledge receipt; the processor's
		// retries would hit the same condition.
		c.JSON(http.StatusOK, WebhookResponse{
			Received:  true,
			EventID:   result.EventID,
			EventType: result.EventType,
			Message:   "Webhook received but processing encountered an issue",
		})
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Message:   result.Message,
	})
}
