package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/shared"
	"github.com/propfolio/backend/internal/interfaces/http/dto"
)

// NotificationHandler exposes the in-app notifications written by the
// alerting and settlement flows
type NotificationHandler struct {
	BaseHandler
	notifications billing.NotificationRepository
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications billing.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// RegisterRoutes registers notification routes on the given router group
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	notifications := rg.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.POST("/:id/read", h.MarkRead)
	}
}

// NotificationResponse describes one in-app notification
type NotificationResponse struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// List returns the tenant's notifications, newest first. unread=true filters
// to unread ones; limit caps the result size (default 50).
func (h *NotificationHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant identification required")
		return
	}

	unreadOnly := c.Query("unread") == "true"

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	notifications, err := h.notifications.ListByTenant(c.Request.Context(), tenantID, unreadOnly, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, NotificationResponse{
			ID:        n.ID.String(),
			Kind:      string(n.Kind),
			Title:     n.Title,
			Body:      n.Body,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}

	h.Success(c, resp)
}

// MarkRead marks a notification as read. Marking an already-read
// notification is a no-op.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if _, err := getTenantID(c); err != nil {
		h.Unauthorized(c, "Tenant identification required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "Invalid notification ID")
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "Notification not found")
			return
		}
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}
