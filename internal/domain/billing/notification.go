package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/shared"
)

// NotificationKind classifies in-app notifications written by the engine
type NotificationKind string

const (
	// NotificationUsageWarning is an 80% quota threshold notice
	NotificationUsageWarning NotificationKind = "usage_warning"

	// NotificationUsageLimit is a 100% quota threshold notice
	NotificationUsageLimit NotificationKind = "usage_limit"

	// NotificationOverageReceipt accompanies an overage invoice
	NotificationOverageReceipt NotificationKind = "overage_receipt"
)

// Notification is an in-app notification row surfaced to tenant admins
type Notification struct {
	shared.BaseEntity
	TenantID uuid.UUID
	Kind     NotificationKind
	Title    string
	Body     string
	ReadAt   *time.Time
}

// NewNotification creates an unread in-app notification
func NewNotification(tenantID uuid.UUID, kind NotificationKind, title, body string) *Notification {
	return &Notification{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		Kind:       kind,
		Title:      title,
		Body:       body,
	}
}

// MarkRead records when the notification was read
func (n *Notification) MarkRead() {
	now := time.Now()
	n.ReadAt = &now
	n.Touch()
}

// NotificationRepository persists in-app notifications
type NotificationRepository interface {
	// Save persists a new notification
	Save(ctx context.Context, notification *Notification) error

	// ListByTenant retrieves a tenant's notifications, newest first
	ListByTenant(ctx context.Context, tenantID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)

	// MarkRead marks a notification as read
	MarkRead(ctx context.Context, id uuid.UUID) error
}
