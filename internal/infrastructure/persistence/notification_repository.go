package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/propfolio/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// NotificationModel is the GORM model for in-app notifications
type NotificationModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_notification_tenant"`
	Kind      string     `gorm:"type:varchar(30);not null"`
	Title     string     `gorm:"type:varchar(255);not null"`
	Body      string     `gorm:"type:text;not null"`
	ReadAt    *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (NotificationModel) TableName() string {
	return "notifications"
}

// ToEntity converts the model to a domain entity
func (m *NotificationModel) ToEntity() *billing.Notification {
	return &billing.Notification{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID: m.TenantID,
		Kind:     billing.NotificationKind(m.Kind),
		Title:    m.Title,
		Body:     m.Body,
		ReadAt:   m.ReadAt,
	}
}

// NotificationModelFromEntity creates a model from a domain entity
func NotificationModelFromEntity(e *billing.Notification) *NotificationModel {
	return &NotificationModel{
		ID:        e.ID,
		TenantID:  e.TenantID,
		Kind:      string(e.Kind),
		Title:     e.Title,
		Body:      e.Body,
		ReadAt:    e.ReadAt,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// NotificationRepository implements the billing.NotificationRepository interface
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Save persists a new notification
func (r *NotificationRepository) Save(ctx context.Context, notification *billing.Notification) error {
	model := NotificationModelFromEntity(notification)
	return r.db.WithContext(ctx).Create(model).Error
}

// ListByTenant retrieves a tenant's notifications, newest first
func (r *NotificationRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, unreadOnly bool, limit int) ([]*billing.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC")
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []NotificationModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	notifications := make([]*billing.Notification, len(models))
	for i, model := range models {
		notifications[i] = model.ToEntity()
	}
	return notifications, nil
}

// MarkRead marks a notification as read
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&NotificationModel{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
	}
	return nil
}
