package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lendshelf/lending"
	"lendshelf/models"
)

// NotificationRepo appends lending events to the notifications table and
// reads them back per recipient.
type NotificationRepo struct{ DB *gorm.DB }

func NewNotificationRepo(db *gorm.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

func (r *NotificationRepo) Append(ctx context.Context, ev lending.Event) error {
	var meta string
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode notification metadata: %w", err)
		}
		meta = string(b)
	}
	n := &models.Notification{
		ID:             uuid.NewString(),
		Type:           ev.Type,
		RecipientID:    ev.RecipientID,
		ActorID:        ev.ActorID,
		TargetRecordID: ev.TargetRecordID,
		Metadata:       meta,
		CreatedAt:      ev.OccurredAt,
	}
	if err := r.DB.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var ns []models.Notification
	err := r.DB.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&ns).Error
	if err != nil {
		return nil, classify("db.ListNotifications", err)
	}
	return ns, nil
}
