package repository

import (
	"context"
	"fmt"
	"time"

	"clinicnotify/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationRepository persists reminder records and their sent/read state.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a notification repository.
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateReminder inserts n unless a reminder with the same ReminderKey exists.
// It returns the id of the stored reminder and whether this call created it.
func (r *NotificationRepository) CreateReminder(ctx context.Context, n *models.Notification) (string, bool, error) {
	if n.ReminderKey == nil {
		return "", false, fmt.Errorf("reminder for user %s has no reminder key", n.UserID)
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "reminder_key"}}, DoNothing: true}).
		Create(n)
	if res.Error != nil {
		return "", false, fmt.Errorf("failed to create reminder %s: %w", *n.ReminderKey, res.Error)
	}
	if res.RowsAffected == 1 {
		return n.ID, true, nil
	}

	var existing models.Notification
	if err := r.db.WithContext(ctx).Select("id").Where("reminder_key = ?", *n.ReminderKey).First(&existing).Error; err != nil {
		return "", false, fmt.Errorf("failed to load existing reminder %s: %w", *n.ReminderKey, err)
	}
	return existing.ID, false, nil
}

// ListDue returns up to limit unsent notifications scheduled at or before now,
// oldest first.
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	var due []models.Notification
	err := r.db.WithContext(ctx).
		Where("sent_at IS NULL AND scheduled_for <= ?", now.UTC()).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due notifications: %w", err)
	}
	return due, nil
}

// MarkSent stamps sent_at on every id that is still unsent.
func (r *NotificationRepository) MarkSent(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id IN ? AND sent_at IS NULL", ids).
		Update("sent_at", at.UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark %d notifications sent: %w", len(ids), res.Error)
	}
	return res.RowsAffected, nil
}

// ListSentSince returns the user's unread notifications sent strictly after
// since, ordered by (sent_at, id). A drain stamps a whole batch with one
// sent_at, so callers page by re-reading with the same since once the
// returned rows are marked read.
func (r *NotificationRepository) ListSentSince(ctx context.Context, userID string, since time.Time, limit int) ([]models.Notification, error) {
	var sent []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND sent_at IS NOT NULL AND sent_at > ? AND read_at IS NULL", userID, since.UTC()).
		Order("sent_at ASC, id ASC").
		Limit(limit).
		Find(&sent).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications for user %s: %w", userID, err)
	}
	return sent, nil
}

// MarkRead stamps read_at on one of the user's notifications. Marking an
// already read notification is not an error.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", gorm.Expr("COALESCE(read_at, ?)", at.UTC()))
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
