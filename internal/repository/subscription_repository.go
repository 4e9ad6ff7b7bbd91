package repository

import (
	"context"
	"fmt"
	"time"

	"clinicnotify/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository stores web push subscriptions.
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository.
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Upsert stores sub, replacing the keys and user agent of an existing
// (user_id, endpoint) row. sub is reloaded, so it carries the stored id and
// creation time afterwards.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *models.PushSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_agent", "updated_at"}),
		}).
		Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save push subscription for user %s: %w", sub.UserID, err)
	}

	var stored models.PushSubscription
	if err := r.db.WithContext(ctx).Where("user_id = ? AND endpoint = ?", sub.UserID, sub.Endpoint).First(&stored).Error; err != nil {
		return fmt.Errorf("failed to reload push subscription for user %s: %w", sub.UserID, err)
	}
	*sub = stored
	return nil
}

// ListByUser returns every subscription of the user.
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to query push subscriptions for user %s: %w", userID, err)
	}
	return subs, nil
}

// Delete removes the user's subscription for endpoint. Deleting a missing
// subscription is a no-op.
func (r *SubscriptionRepository) Delete(ctx context.Context, userID, endpoint string) (int64, error) {
	return r.DeleteEndpoints(ctx, userID, []string{endpoint})
}

// DeleteEndpoints removes the user's subscriptions for all endpoints in one statement.
func (r *SubscriptionRepository) DeleteEndpoints(ctx context.Context, userID string, endpoints []string) (int64, error) {
	if len(endpoints) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND endpoint IN ?", userID, endpoints).
		Delete(&models.PushSubscription{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete %d push subscriptions for user %s: %w", len(endpoints), userID, res.Error)
	}
	return res.RowsAffected, nil
}
