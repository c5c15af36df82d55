package repository

import (
	"context"
	"fmt"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"gorm.io/gorm"
)

// subscriptionRepository implements SubscriptionRepository.
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// ListActive returns the active subscriptions for a region ordered by ID.
func (r *subscriptionRepository) ListActive(ctx context.Context, regionID uint) ([]entities.Subscription, error) {
	var subs []entities.Subscription
	err := r.db.WithContext(ctx).
		Where("region_id = ? AND active = ?", regionID, true).
		Order("id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}
