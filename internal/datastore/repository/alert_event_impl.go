package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// alertEventRepository implements AlertEventRepository.
type alertEventRepository struct {
	db *gorm.DB
}

// NewAlertEventRepository creates a new AlertEventRepository.
func NewAlertEventRepository(db *gorm.DB) AlertEventRepository {
	return &alertEventRepository{db: db}
}

// CreatePending conditionally creates a PENDING alert event. The insert is
// conditioned on the absence of a row for the (subscription, prediction,
// channel) key, so concurrent re-evaluation of the same prediction never
// double-queues a notification.
func (r *alertEventRepository) CreatePending(ctx context.Context, event *entities.AlertEvent) (bool, error) {
	event.Status = entities.AlertStatusPending
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "subscription_id"}, {Name: "prediction_id"}, {Name: "channel"},
			},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create alert event: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ClaimPending claims up to limit PENDING events for exclusive dispatch.
// The claim is the conditional UPDATE pending→inflight per row: a row whose
// update matched zero rows was taken by another worker and is skipped, so
// the same event is never dispatched twice concurrently even across
// service instances.
func (r *alertEventRepository) ClaimPending(ctx context.Context, limit int) ([]entities.AlertEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	var candidates []entities.AlertEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", entities.AlertStatusPending).
		Order("queued_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending alert events: %w", err)
	}

	var claimedIDs []string
	for i := range candidates {
		result := r.db.WithContext(ctx).
			Model(&entities.AlertEvent{}).
			Where("id = ? AND status = ?", candidates[i].ID, entities.AlertStatusPending).
			Update("status", entities.AlertStatusInflight)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to claim alert event %s: %w", candidates[i].ID, result.Error)
		}
		if result.RowsAffected > 0 {
			claimedIDs = append(claimedIDs, candidates[i].ID)
		}
	}
	if len(claimedIDs) == 0 {
		return nil, nil
	}

	var claimed []entities.AlertEvent
	err = r.db.WithContext(ctx).
		Preload("Subscription").
		Preload("Prediction").
		Where("id IN ?", claimedIDs).
		Order("queued_at ASC").
		Find(&claimed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed alert events: %w", err)
	}
	return claimed, nil
}

// MarkSent finalizes a successful delivery.
func (r *alertEventRepository) MarkSent(ctx context.Context, id string, attempts int, sentAt time.Time) error {
	return r.transition(ctx, id, map[string]any{
		"status":   entities.AlertStatusSent,
		"attempts": attempts,
		"sent_at":  sentAt,
	})
}

// MarkFailed finalizes a delivery terminally, retaining the last error.
func (r *alertEventRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	return r.transition(ctx, id, map[string]any{
		"status":     entities.AlertStatusFailed,
		"attempts":   attempts,
		"last_error": truncateError(lastError),
	})
}

// Release returns an INFLIGHT event to PENDING so a later claim retries it.
func (r *alertEventRepository) Release(ctx context.Context, id string, attempts int, lastError string) error {
	return r.transition(ctx, id, map[string]any{
		"status":     entities.AlertStatusPending,
		"attempts":   attempts,
		"last_error": truncateError(lastError),
	})
}

func (r *alertEventRepository) transition(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&entities.AlertEvent{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update alert event %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertEventNotFound
	}
	return nil
}

// ListBySubscription returns a subscription's alert events, most recent
// first.
func (r *alertEventRepository) ListBySubscription(ctx context.Context, subscriptionID uint, limit int) ([]entities.AlertEvent, error) {
	query := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("queued_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var events []entities.AlertEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert events: %w", err)
	}
	return events, nil
}

// CountByStatus returns alert event counts grouped by status.
func (r *alertEventRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&entities.AlertEvent{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count alert events: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for i := range rows {
		counts[rows[i].Status] = rows[i].Count
	}
	return counts, nil
}

// truncateError bounds stored error text to the column size.
func truncateError(msg string) string {
	const maxLen = 1000
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
