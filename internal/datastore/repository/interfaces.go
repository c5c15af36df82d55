// Package repository defines persistence interfaces and their GORM
// implementations for the prediction and alert dispatch engine.
package repository

import (
	"context"
	"time"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
)

// RegionRepository reads the static region reference data.
type RegionRepository interface {
	Get(ctx context.Context, id uint) (*entities.Region, error)
	List(ctx context.Context) ([]entities.Region, error)
}

// ObservationRepository handles the append-only observation time series.
type ObservationRepository interface {
	// Record stores an observation. Recording a duplicate
	// (region, time, source) key is idempotent: the existing row is
	// returned and created is false.
	Record(ctx context.Context, obs *entities.Observation) (stored *entities.Observation, created bool, err error)

	// GetWindow returns observations for a region with from < time <= to,
	// ordered by time ascending.
	GetWindow(ctx context.Context, regionID uint, from, to time.Time) ([]entities.Observation, error)

	// Latest returns the most recent observation for a region and source,
	// or nil when none exists.
	Latest(ctx context.Context, regionID uint, source string) (*entities.Observation, error)
}

// PredictionRepository owns Prediction writes.
type PredictionRepository interface {
	// Create stores a prediction. A concurrent or duplicate evaluation for
	// the same (region, horizon, cycle) returns ErrDuplicatePrediction.
	Create(ctx context.Context, pred *entities.Prediction) error

	// GetByCycle returns the prediction for an exact cycle key.
	GetByCycle(ctx context.Context, regionID uint, horizon entities.Horizon, cycleStart time.Time) (*entities.Prediction, error)

	// Latest returns the most recent prediction for a region and horizon,
	// or ErrPredictionNotFound.
	Latest(ctx context.Context, regionID uint, horizon entities.Horizon) (*entities.Prediction, error)
}

// SubscriptionRepository reads externally-managed subscriptions.
type SubscriptionRepository interface {
	ListActive(ctx context.Context, regionID uint) ([]entities.Subscription, error)
}

// AlertEventRepository owns AlertEvent creation and state transitions.
type AlertEventRepository interface {
	// CreatePending conditionally creates a PENDING event. created is false
	// when an event already exists for the (subscription, prediction,
	// channel) key, which is not an error.
	CreatePending(ctx context.Context, event *entities.AlertEvent) (created bool, err error)

	// ClaimPending atomically transitions up to limit PENDING events to
	// INFLIGHT and returns them with subscription and prediction preloaded.
	// Each returned event is claimed exclusively by this caller.
	ClaimPending(ctx context.Context, limit int) ([]entities.AlertEvent, error)

	// MarkSent finalizes a successful delivery.
	MarkSent(ctx context.Context, id string, attempts int, sentAt time.Time) error

	// MarkFailed finalizes a delivery terminally.
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error

	// Release returns an INFLIGHT event to PENDING after a transient
	// failure, recording the attempt count and last error.
	Release(ctx context.Context, id string, attempts int, lastError string) error

	// ListBySubscription returns a subscription's alert events, most recent
	// first.
	ListBySubscription(ctx context.Context, subscriptionID uint, limit int) ([]entities.AlertEvent, error)

	// CountByStatus returns event counts grouped by status.
	CountByStatus(ctx context.Context) (map[string]int64, error)
}
