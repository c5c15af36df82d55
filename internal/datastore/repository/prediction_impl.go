package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// predictionRepository implements PredictionRepository.
type predictionRepository struct {
	db *gorm.DB
}

// NewPredictionRepository creates a new PredictionRepository.
func NewPredictionRepository(db *gorm.DB) PredictionRepository {
	return &predictionRepository{db: db}
}

// Create stores a prediction. The insert is conditioned on the absence of a
// row for the (region, horizon, cycle_start) key; losing the race returns
// ErrDuplicatePrediction instead of overwriting, so a concurrent duplicate
// evaluation can fetch the winner's record.
func (r *predictionRepository) Create(ctx context.Context, pred *entities.Prediction) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "region_id"}, {Name: "horizon"}, {Name: "cycle_start"},
			},
			DoNothing: true,
		}).
		Create(pred)
	if result.Error != nil {
		return fmt.Errorf("failed to create prediction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicatePrediction
	}
	return nil
}

// GetByCycle returns the prediction for an exact cycle key, or
// ErrPredictionNotFound.
func (r *predictionRepository) GetByCycle(ctx context.Context, regionID uint, horizon entities.Horizon, cycleStart time.Time) (*entities.Prediction, error) {
	var pred entities.Prediction
	err := r.db.WithContext(ctx).
		Where("region_id = ? AND horizon = ? AND cycle_start = ?", regionID, horizon, cycleStart).
		First(&pred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPredictionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction for cycle: %w", err)
	}
	return &pred, nil
}

// Latest returns the most recent prediction for a region and horizon, or
// ErrPredictionNotFound.
func (r *predictionRepository) Latest(ctx context.Context, regionID uint, horizon entities.Horizon) (*entities.Prediction, error) {
	var pred entities.Prediction
	err := r.db.WithContext(ctx).
		Where("region_id = ? AND horizon = ?", regionID, horizon).
		Order("cycle_start DESC").
		First(&pred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPredictionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest prediction: %w", err)
	}
	return &pred, nil
}
