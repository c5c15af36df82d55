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

// observationRepository implements ObservationRepository.
type observationRepository struct {
	db *gorm.DB
}

// NewObservationRepository creates a new ObservationRepository.
func NewObservationRepository(db *gorm.DB) ObservationRepository {
	return &observationRepository{db: db}
}

// Record stores an observation, treating a duplicate (region, time, source)
// key as idempotent: the existing row is fetched and returned unchanged.
func (r *observationRepository) Record(ctx context.Context, obs *entities.Observation) (*entities.Observation, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "region_id"}, {Name: "time"}, {Name: "source"},
			},
			DoNothing: true,
		}).
		Create(obs)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to record observation: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return obs, true, nil
	}

	// Conflict: return the row that was already there.
	var existing entities.Observation
	err := r.db.WithContext(ctx).
		Where("region_id = ? AND time = ? AND source = ?", obs.RegionID, obs.Time, obs.Source).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch existing observation: %w", err)
	}
	return &existing, false, nil
}

// GetWindow returns observations with from < time <= to, time ascending.
func (r *observationRepository) GetWindow(ctx context.Context, regionID uint, from, to time.Time) ([]entities.Observation, error) {
	var obs []entities.Observation
	err := r.db.WithContext(ctx).
		Where("region_id = ? AND time > ? AND time <= ?", regionID, from, to).
		Order("time ASC").
		Find(&obs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read observation window: %w", err)
	}
	return obs, nil
}

// Latest returns the most recent observation for a region and source, or
// nil when the region has none.
func (r *observationRepository) Latest(ctx context.Context, regionID uint, source string) (*entities.Observation, error) {
	var obs entities.Observation
	err := r.db.WithContext(ctx).
		Where("region_id = ? AND source = ?", regionID, source).
		Order("time DESC").
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest observation: %w", err)
	}
	return &obs, nil
}
