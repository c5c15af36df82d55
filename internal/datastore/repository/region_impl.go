package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"gorm.io/gorm"
)

// regionRepository implements RegionRepository.
type regionRepository struct {
	db *gorm.DB
}

// NewRegionRepository creates a new RegionRepository.
func NewRegionRepository(db *gorm.DB) RegionRepository {
	return &regionRepository{db: db}
}

// Get returns a region by ID, or ErrRegionNotFound.
func (r *regionRepository) Get(ctx context.Context, id uint) (*entities.Region, error) {
	var region entities.Region
	if err := r.db.WithContext(ctx).First(&region, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegionNotFound
		}
		return nil, fmt.Errorf("failed to get region %d: %w", id, err)
	}
	return &region, nil
}

// List returns all regions ordered by ID.
func (r *regionRepository) List(ctx context.Context) ([]entities.Region, error) {
	var regions []entities.Region
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&regions).Error; err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	return regions, nil
}
