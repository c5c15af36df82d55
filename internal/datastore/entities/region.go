package entities

import "time"

// Region is a monitored geographic area. Regions are created by the admin
// workflow and are read-only to the prediction engine.
type Region struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Latitude   float64   `gorm:"not null" json:"latitude"`
	Longitude  float64   `gorm:"not null" json:"longitude"`
	ElevationM float64   `gorm:"default:0" json:"elevation_m"`
	Population int64     `gorm:"default:0" json:"population"`
	// FloodStageM is the gauge level at which the river is considered at
	// flood stage. Zero means no gauge is calibrated for this region.
	FloodStageM float64   `gorm:"default:0" json:"flood_stage_m"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Region) TableName() string {
	return "regions"
}
