package entities

import (
	"fmt"
	"time"
)

// Horizon is a supported prediction horizon.
type Horizon string

const (
	Horizon24h Horizon = "24h"
	Horizon48h Horizon = "48h"
	Horizon72h Horizon = "72h"
)

// Valid reports whether h is a supported horizon.
func (h Horizon) Valid() bool {
	switch h {
	case Horizon24h, Horizon48h, Horizon72h:
		return true
	default:
		return false
	}
}

// Duration returns the horizon length.
func (h Horizon) Duration() (time.Duration, error) {
	if !h.Valid() {
		return 0, fmt.Errorf("unknown horizon %q", string(h))
	}
	return time.ParseDuration(string(h))
}

// Prediction is one immutable ensemble output for a region, horizon, and
// evaluation cycle. CycleStart is the evaluation timestamp truncated to the
// cycle interval; the unique index on (region, horizon, cycle_start) is the
// cross-instance serialization point for concurrent evaluations.
type Prediction struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	RegionID    uint      `gorm:"not null;uniqueIndex:idx_prediction_cycle,priority:1" json:"region_id"`
	Horizon     Horizon   `gorm:"size:10;not null;uniqueIndex:idx_prediction_cycle,priority:2" json:"horizon"`
	CycleStart  time.Time `gorm:"not null;uniqueIndex:idx_prediction_cycle,priority:3" json:"cycle_start"`
	PredictedAt time.Time `gorm:"not null;index" json:"predicted_at"`

	RiskLevel      RiskLevel `gorm:"size:10;not null" json:"risk_level"`
	Probability    float64   `gorm:"not null" json:"probability"`
	Confidence     float64   `gorm:"not null" json:"confidence"`
	ModelAgreement bool      `gorm:"not null" json:"model_agreement"`

	// Snapshot records the exact feature inputs the ensemble scored.
	Snapshot FeatureSnapshot `gorm:"serializer:json;type:text" json:"snapshot"`

	// ModelCount and FailedModels record ensemble health for auditing.
	ModelCount   int       `gorm:"not null" json:"model_count"`
	FailedModels int       `gorm:"not null;default:0" json:"failed_models"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Prediction) TableName() string {
	return "predictions"
}
