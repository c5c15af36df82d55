package entities

import "time"

// RainfallWindow is a rolling rainfall accumulation over a trailing window.
// Present is false when the window held no observations at all; an absent
// window is never treated as zero rainfall.
type RainfallWindow struct {
	Present bool    `json:"present"`
	TotalMM float64 `json:"total_mm"`
	Samples int     `json:"samples"`
}

// FeatureSnapshot holds the derived inputs to risk scoring at one evaluation
// instant. It is computed fresh per cycle, embedded into the Prediction
// record as JSON, and never mutated.
type FeatureSnapshot struct {
	RegionID    uint      `json:"region_id"`
	EvaluatedAt time.Time `json:"evaluated_at"`

	Rainfall1h  RainfallWindow `json:"rainfall_1h"`
	Rainfall24h RainfallWindow `json:"rainfall_24h"`
	Rainfall72h RainfallWindow `json:"rainfall_72h"`

	// AntecedentPrecipitationIndex is the classic hydrology decay metric
	// API_t = k·(API_{t-1} + P_t) computed over the 72h window. Nil when no
	// rainfall observations exist.
	AntecedentPrecipitationIndex *float64 `json:"antecedent_precipitation_index,omitempty"`

	// Latest point readings. Nil means no observation carried the field.
	Temperature          *float64 `json:"temperature,omitempty"`
	Humidity             *float64 `json:"humidity,omitempty"`
	Pressure             *float64 `json:"pressure,omitempty"`
	WindSpeed            *float64 `json:"wind_speed,omitempty"`
	SoilMoistureSurface  *float64 `json:"soil_moisture_surface,omitempty"`
	SoilMoistureDeep     *float64 `json:"soil_moisture_deep,omitempty"`
	SoilMoistureCombined *float64 `json:"soil_moisture_combined,omitempty"`
	GaugeLevel           *float64 `json:"gauge_level,omitempty"`
	GaugeFlow            *float64 `json:"gauge_flow,omitempty"`

	// GaugeTrend6h is the gauge level change over the trailing six hours,
	// in metres. Nil without at least two gauge readings in the window.
	GaugeTrend6h *float64 `json:"gauge_trend_6h,omitempty"`

	// FloodStage is true when the latest gauge level meets or exceeds the
	// region's calibrated flood stage.
	FloodStage bool `json:"flood_stage"`

	// GapRatio is the fraction of expected samples missing from the widest
	// window. The ensemble folds it into prediction confidence.
	GapRatio float64 `json:"gap_ratio"`
}
