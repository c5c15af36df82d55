package entities

import "time"

// Observation sources identify the upstream producer of a record.
const (
	SourceWeather = "weather"
	SourceGauge   = "gauge"
)

// Observation is a single timestamped weather or river-gauge reading for a
// region. Measurement fields are pointers so an absent reading is
// distinguishable from a zero reading. At most one observation exists per
// (region, time, source); rows are immutable once written.
type Observation struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RegionID uint      `gorm:"not null;uniqueIndex:idx_observation_key,priority:1" json:"region_id"`
	Time     time.Time `gorm:"not null;uniqueIndex:idx_observation_key,priority:2;index:idx_observation_region_time" json:"time"`
	Source   string    `gorm:"size:20;not null;uniqueIndex:idx_observation_key,priority:3" json:"source"`

	// Weather fields
	Precipitation       *float64 `json:"precipitation,omitempty"`         // mm over the sample interval
	Temperature         *float64 `json:"temperature,omitempty"`           // °C
	Humidity            *float64 `json:"humidity,omitempty"`              // %
	Pressure            *float64 `json:"pressure,omitempty"`              // hPa
	WindSpeed           *float64 `json:"wind_speed,omitempty"`            // km/h
	SoilMoistureSurface *float64 `json:"soil_moisture_surface,omitempty"` // m³/m³, 0–7cm
	SoilMoistureDeep    *float64 `json:"soil_moisture_deep,omitempty"`    // m³/m³, 7–28cm

	// Gauge fields
	GaugeLevel *float64 `json:"gauge_level,omitempty"` // m
	GaugeFlow  *float64 `json:"gauge_flow,omitempty"`  // m³/s

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Observation) TableName() string {
	return "observations"
}
