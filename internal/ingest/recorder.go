// Package ingest records observations into the store, both directly and
// over MQTT.
package ingest

import (
	"context"
	"fmt"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/logger"
)

// Recorder validates and records observations. Duplicate submissions for
// the same (region, time, source) key return the stored row unchanged.
type Recorder struct {
	observations repository.ObservationRepository
	regions      repository.RegionRepository
	log          logger.Logger
}

// NewRecorder creates an observation recorder.
func NewRecorder(observations repository.ObservationRepository, regions repository.RegionRepository, log logger.Logger) *Recorder {
	return &Recorder{
		observations: observations,
		regions:      regions,
		log:          log.Module("ingest"),
	}
}

// Record validates and stores one observation. created is false when the
// key already existed; the returned observation is the stored row either
// way.
func (r *Recorder) Record(ctx context.Context, obs *entities.Observation) (*entities.Observation, bool, error) {
	if err := validate(obs); err != nil {
		return nil, false, err
	}
	if _, err := r.regions.Get(ctx, obs.RegionID); err != nil {
		return nil, false, err
	}

	stored, created, err := r.observations.Record(ctx, obs)
	if err != nil {
		return nil, false, err
	}
	if !created {
		r.log.Debug("duplicate observation ignored",
			logger.Uint64("region_id", uint64(obs.RegionID)),
			logger.String("source", obs.Source),
			logger.Time("time", obs.Time))
	}
	return stored, created, nil
}

// validate rejects observations that cannot be stored meaningfully.
func validate(obs *entities.Observation) error {
	if obs.RegionID == 0 {
		return fmt.Errorf("observation missing region")
	}
	if obs.Time.IsZero() {
		return fmt.Errorf("observation missing timestamp")
	}
	switch obs.Source {
	case entities.SourceWeather, entities.SourceGauge:
	default:
		return fmt.Errorf("unknown observation source %q", obs.Source)
	}
	if obs.Humidity != nil && (*obs.Humidity < 0 || *obs.Humidity > 100) {
		return fmt.Errorf("humidity %v out of range", *obs.Humidity)
	}
	if obs.Precipitation != nil && *obs.Precipitation < 0 {
		return fmt.Errorf("precipitation %v out of range", *obs.Precipitation)
	}
	for name, v := range map[string]*float64{
		"soil_moisture_surface": obs.SoilMoistureSurface,
		"soil_moisture_deep":    obs.SoilMoistureDeep,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s %v out of range", name, *v)
		}
	}
	return nil
}
