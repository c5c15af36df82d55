// Package features computes the derived feature snapshot that feeds the
// risk ensemble. Flood risk tracks accumulated moisture over time, not just
// current rainfall, so the aggregator builds rolling rainfall windows and
// antecedent conditions rather than point readings alone.
package features

import (
	"context"
	"fmt"
	"time"

	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/logger"
)

const (
	// apiDecay is the antecedent precipitation index decay constant:
	// yesterday's rain keeps 85% of its weight per step.
	apiDecay = 0.85
	// gaugeTrendWindow is the trailing window for the gauge level trend.
	gaugeTrendWindow = 6 * time.Hour
	// widestWindow is the longest rainfall accumulation window; it bounds
	// the single observation read per snapshot.
	widestWindow = 72 * time.Hour
)

// DataGapError reports that too many expected observations were missing to
// aggregate features. It is recoverable: the ensemble degrades the
// prediction's confidence instead of blocking the cycle.
type DataGapError struct {
	RegionID uint
	GapRatio float64
	Expected int
	Observed int
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("region %d: %.0f%% of expected samples missing (%d of %d present)",
		e.RegionID, e.GapRatio*100, e.Observed, e.Expected)
}

// Aggregator computes feature snapshots from the observation store.
type Aggregator struct {
	observations   repository.ObservationRepository
	regions        repository.RegionRepository
	sampleInterval time.Duration
	maxGapRatio    float64
	log            logger.Logger
}

// NewAggregator creates a feature aggregator.
func NewAggregator(observations repository.ObservationRepository, regions repository.RegionRepository, settings *conf.FeatureSettings, log logger.Logger) *Aggregator {
	return &Aggregator{
		observations:   observations,
		regions:        regions,
		sampleInterval: settings.SampleInterval.Std(),
		maxGapRatio:    settings.MaxGapRatio,
		log:            log.Module("features"),
	}
}

// Snapshot computes the feature snapshot for a region at the evaluation
// timestamp. When the missing-data ratio exceeds the configured ceiling the
// returned error is a *DataGapError and the snapshot still carries whatever
// partial features were computable, so callers can degrade rather than
// block.
func (a *Aggregator) Snapshot(ctx context.Context, regionID uint, now time.Time) (*entities.FeatureSnapshot, error) {
	region, err := a.regions.Get(ctx, regionID)
	if err != nil {
		return nil, err
	}

	obs, err := a.observations.GetWindow(ctx, regionID, now.Add(-widestWindow), now)
	if err != nil {
		return nil, err
	}

	snapshot := &entities.FeatureSnapshot{
		RegionID:    regionID,
		EvaluatedAt: now,
		Rainfall1h:  rainfallWindow(obs, now, time.Hour),
		Rainfall24h: rainfallWindow(obs, now, 24*time.Hour),
		Rainfall72h: rainfallWindow(obs, now, widestWindow),
	}

	snapshot.AntecedentPrecipitationIndex = antecedentIndex(obs)
	a.fillLatestReadings(snapshot, obs)
	snapshot.GaugeTrend6h = gaugeTrend(obs, now)

	if region.FloodStageM > 0 && snapshot.GaugeLevel != nil {
		snapshot.FloodStage = *snapshot.GaugeLevel >= region.FloodStageM
	}

	expected := int(widestWindow / a.sampleInterval)
	observed := len(obs)
	if observed > expected {
		observed = expected
	}
	if expected > 0 {
		snapshot.GapRatio = 1 - float64(observed)/float64(expected)
	}

	if snapshot.GapRatio > a.maxGapRatio {
		a.log.Warn("missing-data ceiling exceeded",
			logger.Uint64("region_id", uint64(regionID)),
			logger.Float64("gap_ratio", snapshot.GapRatio),
			logger.Float64("ceiling", a.maxGapRatio))
		return snapshot, &DataGapError{
			RegionID: regionID,
			GapRatio: snapshot.GapRatio,
			Expected: expected,
			Observed: observed,
		}
	}
	return snapshot, nil
}

// rainfallWindow sums precipitation readings inside the trailing window.
// A window with zero readings is marked absent, not zero.
func rainfallWindow(obs []entities.Observation, now time.Time, window time.Duration) entities.RainfallWindow {
	cutoff := now.Add(-window)
	result := entities.RainfallWindow{}
	for i := range obs {
		if obs[i].Precipitation == nil || !obs[i].Time.After(cutoff) {
			continue
		}
		result.TotalMM += *obs[i].Precipitation
		result.Samples++
	}
	result.Present = result.Samples > 0
	return result
}

// antecedentIndex folds API_t = k·(API_{t-1} + P_t) over the rainfall
// samples in time order. Nil without any rainfall readings.
func antecedentIndex(obs []entities.Observation) *float64 {
	var api float64
	seen := false
	for i := range obs { // obs is time-ascending
		if obs[i].Precipitation == nil {
			continue
		}
		api = apiDecay * (api + *obs[i].Precipitation)
		seen = true
	}
	if !seen {
		return nil
	}
	return &api
}

// fillLatestReadings takes the most recent non-nil value for each point
// measurement and derives the combined soil moisture (0.6 surface +
// 0.4 deep, surface standing in when deep is missing).
func (a *Aggregator) fillLatestReadings(snapshot *entities.FeatureSnapshot, obs []entities.Observation) {
	for i := len(obs) - 1; i >= 0; i-- {
		o := &obs[i]
		if snapshot.Temperature == nil && o.Temperature != nil {
			snapshot.Temperature = o.Temperature
		}
		if snapshot.Humidity == nil && o.Humidity != nil {
			snapshot.Humidity = o.Humidity
		}
		if snapshot.Pressure == nil && o.Pressure != nil {
			snapshot.Pressure = o.Pressure
		}
		if snapshot.WindSpeed == nil && o.WindSpeed != nil {
			snapshot.WindSpeed = o.WindSpeed
		}
		if snapshot.SoilMoistureSurface == nil && o.SoilMoistureSurface != nil {
			snapshot.SoilMoistureSurface = o.SoilMoistureSurface
		}
		if snapshot.SoilMoistureDeep == nil && o.SoilMoistureDeep != nil {
			snapshot.SoilMoistureDeep = o.SoilMoistureDeep
		}
		if snapshot.GaugeLevel == nil && o.GaugeLevel != nil {
			snapshot.GaugeLevel = o.GaugeLevel
		}
		if snapshot.GaugeFlow == nil && o.GaugeFlow != nil {
			snapshot.GaugeFlow = o.GaugeFlow
		}
	}

	if snapshot.SoilMoistureSurface != nil {
		deep := *snapshot.SoilMoistureSurface
		if snapshot.SoilMoistureDeep != nil {
			deep = *snapshot.SoilMoistureDeep
		}
		combined := 0.6**snapshot.SoilMoistureSurface + 0.4*deep
		snapshot.SoilMoistureCombined = &combined
	}
}

// gaugeTrend returns the gauge level change across the trailing six hours.
// Nil without at least two gauge readings in the window.
func gaugeTrend(obs []entities.Observation, now time.Time) *float64 {
	cutoff := now.Add(-gaugeTrendWindow)
	var first, last *float64
	for i := range obs {
		if obs[i].GaugeLevel == nil || !obs[i].Time.After(cutoff) {
			continue
		}
		if first == nil {
			first = obs[i].GaugeLevel
		}
		last = obs[i].GaugeLevel
	}
	if first == nil || last == nil || first == last {
		return nil
	}
	trend := *last - *first
	return &trend
}
