package ensemble

import (
	"context"
	"errors"
	"math"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
)

// Built-in scorers. These are deliberately simple deterministic heuristics
// derived from WMO heavy-rainfall thresholds; production deployments
// register trained models alongside or instead of them.

var (
	errNoRainfallData = errors.New("no rainfall observations in any window")
	errNoSoilData     = errors.New("no soil moisture reading available")
	errNoGaugeData    = errors.New("no gauge level reading available")
)

// RainfallThresholdScorer scores on accumulated rainfall using the WMO
// heavy-rainfall bands: 24h ≥ 150mm or 72h ≥ 300mm is flood-critical
// territory, 24h ≥ 75mm or 72h ≥ 150mm is high, 24h ≥ 30mm is elevated.
type RainfallThresholdScorer struct{}

func (RainfallThresholdScorer) Name() string { return "rainfall-threshold" }

func (RainfallThresholdScorer) Score(ctx context.Context, snapshot *entities.FeatureSnapshot, horizon entities.Horizon) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r24 := snapshot.Rainfall24h
	r72 := snapshot.Rainfall72h
	if !r24.Present && !r72.Present {
		return 0, errNoRainfallData
	}

	switch {
	case (r24.Present && r24.TotalMM >= 150) || (r72.Present && r72.TotalMM >= 300):
		return 0.85, nil
	case (r24.Present && r24.TotalMM >= 75) || (r72.Present && r72.TotalMM >= 150):
		return 0.65, nil
	case r24.Present && r24.TotalMM >= 30:
		return 0.40, nil
	case r24.Present:
		// Scale within the low band so light rain still moves the needle.
		return math.Min(0.20, 0.05+r24.TotalMM/30*0.15), nil
	default:
		return 0.10, nil
	}
}

// SoilSaturationScorer scores on antecedent moisture: saturated soil cannot
// absorb more water, so moderate rain on wet ground outranks heavy rain on
// dry ground.
type SoilSaturationScorer struct{}

func (SoilSaturationScorer) Name() string { return "soil-saturation" }

func (SoilSaturationScorer) Score(ctx context.Context, snapshot *entities.FeatureSnapshot, horizon entities.Horizon) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if snapshot.SoilMoistureCombined == nil {
		return 0, errNoSoilData
	}
	soil := *snapshot.SoilMoistureCombined

	rain24 := 0.0
	if snapshot.Rainfall24h.Present {
		rain24 = snapshot.Rainfall24h.TotalMM
	}

	var p float64
	switch {
	case soil > 0.45 && rain24 >= 15:
		p = 0.75
	case soil > 0.35 && rain24 >= 15:
		p = 0.50
	case soil > 0.35:
		p = 0.30
	default:
		p = 0.15
	}

	// Antecedent precipitation keeps several days of memory; a high index
	// means the catchment is already primed.
	if snapshot.AntecedentPrecipitationIndex != nil && *snapshot.AntecedentPrecipitationIndex > 50 {
		p = math.Min(0.90, p+0.10)
	}
	return p, nil
}

// GaugeStageScorer scores on the river gauge: at flood stage the risk is
// immediate regardless of rainfall, and a fast-rising gauge lags upstream
// rain by hours.
type GaugeStageScorer struct{}

func (GaugeStageScorer) Name() string { return "gauge-stage" }

func (GaugeStageScorer) Score(ctx context.Context, snapshot *entities.FeatureSnapshot, horizon entities.Horizon) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if snapshot.GaugeLevel == nil {
		return 0, errNoGaugeData
	}
	if snapshot.FloodStage {
		return 0.90, nil
	}
	if snapshot.GaugeTrend6h != nil {
		switch trend := *snapshot.GaugeTrend6h; {
		case trend >= 0.3:
			return 0.60, nil
		case trend > 0:
			return 0.35, nil
		}
	}
	return 0.15, nil
}

// DefaultScorers returns the built-in model set registered at startup.
func DefaultScorers() []Scorer {
	return []Scorer{
		RainfallThresholdScorer{},
		SoilSaturationScorer{},
		GaugeStageScorer{},
	}
}
