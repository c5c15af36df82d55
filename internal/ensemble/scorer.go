// Package ensemble combines independent flood-risk scoring models into a
// single prediction with probability, confidence, and agreement.
package ensemble

import (
	"context"
	"fmt"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
)

// Scorer is the capability each registered model implements: given a
// feature snapshot and horizon, produce a flood probability in [0,1].
// Scorers must respect ctx cancellation; a scorer exceeding its deadline is
// excluded from the ensemble run, not fatal to it.
type Scorer interface {
	Name() string
	Score(ctx context.Context, snapshot *entities.FeatureSnapshot, horizon entities.Horizon) (float64, error)
}

// UnavailableError reports that fewer models succeeded than the configured
// minimum, which fails the whole evaluation cycle. The next scheduled cycle
// retries.
type UnavailableError struct {
	Succeeded int
	Required  int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ensemble unavailable: %d of at least %d required models succeeded", e.Succeeded, e.Required)
}

// ModelScore records one surviving model's output for auditing.
type ModelScore struct {
	Model       string
	Probability float64
}

// Result is the combined ensemble output. Given identical model outputs the
// aggregation is deterministic.
type Result struct {
	Probability    float64
	Confidence     float64
	RiskLevel      entities.RiskLevel
	ModelAgreement bool
	ModelCount     int
	FailedModels   int
	FailedNames    []string
	Scores         []ModelScore
}
