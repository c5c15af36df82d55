package ensemble

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/logger"
)

// degradedProbability is the maximum-uncertainty probability used when
// aggregation failed on a data gap and no model output exists.
const (
	degradedProbability = 0.5
	degradedConfidence  = 0.1
)

// Ensemble runs the registered scorers concurrently and aggregates their
// outputs.
type Ensemble struct {
	scorers       []Scorer
	minModels     int
	modelTimeout  time.Duration
	maxConcurrent int
	log           logger.Logger
}

// New creates an ensemble over the explicitly registered scorers. There is
// no runtime model discovery; the caller wires every scorer at startup.
func New(settings *conf.EnsembleSettings, log logger.Logger, scorers ...Scorer) *Ensemble {
	maxConcurrent := settings.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Ensemble{
		scorers:       scorers,
		minModels:     settings.MinModels,
		modelTimeout:  settings.ModelTimeout.Std(),
		maxConcurrent: maxConcurrent,
		log:           log.Module("ensemble"),
	}
}

type modelOutcome struct {
	name        string
	probability float64
	err         error
}

// Score runs every registered scorer over the snapshot with a bounded
// worker pool and a per-model timeout, then aggregates the survivors.
// A failed or timed-out model is excluded and logged; the run only fails
// (with *UnavailableError) when fewer than the configured minimum survive.
func (e *Ensemble) Score(ctx context.Context, snapshot *entities.FeatureSnapshot, horizon entities.Horizon) (*Result, error) {
	outcomes := make(chan modelOutcome, len(e.scorers))
	sem := make(chan struct{}, e.maxConcurrent)

	for _, scorer := range e.scorers {
		sem <- struct{}{}
		go func(s Scorer) {
			defer func() { <-sem }()
			scoreCtx := ctx
			var cancel context.CancelFunc
			if e.modelTimeout > 0 {
				scoreCtx, cancel = context.WithTimeout(ctx, e.modelTimeout)
				defer cancel()
			}
			p, err := s.Score(scoreCtx, snapshot, horizon)
			outcomes <- modelOutcome{name: s.Name(), probability: p, err: err}
		}(scorer)
	}

	var scores []ModelScore
	var failedNames []string
	for range e.scorers {
		outcome := <-outcomes
		if outcome.err != nil {
			failedNames = append(failedNames, outcome.name)
			e.log.Warn("model excluded from ensemble run",
				logger.String("model", outcome.name),
				logger.Error(outcome.err))
			continue
		}
		scores = append(scores, ModelScore{
			Model:       outcome.name,
			Probability: clamp01(outcome.probability),
		})
	}

	if len(scores) < e.minModels {
		return nil, &UnavailableError{Succeeded: len(scores), Required: e.minModels}
	}

	// Stable audit order regardless of completion order.
	sort.Slice(scores, func(i, j int) bool { return scores[i].Model < scores[j].Model })

	result := aggregate(scores, len(e.scorers), snapshot.GapRatio)
	result.FailedModels = len(failedNames)
	result.FailedNames = failedNames
	return result, nil
}

// Degraded builds the prediction result used when aggregation failed on a
// data gap: maximum-uncertainty probability with floor confidence, so the
// cycle records a usable prediction instead of blocking silently.
func Degraded() *Result {
	return &Result{
		Probability:    degradedProbability,
		Confidence:     degradedConfidence,
		RiskLevel:      entities.RiskLevelForProbability(degradedProbability),
		ModelAgreement: false,
	}
}

// aggregate combines surviving model probabilities. There is no randomness
// here: probability is the mean, risk level comes from the fixed
// thresholds, confidence shrinks with model disagreement (stddev), model
// exclusions, and the snapshot's missing-data ratio.
func aggregate(scores []ModelScore, registered int, gapRatio float64) *Result {
	var sum float64
	for i := range scores {
		sum += scores[i].Probability
	}
	mean := sum / float64(len(scores))

	var variance float64
	for i := range scores {
		d := scores[i].Probability - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(scores)))

	confidence := 1 - math.Min(stddev, 1)
	if registered > 0 {
		confidence *= float64(len(scores)) / float64(registered)
	}
	if gapRatio > 0 {
		confidence *= 1 - gapRatio/2
	}

	riskLevel := entities.RiskLevelForProbability(mean)
	agreement := true
	for i := range scores {
		if entities.RiskLevelForProbability(scores[i].Probability) != riskLevel {
			agreement = false
			break
		}
	}

	return &Result{
		Probability:    mean,
		Confidence:     clamp01(confidence),
		RiskLevel:      riskLevel,
		ModelAgreement: agreement,
		ModelCount:     len(scores),
		Scores:         scores,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
