// Package engine runs evaluation cycles: feature aggregation, ensemble
// scoring, prediction recording, and alert fan-out.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	gocache "github.com/patrickmn/go-cache"

	"github.com/floodsense/floodsense-go/internal/alerting"
	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/ensemble"
	"github.com/floodsense/floodsense-go/internal/errors"
	"github.com/floodsense/floodsense-go/internal/features"
	"github.com/floodsense/floodsense-go/internal/logger"
	"github.com/floodsense/floodsense-go/internal/telemetry"
)

// dispatchWaker is the slice of the dispatcher the engine needs: a nudge
// after queueing events so delivery starts without waiting for a poll tick.
type dispatchWaker interface {
	Poke()
}

// Engine evaluates flood risk for regions and records the results.
type Engine struct {
	aggregator  *features.Aggregator
	ensemble    *ensemble.Ensemble
	predictions repository.PredictionRepository
	evaluator   *alerting.Evaluator
	ledger      *alerting.Ledger
	dispatcher  dispatchWaker
	metrics     *telemetry.Metrics
	settings    conf.EngineSettings
	clock       clockwork.Clock
	cache       *gocache.Cache
	log         logger.Logger
}

// New wires the evaluation pipeline.
func New(aggregator *features.Aggregator, ens *ensemble.Ensemble, predictions repository.PredictionRepository, evaluator *alerting.Evaluator, ledger *alerting.Ledger, dispatcher dispatchWaker, metrics *telemetry.Metrics, settings conf.EngineSettings, clock clockwork.Clock, log logger.Logger) *Engine {
	ttl := settings.PredictionCacheTTL.Std()
	return &Engine{
		aggregator:  aggregator,
		ensemble:    ens,
		predictions: predictions,
		evaluator:   evaluator,
		ledger:      ledger,
		dispatcher:  dispatcher,
		metrics:     metrics,
		settings:    settings,
		clock:       clock,
		cache:       gocache.New(ttl, 2*ttl),
		log:         log.Module("engine"),
	}
}

// EvaluateRegion runs one evaluation cycle for a region and horizon at the
// given timestamp. The cycle identity is the timestamp truncated to the
// cycle interval; when a prediction already exists for that cycle the
// existing one is returned with created false and no new alerts are queued.
// force re-runs alert evaluation against the existing prediction, which
// only queues events for subscriptions that have none yet.
func (e *Engine) EvaluateRegion(ctx context.Context, regionID uint, horizon entities.Horizon, now time.Time, force bool) (pred *entities.Prediction, created bool, err error) {
	if !horizon.Valid() {
		return nil, false, fmt.Errorf("unknown horizon %q", string(horizon))
	}
	cycleStart := now.Truncate(e.settings.CycleInterval.Std())

	snapshot, err := e.aggregator.Snapshot(ctx, regionID, now)
	var result *ensemble.Result
	var gapErr *features.DataGapError
	switch {
	case errors.As(err, &gapErr):
		// Too much data missing to score. Record a maximum-uncertainty
		// prediction rather than leaving the cycle blank.
		result = ensemble.Degraded()
		e.metrics.EvaluationCycles.WithLabelValues(string(horizon), telemetry.CycleOutcomeDataGap).Inc()
		e.log.Warn("degraded prediction after data gap",
			logger.Uint64("region_id", uint64(regionID)),
			logger.String("horizon", string(horizon)),
			logger.Float64("gap_ratio", gapErr.GapRatio))
	case err != nil:
		e.metrics.EvaluationCycles.WithLabelValues(string(horizon), telemetry.CycleOutcomeFailed).Inc()
		return nil, false, err
	default:
		result, err = e.ensemble.Score(ctx, snapshot, horizon)
		if err != nil {
			e.metrics.EvaluationCycles.WithLabelValues(string(horizon), telemetry.CycleOutcomeFailed).Inc()
			return nil, false, errors.New(err).
				Component("engine").
				Category(errors.CategoryEnsemble).
				Context("region_id", regionID).
				Context("horizon", string(horizon)).
				Build()
		}
		for _, model := range result.FailedNames {
			e.metrics.ModelFailures.WithLabelValues(model).Inc()
		}
	}

	pred = &entities.Prediction{
		ID:             uuid.NewString(),
		RegionID:       regionID,
		Horizon:        horizon,
		CycleStart:     cycleStart,
		PredictedAt:    now,
		RiskLevel:      result.RiskLevel,
		Probability:    result.Probability,
		Confidence:     result.Confidence,
		ModelAgreement: result.ModelAgreement,
		Snapshot:       *snapshot,
		ModelCount:     result.ModelCount,
		FailedModels:   result.FailedModels,
	}

	if err := e.predictions.Create(ctx, pred); err != nil {
		if errors.Is(err, repository.ErrDuplicatePrediction) {
			existing, getErr := e.predictions.GetByCycle(ctx, regionID, horizon, cycleStart)
			if getErr != nil {
				return nil, false, getErr
			}
			e.metrics.EvaluationCycles.WithLabelValues(string(horizon), telemetry.CycleOutcomeDuplicate).Inc()
			e.log.Info("cycle already evaluated",
				logger.Uint64("region_id", uint64(regionID)),
				logger.String("horizon", string(horizon)),
				logger.Time("cycle_start", cycleStart))
			if force {
				// Re-evaluation queues nothing for subscriptions that
				// already have events; only newly added ones gain any.
				e.queueAlerts(ctx, existing)
			}
			return existing, false, nil
		}
		e.metrics.EvaluationCycles.WithLabelValues(string(horizon), telemetry.CycleOutcomeFailed).Inc()
		return nil, false, err
	}
	e.cache.SetDefault(predictionCacheKey(regionID, horizon), pred)

	queued := e.queueAlerts(ctx, pred)

	e.metrics.EvaluationCycles.WithLabelValues(string(horizon), telemetry.CycleOutcomeOK).Inc()
	e.log.Info("evaluation cycle complete",
		logger.Uint64("region_id", uint64(regionID)),
		logger.String("horizon", string(horizon)),
		logger.String("risk_level", pred.RiskLevel.String()),
		logger.Float64("probability", pred.Probability),
		logger.Float64("confidence", pred.Confidence),
		logger.Int("alerts_queued", queued))
	return pred, true, nil
}

// queueAlerts runs alert evaluation for a prediction and wakes the
// dispatcher when anything new was queued. Queueing failures are logged,
// not propagated: the prediction is already recorded and a later
// evaluation retries through the uniqueness key.
func (e *Engine) queueAlerts(ctx context.Context, pred *entities.Prediction) int {
	decisions, err := e.evaluator.Evaluate(ctx, pred)
	if err != nil {
		e.log.Error("alert evaluation incomplete",
			logger.Uint64("region_id", uint64(pred.RegionID)),
			logger.String("prediction_id", pred.ID),
			logger.Error(err))
	}
	queued := 0
	for i := range decisions {
		queued += len(decisions[i].Queued)
	}
	if queued > 0 && e.dispatcher != nil {
		e.dispatcher.Poke()
	}
	return queued
}

// GetPrediction returns the most recent prediction for a region and
// horizon, served from a short-lived cache to keep read traffic off the
// database between cycles.
func (e *Engine) GetPrediction(ctx context.Context, regionID uint, horizon entities.Horizon) (*entities.Prediction, error) {
	key := predictionCacheKey(regionID, horizon)
	if cached, ok := e.cache.Get(key); ok {
		return cached.(*entities.Prediction), nil
	}
	pred, err := e.predictions.Latest(ctx, regionID, horizon)
	if err != nil {
		return nil, err
	}
	e.cache.SetDefault(key, pred)
	return pred, nil
}

// GetAlertHistory returns a subscription's alert events, most recent first.
func (e *Engine) GetAlertHistory(ctx context.Context, subscriptionID uint, limit int) ([]entities.AlertEvent, error) {
	return e.ledger.History(ctx, subscriptionID, limit)
}

func predictionCacheKey(regionID uint, horizon entities.Horizon) string {
	return fmt.Sprintf("%d/%s", regionID, horizon)
}
