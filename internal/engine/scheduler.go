package engine

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/logger"
)

// Scheduler runs evaluation cycles for every region and configured horizon
// on the cycle interval.
type Scheduler struct {
	engine   *Engine
	regions  repository.RegionRepository
	horizons []entities.Horizon
	settings conf.EngineSettings
	clock    clockwork.Clock
	log      logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a cycle scheduler. Horizons that are not supported
// are dropped with a warning instead of failing startup.
func NewScheduler(eng *Engine, regions repository.RegionRepository, settings conf.EngineSettings, clock clockwork.Clock, log logger.Logger) *Scheduler {
	s := &Scheduler{
		engine:   eng,
		regions:  regions,
		settings: settings,
		clock:    clock,
		log:      log.Module("engine.scheduler"),
	}
	for _, h := range settings.Horizons {
		horizon := entities.Horizon(h)
		if !horizon.Valid() {
			s.log.Warn("dropping unsupported horizon", logger.String("horizon", h))
			continue
		}
		s.horizons = append(s.horizons, horizon)
	}
	return s
}

// Start runs an immediate evaluation pass and then one per cycle interval
// until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := s.clock.NewTicker(s.settings.CycleInterval.Std())
		defer ticker.Stop()
		s.runCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop cancels the scheduler and waits for the current pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// runCycle evaluates every region and horizon at the current time. Failures
// are logged per pair so one region cannot starve the rest.
func (s *Scheduler) runCycle(ctx context.Context) {
	regions, err := s.regions.List(ctx)
	if err != nil {
		s.log.Error("failed to list regions for cycle", logger.Error(err))
		return
	}
	now := s.clock.Now()
	for i := range regions {
		for _, horizon := range s.horizons {
			if ctx.Err() != nil {
				return
			}
			if _, _, err := s.engine.EvaluateRegion(ctx, regions[i].ID, horizon, now, false); err != nil {
				s.log.Error("evaluation cycle failed",
					logger.Uint64("region_id", uint64(regions[i].ID)),
					logger.String("horizon", string(horizon)),
					logger.Error(err))
			}
		}
	}
}
