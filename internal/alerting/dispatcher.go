package alerting

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/logger"
	"github.com/floodsense/floodsense-go/internal/notification"
	"github.com/floodsense/floodsense-go/internal/telemetry"
)

// Dispatcher drains PENDING alert events and delivers them through the
// registered notifiers. Claims are exclusive, so multiple dispatchers can
// run against the same database without double-sending.
type Dispatcher struct {
	events   repository.AlertEventRepository
	registry *notification.Registry
	metrics  *telemetry.Metrics
	settings conf.DispatchSettings
	clock    clockwork.Clock
	log      logger.Logger

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a dispatcher. The clock is injectable for tests;
// pass clockwork.NewRealClock() in production.
func NewDispatcher(events repository.AlertEventRepository, registry *notification.Registry, metrics *telemetry.Metrics, settings conf.DispatchSettings, clock clockwork.Clock, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		events:   events,
		registry: registry,
		metrics:  metrics,
		settings: settings,
		clock:    clock,
		log:      log.Module("alerting.dispatch"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the poll loop. It returns immediately; delivery happens on
// background goroutines until Stop is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := d.clock.NewTicker(d.settings.PollInterval.Std())
		defer ticker.Stop()
		for {
			d.Drain(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
			case <-d.wake:
			}
		}
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to settle.
// Events still in flight are released back to PENDING.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}

// Poke nudges the dispatcher to drain without waiting for the next tick.
func (d *Dispatcher) Poke() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Drain claims and delivers batches until the PENDING queue is empty or the
// context is cancelled. Safe to call directly in tests.
func (d *Dispatcher) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		claimed, err := d.events.ClaimPending(ctx, d.settings.ClaimBatchSize)
		if err != nil {
			d.log.Error("failed to claim pending alert events", logger.Error(err))
			return
		}
		if len(claimed) == 0 {
			d.updatePendingGauge(ctx)
			return
		}
		d.deliverBatch(ctx, claimed)
	}
}

// deliverBatch fans a claimed batch out over the worker pool and waits for
// every event to reach a terminal state or be released.
func (d *Dispatcher) deliverBatch(ctx context.Context, batch []entities.AlertEvent) {
	workers := d.settings.Workers
	if workers < 1 {
		workers = 1
	}
	queue := make(chan *entities.AlertEvent)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range queue {
				d.deliver(ctx, event)
			}
		}()
	}
	for i := range batch {
		queue <- &batch[i]
	}
	close(queue)
	wg.Wait()
}

// deliver drives one claimed event to SENT, FAILED, or back to PENDING.
func (d *Dispatcher) deliver(ctx context.Context, event *entities.AlertEvent) {
	remaining := d.settings.MaxAttempts - event.Attempts
	if remaining <= 0 {
		d.finalizeFailed(ctx, event, event.Attempts, "attempt budget exhausted")
		return
	}

	notifier, err := d.registry.Get(event.Channel)
	if err != nil {
		d.finalizeFailed(ctx, event, event.Attempts, err.Error())
		return
	}
	msg := RenderMessage(event)

	attempts := event.Attempts
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		start := d.clock.Now()
		err := d.send(ctx, event.Channel, notifier, event.Recipient, msg)
		d.metrics.DispatchDuration.WithLabelValues(event.Channel).
			Observe(d.clock.Since(start).Seconds())
		if err == nil {
			return nil
		}
		if notification.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		d.metrics.DispatchOutcomes.WithLabelValues(event.Channel, telemetry.DispatchOutcomeRetried).Inc()
		d.log.Warn("notification attempt failed",
			logger.String("event_id", event.ID),
			logger.String("channel", event.Channel),
			logger.Int("attempt", attempts),
			logger.Error(err))
		return err
	}

	err = backoff.Retry(operation, d.newBackoff(ctx, remaining))
	switch {
	case err == nil:
		d.metrics.DispatchOutcomes.WithLabelValues(event.Channel, telemetry.DispatchOutcomeSent).Inc()
		if err := d.events.MarkSent(ctx, event.ID, attempts, d.clock.Now()); err != nil {
			d.log.Error("failed to mark alert event sent",
				logger.String("event_id", event.ID), logger.Error(err))
		}
	case ctx.Err() != nil:
		// Shutdown mid-delivery. Hand the event back so another run picks
		// it up with the attempt count preserved.
		if relErr := d.events.Release(context.WithoutCancel(ctx), event.ID, attempts, err.Error()); relErr != nil {
			d.log.Error("failed to release alert event",
				logger.String("event_id", event.ID), logger.Error(relErr))
		}
	default:
		d.finalizeFailed(ctx, event, attempts, err.Error())
	}
}

func (d *Dispatcher) finalizeFailed(ctx context.Context, event *entities.AlertEvent, attempts int, lastError string) {
	d.metrics.DispatchOutcomes.WithLabelValues(event.Channel, telemetry.DispatchOutcomeFailed).Inc()
	d.log.Error("alert event failed terminally",
		logger.String("event_id", event.ID),
		logger.String("channel", event.Channel),
		logger.Int("attempts", attempts),
		logger.String("last_error", lastError))
	if err := d.events.MarkFailed(context.WithoutCancel(ctx), event.ID, attempts, lastError); err != nil {
		d.log.Error("failed to mark alert event failed",
			logger.String("event_id", event.ID), logger.Error(err))
	}
}

// send routes the attempt through the channel's circuit breaker. An open
// breaker rejects immediately with a transient error so the event retries
// after the cooldown.
func (d *Dispatcher) send(ctx context.Context, channel string, notifier notification.Notifier, recipient string, msg notification.Message) error {
	breaker := d.breakerFor(channel)
	_, err := breaker.Execute(func() (any, error) {
		return nil, notifier.Send(ctx, recipient, msg)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return notification.Transient(fmt.Errorf("channel %s circuit open: %w", channel, err))
	}
	return err
}

func (d *Dispatcher) breakerFor(channel string) *gobreaker.CircuitBreaker {
	d.breakerMu.Lock()
	defer d.breakerMu.Unlock()
	if breaker, ok := d.breakers[channel]; ok {
		return breaker
	}
	threshold := d.settings.BreakerThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    channel,
		Timeout: d.settings.BreakerCooldown.Std(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Provider rejections do not indicate an unhealthy channel.
		IsSuccessful: func(err error) bool {
			return err == nil || notification.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Warn("notification channel breaker state change",
				logger.String("channel", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	d.breakers[channel] = breaker
	return breaker
}

// newBackoff builds the retry schedule for one delivery: exponential from
// the configured initial interval, capped, and bounded by the remaining
// attempt budget.
func (d *Dispatcher) newBackoff(ctx context.Context, remainingAttempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.settings.InitialBackoff.Std()
	exp.Multiplier = d.settings.BackoffMultiplier
	exp.MaxInterval = d.settings.MaxBackoff.Std()
	exp.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(remainingAttempts-1))
	return backoff.WithContext(b, ctx)
}

func (d *Dispatcher) updatePendingGauge(ctx context.Context) {
	counts, err := d.events.CountByStatus(ctx)
	if err != nil {
		return
	}
	d.metrics.PendingEvents.Set(float64(counts[entities.AlertStatusPending]))
}
