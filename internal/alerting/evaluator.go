// Package alerting turns recorded predictions into queued, de-duplicated
// alert events and drives their delivery.
package alerting

import (
	"context"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/errors"
	"github.com/floodsense/floodsense-go/internal/logger"
	"github.com/floodsense/floodsense-go/internal/telemetry"
	"github.com/google/uuid"
)

// Decision outcomes for a (subscription, prediction) pair.
const (
	OutcomeSkipped = "skipped"
	OutcomeQueued  = "queued"
)

// Decision records how one subscription was handled for a prediction.
type Decision struct {
	SubscriptionID uint
	Outcome        string
	// Queued lists the channels for which a new PENDING event was created.
	// Channels already queued by an earlier evaluation are not repeated.
	Queued []string
}

// Evaluator compares new predictions against active subscriptions and
// queues PENDING alert events. It exclusively owns AlertEvent creation.
type Evaluator struct {
	subscriptions repository.SubscriptionRepository
	events        repository.AlertEventRepository
	metrics       *telemetry.Metrics
	log           logger.Logger
}

// NewEvaluator creates an alert evaluator.
func NewEvaluator(subscriptions repository.SubscriptionRepository, events repository.AlertEventRepository, metrics *telemetry.Metrics, log logger.Logger) *Evaluator {
	return &Evaluator{
		subscriptions: subscriptions,
		events:        events,
		metrics:       metrics,
		log:           log.Module("alerting"),
	}
}

// Evaluate queues one PENDING alert event per enabled channel for every
// active subscription whose threshold the prediction meets. Creation is
// conditioned on the (subscription, prediction, channel) uniqueness key, so
// running Evaluate twice on the same prediction queues nothing new.
// Per-subscription failures are collected, never aborting the batch.
func (e *Evaluator) Evaluate(ctx context.Context, pred *entities.Prediction) ([]Decision, error) {
	subs, err := e.subscriptions.ListActive(ctx, pred.RegionID)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, 0, len(subs))
	var errs []error
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return decisions, err
		}
		decision, err := e.evaluateSubscription(ctx, pred, &subs[i])
		if err != nil {
			errs = append(errs, err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, errors.Join(errs...)
}

func (e *Evaluator) evaluateSubscription(ctx context.Context, pred *entities.Prediction, sub *entities.Subscription) (Decision, error) {
	decision := Decision{SubscriptionID: sub.ID, Outcome: OutcomeSkipped}
	if !pred.RiskLevel.AtLeast(sub.Threshold) {
		return decision, nil
	}
	decision.Outcome = OutcomeQueued

	var errs []error
	for _, channel := range e.channelsFor(sub) {
		created, err := e.events.CreatePending(ctx, &entities.AlertEvent{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			PredictionID:   pred.ID,
			Channel:        channel.name,
			Recipient:      channel.recipient,
			QueuedAt:       pred.PredictedAt,
		})
		if err != nil {
			errs = append(errs, errors.New(err).
				Component("alert-evaluator").
				Category(errors.CategoryDatabase).
				Context("subscription_id", sub.ID).
				Context("channel", channel.name).
				Build())
			continue
		}
		if created {
			decision.Queued = append(decision.Queued, channel.name)
			e.metrics.AlertsQueued.WithLabelValues(channel.name).Inc()
		}
	}
	return decision, errors.Join(errs...)
}

type channelTarget struct {
	name      string
	recipient string
}

// channelsFor returns the deliverable channels for a subscription. A
// subscription with a channel enabled but no usable recipient is skipped
// for that channel with a warning, not an error.
func (e *Evaluator) channelsFor(sub *entities.Subscription) []channelTarget {
	var targets []channelTarget
	if sub.EmailEnabled {
		if sub.EmailAddress == "" {
			e.log.Warn("subscription has email enabled but no address",
				logger.Uint64("subscription_id", uint64(sub.ID)))
		} else {
			targets = append(targets, channelTarget{entities.ChannelEmail, sub.EmailAddress})
		}
	}
	if sub.SMSEnabled {
		if sub.PhoneNumber == "" {
			e.log.Warn("subscription has sms enabled but no phone number",
				logger.Uint64("subscription_id", uint64(sub.ID)))
		} else {
			targets = append(targets, channelTarget{entities.ChannelSMS, sub.PhoneNumber})
		}
	}
	return targets
}
