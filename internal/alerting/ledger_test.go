package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodsense/floodsense-go/internal/datastore/entities"
)

func TestLedgerHistory(t *testing.T) {
	f := newFixture(t)
	pred := f.seedPrediction(t, "pred-1", entities.RiskHigh)
	sub := f.seedSubscription(t, 1, func(s *entities.Subscription) {
		s.SMSEnabled = true
		s.PhoneNumber = "+41790000000"
	})

	_, err := newTestEvaluator(f).Evaluate(context.Background(), pred)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&entities.AlertEvent{}).
		Where("channel = ?", entities.ChannelSMS).
		Updates(map[string]any{"queued_at": pred.PredictedAt.Add(time.Minute)}).Error)

	ledger := NewLedger(f.events)
	history, err := ledger.History(context.Background(), sub.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entities.ChannelSMS, history[0].Channel, "most recently queued first")

	limited, err := ledger.History(context.Background(), sub.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLedgerStats(t *testing.T) {
	f := newFixture(t)
	pred := f.seedPrediction(t, "pred-1", entities.RiskHigh)
	f.seedSubscription(t, 1, nil)

	_, err := newTestEvaluator(f).Evaluate(context.Background(), pred)
	require.NoError(t, err)

	ledger := NewLedger(f.events)
	stats, err := ledger.Stats(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, stats[entities.AlertStatusPending])
	// Every status is reported, even with no events in it.
	for _, status := range []string{
		entities.AlertStatusInflight,
		entities.AlertStatusSent,
		entities.AlertStatusFailed,
	} {
		count, ok := stats[status]
		assert.True(t, ok, status)
		assert.Zero(t, count)
	}
}
