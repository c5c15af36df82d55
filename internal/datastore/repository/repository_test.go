package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/floodsense/floodsense-go/internal/datastore"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
)

// newTestDB opens an isolated in-memory database per test, migrated and
// limited to one connection so concurrent access is serialized like a real
// sqlite file.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=ON",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gorm_logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, datastore.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedRegion(t *testing.T, db *gorm.DB) *entities.Region {
	t.Helper()
	region := &entities.Region{Name: "testbasin-" + t.Name(), Latitude: 48.1, Longitude: 11.5, FloodStageM: 4.5}
	require.NoError(t, db.Create(region).Error)
	return region
}

func seedPrediction(t *testing.T, db *gorm.DB, regionID uint, id string) *entities.Prediction {
	t.Helper()
	pred := &entities.Prediction{
		ID:          id,
		RegionID:    regionID,
		Horizon:     entities.Horizon24h,
		CycleStart:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		PredictedAt: time.Date(2026, 3, 1, 12, 4, 0, 0, time.UTC),
		RiskLevel:   entities.RiskHigh,
		Probability: 0.7,
		Confidence:  0.8,
		ModelCount:  3,
	}
	require.NoError(t, db.Create(pred).Error)
	return pred
}

func seedSubscription(t *testing.T, db *gorm.DB, regionID uint, userID uint) *entities.Subscription {
	t.Helper()
	sub := &entities.Subscription{
		UserID:       userID,
		RegionID:     regionID,
		Threshold:    entities.RiskMedium,
		EmailEnabled: true,
		EmailAddress: fmt.Sprintf("user%d@example.org", userID),
		Active:       true,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func ptr(v float64) *float64 { return &v }

func TestObservationRecordIdempotent(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	repo := NewObservationRepository(db)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first, created, err := repo.Record(ctx, &entities.Observation{
		RegionID:      region.ID,
		Time:          at,
		Source:        entities.SourceWeather,
		Precipitation: ptr(12.5),
	})
	require.NoError(t, err)
	assert.True(t, created)

	// Same key again with a different reading: the stored row wins.
	second, created, err := repo.Record(ctx, &entities.Observation{
		RegionID:      region.ID,
		Time:          at,
		Source:        entities.SourceWeather,
		Precipitation: ptr(99.9),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Precipitation)
	assert.Equal(t, 12.5, *second.Precipitation)

	// A different source at the same instant is a distinct record.
	_, created, err = repo.Record(ctx, &entities.Observation{
		RegionID:   region.ID,
		Time:       at,
		Source:     entities.SourceGauge,
		GaugeLevel: ptr(2.1),
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestObservationGetWindowBoundsAndOrder(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	repo := NewObservationRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Hour, 2 * time.Hour, 3 * time.Hour} {
		_, _, err := repo.Record(ctx, &entities.Observation{
			RegionID:      region.ID,
			Time:          base.Add(offset),
			Source:        entities.SourceWeather,
			Precipitation: ptr(1),
		})
		require.NoError(t, err)
	}

	// from is exclusive, to is inclusive.
	obs, err := repo.GetWindow(ctx, region.ID, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, base.Add(time.Hour), obs[0].Time.UTC())
	assert.Equal(t, base.Add(2*time.Hour), obs[1].Time.UTC())
}

func TestObservationLatest(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	repo := NewObservationRepository(db)
	ctx := context.Background()

	latest, err := repo.Latest(ctx, region.ID, entities.SourceGauge)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 2 * time.Hour, time.Hour} {
		_, _, err := repo.Record(ctx, &entities.Observation{
			RegionID:   region.ID,
			Time:       base.Add(offset),
			Source:     entities.SourceGauge,
			GaugeLevel: ptr(offset.Hours()),
		})
		require.NoError(t, err)
	}

	latest, err = repo.Latest(ctx, region.ID, entities.SourceGauge)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, base.Add(2*time.Hour), latest.Time.UTC())
}

func TestPredictionCreateDuplicate(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	repo := NewPredictionRepository(db)
	ctx := context.Background()

	cycle := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	build := func(id string) *entities.Prediction {
		return &entities.Prediction{
			ID:          id,
			RegionID:    region.ID,
			Horizon:     entities.Horizon24h,
			CycleStart:  cycle,
			PredictedAt: cycle.Add(3 * time.Minute),
			RiskLevel:   entities.RiskMedium,
			Probability: 0.4,
			Confidence:  0.9,
			ModelCount:  3,
		}
	}

	require.NoError(t, repo.Create(ctx, build("pred-1")))
	err := repo.Create(ctx, build("pred-2"))
	require.ErrorIs(t, err, ErrDuplicatePrediction)

	// The loser can fetch the winner's record by cycle key.
	existing, err := repo.GetByCycle(ctx, region.ID, entities.Horizon24h, cycle)
	require.NoError(t, err)
	assert.Equal(t, "pred-1", existing.ID)

	// A different horizon in the same cycle is its own record.
	other := build("pred-3")
	other.Horizon = entities.Horizon48h
	require.NoError(t, repo.Create(ctx, other))
}

func TestPredictionLatest(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	repo := NewPredictionRepository(db)
	ctx := context.Background()

	_, err := repo.Latest(ctx, region.ID, entities.Horizon24h)
	require.ErrorIs(t, err, ErrPredictionNotFound)

	for i, cycle := range []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, repo.Create(ctx, &entities.Prediction{
			ID:          fmt.Sprintf("pred-%d", i),
			RegionID:    region.ID,
			Horizon:     entities.Horizon24h,
			CycleStart:  cycle,
			PredictedAt: cycle,
			RiskLevel:   entities.RiskLow,
			Probability: 0.1,
			Confidence:  0.9,
			ModelCount:  3,
		}))
	}

	latest, err := repo.Latest(ctx, region.ID, entities.Horizon24h)
	require.NoError(t, err)
	assert.Equal(t, "pred-1", latest.ID)
}

func TestAlertEventCreatePendingIdempotent(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	pred := seedPrediction(t, db, region.ID, "pred-1")
	sub := seedSubscription(t, db, region.ID, 1)
	repo := NewAlertEventRepository(db)
	ctx := context.Background()

	event := func(id, channel string) *entities.AlertEvent {
		return &entities.AlertEvent{
			ID:             id,
			SubscriptionID: sub.ID,
			PredictionID:   pred.ID,
			Channel:        channel,
			Recipient:      sub.EmailAddress,
			QueuedAt:       pred.PredictedAt,
		}
	}

	created, err := repo.CreatePending(ctx, event("evt-1", entities.ChannelEmail))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreatePending(ctx, event("evt-2", entities.ChannelEmail))
	require.NoError(t, err)
	assert.False(t, created, "same (subscription, prediction, channel) key")

	created, err = repo.CreatePending(ctx, event("evt-3", entities.ChannelSMS))
	require.NoError(t, err)
	assert.True(t, created, "another channel is a distinct event")

	var count int64
	require.NoError(t, db.Model(&entities.AlertEvent{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestAlertEventClaimExclusive(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	pred := seedPrediction(t, db, region.ID, "pred-1")
	repo := NewAlertEventRepository(db)
	ctx := context.Background()

	for i := range 3 {
		sub := seedSubscription(t, db, region.ID, uint(i+1))
		created, err := repo.CreatePending(ctx, &entities.AlertEvent{
			ID:             fmt.Sprintf("evt-%d", i),
			SubscriptionID: sub.ID,
			PredictionID:   pred.ID,
			Channel:        entities.ChannelEmail,
			Recipient:      sub.EmailAddress,
			QueuedAt:       pred.PredictedAt.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		require.True(t, created)
	}

	claimed, err := repo.ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for i := range claimed {
		assert.Equal(t, entities.AlertStatusInflight, claimed[i].Status)
		assert.NotZero(t, claimed[i].Subscription.ID, "subscription preloaded")
		assert.Equal(t, pred.ID, claimed[i].Prediction.ID, "prediction preloaded")
	}

	// A second claimer only gets the remaining pending event.
	second, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, second, 1)

	third, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestAlertEventTransitions(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	pred := seedPrediction(t, db, region.ID, "pred-1")
	sub := seedSubscription(t, db, region.ID, 1)
	repo := NewAlertEventRepository(db)
	ctx := context.Background()

	_, err := repo.CreatePending(ctx, &entities.AlertEvent{
		ID:             "evt-1",
		SubscriptionID: sub.ID,
		PredictionID:   pred.ID,
		Channel:        entities.ChannelEmail,
		Recipient:      sub.EmailAddress,
		QueuedAt:       pred.PredictedAt,
	})
	require.NoError(t, err)

	claimed, err := repo.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Transient failure releases the event for a later claim.
	require.NoError(t, repo.Release(ctx, "evt-1", 1, "connection reset"))
	reclaimed, err := repo.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, 1, reclaimed[0].Attempts)
	assert.Equal(t, "connection reset", reclaimed[0].LastError)

	sentAt := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSent(ctx, "evt-1", 2, sentAt))

	var final entities.AlertEvent
	require.NoError(t, db.First(&final, "id = ?", "evt-1").Error)
	assert.Equal(t, entities.AlertStatusSent, final.Status)
	assert.Equal(t, 2, final.Attempts)
	require.NotNil(t, final.SentAt)

	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", 1, "boom"), ErrAlertEventNotFound)
}

func TestAlertEventHistoryAndCounts(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	pred := seedPrediction(t, db, region.ID, "pred-1")
	sub := seedSubscription(t, db, region.ID, 1)
	repo := NewAlertEventRepository(db)
	ctx := context.Background()

	base := pred.PredictedAt
	for i, channel := range []string{entities.ChannelEmail, entities.ChannelSMS} {
		_, err := repo.CreatePending(ctx, &entities.AlertEvent{
			ID:             fmt.Sprintf("evt-%d", i),
			SubscriptionID: sub.ID,
			PredictionID:   pred.ID,
			Channel:        channel,
			Recipient:      "r",
			QueuedAt:       base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(&entities.AlertEvent{}).
		Where("id = ?", "evt-0").
		Update("status", entities.AlertStatusSent).Error)

	history, err := repo.ListBySubscription(ctx, sub.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "evt-1", history[0].ID, "most recent first")

	limited, err := repo.ListBySubscription(ctx, sub.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[entities.AlertStatusSent])
	assert.EqualValues(t, 1, counts[entities.AlertStatusPending])
}

func TestSubscriptionListActive(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	active := seedSubscription(t, db, region.ID, 1)
	inactive := seedSubscription(t, db, region.ID, 2)
	require.NoError(t, db.Model(inactive).Update("active", false).Error)

	subs, err := repo.ListActive(ctx, region.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, active.ID, subs[0].ID)
}

func TestRegionRepository(t *testing.T) {
	db := newTestDB(t)
	region := seedRegion(t, db)
	repo := NewRegionRepository(db)
	ctx := context.Background()

	got, err := repo.Get(ctx, region.ID)
	require.NoError(t, err)
	assert.Equal(t, region.Name, got.Name)

	_, err = repo.Get(ctx, 9999)
	require.ErrorIs(t, err, ErrRegionNotFound)

	regions, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, regions, 1)
}
