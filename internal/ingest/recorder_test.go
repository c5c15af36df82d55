package ingest

import (
	"context"
	"fmt"
	"io"
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
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/logger"
)

func newRecorderFixture(t *testing.T) (*Recorder, *entities.Region, *gorm.DB) {
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

	region := &entities.Region{Name: "basin-" + t.Name(), Latitude: 43.6, Longitude: 1.4}
	require.NoError(t, db.Create(region).Error)

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	recorder := NewRecorder(repository.NewObservationRepository(db), repository.NewRegionRepository(db), log)
	return recorder, region, db
}

func ptr(v float64) *float64 { return &v }

func TestRecordObservation(t *testing.T) {
	recorder, region, _ := newRecorderFixture(t)
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	stored, created, err := recorder.Record(context.Background(), &entities.Observation{
		RegionID:      region.ID,
		Time:          at,
		Source:        entities.SourceWeather,
		Precipitation: ptr(4.2),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, stored.ID)

	// Resubmission of the same key keeps the original row.
	again, created, err := recorder.Record(context.Background(), &entities.Observation{
		RegionID:      region.ID,
		Time:          at,
		Source:        entities.SourceWeather,
		Precipitation: ptr(100),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, 4.2, *again.Precipitation)
}

func TestRecordRejectsInvalid(t *testing.T) {
	recorder, region, _ := newRecorderFixture(t)
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		obs  *entities.Observation
	}{
		{"missing region", &entities.Observation{Time: at, Source: entities.SourceWeather}},
		{"missing timestamp", &entities.Observation{RegionID: region.ID, Source: entities.SourceWeather}},
		{"unknown source", &entities.Observation{RegionID: region.ID, Time: at, Source: "satellite"}},
		{"humidity out of range", &entities.Observation{RegionID: region.ID, Time: at, Source: entities.SourceWeather, Humidity: ptr(130)}},
		{"negative precipitation", &entities.Observation{RegionID: region.ID, Time: at, Source: entities.SourceWeather, Precipitation: ptr(-1)}},
		{"soil moisture out of range", &entities.Observation{RegionID: region.ID, Time: at, Source: entities.SourceWeather, SoilMoistureSurface: ptr(1.2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := recorder.Record(context.Background(), tt.obs)
			assert.Error(t, err)
		})
	}
}

func TestRecordUnknownRegion(t *testing.T) {
	recorder, _, _ := newRecorderFixture(t)
	_, _, err := recorder.Record(context.Background(), &entities.Observation{
		RegionID: 4242,
		Time:     time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
		Source:   entities.SourceGauge,
	})
	require.ErrorIs(t, err, repository.ErrRegionNotFound)
}
