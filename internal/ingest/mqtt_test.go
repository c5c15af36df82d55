package ingest

import (
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/logger"
)

// stubMessage implements mqtt.Message for handler tests.
type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 1 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 1 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

func newBridgeFixture(t *testing.T) (*MQTTBridge, *entities.Region, func(t *testing.T) int64) {
	t.Helper()
	recorder, region, db := newRecorderFixture(t)
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	bridge := NewMQTTBridge(recorder, conf.IngestSettings{
		Broker:   "tcp://localhost:1883",
		Topic:    "floodsense/observations/+",
		ClientID: "test",
	}, log)
	count := func(t *testing.T) int64 {
		t.Helper()
		var n int64
		require.NoError(t, db.Model(&entities.Observation{}).Count(&n).Error)
		return n
	}
	return bridge, region, count
}

func TestRegionFromTopic(t *testing.T) {
	id, err := regionFromTopic("floodsense/observations/42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	for _, topic := range []string{
		"floodsense/observations/",
		"floodsense/observations/abc",
		"floodsense/observations/0",
		"42",
	} {
		_, err := regionFromTopic(topic)
		assert.Error(t, err, topic)
	}
}

func TestHandleMessageRecordsObservation(t *testing.T) {
	bridge, region, count := newBridgeFixture(t)

	payload := []byte(`{"time":"2026-06-01T08:00:00Z","source":"weather","precipitation":3.5,"temperature":12.0}`)
	bridge.handleMessage(nil, stubMessage{
		topic:   regionTopic(region.ID),
		payload: payload,
	})

	assert.EqualValues(t, 1, count(t))
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	bridge, region, count := newBridgeFixture(t)

	// Broken JSON.
	bridge.handleMessage(nil, stubMessage{
		topic:   regionTopic(region.ID),
		payload: []byte(`{not json`),
	})
	// Bad topic.
	bridge.handleMessage(nil, stubMessage{
		topic:   "floodsense/observations/not-a-region",
		payload: []byte(`{"time":"2026-06-01T08:00:00Z","source":"weather"}`),
	})
	// Valid JSON, invalid observation.
	bridge.handleMessage(nil, stubMessage{
		topic:   regionTopic(region.ID),
		payload: []byte(`{"time":"2026-06-01T08:00:00Z","source":"weather","humidity":250}`),
	})

	assert.Zero(t, count(t))
}

func regionTopic(id uint) string {
	return "floodsense/observations/" + strconv.FormatUint(uint64(id), 10)
}
