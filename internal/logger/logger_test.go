package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &record))
	return record
}

func TestSlogLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, nil)

	log.Info("cycle complete", String("horizon", "24h"), Int("alerts", 2), Bool("degraded", false))

	record := lastRecord(t, &buf)
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "cycle complete", record["msg"])
	assert.Equal(t, "24h", record["horizon"])
	assert.EqualValues(t, 2, record["alerts"])
	assert.Equal(t, false, record["degraded"])
}

func TestSlogLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, nil)

	log.Debug("noise")
	log.Info("still noise")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestSlogLoggerModuleNesting(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, nil).Module("engine").Module("scheduler")

	log.Info("tick")
	assert.Equal(t, "engine.scheduler", lastRecord(t, &buf)["module"])
}

func TestSlogLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, nil).With(Uint64("region_id", 7))

	log.Info("snapshot ready", Float64("gap_ratio", 0.25))
	record := lastRecord(t, &buf)
	assert.EqualValues(t, 7, record["region_id"])
	assert.EqualValues(t, 0.25, record["gap_ratio"])
}

func TestSlogLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, nil)

	ctx := ContextWithTraceID(context.Background(), "trace-123")
	log.WithContext(ctx).Info("handled")
	assert.Equal(t, "trace-123", lastRecord(t, &buf)["trace_id"])

	buf.Reset()
	log.WithContext(context.Background()).Info("no trace")
	_, ok := lastRecord(t, &buf)["trace_id"]
	assert.False(t, ok)
}

func TestErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, nil)

	log.Error("boom", Error(assert.AnError))
	assert.Contains(t, lastRecord(t, &buf)["error"], "assert.AnError")
}
