package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskLevelOrdering(t *testing.T) {
	assert.True(t, RiskCritical.AtLeast(RiskHigh))
	assert.True(t, RiskHigh.AtLeast(RiskHigh))
	assert.False(t, RiskMedium.AtLeast(RiskHigh))
	assert.False(t, RiskLow.AtLeast(RiskMedium))
}

func TestParseRiskLevel(t *testing.T) {
	for _, name := range []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"} {
		level, err := ParseRiskLevel(name)
		require.NoError(t, err)
		assert.Equal(t, name, level.String())
	}

	_, err := ParseRiskLevel("medium")
	assert.Error(t, err, "parsing is case sensitive")
	_, err = ParseRiskLevel("SEVERE")
	assert.Error(t, err)
}

func TestRiskLevelForProbability(t *testing.T) {
	tests := []struct {
		probability float64
		want        RiskLevel
	}{
		{0.0, RiskLow},
		{0.24, RiskLow},
		{0.25, RiskMedium},
		{0.49, RiskMedium},
		{0.5, RiskHigh},
		{0.74, RiskHigh},
		{0.75, RiskCritical},
		{1.0, RiskCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevelForProbability(tt.probability),
			"probability %v", tt.probability)
	}
}

func TestRiskLevelJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(RiskHigh)
	require.NoError(t, err)
	assert.Equal(t, `"HIGH"`, string(data))

	var level RiskLevel
	require.NoError(t, json.Unmarshal([]byte(`"CRITICAL"`), &level))
	assert.Equal(t, RiskCritical, level)

	assert.Error(t, json.Unmarshal([]byte(`3`), &level))
}

func TestRiskLevelSQLRoundTrip(t *testing.T) {
	value, err := RiskMedium.Value()
	require.NoError(t, err)
	assert.Equal(t, "MEDIUM", value)

	var level RiskLevel
	require.NoError(t, level.Scan("HIGH"))
	assert.Equal(t, RiskHigh, level)
	require.NoError(t, level.Scan([]byte("LOW")))
	assert.Equal(t, RiskLow, level)

	assert.Error(t, level.Scan("storm"))

	_, err = RiskLevel(9).Value()
	assert.Error(t, err)
}

func TestHorizon(t *testing.T) {
	assert.True(t, Horizon24h.Valid())
	assert.True(t, Horizon72h.Valid())
	assert.False(t, Horizon("12h").Valid())

	d, err := Horizon48h.Duration()
	require.NoError(t, err)
	assert.Equal(t, "48h0m0s", d.String())

	_, err = Horizon("96h").Duration()
	assert.Error(t, err)
}
