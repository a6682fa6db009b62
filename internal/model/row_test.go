package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat_DropsNonFinite(t *testing.T) {
	assert.Nil(t, Float(math.NaN()))
	assert.Nil(t, Float(math.Inf(1)))
	assert.Nil(t, Float(math.Inf(-1)))
	p := Float(1.5)
	require.NotNil(t, p)
	assert.Equal(t, 1.5, *p)
}

func TestFeatureRow_MarshalFlat(t *testing.T) {
	row := FeatureRow{
		Symbol: "AAPL",
		TS:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:   1, High: 2, Low: 0.5, Close: 1.5,
		Values: map[string]*float64{
			"rsi":    Float(55),
			"sma_20": nil,
		},
		Source: "twelvedata",
		RunID:  "r1",
	}

	b, err := json.Marshal(row)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "AAPL", got["symbol"])
	assert.Equal(t, "2024-01-02T00:00:00Z", got["datetime"])
	assert.Equal(t, 55.0, got["rsi"])
	assert.Contains(t, got, "sma_20")
	assert.Nil(t, got["sma_20"])
	assert.Nil(t, got["volume"])
	assert.Equal(t, "twelvedata", got["data_source"])
	assert.NotContains(t, string(b), "NaN")
}

func TestFeatureRow_Keys(t *testing.T) {
	row := FeatureRow{Symbol: "MSFT", Source: "yahoo"}
	assert.Equal(t, "features:yahoo:MSFT", row.StreamKey())
	assert.Equal(t, "features:latest:yahoo:MSFT", row.LatestKey())
	assert.Equal(t, "pub:features:yahoo:MSFT", row.Channel())
}

func TestFeatureRow_Value(t *testing.T) {
	row := FeatureRow{Values: map[string]*float64{"a": Float(2), "b": nil}}
	v, ok := row.Value("a")
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
	_, ok = row.Value("b")
	assert.False(t, ok)
	_, ok = row.Value("c")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, row.Columns())
}
