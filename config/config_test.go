package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/market.db", cfg.SQLitePath)
	assert.Equal(t, "daily", cfg.Profile)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, ":9095", cfg.HTTPAddr)
	assert.Equal(t, "@every 1h", cfg.Schedule)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.ClickHouseEnabled())
	assert.Nil(t, cfg.Symbols)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FEATURES_SYMBOLS", " aapl, msft ,,")
	t.Setenv("FEATURES_INDICATORS", "RSI,macd")
	t.Setenv("FEATURES_WORKERS", "8")
	t.Setenv("FEATURES_HISTORY_WINDOW", "720h")
	t.Setenv("FEATURES_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Symbols)
	assert.Equal(t, []string{"rsi", "macd"}, cfg.Indicators)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 720*time.Hour, cfg.HistoryWindow)
	assert.True(t, cfg.RedisEnabled())
}

func TestNormalizeLists(t *testing.T) {
	assert.Equal(t, []string{"sma_5", "rsi"}, NormalizeIndicators([]string{" SMA_5", "RSI ", ""}))
	assert.Equal(t, []string{"AAPL"}, NormalizeSymbols([]string{"aapl", " "}))
	assert.Nil(t, NormalizeIndicators([]string{"", "  "}))
	assert.Nil(t, NormalizeIndicators(nil))
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"FEATURES_WORKERS":           "0",
		"FEATURES_LOG_LEVEL":         "chatty",
		"FEATURES_ALERT_WEBHOOK_URL": "not a url",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnparsableValue(t *testing.T) {
	t.Setenv("FEATURES_WORKERS", "many")
	_, err := Load()
	assert.Error(t, err)
}
