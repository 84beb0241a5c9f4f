package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthetic(t *testing.T) {
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	cfg := SyntheticConfig{
		Exchange:  "binance",
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Timeframe: "1d",
		Bars:      50,
		End:       end,
		DailyVol:  0.02,
		Seed:      7,
	}
	candles := Synthetic(cfg)
	require.Len(t, candles, 100)

	assert.Equal(t, "BTCUSDT", candles[0].Symbol)
	assert.Equal(t, end.AddDate(0, 0, -49), candles[0].OpenTime)
	assert.Equal(t, end, candles[49].OpenTime)
	assert.Equal(t, "ETHUSDT", candles[50].Symbol)

	for i, c := range candles {
		assert.Greater(t, c.Close, 0.0)
		assert.GreaterOrEqual(t, c.High, c.Close)
		assert.LessOrEqual(t, c.Low, c.Close)
		if i%50 != 0 {
			assert.Equal(t, candles[i-1].Close, c.Open, "bars chain")
		}
	}

	assert.Equal(t, candles, Synthetic(cfg), "deterministic for a seed")
}
