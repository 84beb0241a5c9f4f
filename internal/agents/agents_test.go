package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/domain/agent"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

func line(n int, from, step float64) market_data.Series {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := make(market_data.Series, n)
	for i := range s {
		c := from + float64(i)*step
		s[i] = market_data.OHLCV{
			Symbol:   "BTCUSDT",
			OpenTime: start.AddDate(0, 0, i),
			Open:     c,
			High:     c * 1.01,
			Low:      c * 0.99,
			Close:    c,
			Volume:   10,
		}
	}
	return s
}

func reversed(s market_data.Series) market_data.Series {
	out := make(market_data.Series, len(s))
	for i := range s {
		out[len(s)-1-i] = s[i]
	}
	return out
}

func TestMomentumAgent(t *testing.T) {
	a := NewMomentumAgent("mom", DefaultMomentumConfig())
	ctx := context.Background()

	tests := []struct {
		name       string
		series     market_data.Series
		action     decision.Action
		confidence float64
		expected   float64
	}{
		{"rising", line(30, 100, 1), decision.ActionBuy, (10.0 / 119) / 0.1, 1},
		{"falling", line(30, 200, -1), decision.ActionSell, (10.0 / 181) / 0.1, -1},
		{"flat", line(30, 100, 0), decision.ActionHold, 0.5, 0},
		{"unsorted input", reversed(line(30, 100, 1)), decision.ActionBuy, (10.0 / 119) / 0.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := a.Decide(ctx, "BTCUSDT", tt.series)
			require.NoError(t, err)
			require.NoError(t, d.Validate())
			assert.Equal(t, "mom", d.AgentID)
			assert.Equal(t, "BTCUSDT", d.Symbol)
			assert.Equal(t, tt.action, d.Action)
			assert.InDelta(t, tt.confidence, d.Confidence, 1e-9)
			require.NotNil(t, d.ExpectedReturn)
			assert.InDelta(t, tt.expected, *d.ExpectedReturn, 1e-9)
		})
	}

	_, err := a.Decide(ctx, "BTCUSDT", line(10, 100, 1))
	assert.True(t, errors.Is(err, errors.ErrInsufficientHistory))
}

func TestMeanReversionAgent(t *testing.T) {
	a := NewMeanReversionAgent("rsi", DefaultMeanReversionConfig())
	ctx := context.Background()

	d, err := a.Decide(ctx, "BTCUSDT", line(30, 200, -1))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, d.Action)
	assert.InDelta(t, 1, d.Confidence, 1e-9)
	require.NotNil(t, d.PositionSize)
	assert.InDelta(t, 0.1, *d.PositionSize, 1e-9)

	d, err = a.Decide(ctx, "BTCUSDT", line(30, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, d.Action)
	assert.InDelta(t, 1, d.Confidence, 1e-9)

	d, err = a.Decide(ctx, "BTCUSDT", line(30, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, d.Action)
	assert.Nil(t, d.PositionSize)
	assert.Equal(t, 50.0, d.Metadata["rsi"])

	_, err = a.Decide(ctx, "BTCUSDT", line(14, 100, 1))
	assert.True(t, errors.Is(err, errors.ErrInsufficientHistory))
}

func TestTrendAgent(t *testing.T) {
	a := NewTrendAgent("trend", DefaultTrendConfig())
	ctx := context.Background()

	d, err := a.Decide(ctx, "BTCUSDT", line(60, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, d.Action)
	assert.Greater(t, d.Confidence, 0.5)
	require.NotNil(t, d.RiskAssessment)
	assert.Greater(t, *d.RiskAssessment, 0.0)
	assert.LessOrEqual(t, *d.RiskAssessment, 1.0)

	d, err = a.Decide(ctx, "BTCUSDT", line(60, 200, -1))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, d.Action)

	d, err = a.Decide(ctx, "BTCUSDT", line(60, 100, 0))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, d.Action)
	assert.InDelta(t, 0.5, d.Confidence, 1e-12)
	assert.InDelta(t, 0.2, *d.RiskAssessment, 1e-9)

	_, err = a.Decide(ctx, "BTCUSDT", line(20, 100, 1))
	assert.True(t, errors.Is(err, errors.ErrInsufficientHistory))
}

func TestAgentsHonourCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, a := range []agent.TradingAgent{
		NewMomentumAgent("m", DefaultMomentumConfig()),
		NewMeanReversionAgent("r", DefaultMeanReversionConfig()),
		NewTrendAgent("t", DefaultTrendConfig()),
	} {
		_, err := a.Decide(ctx, "BTCUSDT", line(60, 100, 1))
		assert.ErrorIs(t, err, context.Canceled, a.Name())
	}
}

func TestAgentsThroughRegistry(t *testing.T) {
	reg := agent.NewRegistry(logger.NewNop())
	require.NoError(t, reg.Register(
		NewMomentumAgent("momentum-10", DefaultMomentumConfig()),
		NewMeanReversionAgent("rsi-14", DefaultMeanReversionConfig()),
		NewTrendAgent("ema-12-26", DefaultTrendConfig()),
	))

	votes := reg.DecideAll(context.Background(), "BTCUSDT", line(60, 100, 1))
	require.Len(t, votes, 3)
	assert.Equal(t, decision.ActionBuy, votes["momentum-10"].Action)
	assert.Equal(t, decision.ActionSell, votes["rsi-14"].Action)
	assert.Equal(t, decision.ActionBuy, votes["ema-12-26"].Action)

	// too short for the trend agent only
	votes = reg.DecideAll(context.Background(), "BTCUSDT", line(20, 100, 1))
	assert.Len(t, votes, 2)
	assert.NotContains(t, votes, "ema-12-26")
}
