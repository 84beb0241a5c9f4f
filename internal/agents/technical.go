// Package agents contains the built-in indicator-driven trading agents. Each
// agent reads one OHLCV series and votes BUY, HOLD or SELL with a confidence.
package agents

import (
	"math"

	"tradecouncil/internal/domain/agent"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
)

var (
	_ agent.TradingAgent = (*MomentumAgent)(nil)
	_ agent.TradingAgent = (*MeanReversionAgent)(nil)
	_ agent.TradingAgent = (*TrendAgent)(nil)
)

// holdConfidence is reported when no indicator threshold is crossed
const holdConfidence = 0.5

type identity struct {
	id   string
	name string
}

func (i identity) ID() string   { return i.id }
func (i identity) Name() string { return i.name }

func (i identity) vote(symbol string, action decision.Action, confidence float64, reasoning string) *decision.AgentDecision {
	d := decision.NewAgentDecision(i.id, symbol, action, clamp(confidence, 0, 1), reasoning)
	d.Metadata = map[string]interface{}{"agent": i.name}
	return d
}

// requireBars returns the ascending series or ErrInsufficientHistory
func requireBars(series market_data.Series, n int) (market_data.Series, error) {
	sorted := series.SortAscending()
	if len(sorted) < n {
		return nil, errors.Wrapf(errors.ErrInsufficientHistory, "need %d bars, have %d", n, len(sorted))
	}
	return sorted, nil
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func ptr(v float64) *float64 {
	return &v
}
