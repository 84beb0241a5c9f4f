package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
)

// TrendConfig parameterizes TrendAgent
type TrendConfig struct {
	FastPeriod int
	SlowPeriod int
	ATRPeriod  int
	Band       float64 // minimal fractional EMA spread to vote
	MaxATR     float64 // ATR/close mapped to risk 1
}

// DefaultTrendConfig is EMA 12/26 with ATR(14)
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		FastPeriod: 12,
		SlowPeriod: 26,
		ATRPeriod:  14,
		Band:       0.005,
		MaxATR:     0.1,
	}
}

// TrendAgent votes with the fast/slow EMA spread and rates risk by ATR
type TrendAgent struct {
	identity
	cfg TrendConfig
}

// NewTrendAgent creates a trend follower
func NewTrendAgent(id string, cfg TrendConfig) *TrendAgent {
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= cfg.FastPeriod {
		cfg = DefaultTrendConfig()
	}
	return &TrendAgent{identity: identity{id: id, name: "trend"}, cfg: cfg}
}

func (a *TrendAgent) minBars() int {
	n := a.cfg.SlowPeriod
	if a.cfg.ATRPeriod > n {
		n = a.cfg.ATRPeriod
	}
	return n + 1
}

// Decide votes on the EMA spread
func (a *TrendAgent) Decide(ctx context.Context, symbol string, series market_data.Series) (*decision.AgentDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := requireBars(series, a.minBars())
	if err != nil {
		return nil, errors.Wrap(err, "trend")
	}

	closes := bars.Closes()
	fast := last(talib.Ema(closes, a.cfg.FastPeriod))
	slow := last(talib.Ema(closes, a.cfg.SlowPeriod))
	atr := last(talib.Atr(bars.Highs(), bars.Lows(), closes, a.cfg.ATRPeriod))
	price := closes[len(closes)-1]
	if slow <= 0 || price <= 0 || math.IsNaN(fast) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "trend: non-positive prices")
	}

	spread := (fast - slow) / slow
	action := decision.ActionHold
	confidence := holdConfidence
	switch {
	case spread > a.cfg.Band:
		action = decision.ActionBuy
		confidence = 0.5 + spread/(10*a.cfg.Band)
	case spread < -a.cfg.Band:
		action = decision.ActionSell
		confidence = 0.5 - spread/(10*a.cfg.Band)
	}

	d := a.vote(symbol, action, confidence,
		fmt.Sprintf("EMA(%d)/EMA(%d) spread %.2f%%, ATR %.2f%% of price", a.cfg.FastPeriod, a.cfg.SlowPeriod, spread*100, atr/price*100))
	d.RiskAssessment = ptr(clamp(atr/price/a.cfg.MaxATR, 0, 1))
	d.Metadata["ema_spread"] = spread
	d.Metadata["atr"] = atr
	return d, nil
}
