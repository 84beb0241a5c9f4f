package agents

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
)

// MeanReversionConfig parameterizes MeanReversionAgent
type MeanReversionConfig struct {
	Period      int
	Oversold    float64
	Overbought  float64
	MaxPosition float64 // position size at full confidence
}

// DefaultMeanReversionConfig is RSI(14) with 30/70 bands
func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		Period:      14,
		Oversold:    30,
		Overbought:  70,
		MaxPosition: 0.1,
	}
}

// MeanReversionAgent buys oversold and sells overbought markets by RSI
type MeanReversionAgent struct {
	identity
	cfg MeanReversionConfig
}

// NewMeanReversionAgent creates an RSI agent
func NewMeanReversionAgent(id string, cfg MeanReversionConfig) *MeanReversionAgent {
	if cfg.Period < 2 {
		cfg = DefaultMeanReversionConfig()
	}
	return &MeanReversionAgent{identity: identity{id: id, name: "mean_reversion"}, cfg: cfg}
}

// Decide votes on the latest RSI
func (a *MeanReversionAgent) Decide(ctx context.Context, symbol string, series market_data.Series) (*decision.AgentDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := requireBars(series, a.cfg.Period+1)
	if err != nil {
		return nil, errors.Wrap(err, "mean reversion")
	}

	closes := bars.Closes()
	rsi := last(talib.Rsi(closes, a.cfg.Period))
	// talib reports 0 for a window without any movement
	if flatWindow(closes[len(closes)-a.cfg.Period-1:]) {
		rsi = 50
	}

	action := decision.ActionHold
	confidence := holdConfidence
	switch {
	case rsi < a.cfg.Oversold:
		action = decision.ActionBuy
		confidence = 0.5 + 0.5*(a.cfg.Oversold-rsi)/a.cfg.Oversold
	case rsi > a.cfg.Overbought:
		action = decision.ActionSell
		confidence = 0.5 + 0.5*(rsi-a.cfg.Overbought)/(100-a.cfg.Overbought)
	}

	d := a.vote(symbol, action, confidence, fmt.Sprintf("RSI(%d) %.1f, bands %.0f/%.0f", a.cfg.Period, rsi, a.cfg.Oversold, a.cfg.Overbought))
	if action != decision.ActionHold {
		d.PositionSize = ptr(clamp(confidence, 0, 1) * a.cfg.MaxPosition)
	}
	d.Metadata["rsi"] = rsi
	return d, nil
}

func flatWindow(closes []float64) bool {
	for _, c := range closes[1:] {
		if c != closes[0] {
			return false
		}
	}
	return true
}
