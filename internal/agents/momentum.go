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

// MomentumConfig parameterizes MomentumAgent
type MomentumConfig struct {
	Lookback          int     // bars for the rate of change
	Threshold         float64 // fractional ROC needed to vote
	BarsPerYear       float64 // annualizes the ROC into an expected return
	MaxExpectedReturn float64
}

// DefaultMomentumConfig returns the daily-bar defaults
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		Lookback:          10,
		Threshold:         0.02,
		BarsPerYear:       365,
		MaxExpectedReturn: 1,
	}
}

// MomentumAgent follows the rate of change: BUY above +threshold, SELL below -threshold
type MomentumAgent struct {
	identity
	cfg MomentumConfig
}

// NewMomentumAgent creates a momentum agent
func NewMomentumAgent(id string, cfg MomentumConfig) *MomentumAgent {
	if cfg.Lookback <= 0 {
		cfg = DefaultMomentumConfig()
	}
	return &MomentumAgent{identity: identity{id: id, name: "momentum"}, cfg: cfg}
}

// Decide votes on the latest ROC
func (a *MomentumAgent) Decide(ctx context.Context, symbol string, series market_data.Series) (*decision.AgentDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, err := requireBars(series, a.cfg.Lookback+1)
	if err != nil {
		return nil, errors.Wrap(err, "momentum")
	}

	roc := last(talib.Roc(bars.Closes(), a.cfg.Lookback)) / 100
	if math.IsNaN(roc) || math.IsInf(roc, 0) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "momentum: rate of change is not finite")
	}

	action := decision.ActionHold
	confidence := holdConfidence
	switch {
	case roc > a.cfg.Threshold:
		action = decision.ActionBuy
		confidence = math.Abs(roc) / (5 * a.cfg.Threshold)
	case roc < -a.cfg.Threshold:
		action = decision.ActionSell
		confidence = math.Abs(roc) / (5 * a.cfg.Threshold)
	}

	d := a.vote(symbol, action, confidence,
		fmt.Sprintf("%d-bar rate of change %.2f%% against threshold %.2f%%", a.cfg.Lookback, roc*100, a.cfg.Threshold*100))
	annualized := roc * a.cfg.BarsPerYear / float64(a.cfg.Lookback)
	d.ExpectedReturn = ptr(clamp(annualized, -a.cfg.MaxExpectedReturn, a.cfg.MaxExpectedReturn))
	d.Metadata["roc"] = roc
	return d, nil
}
