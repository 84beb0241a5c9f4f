package allocator

import (
	"tradecouncil/internal/domain/allocation"
	"tradecouncil/pkg/errors"
)

// Config controls risk modelling, weight construction and rebalancing
type Config struct {
	Method allocation.Method

	// Risk model
	LookbackWindow int     // bars of history used for returns
	MinHistory     int     // valid returns a symbol needs to enter the risk model
	HalfLife       float64 // bars
	Annualization  float64 // periods per year
	UseLogReturns  bool

	// Final weight bounds
	MinPositionSize float64
	MaxPositionSize float64

	// Optimizer bounds
	OptimizerMinWeight float64
	OptimizerMaxWeight float64

	LiquidityRequirement float64 // fraction held back as cash
	TargetVolatility     float64
	RebalanceThreshold   float64
	TransactionCost      float64 // fraction of traded notional

	BaseExpectedReturn     float64
	DefaultVolatility      float64
	ConcentrationThreshold float64
	DefaultPortfolioValue  float64

	MaxHistory int

	// LiquidityReferenceVolume is the mean quote volume that scores 1.0
	LiquidityReferenceVolume float64
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Method:                   allocation.MethodRiskParity,
		LookbackWindow:           252,
		MinHistory:               30,
		HalfLife:                 63,
		Annualization:            252,
		UseLogReturns:            true,
		MinPositionSize:          0.01,
		MaxPositionSize:          0.3,
		OptimizerMinWeight:       0.01,
		OptimizerMaxWeight:       0.5,
		LiquidityRequirement:     0.1,
		TargetVolatility:         0.15,
		RebalanceThreshold:       0.05,
		TransactionCost:          0.001,
		BaseExpectedReturn:       0.1,
		DefaultVolatility:        0.2,
		ConcentrationThreshold:   0.2,
		DefaultPortfolioValue:    1_000_000,
		MaxHistory:               100,
		LiquidityReferenceVolume: 10_000_000,
	}
}

// Validate checks ranges and enum values
func (c Config) Validate() error {
	switch {
	case !c.Method.Valid():
		return errors.NewValidationError("method", "unknown allocation method", c.Method)
	case c.LookbackWindow < 2:
		return errors.NewValidationError("lookback_window", "must be at least 2", c.LookbackWindow)
	case c.MinHistory < 2 || c.MinHistory > c.LookbackWindow:
		return errors.NewValidationError("min_history", "must be within [2, lookback_window]", c.MinHistory)
	case c.HalfLife < 0:
		return errors.NewValidationError("half_life", "must not be negative", c.HalfLife)
	case c.Annualization <= 0:
		return errors.NewValidationError("annualization", "must be positive", c.Annualization)
	case c.MinPositionSize < 0 || c.MinPositionSize > c.MaxPositionSize || c.MaxPositionSize > 1:
		return errors.NewValidationError("position_size", "need 0 <= min <= max <= 1", [2]float64{c.MinPositionSize, c.MaxPositionSize})
	case c.OptimizerMinWeight < 0 || c.OptimizerMinWeight > c.OptimizerMaxWeight || c.OptimizerMaxWeight > 1:
		return errors.NewValidationError("optimizer_weight", "need 0 <= min <= max <= 1", [2]float64{c.OptimizerMinWeight, c.OptimizerMaxWeight})
	case c.LiquidityRequirement < 0 || c.LiquidityRequirement >= 1:
		return errors.NewValidationError("liquidity_requirement", "must be within [0,1)", c.LiquidityRequirement)
	case c.TargetVolatility <= 0:
		return errors.NewValidationError("target_volatility", "must be positive", c.TargetVolatility)
	case c.RebalanceThreshold < 0:
		return errors.NewValidationError("rebalance_threshold", "must not be negative", c.RebalanceThreshold)
	case c.TransactionCost < 0:
		return errors.NewValidationError("transaction_cost", "must not be negative", c.TransactionCost)
	case c.DefaultVolatility <= 0:
		return errors.NewValidationError("default_volatility", "must be positive", c.DefaultVolatility)
	case c.DefaultPortfolioValue <= 0:
		return errors.NewValidationError("default_portfolio_value", "must be positive", c.DefaultPortfolioValue)
	case c.MaxHistory < 1:
		return errors.NewValidationError("max_history", "must be at least 1", c.MaxHistory)
	case c.LiquidityReferenceVolume <= 0:
		return errors.NewValidationError("liquidity_reference_volume", "must be positive", c.LiquidityReferenceVolume)
	}
	return nil
}
