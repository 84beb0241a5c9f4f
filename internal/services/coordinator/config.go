package coordinator

import (
	"tradecouncil/internal/domain/decision"
	"tradecouncil/pkg/errors"
)

// Config controls vote aggregation and weight evolution
type Config struct {
	MinAgentsRequired  int
	ConsensusThreshold float64
	PerformanceWindow  int
	WeightDecay        float64
	DefaultMethod      decision.CoordinationMethod
	ConflictResolution decision.ConflictResolution

	// MaxHistory bounds the in-memory decision history
	MaxHistory int

	// ConfidenceThreshold is the |score| a confidence-weighted vote needs to leave HOLD
	ConfidenceThreshold float64
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MinAgentsRequired:   3,
		ConsensusThreshold:  0.7,
		PerformanceWindow:   30,
		WeightDecay:         0.95,
		DefaultMethod:       decision.MethodHybrid,
		ConflictResolution:  decision.ResolutionWeightedAverage,
		MaxHistory:          1000,
		ConfidenceThreshold: 0.3,
	}
}

// Validate checks ranges and enum values
func (c Config) Validate() error {
	switch {
	case c.MinAgentsRequired < 1:
		return errors.NewValidationError("min_agents_required", "must be at least 1", c.MinAgentsRequired)
	case c.ConsensusThreshold <= 0 || c.ConsensusThreshold > 1:
		return errors.NewValidationError("consensus_threshold", "must be within (0,1]", c.ConsensusThreshold)
	case c.PerformanceWindow < 1:
		return errors.NewValidationError("performance_window", "must be at least 1", c.PerformanceWindow)
	case c.WeightDecay < 0 || c.WeightDecay > 1:
		return errors.NewValidationError("weight_decay", "must be within [0,1]", c.WeightDecay)
	case !c.DefaultMethod.Valid():
		return errors.NewValidationError("default_method", "unknown coordination method", c.DefaultMethod)
	case !c.ConflictResolution.Valid():
		return errors.NewValidationError("conflict_resolution", "unknown conflict resolution", c.ConflictResolution)
	case c.MaxHistory < 1:
		return errors.NewValidationError("max_history", "must be at least 1", c.MaxHistory)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1:
		return errors.NewValidationError("confidence_threshold", "must be within [0,1)", c.ConfidenceThreshold)
	}
	return nil
}
