package agent

import (
	"context"

	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
)

// TradingAgent produces one decision per symbol per cycle from market data.
// Implementations must be safe for concurrent use across symbols.
type TradingAgent interface {
	// ID is unique per agent instance and keys the coordinator's weight state
	ID() string
	Name() string
	Decide(ctx context.Context, symbol string, series market_data.Series) (*decision.AgentDecision, error)
}

// Compile-time check that Registry can stand in for a single agent source
var _ DecisionSource = (*Registry)(nil)

// DecisionSource collects all agents' votes for a symbol
type DecisionSource interface {
	DecideAll(ctx context.Context, symbol string, series market_data.Series) map[string]*decision.AgentDecision
}
