package allocation

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AssetAllocation is one symbol's slice of a target portfolio
type AssetAllocation struct {
	Symbol           string                 `json:"symbol"`
	TargetWeight     float64                `json:"target_weight"`
	CurrentWeight    float64                `json:"current_weight"`
	WeightChange     float64                `json:"weight_change"` // target - current
	RiskContribution float64                `json:"risk_contribution"`
	ExpectedReturn   float64                `json:"expected_return"`
	Volatility       float64                `json:"volatility"`
	SharpeRatio      float64                `json:"sharpe_ratio"`
	LiquidityScore   float64                `json:"liquidity_score"`
	AllocationReason string                 `json:"allocation_reason"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// RiskMetrics summarizes portfolio risk under the current risk model
type RiskMetrics struct {
	PortfolioVolatility   float64 `json:"portfolio_volatility"`
	PortfolioVariance     float64 `json:"portfolio_variance"`
	MaxRiskContribution   float64 `json:"max_risk_contribution"`
	RiskConcentration     float64 `json:"risk_concentration"` // sum of squared contributions
	DiversificationRatio  float64 `json:"diversification_ratio"`
	RiskBudgetUtilization float64 `json:"risk_budget_utilization"` // vol / target vol
}

// PerformanceMetrics are ex-ante estimates
type PerformanceMetrics struct {
	ExpectedReturn   float64 `json:"expected_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	TrackingError    float64 `json:"tracking_error"`
	InformationRatio float64 `json:"information_ratio"`
}

// LiquidityConstraints flags positions large enough to be hard to unwind
type LiquidityConstraints struct {
	IlliquidRisk        []string `json:"illiquid_risk"`
	ConcentrationExcess float64  `json:"concentration_excess"`
	CashReserve         float64  `json:"cash_reserve"`
}

// PortfolioAllocation is one rebalance proposal
type PortfolioAllocation struct {
	ID                   uuid.UUID                   `json:"id"`
	Timestamp            time.Time                   `json:"timestamp"`
	AllocationMethod     Method                      `json:"allocation_method"`
	TotalPortfolioValue  float64                     `json:"total_portfolio_value"`
	TargetAllocations    map[string]*AssetAllocation `json:"target_allocations"`
	RiskMetrics          RiskMetrics                 `json:"risk_metrics"`
	PerformanceMetrics   PerformanceMetrics          `json:"performance_metrics"`
	RebalancingNeeded    bool                        `json:"rebalancing_needed"`
	RebalancingCost      float64                     `json:"rebalancing_cost"`
	Turnover             float64                     `json:"turnover"`
	LiquidityConstraints LiquidityConstraints        `json:"liquidity_constraints"`
	AllocationConfidence float64                     `json:"allocation_confidence"`
	Reasoning            string                      `json:"reasoning"`
	Metadata             map[string]interface{}      `json:"metadata,omitempty"`
}

// TargetWeights returns symbol -> target weight
func (p *PortfolioAllocation) TargetWeights() map[string]float64 {
	out := make(map[string]float64, len(p.TargetAllocations))
	for sym, a := range p.TargetAllocations {
		out[sym] = a.TargetWeight
	}
	return out
}

// TotalWeight is the invested fraction (1 - cash reserve after normalization)
func (p *PortfolioAllocation) TotalWeight() float64 {
	var sum float64
	for _, a := range p.TargetAllocations {
		sum += a.TargetWeight
	}
	return sum
}

// Symbols returns the allocated symbols in sorted order
func (p *PortfolioAllocation) Symbols() []string {
	out := make([]string, 0, len(p.TargetAllocations))
	for sym := range p.TargetAllocations {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// IsFallback reports whether the allocation was produced by the error path
func (p *PortfolioAllocation) IsFallback() bool {
	v, ok := p.Metadata["error"].(bool)
	return ok && v
}

// Clone returns a deep copy
func (p *PortfolioAllocation) Clone() *PortfolioAllocation {
	if p == nil {
		return nil
	}
	dup := *p
	if p.TargetAllocations != nil {
		dup.TargetAllocations = make(map[string]*AssetAllocation, len(p.TargetAllocations))
		for sym, a := range p.TargetAllocations {
			ac := *a
			ac.Metadata = cloneMetadata(a.Metadata)
			dup.TargetAllocations[sym] = &ac
		}
	}
	dup.LiquidityConstraints.IlliquidRisk = append([]string(nil), p.LiquidityConstraints.IlliquidRisk...)
	dup.Metadata = cloneMetadata(p.Metadata)
	return &dup
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	dup := make(map[string]interface{}, len(m))
	for k, v := range m {
		dup[k] = v
	}
	return dup
}
