// Package allocator turns per-symbol coordinated decisions into a
// risk-constrained target portfolio and decides whether rebalancing pays.
package allocator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/internal/quant"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// Option customizes a single Allocate call
type Option func(*callOptions)

type callOptions struct {
	method allocation.Method
}

// WithMethod overrides the configured allocation method
func WithMethod(m allocation.Method) Option {
	return func(o *callOptions) { o.method = m }
}

// Stats aggregates allocation outcomes
type Stats struct {
	TotalAllocations          int                       `json:"total_allocations"`
	Fallbacks                 int                       `json:"fallbacks"` // method degraded to equal weights
	Errors                    int                       `json:"errors"`    // whole allocation degraded
	RebalancesNeeded          int                       `json:"rebalances_needed"`
	AverageTurnover           float64                   `json:"average_turnover"`
	CumulativeTransactionCost float64                   `json:"cumulative_transaction_cost"`
	MethodUsage               map[allocation.Method]int `json:"method_usage"`
}

// Allocator builds target portfolios. All mutable state is guarded by one mutex.
type Allocator struct {
	mu  sync.Mutex
	cfg Config
	log *logger.Logger

	riskModel *quant.RiskModel
	current   map[string]float64
	history   []*allocation.PortfolioAllocation
	stats     Stats

	now func() time.Time
}

// New creates an allocator
func New(cfg Config, log *logger.Logger) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "allocator config")
	}
	if log == nil {
		log = logger.Get()
	}
	return &Allocator{
		cfg:     cfg,
		log:     log.Component("allocator"),
		current: make(map[string]float64),
		stats:   Stats{MethodUsage: make(map[allocation.Method]int)},
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Config returns the active configuration
func (a *Allocator) Config() Config {
	return a.cfg
}

// Allocate builds the target portfolio for one cycle. marketData may be nil;
// portfolioValue <= 0 means DefaultPortfolioValue. It never fails: on an
// internal error it returns an equal-weight allocation flagged with
// Metadata["error"]=true and leaves current allocations and history untouched.
func (a *Allocator) Allocate(
	decisions map[string]*decision.CoordinatedDecision,
	marketData map[string]market_data.Series,
	portfolioValue float64,
	opts ...Option,
) (result *allocation.PortfolioAllocation) {
	o := callOptions{method: a.cfg.Method}
	for _, opt := range opts {
		opt(&o)
	}
	if portfolioValue <= 0 {
		portfolioValue = a.cfg.DefaultPortfolioValue
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := errors.FromPanic(r)
			a.log.ErrorWithContext(context.Background(), err, map[string]string{"method": string(o.method)})
			result = a.fallback(decisions, o.method, portfolioValue, err)
		}
	}()

	res, model, err := a.allocate(decisions, marketData, portfolioValue, o.method)
	if err != nil {
		a.log.Warnw("Allocation degraded to equal weights", "method", o.method, "symbols", len(decisions), "error", err)
		return a.fallback(decisions, o.method, portfolioValue, err)
	}
	a.commit(res, model)
	return res
}

func (a *Allocator) allocate(
	decisions map[string]*decision.CoordinatedDecision,
	marketData map[string]market_data.Series,
	portfolioValue float64,
	method allocation.Method,
) (*allocation.PortfolioAllocation, *quant.RiskModel, error) {
	run, ok := methods[method]
	if !ok {
		return nil, nil, errors.Wrapf(errors.ErrUnknownMethod, "allocation method %q", method)
	}
	if math.IsNaN(portfolioValue) || math.IsInf(portfolioValue, 0) {
		return nil, nil, errors.NewValidationError("portfolio_value", "must be finite", portfolioValue)
	}

	// 1. risk model; the previous one stays when the refresh is not possible
	model := a.riskModel
	if len(marketData) > 0 {
		fresh, err := buildRiskModel(marketData, a.cfg)
		if err != nil {
			a.log.Debugw("Risk model kept", "reason", err)
		} else {
			model = fresh
		}
	}

	// 2-3. signals and expected returns
	symbols, signals := extractSignals(decisions)
	if len(symbols) == 0 {
		return nil, nil, errors.Wrap(errors.ErrInvalidInput, "no coordinated decisions")
	}
	expected := estimateReturns(symbols, signals, a.cfg.BaseExpectedReturn)

	// 4. raw weights
	b := &book{
		symbols:         symbols,
		signals:         signals,
		expectedReturns: expected,
		marketData:      marketData,
		riskModel:       model,
		cfg:             a.cfg,
	}
	raw, err := run(b)
	fallbackReason := ""
	if err != nil {
		fallbackReason = err.Error()
		a.log.Infow("Allocation method fell back to equal weights", "method", method, "reason", err)
		raw = equalWeights(symbols)
	}

	// 5. constraints
	target := applyConstraints(symbols, raw, a.cfg)

	// 6. risk
	cov, modelled := riskCovariance(symbols, model, a.cfg)
	risk := computeRisk(symbols, target, cov, a.cfg)

	// 7. rebalance need
	turn, maxChange := turnover(target, a.current)
	cost := turn * a.cfg.TransactionCost * portfolioValue
	needed := maxChange > a.cfg.RebalanceThreshold

	// 8. assembly
	assets := make(map[string]*allocation.AssetAllocation, len(symbols))
	var confidence float64
	for _, sym := range symbols {
		s := signals[sym]
		vol := risk.volatilities[sym]
		aa := &allocation.AssetAllocation{
			Symbol:           sym,
			TargetWeight:     target[sym],
			CurrentWeight:    a.current[sym],
			WeightChange:     target[sym] - a.current[sym],
			RiskContribution: risk.contributions[sym],
			ExpectedReturn:   expected[sym],
			Volatility:       vol,
			LiquidityScore:   liquidityScore(marketData[sym], a.cfg.LiquidityReferenceVolume),
		}
		if vol > 0 {
			aa.SharpeRatio = aa.ExpectedReturn / vol
		}
		aa.AllocationReason = fmt.Sprintf("%s %.0f%% conf, expected return %.2f%%, %s weight %.2f%%",
			s.action, s.confidence*100, aa.ExpectedReturn*100, method, aa.TargetWeight*100)
		assets[sym] = aa
		confidence += target[sym] * s.confidence
	}
	invested := 1 - a.cfg.LiquidityRequirement
	if invested > 0 {
		confidence /= invested
	}

	res := &allocation.PortfolioAllocation{
		ID:                   uuid.New(),
		Timestamp:            a.now(),
		AllocationMethod:     method,
		TotalPortfolioValue:  portfolioValue,
		TargetAllocations:    assets,
		RiskMetrics:          risk.metrics,
		PerformanceMetrics:   computePerformance(symbols, target, expected, risk.metrics.PortfolioVolatility),
		RebalancingNeeded:    needed,
		RebalancingCost:      cost,
		Turnover:             turn,
		LiquidityConstraints: liquidityConstraints(symbols, target, a.cfg),
		AllocationConfidence: math.Max(0, math.Min(1, confidence)),
		Metadata: map[string]interface{}{
			"error":             false,
			"risk_model":        modelled,
			"risk_model_assets": riskModelSize(model),
		},
	}
	if fallbackReason != "" {
		res.Metadata["fallback"] = fallbackReason
	}
	res.Reasoning = a.explain(res, fallbackReason)
	return res, model, nil
}

// fallback is the safe default: equal weights over the decision symbols
// scaled by the cash reserve. State is not modified apart from error stats.
func (a *Allocator) fallback(decisions map[string]*decision.CoordinatedDecision, method allocation.Method, value float64, cause error) *allocation.PortfolioAllocation {
	a.stats.Errors++

	symbols, _ := extractSignals(decisions)
	invested := 1 - a.cfg.LiquidityRequirement
	assets := make(map[string]*allocation.AssetAllocation, len(symbols))
	for _, sym := range symbols {
		w := invested / float64(len(symbols))
		assets[sym] = &allocation.AssetAllocation{
			Symbol:           sym,
			TargetWeight:     w,
			CurrentWeight:    a.current[sym],
			WeightChange:     w - a.current[sym],
			AllocationReason: "equal-weight default",
		}
	}
	return &allocation.PortfolioAllocation{
		ID:                  uuid.New(),
		Timestamp:           a.now(),
		AllocationMethod:    method,
		TotalPortfolioValue: value,
		TargetAllocations:   assets,
		LiquidityConstraints: allocation.LiquidityConstraints{
			IlliquidRisk: []string{},
			CashReserve:  1 - invested,
		},
		Reasoning: fmt.Sprintf("equal-weight default allocation: %v", cause),
		Metadata: map[string]interface{}{
			"error":   true,
			"message": cause.Error(),
		},
	}
}

// commit makes res the current portfolio and records it. Caller holds mu.
func (a *Allocator) commit(res *allocation.PortfolioAllocation, model *quant.RiskModel) {
	a.riskModel = model
	a.current = res.TargetWeights()
	a.history = append(a.history, res.Clone())
	if over := len(a.history) - a.cfg.MaxHistory; over > 0 {
		a.history = append([]*allocation.PortfolioAllocation(nil), a.history[over:]...)
	}

	s := &a.stats
	s.TotalAllocations++
	s.MethodUsage[res.AllocationMethod]++
	if _, ok := res.Metadata["fallback"]; ok {
		s.Fallbacks++
	}
	if res.RebalancingNeeded {
		s.RebalancesNeeded++
	}
	s.AverageTurnover += (res.Turnover - s.AverageTurnover) / float64(s.TotalAllocations)
	s.CumulativeTransactionCost += res.RebalancingCost

	a.log.Infow("Portfolio allocated",
		"method", res.AllocationMethod,
		"symbols", len(res.TargetAllocations),
		"volatility", res.RiskMetrics.PortfolioVolatility,
		"turnover", res.Turnover,
		"rebalance", res.RebalancingNeeded,
	)
}

func (a *Allocator) explain(res *allocation.PortfolioAllocation, fallback string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s allocation over %d symbols, %.1f%% invested, volatility %.2f%%",
		res.AllocationMethod, len(res.TargetAllocations), res.TotalWeight()*100, res.RiskMetrics.PortfolioVolatility*100)
	if fallback != "" {
		fmt.Fprintf(&sb, "; equal weights because %s", fallback)
	}
	if res.RebalancingNeeded {
		fmt.Fprintf(&sb, "; rebalance needed, turnover %.2f costs $%s", res.Turnover, humanize.CommafWithDigits(res.RebalancingCost, 2))
	} else {
		sb.WriteString("; no rebalance needed")
	}
	if n := len(res.LiquidityConstraints.IlliquidRisk); n > 0 {
		fmt.Fprintf(&sb, "; %d concentrated positions", n)
	}
	return sb.String()
}

func riskModelSize(m *quant.RiskModel) int {
	if m == nil {
		return 0
	}
	return len(m.Symbols)
}

// CurrentAllocations returns a copy of the current weights
func (a *Allocator) CurrentAllocations() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.current))
	for k, v := range a.current {
		out[k] = v
	}
	return out
}

// SetCurrentAllocations seeds the baseline from the executed portfolio
func (a *Allocator) SetCurrentAllocations(w map[string]float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = make(map[string]float64, len(w))
	for k, v := range w {
		a.current[k] = v
	}
}

// History returns up to limit most recent allocations, oldest first. limit <= 0 returns all.
func (a *Allocator) History(limit int) []*allocation.PortfolioAllocation {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]*allocation.PortfolioAllocation, len(h))
	for i, p := range h {
		out[i] = p.Clone()
	}
	return out
}

// Stats returns a copy of the allocation statistics
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.stats
	s.MethodUsage = make(map[allocation.Method]int, len(a.stats.MethodUsage))
	for m, n := range a.stats.MethodUsage {
		s.MethodUsage[m] = n
	}
	return s
}

// RiskModel returns a copy of the current risk model, nil before the first estimate
func (a *Allocator) RiskModel() *quant.RiskModel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.riskModel.Clone()
}
