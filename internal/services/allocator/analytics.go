package allocator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/internal/quant"
)

const (
	// trackingError is a fixed ex-ante placeholder
	trackingError    = 0.02
	liquidityBars    = 20
	unknownLiquidity = 0.5
)

// riskCovariance returns the risk-model covariance for symbols, or a
// diagonal DefaultVolatility^2 matrix when the model does not cover them
func riskCovariance(symbols []string, model *quant.RiskModel, cfg Config) (*mat.SymDense, bool) {
	if idx, err := model.Index(symbols); err == nil {
		return quant.SubCovariance(model.Covariance, idx), true
	}
	vols := make([]float64, len(symbols))
	for i := range vols {
		vols[i] = cfg.DefaultVolatility
	}
	return quant.DiagonalCovariance(vols), false
}

type riskReport struct {
	metrics       allocation.RiskMetrics
	contributions map[string]float64
	volatilities  map[string]float64
}

func computeRisk(symbols []string, target weights, cov mat.Symmetric, cfg Config) riskReport {
	r := riskReport{
		contributions: make(map[string]float64, len(symbols)),
		volatilities:  make(map[string]float64, len(symbols)),
	}
	w := make([]float64, len(symbols))
	for i, sym := range symbols {
		w[i] = target[sym]
	}
	for i, v := range quant.Volatilities(cov) {
		r.volatilities[symbols[i]] = v
	}

	rc, vol, err := quant.RiskContributions(cov, w)
	if err != nil {
		return r
	}
	var maxRC, concentration float64
	for i, c := range rc {
		r.contributions[symbols[i]] = c
		maxRC = math.Max(maxRC, c)
		concentration += c * c
	}
	dr, _ := quant.DiversificationRatio(cov, w)

	r.metrics = allocation.RiskMetrics{
		PortfolioVolatility:   vol,
		PortfolioVariance:     vol * vol,
		MaxRiskContribution:   maxRC,
		RiskConcentration:     concentration,
		DiversificationRatio:  dr,
		RiskBudgetUtilization: vol / cfg.TargetVolatility,
	}
	return r
}

func computePerformance(symbols []string, target, expected weights, vol float64) allocation.PerformanceMetrics {
	var er float64
	for _, sym := range symbols {
		er += target[sym] * expected[sym]
	}
	pm := allocation.PerformanceMetrics{
		ExpectedReturn:   er,
		TrackingError:    trackingError,
		InformationRatio: er / trackingError,
	}
	if vol > 0 {
		pm.SharpeRatio = er / vol
	}
	return pm
}

// turnover is sum |target - current| over the union of symbols
func turnover(target, current map[string]float64) (float64, float64) {
	var total, maxChange float64
	seen := make(map[string]bool, len(target)+len(current))
	for sym, w := range target {
		d := math.Abs(w - current[sym])
		total += d
		maxChange = math.Max(maxChange, d)
		seen[sym] = true
	}
	for sym, w := range current {
		if seen[sym] {
			continue
		}
		total += math.Abs(w)
		maxChange = math.Max(maxChange, math.Abs(w))
	}
	return total, maxChange
}

func liquidityConstraints(symbols []string, target weights, cfg Config) allocation.LiquidityConstraints {
	lc := allocation.LiquidityConstraints{IlliquidRisk: []string{}}
	var invested float64
	for _, sym := range symbols {
		w := target[sym]
		invested += w
		if w > cfg.ConcentrationThreshold {
			lc.IlliquidRisk = append(lc.IlliquidRisk, sym)
			lc.ConcentrationExcess += w - cfg.ConcentrationThreshold
		}
	}
	sort.Strings(lc.IlliquidRisk)
	lc.CashReserve = math.Max(0, 1-invested)
	return lc
}

// liquidityScore is mean quote volume of the last bars against the reference
// volume, capped at 1. Unknown volume scores 0.5.
func liquidityScore(series market_data.Series, reference float64) float64 {
	tail := series.SortAscending().Tail(liquidityBars)
	if len(tail) == 0 {
		return unknownLiquidity
	}
	var sum float64
	for _, v := range tail.QuoteVolumes() {
		sum += v
	}
	if sum <= 0 || !finite(sum) {
		return unknownLiquidity
	}
	return math.Min(1, sum/float64(len(tail))/reference)
}
