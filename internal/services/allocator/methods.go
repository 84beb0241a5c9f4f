package allocator

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/mat"

	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/quant"
	"tradecouncil/pkg/errors"
)

const (
	sellDiscount        = 0.1
	meanReversionWindow = 20
	shortMomentum       = 5
	longMomentum        = 15
)

// weights maps symbol -> raw (unconstrained) weight
type weights map[string]float64

// methodFunc builds raw weights. An error means the method could not run;
// the caller falls back to equal weights.
type methodFunc func(b *book) (weights, error)

// methods is the closed dispatch table; every allocation.Method has an entry
var methods = map[allocation.Method]methodFunc{
	allocation.MethodStrategic:          strategic,
	allocation.MethodTactical:           tactical,
	allocation.MethodRiskParity:         optimized(quant.RiskParityObjective),
	allocation.MethodMaxDiversification: optimized(quant.NegativeDiversificationRatio),
	allocation.MethodMinVariance:        optimized(quant.VarianceObjective),
	allocation.MethodMeanReversion:      meanReversion,
	allocation.MethodMomentum:           momentum,
}

func strategic(b *book) (weights, error) {
	raw := make(weights, len(b.symbols))
	for _, sym := range b.symbols {
		raw[sym] = math.Max(0, b.expectedReturns[sym])
	}
	return normalizeOrEqual(b.symbols, raw), nil
}

func tactical(b *book) (weights, error) {
	raw := make(weights, len(b.symbols))
	var total float64
	for _, sym := range b.symbols {
		s := b.signals[sym]
		strength := math.Abs(s.action.Float()) * s.confidence
		if s.action == decision.ActionSell {
			strength *= sellDiscount
		}
		raw[sym] = strength
		total += strength
	}
	if total <= 0 {
		return strategic(b)
	}
	return normalizeOrEqual(b.symbols, raw), nil
}

// optimized runs the box/budget constrained optimizer on the risk model
func optimized(objective func(cov mat.Symmetric) quant.Objective) methodFunc {
	return func(b *book) (weights, error) {
		if len(b.symbols) < 2 {
			return nil, errors.Wrapf(errors.ErrNoCovariance, "%d symbols", len(b.symbols))
		}
		idx, err := b.riskModel.Index(b.symbols)
		if err != nil {
			return nil, err
		}
		cov, err := quant.NormalizeCovariance(quant.SubCovariance(b.riskModel.Covariance, idx))
		if err != nil {
			return nil, err
		}

		n := len(b.symbols)
		x0 := make([]float64, n)
		for i := range x0 {
			x0[i] = 1 / float64(n)
		}
		problem := quant.Problem{
			Objective: objective(cov),
			Lower:     b.cfg.OptimizerMinWeight,
			Upper:     b.cfg.OptimizerMaxWeight,
			Budget:    1,
		}
		res, err := quant.Minimize(problem, x0, quant.DefaultSettings())
		if err != nil {
			return nil, err
		}

		out := make(weights, n)
		for i, sym := range b.symbols {
			out[sym] = res.X[i]
		}
		return out, nil
	}
}

func meanReversion(b *book) (weights, error) {
	raw := make(weights, len(b.symbols))
	for _, sym := range b.symbols {
		closes := b.marketData[sym].SortAscending().Closes()
		if len(closes) < meanReversionWindow {
			raw[sym] = 0
			continue
		}
		sma := talib.Sma(closes, meanReversionWindow)
		mean := sma[len(sma)-1]
		price := closes[len(closes)-1]
		if mean <= 0 || !finite(mean) || !finite(price) {
			continue
		}
		raw[sym] = math.Abs(price-mean) / mean
	}
	return normalizeOrEqual(b.symbols, raw), nil
}

func momentum(b *book) (weights, error) {
	raw := make(weights, len(b.symbols))
	for _, sym := range b.symbols {
		closes := b.marketData[sym].SortAscending().Closes()
		if len(closes) <= longMomentum {
			raw[sym] = 0
			continue
		}
		short := lastRate(talib.Roc(closes, shortMomentum))
		long := lastRate(talib.Roc(closes, longMomentum))
		score := 0.6*short + 0.4*long
		if !finite(score) {
			score = 0
		}
		raw[sym] = math.Max(0, score)
	}
	return normalizeOrEqual(b.symbols, raw), nil
}

// lastRate converts talib's percentage rate of change to a fraction
func lastRate(roc []float64) float64 {
	if len(roc) == 0 {
		return 0
	}
	return roc[len(roc)-1] / 100
}

// normalizeOrEqual scales raw to sum 1, or returns equal weights when the
// total is not positive
func normalizeOrEqual(symbols []string, raw weights) weights {
	var total float64
	for _, sym := range symbols {
		if v := raw[sym]; v > 0 && finite(v) {
			total += v
		}
	}
	out := make(weights, len(symbols))
	for _, sym := range symbols {
		if total > 0 {
			v := raw[sym]
			if v < 0 || !finite(v) {
				v = 0
			}
			out[sym] = v / total
		} else {
			out[sym] = 1 / float64(len(symbols))
		}
	}
	return out
}

func equalWeights(symbols []string) weights {
	return normalizeOrEqual(symbols, nil)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
