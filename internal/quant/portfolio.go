package quant

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"tradecouncil/pkg/errors"
)

// PortfolioVariance is w' Σ w
func PortfolioVariance(cov mat.Symmetric, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, cov, v)
}

// MarginalRisk is Σ w
func MarginalRisk(cov mat.Symmetric, w []float64) []float64 {
	var m mat.VecDense
	m.MulVec(cov, mat.NewVecDense(len(w), w))
	out := make([]float64, len(w))
	for i := range out {
		out[i] = m.AtVec(i)
	}
	return out
}

// RiskContributions returns w_i (Σw)_i / σ_p and σ_p
func RiskContributions(cov mat.Symmetric, w []float64) ([]float64, float64, error) {
	variance := PortfolioVariance(cov, w)
	if !finite(variance) || variance <= 0 {
		return nil, 0, errors.Wrapf(errors.ErrDegenerate, "portfolio variance %v", variance)
	}
	vol := math.Sqrt(variance)
	marginal := MarginalRisk(cov, w)
	rc := make([]float64, len(w))
	for i := range w {
		rc[i] = w[i] * marginal[i] / vol
	}
	return rc, vol, nil
}

// DiversificationRatio is Σ w_i σ_i / σ_p
func DiversificationRatio(cov mat.Symmetric, w []float64) (float64, error) {
	variance := PortfolioVariance(cov, w)
	if !finite(variance) || variance <= 0 {
		return 0, errors.Wrapf(errors.ErrDegenerate, "portfolio variance %v", variance)
	}
	var weighted float64
	for i, s := range Volatilities(cov) {
		weighted += w[i] * s
	}
	return weighted / math.Sqrt(variance), nil
}

// VarianceObjective minimizes w' Σ w
func VarianceObjective(cov mat.Symmetric) Objective {
	return func(w []float64) float64 {
		return PortfolioVariance(cov, w)
	}
}

// RiskParityObjective minimizes Σ (rc_i - σ_p/n)^2
func RiskParityObjective(cov mat.Symmetric) Objective {
	return func(w []float64) float64 {
		rc, vol, err := RiskContributions(cov, w)
		if err != nil {
			return math.Inf(1)
		}
		target := vol / float64(len(w))
		var sum float64
		for _, c := range rc {
			d := c - target
			sum += d * d
		}
		return sum
	}
}

// NegativeDiversificationRatio maximizes the diversification ratio
func NegativeDiversificationRatio(cov mat.Symmetric) Objective {
	vols := Volatilities(cov)
	return func(w []float64) float64 {
		variance := PortfolioVariance(cov, w)
		if !finite(variance) || variance <= 0 {
			return math.Inf(1)
		}
		var weighted float64
		for i, s := range vols {
			weighted += w[i] * s
		}
		return -weighted / math.Sqrt(variance)
	}
}

// NormalizeCovariance scales cov by the inverse of its mean diagonal so the
// optimizer sees entries of order one. Weights optimal for the scaled matrix
// are optimal for the original.
func NormalizeCovariance(cov mat.Symmetric) (*mat.SymDense, error) {
	n := cov.SymmetricDim()
	var trace float64
	for i := 0; i < n; i++ {
		trace += cov.At(i, i)
	}
	if n == 0 || !finite(trace) || trace <= 0 {
		return nil, errors.Wrapf(errors.ErrDegenerate, "covariance trace %v", trace)
	}
	out := mat.NewSymDense(n, nil)
	out.ScaleSym(float64(n)/trace, cov)
	return out, nil
}
