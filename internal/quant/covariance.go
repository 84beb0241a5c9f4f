package quant

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"tradecouncil/pkg/errors"
)

// RiskModel is a covariance estimate over an ordered set of symbols
type RiskModel struct {
	Symbols     []string
	Covariance  *mat.SymDense
	Correlation *mat.SymDense
	Obs         int // aligned observations used
}

// EWCovariance estimates an annualized, exponentially weighted covariance
// matrix. returns[i] is asset i's return series; all series must have the
// same length.
func EWCovariance(returns [][]float64, halfLife, annualization float64) (*mat.SymDense, *mat.SymDense, error) {
	n := len(returns)
	if n == 0 {
		return nil, nil, errors.Wrap(errors.ErrInsufficientHistory, "no return series")
	}
	t := len(returns[0])
	if t < 2 {
		return nil, nil, errors.Wrapf(errors.ErrInsufficientHistory, "%d observations", t)
	}
	for i, r := range returns {
		if len(r) != t {
			return nil, nil, errors.Wrapf(errors.ErrInvalidInput, "series %d has %d observations, want %d", i, len(r), t)
		}
	}

	data := mat.NewDense(t, n, nil)
	for i, r := range returns {
		for j, v := range r {
			data.Set(j, i, v)
		}
	}
	weights := ExponentialWeights(t, halfLife)

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, weights)
	if annualization > 0 {
		cov.ScaleSym(annualization, &cov)
	}

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, data, weights)

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			if v := cov.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, errors.Wrapf(errors.ErrDegenerate, "covariance[%d,%d] is %v", i, j, v)
			}
		}
	}
	return &cov, &corr, nil
}

// Volatilities returns the square root of the covariance diagonal
func Volatilities(cov mat.Symmetric) []float64 {
	n, _ := cov.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}
	return out
}

// DiagonalCovariance builds a covariance with the given volatilities and no correlation
func DiagonalCovariance(vols []float64) *mat.SymDense {
	n := len(vols)
	cov := mat.NewSymDense(n, nil)
	for i, v := range vols {
		cov.SetSym(i, i, v*v)
	}
	return cov
}

// SubCovariance extracts the rows/columns at idx from cov
func SubCovariance(cov mat.Symmetric, idx []int) *mat.SymDense {
	out := mat.NewSymDense(len(idx), nil)
	for a, i := range idx {
		for b := a; b < len(idx); b++ {
			out.SetSym(a, b, cov.At(i, idx[b]))
		}
	}
	return out
}

// Index returns the position of every requested symbol in the model, or
// ErrNoCovariance when one of them is not covered
func (m *RiskModel) Index(symbols []string) ([]int, error) {
	if m == nil || m.Covariance == nil {
		return nil, errors.ErrNoCovariance
	}
	pos := make(map[string]int, len(m.Symbols))
	for i, s := range m.Symbols {
		pos[s] = i
	}
	idx := make([]int, len(symbols))
	for i, s := range symbols {
		p, ok := pos[s]
		if !ok {
			return nil, errors.Wrapf(errors.ErrNoCovariance, "symbol %s not in risk model", s)
		}
		idx[i] = p
	}
	return idx, nil
}

// Clone returns a deep copy
func (m *RiskModel) Clone() *RiskModel {
	if m == nil {
		return nil
	}
	dup := &RiskModel{
		Symbols: append([]string(nil), m.Symbols...),
		Obs:     m.Obs,
	}
	if m.Covariance != nil {
		dup.Covariance = mat.NewSymDense(len(m.Symbols), nil)
		dup.Covariance.CopySym(m.Covariance)
	}
	if m.Correlation != nil {
		dup.Correlation = mat.NewSymDense(len(m.Symbols), nil)
		dup.Correlation.CopySym(m.Correlation)
	}
	return dup
}
