package quant

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"tradecouncil/pkg/errors"
)

func TestReturns(t *testing.T) {
	closes := []float64{100, 110, 0, 121, 133.1}

	simple := Returns(closes, false)
	require.Len(t, simple, 2) // pairs touching the zero price are skipped
	assert.InDelta(t, 0.1, simple[0], 1e-12)
	assert.InDelta(t, 0.1, simple[1], 1e-12)

	logs := Returns([]float64{100, 110}, true)
	require.Len(t, logs, 1)
	assert.InDelta(t, math.Log(1.1), logs[0], 1e-12)

	assert.Nil(t, Returns([]float64{1}, true))
}

func TestExponentialWeights(t *testing.T) {
	w := ExponentialWeights(10, 3)
	require.Len(t, w, 10)
	assert.InDelta(t, 10, floats.Sum(w), 1e-9)
	// newest observation is heaviest, one half-life back weighs half as much
	assert.InDelta(t, 0.5, w[6]/w[9], 1e-12)

	flat := ExponentialWeights(4, 0)
	assert.Equal(t, []float64{1, 1, 1, 1}, flat)
}

func TestCommonTimesAndJoinedReturns(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	// b misses day 3 and has a bad close on day 5
	a := NewTimedCloses([]time.Time{day(1), day(2), day(3), day(4), day(5), day(6)}, []float64{100, 101, 102, 103, 104, 105})
	b := NewTimedCloses([]time.Time{day(1), day(2), day(4), day(5), day(6)}, []float64{50, 51, 53, math.NaN(), 55})
	require.Len(t, b, 4)

	times := CommonTimes([]TimedCloses{a, b})
	assert.Equal(t, []int64{day(1).UnixNano(), day(2).UnixNano(), day(4).UnixNano(), day(6).UnixNano()}, times)

	r := JoinedReturns([]TimedCloses{a, b}, times, false)
	require.Len(t, r, 2)
	assert.InDeltaSlice(t, []float64{101.0/100 - 1, 103.0/101 - 1, 105.0/103 - 1}, r[0], 1e-12)
	assert.InDeltaSlice(t, []float64{51.0/50 - 1, 53.0/51 - 1, 55.0/53 - 1}, r[1], 1e-12)

	assert.Nil(t, CommonTimes(nil))
}

func TestEWCovariance(t *testing.T) {
	a := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.011}
	b := make([]float64, len(a))
	for i, v := range a {
		b[i] = 2 * v
	}

	cov, corr, err := EWCovariance([][]float64{a, b}, 3, 252)
	require.NoError(t, err)
	assert.InDelta(t, 4*cov.At(0, 0), cov.At(1, 1), 1e-12)
	assert.InDelta(t, 2*cov.At(0, 0), cov.At(0, 1), 1e-12)
	assert.InDelta(t, 1, corr.At(0, 1), 1e-9)
	assert.Greater(t, cov.At(0, 0), 0.0)

	t.Run("insufficient", func(t *testing.T) {
		_, _, err := EWCovariance([][]float64{{0.1}}, 3, 252)
		assert.True(t, errors.Is(err, errors.ErrInsufficientHistory))
	})

	t.Run("ragged", func(t *testing.T) {
		_, _, err := EWCovariance([][]float64{{0.1, 0.2}, {0.1}}, 3, 252)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	})
}

func TestProjectCappedSimplex(t *testing.T) {
	tests := []struct {
		name                 string
		y                    []float64
		lower, upper, budget float64
	}{
		{"inside", []float64{0.2, 0.3, 0.5}, 0, 1, 1},
		{"above caps", []float64{5, 5, -3}, 0.01, 0.5, 1},
		{"all equal", []float64{7, 7, 7, 7}, 0.01, 0.5, 1},
		{"tight", []float64{0.9, 0.05, 0.05}, 0.2, 0.4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := ProjectCappedSimplex(tt.y, tt.lower, tt.upper, tt.budget)
			assert.InDelta(t, tt.budget, floats.Sum(x), 1e-9)
			for _, v := range x {
				assert.GreaterOrEqual(t, v, tt.lower-1e-12)
				assert.LessOrEqual(t, v, tt.upper+1e-12)
			}
		})
	}

	x := ProjectCappedSimplex([]float64{0.2, 0.3, 0.5}, 0, 1, 1)
	assert.InDeltaSlice(t, []float64{0.2, 0.3, 0.5}, x, 1e-9)
}

func diag(vols ...float64) *mat.SymDense {
	return DiagonalCovariance(vols)
}

func TestMinimize(t *testing.T) {
	cov := diag(1, 2)
	equal := []float64{0.5, 0.5}

	t.Run("min variance", func(t *testing.T) {
		res, err := Minimize(Problem{Objective: VarianceObjective(cov), Lower: 0, Upper: 1, Budget: 1}, equal, DefaultSettings())
		require.NoError(t, err)
		assert.True(t, res.Converged)
		// inverse variance: 1/1 : 1/4
		assert.InDeltaSlice(t, []float64{0.8, 0.2}, res.X, 1e-4)
	})

	t.Run("min variance hits the cap", func(t *testing.T) {
		res, err := Minimize(Problem{Objective: VarianceObjective(cov), Lower: 0.01, Upper: 0.6, Budget: 1}, equal, DefaultSettings())
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{0.6, 0.4}, res.X, 1e-4)
	})

	t.Run("risk parity", func(t *testing.T) {
		res, err := Minimize(Problem{Objective: RiskParityObjective(cov), Lower: 0.01, Upper: 0.99, Budget: 1}, equal, DefaultSettings())
		require.NoError(t, err)
		// inverse volatility when uncorrelated
		assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, res.X, 1e-3)

		rc, _, err := RiskContributions(cov, res.X)
		require.NoError(t, err)
		assert.InDelta(t, rc[0], rc[1], 1e-3)
	})

	t.Run("max diversification", func(t *testing.T) {
		res, err := Minimize(Problem{Objective: NegativeDiversificationRatio(cov), Lower: 0.01, Upper: 0.99, Budget: 1}, equal, DefaultSettings())
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, res.X, 1e-3)
	})

	t.Run("infeasible bounds", func(t *testing.T) {
		_, err := Minimize(Problem{Objective: VarianceObjective(diag(1, 1, 1)), Lower: 0, Upper: 0.3, Budget: 1}, []float64{0.3, 0.3, 0.3}, DefaultSettings())
		assert.True(t, errors.Is(err, errors.ErrInfeasibleBounds))
	})

	t.Run("iteration limit", func(t *testing.T) {
		res, err := Minimize(Problem{Objective: VarianceObjective(cov), Lower: 0, Upper: 1, Budget: 1}, equal,
			Settings{MaxIterations: 1, Tolerance: 0, InitialStep: 1e-6})
		assert.True(t, errors.Is(err, errors.ErrNotConverged))
		require.NotNil(t, res)
		assert.InDelta(t, 1, floats.Sum(res.X), 1e-9)
	})
}

func TestDiversificationRatio(t *testing.T) {
	cov := diag(1, 1)
	dr, err := DiversificationRatio(cov, []float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, dr, 1e-12)

	_, err = DiversificationRatio(mat.NewSymDense(2, nil), []float64{0.5, 0.5})
	assert.True(t, errors.Is(err, errors.ErrDegenerate))
}

func TestNormalizeCovariance(t *testing.T) {
	n, err := NormalizeCovariance(diag(0.1, 0.3))
	require.NoError(t, err)
	assert.InDelta(t, 2, n.At(0, 0)+n.At(1, 1), 1e-12)
}

func TestRiskModelIndex(t *testing.T) {
	m := &RiskModel{Symbols: []string{"A", "B", "C"}, Covariance: diag(1, 2, 3)}

	idx, err := m.Index([]string{"C", "A"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, idx)

	sub := SubCovariance(m.Covariance, idx)
	assert.InDelta(t, 9, sub.At(0, 0), 1e-12)
	assert.InDelta(t, 1, sub.At(1, 1), 1e-12)

	_, err = m.Index([]string{"D"})
	assert.True(t, errors.Is(err, errors.ErrNoCovariance))

	dup := m.Clone()
	dup.Covariance.SetSym(0, 0, 42)
	assert.InDelta(t, 1, m.Covariance.At(0, 0), 1e-12)
}
