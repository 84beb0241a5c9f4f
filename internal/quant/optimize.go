package quant

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"tradecouncil/pkg/errors"
)

// Objective is a scalar function of portfolio weights
type Objective func(x []float64) float64

// Problem is minimize f(x) subject to sum(x) == Budget and Lower <= x_i <= Upper
type Problem struct {
	Objective Objective
	// Gradient is optional; central finite differences are used when nil
	Gradient func(grad, x []float64)
	Lower    float64
	Upper    float64
	Budget   float64
}

// Settings controls the solver
type Settings struct {
	MaxIterations int
	Tolerance     float64 // infinity-norm of the step that counts as converged
	InitialStep   float64
}

// DefaultSettings are tuned for small, normalized covariance problems
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: 2000,
		Tolerance:     1e-10,
		InitialStep:   1,
	}
}

// Result of a Minimize call
type Result struct {
	X          []float64
	F          float64
	Iterations int
	Converged  bool
}

const (
	maxStep        = 1e6
	maxBacktracks  = 60
	bisectionIters = 200
)

// Feasible reports whether n weights can satisfy the box and budget constraints
func (p Problem) Feasible(n int) bool {
	if n == 0 || p.Lower > p.Upper {
		return false
	}
	eps := 1e-12
	return float64(n)*p.Lower <= p.Budget+eps && float64(n)*p.Upper >= p.Budget-eps
}

// Minimize runs projected gradient descent with a backtracking line search.
// The returned Result is always feasible; a non-nil error wrapping
// ErrNotConverged still carries the last iterate.
func Minimize(p Problem, x0 []float64, s Settings) (*Result, error) {
	n := len(x0)
	if p.Objective == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "objective is nil")
	}
	if !p.Feasible(n) {
		return nil, errors.Wrapf(errors.ErrInfeasibleBounds,
			"n=%d lower=%g upper=%g budget=%g", n, p.Lower, p.Upper, p.Budget)
	}
	if s.MaxIterations <= 0 {
		s = DefaultSettings()
	}

	x := ProjectCappedSimplex(x0, p.Lower, p.Upper, p.Budget)
	f := p.Objective(x)
	if !finite(f) {
		return nil, errors.Wrapf(errors.ErrDegenerate, "objective is %v at the starting point", f)
	}

	grad := make([]float64, n)
	trial := make([]float64, n)
	diff := make([]float64, n)
	step := s.InitialStep
	if step <= 0 {
		step = 1
	}

	res := &Result{X: x, F: f}
	for res.Iterations = 0; res.Iterations < s.MaxIterations; res.Iterations++ {
		p.gradient(grad, x)
		if !allFinite(grad) {
			return res, errors.Wrap(errors.ErrDegenerate, "gradient is not finite")
		}

		t := step
		accepted := false
		var ft float64
		for k := 0; k < maxBacktracks; k++ {
			for i := range trial {
				trial[i] = x[i] - t*grad[i]
			}
			projected := ProjectCappedSimplex(trial, p.Lower, p.Upper, p.Budget)
			copy(trial, projected)
			ft = p.Objective(trial)

			floats.SubTo(diff, trial, x)
			// sufficient decrease for the projected step
			bound := f + floats.Dot(grad, diff) + floats.Dot(diff, diff)/(2*t)
			if finite(ft) && ft <= bound+1e-15*math.Abs(f) {
				accepted = true
				break
			}
			t /= 2
		}
		if !accepted {
			// no descent along the projected gradient; x is stationary to
			// machine precision
			res.Converged = true
			return res, nil
		}

		moved := floats.Norm(diff, math.Inf(1))
		decrease := f - ft
		copy(x, trial)
		f = ft
		res.F = f
		step = math.Min(2*t, maxStep)

		if moved < s.Tolerance || decrease <= 1e-16*(1+math.Abs(f)) {
			res.Iterations++
			res.Converged = true
			return res, nil
		}
	}
	return res, errors.Wrapf(errors.ErrNotConverged, "after %d iterations", res.Iterations)
}

func (p Problem) gradient(dst, x []float64) {
	if p.Gradient != nil {
		p.Gradient(dst, x)
		return
	}
	fd.Gradient(dst, p.Objective, x, &fd.Settings{Formula: fd.Central})
}

// ProjectCappedSimplex returns the Euclidean projection of y onto
// {x : sum(x) == budget, lower <= x_i <= upper}. The caller must ensure the
// set is non-empty.
func ProjectCappedSimplex(y []float64, lower, upper, budget float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	// x_i(tau) = clip(y_i - tau) is non-increasing in tau
	lo := floats.Min(y) - upper
	hi := floats.Max(y) - lower
	sum := func(tau float64) float64 {
		var s float64
		for _, v := range y {
			s += clip(v-tau, lower, upper)
		}
		return s
	}
	for i := 0; i < bisectionIters && hi-lo > 1e-15*math.Max(1, math.Abs(hi)); i++ {
		mid := (lo + hi) / 2
		if sum(mid) > budget {
			lo = mid
		} else {
			hi = mid
		}
	}
	tau := (lo + hi) / 2
	for i, v := range y {
		out[i] = clip(v-tau, lower, upper)
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}
