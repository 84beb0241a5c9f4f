// Package quant holds the numerical kernel of the allocator: return series,
// exponentially weighted risk models and a box/budget constrained optimizer.
package quant

import (
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Returns converts a price series into period returns. Pairs where either
// price is non-positive or non-finite are skipped.
func Returns(closes []float64, logReturns bool) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if !validPrice(prev) || !validPrice(cur) {
			continue
		}
		if logReturns {
			out = append(out, math.Log(cur/prev))
		} else {
			out = append(out, cur/prev-1)
		}
	}
	return out
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// ExponentialWeights returns n observation weights, oldest first, decaying by
// half every halfLife observations. Weights are scaled to sum to n so they
// act as frequency weights in gonum's weighted estimators.
func ExponentialWeights(n int, halfLife float64) []float64 {
	if n <= 0 {
		return nil
	}
	w := make([]float64, n)
	if halfLife <= 0 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	for i := range w {
		age := float64(n - 1 - i)
		w[i] = math.Pow(0.5, age/halfLife)
	}
	floats.Scale(float64(n)/floats.Sum(w), w)
	return w
}

// TimedCloses maps a bar open time, in unix nanoseconds, to its close.
// Bars with an unusable close are left out, so they count as missing.
type TimedCloses map[int64]float64

// NewTimedCloses keys closes by time, skipping invalid prices
func NewTimedCloses(times []time.Time, closes []float64) TimedCloses {
	out := make(TimedCloses, len(closes))
	for i, c := range closes {
		if validPrice(c) {
			out[times[i].UnixNano()] = c
		}
	}
	return out
}

// CommonTimes returns the times present in every series, ascending
func CommonTimes(series []TimedCloses) []int64 {
	if len(series) == 0 {
		return nil
	}
	out := make([]int64, 0, len(series[0]))
	for t := range series[0] {
		shared := true
		for _, s := range series[1:] {
			if _, ok := s[t]; !ok {
				shared = false
				break
			}
		}
		if shared {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// JoinedReturns computes one return series per input over times, which must
// be present in every series. Row k of each output covers the same interval.
func JoinedReturns(series []TimedCloses, times []int64, logReturns bool) [][]float64 {
	out := make([][]float64, len(series))
	closes := make([]float64, len(times))
	for i, s := range series {
		for k, t := range times {
			closes[k] = s[t]
		}
		out[i] = Returns(closes, logReturns)
	}
	return out
}
