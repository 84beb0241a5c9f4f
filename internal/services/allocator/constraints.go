package allocator

import (
	"math"

	"tradecouncil/internal/quant"
)

// clampWeights bounds every raw weight to [min, max]
func clampWeights(symbols []string, raw weights, lo, hi float64) weights {
	out := make(weights, len(symbols))
	for _, sym := range symbols {
		v := raw[sym]
		if !finite(v) {
			v = 0
		}
		out[sym] = math.Max(lo, math.Min(hi, v))
	}
	return out
}

// applyConstraints clamps raw weights to the position bounds, renormalizes to
// 1 and scales by (1 - liquidity requirement). When the bounds can hold the
// invested total (n*min <= total <= n*max) the excess or shortfall created by
// the scaling is redistributed so every final weight is inside the bounds too.
func applyConstraints(symbols []string, raw weights, cfg Config) weights {
	if len(symbols) == 0 {
		return weights{}
	}
	clamped := clampWeights(symbols, raw, cfg.MinPositionSize, cfg.MaxPositionSize)
	invested := 1 - cfg.LiquidityRequirement

	out := normalizeOrEqual(symbols, clamped)
	for sym := range out {
		out[sym] *= invested
	}

	n := float64(len(symbols))
	if n*cfg.MinPositionSize > invested+1e-12 || n*cfg.MaxPositionSize < invested-1e-12 {
		return out
	}
	return redistribute(symbols, out, cfg.MinPositionSize, cfg.MaxPositionSize, invested)
}

// redistribute pins weights that break a bound and rescales the rest
// proportionally until every weight fits. Falls back to a Euclidean
// projection if proportional rescaling cannot settle.
func redistribute(symbols []string, w weights, lo, hi, total float64) weights {
	out := make(weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	pinned := make(map[string]bool, len(symbols))

	for round := 0; round <= len(symbols); round++ {
		if !rescaleFree(symbols, out, pinned, total) {
			break
		}

		violated := false
		for _, sym := range symbols {
			if pinned[sym] {
				continue
			}
			if out[sym] > hi+1e-12 {
				out[sym], pinned[sym], violated = hi, true, true
			}
		}
		if !violated {
			for _, sym := range symbols {
				if pinned[sym] {
					continue
				}
				if out[sym] < lo-1e-12 {
					out[sym], pinned[sym], violated = lo, true, true
				}
			}
		}
		if !violated {
			return out
		}
	}

	y := make([]float64, len(symbols))
	for i, sym := range symbols {
		y[i] = w[sym]
	}
	x := quant.ProjectCappedSimplex(y, lo, hi, total)
	for i, sym := range symbols {
		out[sym] = x[i]
	}
	return out
}

// rescaleFree scales unpinned weights so all weights sum to total. Reports
// false when nothing is left to scale.
func rescaleFree(symbols []string, w weights, pinned map[string]bool, total float64) bool {
	var fixed, free float64
	var freeCount int
	for _, sym := range symbols {
		if pinned[sym] {
			fixed += w[sym]
		} else {
			free += w[sym]
			freeCount++
		}
	}
	if freeCount == 0 {
		return false
	}
	remaining := total - fixed
	for _, sym := range symbols {
		if pinned[sym] {
			continue
		}
		if free > 0 {
			w[sym] *= remaining / free
		} else {
			w[sym] = remaining / float64(freeCount)
		}
	}
	return true
}
