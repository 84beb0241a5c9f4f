package allocator

import (
	"math"
	"sort"

	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/internal/quant"
)

// signal is the flattened view of one coordinated decision
type signal struct {
	action                 decision.Action
	confidence             float64
	positionSize           float64
	expectedReturn         float64 // as supplied, 0 when absent
	riskAssessment         float64
	coordinationConfidence float64
}

// book is everything an allocation method reads. symbols is sorted.
type book struct {
	symbols         []string
	signals         map[string]signal
	expectedReturns map[string]float64
	marketData      map[string]market_data.Series
	riskModel       *quant.RiskModel
	cfg             Config
}

func extractSignals(decisions map[string]*decision.CoordinatedDecision) ([]string, map[string]signal) {
	symbols := make([]string, 0, len(decisions))
	out := make(map[string]signal, len(decisions))
	for sym, d := range decisions {
		if d == nil {
			continue
		}
		symbols = append(symbols, sym)
		out[sym] = signal{
			action:                 d.FinalAction,
			confidence:             d.FinalConfidence,
			positionSize:           d.FinalPositionSize,
			expectedReturn:         d.ExpectedReturnOrZero(),
			riskAssessment:         math.Max(0, math.Min(1, d.RiskAssessmentOrZero())),
			coordinationConfidence: d.CoordinationConfidence,
		}
	}
	sort.Strings(symbols)
	return symbols, out
}

// estimateReturns uses a supplied nonzero expected return, otherwise
// action * confidence * base, then discounts by (1 - risk)
func estimateReturns(symbols []string, signals map[string]signal, base float64) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		s := signals[sym]
		er := s.expectedReturn
		if er == 0 || math.IsNaN(er) || math.IsInf(er, 0) {
			er = s.action.Float() * s.confidence * base
		}
		out[sym] = er * (1 - s.riskAssessment)
	}
	return out
}
