package allocator

import (
	"slices"
	"sort"
	"time"

	"tradecouncil/internal/domain/market_data"
	"tradecouncil/internal/quant"
	"tradecouncil/pkg/errors"
)

// buildRiskModel estimates an EW covariance over the symbols of marketData.
// Closes are joined on bar open time and only the bars every kept symbol
// shares are used, the newest LookbackWindow+1 of them. While the shared
// history is shorter than MinHistory returns, the sparsest symbol is dropped.
// Returns ErrInsufficientHistory when fewer than two symbols remain.
func buildRiskModel(marketData map[string]market_data.Series, cfg Config) (*quant.RiskModel, error) {
	symbols := make([]string, 0, len(marketData))
	for sym := range marketData {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var (
		kept   []string
		closes []quant.TimedCloses
	)
	for _, sym := range symbols {
		s := marketData[sym].Dedupe()
		times := make([]time.Time, len(s))
		for i, c := range s {
			times[i] = c.OpenTime
		}
		tc := quant.NewTimedCloses(times, s.Closes())
		if len(tc)-1 < cfg.MinHistory {
			continue
		}
		kept = append(kept, sym)
		closes = append(closes, tc)
	}

	for len(kept) >= 2 {
		times := quant.CommonTimes(closes)
		if n := cfg.LookbackWindow + 1; len(times) > n {
			times = times[len(times)-n:]
		}
		if len(times)-1 >= cfg.MinHistory {
			returns := quant.JoinedReturns(closes, times, cfg.UseLogReturns)
			cov, corr, err := quant.EWCovariance(returns, cfg.HalfLife, cfg.Annualization)
			if err != nil {
				return nil, err
			}
			return &quant.RiskModel{
				Symbols:     kept,
				Covariance:  cov,
				Correlation: corr,
				Obs:         len(times) - 1,
			}, nil
		}

		// ties drop the later symbol so the outcome is deterministic
		drop := 0
		for i := range closes {
			if len(closes[i]) <= len(closes[drop]) {
				drop = i
			}
		}
		kept = slices.Delete(kept, drop, drop+1)
		closes = slices.Delete(closes, drop, drop+1)
	}
	return nil, errors.Wrapf(errors.ErrInsufficientHistory, "%d of %d symbols share %d returns", len(kept), len(symbols), cfg.MinHistory)
}
