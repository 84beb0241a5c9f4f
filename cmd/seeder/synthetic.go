package main

import (
	"math"
	"math/rand"
	"time"

	"tradecouncil/internal/domain/market_data"
)

// SyntheticConfig describes a generated universe
type SyntheticConfig struct {
	Exchange  string
	Symbols   []string
	Timeframe string
	Bars      int
	End       time.Time // open time of the last bar
	DailyVol  float64
	Seed      int64
}

// Synthetic generates one geometric random walk per symbol with daily bars
// ending at cfg.End. Output is deterministic for a given seed.
func Synthetic(cfg SyntheticConfig) []market_data.OHLCV {
	rng := rand.New(rand.NewSource(cfg.Seed))
	start := cfg.End.AddDate(0, 0, -(cfg.Bars - 1))

	out := make([]market_data.OHLCV, 0, len(cfg.Symbols)*cfg.Bars)
	for i, sym := range cfg.Symbols {
		// spread symbols over distinct volatility levels
		vol := cfg.DailyVol * (1 + 0.5*float64(i))
		price := 100 * float64(i+1)
		for b := 0; b < cfg.Bars; b++ {
			open := price
			price *= math.Exp(rng.NormFloat64() * vol)
			high := math.Max(open, price) * (1 + vol/2)
			low := math.Min(open, price) * (1 - vol/2)
			volume := 1000 * (1 + rng.Float64())
			out = append(out, market_data.OHLCV{
				Exchange:    cfg.Exchange,
				Symbol:      sym,
				Timeframe:   cfg.Timeframe,
				OpenTime:    start.AddDate(0, 0, b),
				Open:        open,
				High:        high,
				Low:         low,
				Close:       price,
				Volume:      volume,
				QuoteVolume: volume * price,
				Trades:      uint64(100 + rng.Intn(900)),
			})
		}
	}
	return out
}
