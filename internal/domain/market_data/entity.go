package market_data

import (
	"math"
	"sort"
	"time"

	"tradecouncil/pkg/errors"
)

// OHLCV represents candlestick data
type OHLCV struct {
	Exchange    string    `ch:"exchange" json:"exchange"`
	Symbol      string    `ch:"symbol" json:"symbol"`
	Timeframe   string    `ch:"timeframe" json:"timeframe"` // 1m, 5m, 15m, 1h, 4h, 1d
	OpenTime    time.Time `ch:"open_time" json:"open_time"`
	Open        float64   `ch:"open" json:"open"`
	High        float64   `ch:"high" json:"high"`
	Low         float64   `ch:"low" json:"low"`
	Close       float64   `ch:"close" json:"close"`
	Volume      float64   `ch:"volume" json:"volume"`
	QuoteVolume float64   `ch:"quote_volume" json:"quote_volume"`
	Trades      uint64    `ch:"trades" json:"trades"`
}

// Series is a time-ordered (oldest first) run of candles for one symbol.
// Close is mandatory; volume may be zero when the provider does not report it.
type Series []OHLCV

// Len returns number of bars
func (s Series) Len() int {
	return len(s)
}

// Closes extracts closing prices
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices
func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

// Lows extracts low prices
func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts base volumes
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Volume
	}
	return out
}

// QuoteVolumes returns quote volume per bar, falling back to close*volume
// when the provider did not fill quote volume
func (s Series) QuoteVolumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		if c.QuoteVolume > 0 {
			out[i] = c.QuoteVolume
		} else {
			out[i] = c.Close * c.Volume
		}
	}
	return out
}

// Last returns the most recent candle and false when the series is empty
func (s Series) Last() (OHLCV, bool) {
	if len(s) == 0 {
		return OHLCV{}, false
	}
	return s[len(s)-1], true
}

// Tail returns the last n bars (the whole series when shorter)
func (s Series) Tail(n int) Series {
	if n <= 0 {
		return Series{}
	}
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// SortAscending orders candles by open time, oldest first
func (s Series) SortAscending() Series {
	sorted := make(Series, len(s))
	copy(sorted, s)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})
	return sorted
}

// Validate rejects candles that cannot be stored or priced
func (c OHLCV) Validate() error {
	switch {
	case c.Symbol == "":
		return errors.NewValidationError("symbol", "required", c.Symbol)
	case c.OpenTime.IsZero():
		return errors.NewValidationError("open_time", "required", c.OpenTime)
	case !(c.Close > 0) || math.IsInf(c.Close, 0):
		return errors.NewValidationError("close", "must be positive and finite", c.Close)
	case c.High < c.Low:
		return errors.NewValidationError("high", "below low", c.High)
	case c.Volume < 0:
		return errors.NewValidationError("volume", "negative", c.Volume)
	}
	return nil
}

// Dedupe sorts ascending and keeps the last candle seen for each open time
func (s Series) Dedupe() Series {
	sorted := s.SortAscending()
	out := sorted[:0]
	for _, c := range sorted {
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(c.OpenTime) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
