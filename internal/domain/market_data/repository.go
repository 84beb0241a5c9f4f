package market_data

import (
	"context"
)

// Reader loads candle history
type Reader interface {
	// GetLatestOHLCV returns up to limit most recent candles, oldest first
	GetLatestOHLCV(ctx context.Context, exchange, symbol, timeframe string, limit int) (Series, error)
}

// Writer stores candles. Implementations reject the whole call when any
// candle fails Validate.
type Writer interface {
	InsertOHLCV(ctx context.Context, candles []OHLCV) error
}

// Repository is the ClickHouse candle store
type Repository interface {
	Reader
	Writer
}
