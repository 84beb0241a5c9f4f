package main

import (
	"context"

	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// load writes candles one symbol at a time, in input order, so a failure
// names the symbol and earlier symbols stay written
func load(ctx context.Context, w market_data.Writer, candles []market_data.OHLCV, log *logger.Logger) error {
	for start := 0; start < len(candles); {
		symbol := candles[start].Symbol
		end := start
		for end < len(candles) && candles[end].Symbol == symbol {
			end++
		}
		if err := w.InsertOHLCV(ctx, candles[start:end]); err != nil {
			return errors.Wrapf(err, "seed %s", symbol)
		}
		log.Infow("Seeded symbol", "symbol", symbol, "candles", end-start)
		start = end
	}
	return nil
}
