package clickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
)

var _ market_data.Repository = (*MarketDataRepository)(nil)

// DefaultInsertBatch bounds the rows sent in one INSERT
const DefaultInsertBatch = 10_000

const insertOHLCV = `
	INSERT INTO ohlcv (
		exchange, symbol, timeframe, open_time,
		open, high, low, close, volume, quote_volume, trades
	)`

// The table is a ReplacingMergeTree, so unmerged parts may still hold
// duplicate candles; they are collapsed in Go rather than with FINAL.
const selectLatestOHLCV = `
	SELECT exchange, symbol, timeframe, open_time, open, high, low, close, volume, quote_volume, trades
	FROM ohlcv
	WHERE exchange = $1 AND symbol = $2 AND timeframe = $3
	ORDER BY open_time DESC
	LIMIT $4`

// MarketDataRepository reads and writes candles in ClickHouse
type MarketDataRepository struct {
	conn      driver.Conn
	batchSize int
}

// NewMarketDataRepository creates the repository
func NewMarketDataRepository(conn driver.Conn) *MarketDataRepository {
	return &MarketDataRepository{conn: conn, batchSize: DefaultInsertBatch}
}

// WithBatchSize overrides the insert chunk size; n <= 0 keeps the default
func (r *MarketDataRepository) WithBatchSize(n int) *MarketDataRepository {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

// InsertOHLCV validates candles and inserts them in batches. Nothing is sent
// when any candle is invalid.
func (r *MarketDataRepository) InsertOHLCV(ctx context.Context, candles []market_data.OHLCV) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "candle %d (%s %s)", i, c.Symbol, c.OpenTime.Format("2006-01-02T15:04"))
		}
	}

	for start := 0; start < len(candles); start += r.batchSize {
		end := min(start+r.batchSize, len(candles))
		if err := r.insertBatch(ctx, candles[start:end]); err != nil {
			return errors.Wrapf(err, "rows %d-%d", start, end-1)
		}
	}
	return nil
}

func (r *MarketDataRepository) insertBatch(ctx context.Context, candles []market_data.OHLCV) error {
	batch, err := r.conn.PrepareBatch(ctx, insertOHLCV)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	for _, c := range candles {
		err := batch.Append(
			c.Exchange, c.Symbol, c.Timeframe, c.OpenTime,
			c.Open, c.High, c.Low, c.Close,
			c.Volume, c.QuoteVolume, c.Trades,
		)
		if err != nil {
			_ = batch.Abort()
			return errors.Wrap(err, "failed to append candle")
		}
	}
	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}
	return nil
}

// GetLatestOHLCV returns up to limit most recent candles, oldest first and
// one per open time
func (r *MarketDataRepository) GetLatestOHLCV(ctx context.Context, exchange, symbol, timeframe string, limit int) (market_data.Series, error) {
	if limit <= 0 {
		return nil, errors.NewValidationError("limit", "must be positive", limit)
	}

	var candles []market_data.OHLCV
	if err := r.conn.Select(ctx, &candles, selectLatestOHLCV, exchange, symbol, timeframe, limit); err != nil {
		return nil, errors.Wrapf(err, "failed to load ohlcv %s %s %s", exchange, symbol, timeframe)
	}
	return market_data.Series(candles).Dedupe(), nil
}
