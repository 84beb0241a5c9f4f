package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
)

// selectConn answers Select with canned newest-first rows
type selectConn struct {
	driver.Conn
	rows  map[string][]market_data.OHLCV
	err   error
	calls [][]interface{}
}

func (c *selectConn) Select(_ context.Context, dest interface{}, _ string, args ...interface{}) error {
	c.calls = append(c.calls, args)
	if c.err != nil {
		return c.err
	}
	out := dest.(*[]market_data.OHLCV)
	*out = append((*out)[:0], c.rows[args[1].(string)]...)
	return nil
}

func newestFirst(symbol string, n int) []market_data.OHLCV {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market_data.OHLCV, n)
	for i := range out {
		age := n - 1 - i
		out[i] = market_data.OHLCV{
			Exchange:  "binance",
			Symbol:    symbol,
			Timeframe: "1d",
			OpenTime:  start.AddDate(0, 0, age),
			Close:     100 + float64(age),
		}
	}
	return out
}

func TestMarketDataRepository_GetLatestOHLCVAscending(t *testing.T) {
	conn := &selectConn{rows: map[string][]market_data.OHLCV{"BTCUSDT": newestFirst("BTCUSDT", 5)}}
	repo := NewMarketDataRepository(conn)

	series, err := repo.GetLatestOHLCV(context.Background(), "binance", "BTCUSDT", "1d", 5)
	require.NoError(t, err)
	require.Len(t, series, 5)
	assert.Equal(t, []float64{100, 101, 102, 103, 104}, series.Closes())
	assert.Equal(t, []interface{}{"binance", "BTCUSDT", "1d", 5}, conn.calls[0])
}

func TestMarketDataRepository_GetLatestOHLCVErrors(t *testing.T) {
	repo := NewMarketDataRepository(&selectConn{err: errors.New("connection refused")})

	_, err := repo.GetLatestOHLCV(context.Background(), "binance", "BTCUSDT", "1d", 5)
	assert.ErrorContains(t, err, "connection refused")

	_, err = repo.GetLatestOHLCV(context.Background(), "binance", "BTCUSDT", "1d", 0)
	assert.Error(t, err)
}

func TestMarketDataRepository_GetLatestOHLCVCollapsesUnmergedRows(t *testing.T) {
	rows := newestFirst("ETHUSDT", 3)
	// an unmerged part repeats the newest candle with a revised close
	revised := rows[0]
	revised.Close = 999
	rows = append([]market_data.OHLCV{revised}, rows...)

	repo := NewMarketDataRepository(&selectConn{rows: map[string][]market_data.OHLCV{"ETHUSDT": rows}})
	series, err := repo.GetLatestOHLCV(context.Background(), "binance", "ETHUSDT", "1d", 4)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.True(t, series[0].OpenTime.Before(series[2].OpenTime))
}

type fakeBatch struct {
	driver.Batch
	rows    int
	sent    bool
	aborted bool
	sendErr error
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows++
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return b.sendErr
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type batchConn struct {
	driver.Conn
	batches []*fakeBatch
	sendErr error
}

func (c *batchConn) PrepareBatch(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	b := &fakeBatch{sendErr: c.sendErr}
	c.batches = append(c.batches, b)
	return b, nil
}

func validCandles(n int) []market_data.OHLCV {
	out := newestFirst("BTCUSDT", n)
	for i := range out {
		out[i].Open, out[i].High, out[i].Low = out[i].Close, out[i].Close+1, out[i].Close-1
	}
	return out
}

func TestMarketDataRepository_InsertOHLCVChunks(t *testing.T) {
	conn := &batchConn{}
	repo := NewMarketDataRepository(conn).WithBatchSize(2)

	require.NoError(t, repo.InsertOHLCV(context.Background(), validCandles(5)))
	require.Len(t, conn.batches, 3)
	assert.Equal(t, 2, conn.batches[0].rows)
	assert.Equal(t, 2, conn.batches[1].rows)
	assert.Equal(t, 1, conn.batches[2].rows)
	for _, b := range conn.batches {
		assert.True(t, b.sent)
	}
}

func TestMarketDataRepository_InsertOHLCVRejectsInvalid(t *testing.T) {
	conn := &batchConn{}
	repo := NewMarketDataRepository(conn)

	candles := validCandles(3)
	candles[1].Close = -1

	err := repo.InsertOHLCV(context.Background(), candles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.ErrorContains(t, err, "candle 1")
	assert.Empty(t, conn.batches)
}

func TestMarketDataRepository_InsertOHLCVSendError(t *testing.T) {
	conn := &batchConn{sendErr: errors.New("too many parts")}
	repo := NewMarketDataRepository(conn).WithBatchSize(2)

	err := repo.InsertOHLCV(context.Background(), validCandles(4))
	assert.ErrorContains(t, err, "rows 0-1")
	assert.ErrorContains(t, err, "too many parts")
	assert.Len(t, conn.batches, 1)
}
