package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"

	"tradecouncil/internal/adapters/config"
	"tradecouncil/pkg/errors"
)

func TestOptions(t *testing.T) {
	opts := Options(config.RedisConfig{Host: "cache", Port: 6380, DB: 2, PoolSize: 10, IOTimeout: 3 * time.Second})
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
	assert.Equal(t, 3*time.Second, opts.WriteTimeout)
}

func TestClient_Health(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := &Client{rdb: rdb}

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, c.Health(context.Background()))

	mock.ExpectPing().SetErr(errors.New("dial tcp: refused"))
	err := c.Health(context.Background())
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Contains(t, err.Error(), "refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}
