package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/pkg/errors"
)

func TestClient_Health(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	client := NewClientFromDB(sqlx.NewDb(db, "postgres"))

	mock.ExpectPing()
	assert.NoError(t, client.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	err = client.Health(context.Background())
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Contains(t, err.Error(), "connection reset")

	mock.ExpectClose()
	require.NoError(t, client.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, connectTimeout(0))
	assert.Equal(t, 3*time.Second, connectTimeout(3*time.Second))
}
