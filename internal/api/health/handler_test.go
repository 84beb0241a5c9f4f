package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/workers"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Health(ctx context.Context) error { return p.err }

type reporter map[string]workers.WorkerHealth

func (r reporter) Health() map[string]workers.WorkerHealth { return r }

func serve(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, Status) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Status
	if path != "/health/live" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHandleLiveness(t *testing.T) {
	h := New(logger.NewNop(), "tradecouncil", nil, nil)
	rec, _ := serve(t, h, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestHandleReadiness(t *testing.T) {
	healthy := New(logger.NewNop(), "tradecouncil", map[string]Checker{
		"postgres": pinger{},
		"redis":    pinger{},
	}, nil)
	rec, body := serve(t, healthy, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body.Status)
	assert.Len(t, body.Checks, 2)

	partial := New(logger.NewNop(), "tradecouncil", map[string]Checker{
		"postgres": pinger{},
		"redis":    pinger{err: errors.New("connection refused")},
	}, nil)
	rec, body = serve(t, partial, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Error)
}

func TestHandleHealth(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := New(logger.NewNop(), "tradecouncil", map[string]Checker{
		"postgres":   pinger{},
		"clickhouse": pinger{err: errors.New("timeout")},
		"kafka":      nil,
	}, reporter{
		"allocation_cycle": {LastRun: last, RunCount: 3, ErrorCount: 1, LastError: errors.New("boom"), Enabled: true},
	})

	rec, body := serve(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body.Status)
	assert.Len(t, body.Checks, 2)
	assert.NotContains(t, body.Checks, "kafka")

	w := body.Workers["allocation_cycle"]
	assert.Equal(t, int64(3), w.RunCount)
	assert.Equal(t, "boom", w.LastError)
	assert.Equal(t, "2026-03-01T12:00:00Z", w.LastRun)

	failing := New(logger.NewNop(), "tradecouncil", map[string]Checker{"postgres": pinger{}}, reporter{
		"allocation_cycle": {LastRun: last, RunCount: 5, ErrorCount: 3, ConsecutiveErrors: 3, Enabled: true},
	})
	rec, body = serve(t, failing, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body.Status)

	down := New(logger.NewNop(), "tradecouncil", map[string]Checker{"postgres": pinger{err: errors.New("down")}}, nil)
	rec, body = serve(t, down, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body.Status)
}
