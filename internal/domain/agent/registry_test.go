package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// MockAgent is a mock implementation of TradingAgent
type MockAgent struct {
	mock.Mock
	id string
}

func (m *MockAgent) ID() string   { return m.id }
func (m *MockAgent) Name() string { return "mock " + m.id }

func (m *MockAgent) Decide(ctx context.Context, symbol string, series market_data.Series) (*decision.AgentDecision, error) {
	args := m.Called(ctx, symbol, series)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decision.AgentDecision), args.Error(1)
}

type panicAgent struct{}

func (panicAgent) ID() string   { return "panicky" }
func (panicAgent) Name() string { return "panicky" }
func (panicAgent) Decide(context.Context, string, market_data.Series) (*decision.AgentDecision, error) {
	panic("index out of range")
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	a := &MockAgent{id: "a"}

	require.NoError(t, r.Register(a))
	assert.Error(t, r.Register(&MockAgent{id: "a"}))
	assert.Error(t, r.Register(&MockAgent{}))
	assert.Equal(t, 1, r.Len())

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = r.Get("zzz")
	assert.True(t, errors.Is(err, errors.ErrUnknownAgent))
}

func TestRegistryDecideAll(t *testing.T) {
	ctx := context.Background()
	series := market_data.Series{{Close: 1}}

	good := &MockAgent{id: "good"}
	good.On("Decide", ctx, "BTCUSDT", series).
		Return(&decision.AgentDecision{Action: decision.ActionBuy, Confidence: 0.8}, nil)

	short := &MockAgent{id: "short"}
	short.On("Decide", ctx, "BTCUSDT", series).Return(nil, errors.ErrInsufficientHistory)

	invalid := &MockAgent{id: "invalid"}
	invalid.On("Decide", ctx, "BTCUSDT", series).
		Return(&decision.AgentDecision{Action: decision.ActionBuy, Confidence: 3}, nil)

	r := NewRegistry(logger.NewNop())
	require.NoError(t, r.Register(good, short, invalid, panicAgent{}))

	out := r.DecideAll(ctx, "BTCUSDT", series)

	require.Len(t, out, 1)
	d := out["good"]
	require.NotNil(t, d)
	assert.Equal(t, "good", d.AgentID)
	assert.Equal(t, "BTCUSDT", d.Symbol)

	good.AssertExpectations(t)
	short.AssertExpectations(t)
	invalid.AssertExpectations(t)
}

func TestRegistryDecideAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &MockAgent{id: "a"}
	r := NewRegistry(logger.NewNop())
	require.NoError(t, r.Register(a))

	out := r.DecideAll(ctx, "BTCUSDT", nil)
	assert.Empty(t, out)
	a.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything)
}
