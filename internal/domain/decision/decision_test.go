package decision

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/pkg/errors"
)

func TestArgmaxActionTieBreak(t *testing.T) {
	tests := []struct {
		name   string
		values map[Action]float64
		want   Action
	}{
		{"sell beats hold and buy", map[Action]float64{ActionSell: 1, ActionHold: 1, ActionBuy: 1}, ActionSell},
		{"hold beats buy", map[Action]float64{ActionHold: 2, ActionBuy: 2}, ActionHold},
		{"strict buy", map[Action]float64{ActionSell: 1, ActionBuy: 2}, ActionBuy},
		{"empty is sell", map[Action]float64{}, ActionSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArgmaxAction(tt.values))
		})
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("Long")
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, a)

	a, err = ParseAction("SELL")
	require.NoError(t, err)
	assert.Equal(t, ActionSell, a)

	_, err = ParseAction("moon")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	assert.Equal(t, "HOLD", ActionHold.String())
	assert.Equal(t, "Action(7)", Action(7).String())
}

func TestParseCoordinationMethod(t *testing.T) {
	m, err := ParseCoordinationMethod(" Hybrid ")
	require.NoError(t, err)
	assert.Equal(t, MethodHybrid, m)

	_, err = ParseCoordinationMethod("dictator")
	assert.True(t, errors.Is(err, errors.ErrUnknownMethod))

	r, err := ParseConflictResolution("best_performer")
	require.NoError(t, err)
	assert.Equal(t, ResolutionBestPerformer, r)
}

func TestAgentDecisionValidate(t *testing.T) {
	ok := NewAgentDecision("momentum", "BTCUSDT", ActionBuy, 0.7, "")
	require.NoError(t, ok.Validate())

	bad := []*AgentDecision{
		nil,
		NewAgentDecision("", "BTCUSDT", ActionBuy, 0.5, ""),
		NewAgentDecision("a", "BTCUSDT", Action(2), 0.5, ""),
		NewAgentDecision("a", "BTCUSDT", ActionBuy, 1.2, ""),
		NewAgentDecision("a", "BTCUSDT", ActionBuy, -0.1, ""),
	}
	for i, d := range bad {
		err := d.Validate()
		assert.Error(t, err, "case %d", i)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), "case %d", i)
	}
}

func TestAgentDecisionClone(t *testing.T) {
	d := NewAgentDecision("a", "ETHUSDT", ActionSell, 0.4, "overbought").WithPositionSize(0.1)
	d.Metadata = map[string]interface{}{"rsi": 78.0}

	dup := d.Clone()
	*dup.PositionSize = 0.9
	dup.Metadata["rsi"] = 10.0

	assert.Equal(t, 0.1, d.PositionSizeOrZero())
	assert.Equal(t, 78.0, d.Metadata["rsi"])
}

func TestCoordinatedDecisionJSONRoundTrip(t *testing.T) {
	er := 0.12
	in := &CoordinatedDecision{
		ID:                     uuid.New(),
		Symbol:                 "BTCUSDT",
		FinalAction:            ActionBuy,
		FinalConfidence:        0.66,
		FinalPositionSize:      0.05,
		CoordinationMethod:     MethodWeightedVoting,
		ParticipatingAgents:    []string{"a", "b"},
		AgentDecisions:         map[string]*AgentDecision{"a": NewAgentDecision("a", "BTCUSDT", ActionBuy, 0.9, "x")},
		DecisionWeights:        map[string]float64{"a": 0.5, "b": 0.5},
		ConflictDetected:       true,
		ConflictSeverity:       0.5,
		ConflictResolution:     ResolutionWeightedAverage,
		CoordinationConfidence: 0.5,
		ExpectedReturn:         &er,
		Reasoning:              "weighted vote",
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out CoordinatedDecision
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.Equal(t, in.FinalAction, out.FinalAction)
	assert.Equal(t, in.DecisionWeights, out.DecisionWeights)
	assert.Equal(t, in.ConflictResolution, out.ConflictResolution)
	assert.Equal(t, in.ExpectedReturnOrZero(), out.ExpectedReturnOrZero())
	assert.Equal(t, in.AgentDecisions["a"].Confidence, out.AgentDecisions["a"].Confidence)
	assert.False(t, out.IsAbstain())
}

func TestCoordinatedDecisionEquivalent(t *testing.T) {
	a := &CoordinatedDecision{ID: uuid.New(), Symbol: "X", FinalAction: ActionHold, ConflictResolution: ResolutionAbstain}
	b := a.Clone()
	b.ID = uuid.New()

	assert.True(t, a.Equivalent(b))
	assert.True(t, a.IsAbstain())

	b.FinalConfidence = 0.1
	assert.False(t, a.Equivalent(b))
}
