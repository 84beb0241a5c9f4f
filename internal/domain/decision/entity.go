package decision

import (
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradecouncil/pkg/errors"
)

// AgentDecision is one agent's recommendation for one symbol at one instant.
// Treated as immutable once produced.
type AgentDecision struct {
	ID        uuid.UUID `json:"id"`
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`

	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"` // 0-1
	Reasoning  string  `json:"reasoning,omitempty"`

	ExpectedReturn *float64 `json:"expected_return,omitempty"` // annualized, fractional
	RiskAssessment *float64 `json:"risk_assessment,omitempty"` // 0-1
	PositionSize   *float64 `json:"position_size,omitempty"`   // fraction of capital

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewAgentDecision creates a decision stamped with a fresh id and the current time
func NewAgentDecision(agentID, symbol string, action Action, confidence float64, reasoning string) *AgentDecision {
	return &AgentDecision{
		ID:         uuid.New(),
		AgentID:    agentID,
		Timestamp:  time.Now().UTC(),
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Reasoning:  reasoning,
	}
}

// Validate checks identity fields, the action domain, confidence range and optional numbers
func (d *AgentDecision) Validate() error {
	if d == nil {
		return errors.NewValidationError("decision", "is nil", nil)
	}
	if strings.TrimSpace(d.AgentID) == "" {
		return errors.NewValidationError("agent_id", "is required", d.AgentID)
	}
	if strings.TrimSpace(d.Symbol) == "" {
		return errors.NewValidationError("symbol", "is required", d.Symbol)
	}
	if !d.Action.Valid() {
		return errors.NewValidationError("action", "must be -1, 0 or 1", int(d.Action))
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return errors.NewValidationError("confidence", "must be within [0,1]", d.Confidence)
	}
	optional := map[string]*float64{
		"expected_return": d.ExpectedReturn,
		"risk_assessment": d.RiskAssessment,
		"position_size":   d.PositionSize,
	}
	for field, v := range optional {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return errors.NewValidationError(field, "must be finite", *v)
		}
	}
	return nil
}

// PositionSizeOrZero returns the suggested position size, 0 when absent
func (d *AgentDecision) PositionSizeOrZero() float64 {
	if d.PositionSize == nil {
		return 0
	}
	return *d.PositionSize
}

// Clone returns a deep copy
func (d *AgentDecision) Clone() *AgentDecision {
	if d == nil {
		return nil
	}
	dup := *d
	dup.ExpectedReturn = cloneFloat(d.ExpectedReturn)
	dup.RiskAssessment = cloneFloat(d.RiskAssessment)
	dup.PositionSize = cloneFloat(d.PositionSize)
	dup.Metadata = cloneMetadata(d.Metadata)
	return &dup
}

// WithExpectedReturn sets the optional expected return (builder style, used by agents)
func (d *AgentDecision) WithExpectedReturn(v float64) *AgentDecision {
	d.ExpectedReturn = &v
	return d
}

// WithRiskAssessment sets the optional risk score
func (d *AgentDecision) WithRiskAssessment(v float64) *AgentDecision {
	d.RiskAssessment = &v
	return d
}

// WithPositionSize sets the optional position size
func (d *AgentDecision) WithPositionSize(v float64) *AgentDecision {
	d.PositionSize = &v
	return d
}

// CoordinatedDecision is the coordinator's resolution for one symbol
type CoordinatedDecision struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`

	FinalAction       Action  `json:"final_action"`
	FinalConfidence   float64 `json:"final_confidence"`
	FinalPositionSize float64 `json:"final_position_size"`

	CoordinationMethod  CoordinationMethod        `json:"coordination_method"`
	ParticipatingAgents []string                  `json:"participating_agents"`
	AgentDecisions      map[string]*AgentDecision `json:"agent_decisions"`
	DecisionWeights     map[string]float64        `json:"decision_weights"`

	ConflictDetected   bool               `json:"conflict_detected"`
	ConflictSeverity   float64            `json:"conflict_severity"`
	ConflictResolution ConflictResolution `json:"conflict_resolution"`

	CoordinationConfidence float64 `json:"coordination_confidence"`

	// Decision-weighted averages of the participants' optional estimates;
	// nil when no participant supplied one
	ExpectedReturn *float64 `json:"expected_return,omitempty"`
	RiskAssessment *float64 `json:"risk_assessment,omitempty"`

	Reasoning string                 `json:"reasoning"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsAbstain reports whether the decision is the safe no-action outcome
func (c *CoordinatedDecision) IsAbstain() bool {
	return c.FinalAction == ActionHold && c.ConflictResolution == ResolutionAbstain
}

// Equivalent compares two decisions ignoring ID and Timestamp
func (c *CoordinatedDecision) Equivalent(other *CoordinatedDecision) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, b := *c, *other
	a.ID, b.ID = uuid.Nil, uuid.Nil
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	return reflect.DeepEqual(a, b)
}

// Clone returns a deep copy
func (c *CoordinatedDecision) Clone() *CoordinatedDecision {
	if c == nil {
		return nil
	}
	dup := *c
	dup.ParticipatingAgents = append([]string(nil), c.ParticipatingAgents...)
	if c.AgentDecisions != nil {
		dup.AgentDecisions = make(map[string]*AgentDecision, len(c.AgentDecisions))
		for id, d := range c.AgentDecisions {
			dup.AgentDecisions[id] = d.Clone()
		}
	}
	if c.DecisionWeights != nil {
		dup.DecisionWeights = make(map[string]float64, len(c.DecisionWeights))
		for id, w := range c.DecisionWeights {
			dup.DecisionWeights[id] = w
		}
	}
	dup.ExpectedReturn = cloneFloat(c.ExpectedReturn)
	dup.RiskAssessment = cloneFloat(c.RiskAssessment)
	dup.Metadata = cloneMetadata(c.Metadata)
	return &dup
}

// ExpectedReturnOrZero returns the aggregated expected return, 0 when absent
func (c *CoordinatedDecision) ExpectedReturnOrZero() float64 {
	if c.ExpectedReturn == nil {
		return 0
	}
	return *c.ExpectedReturn
}

// RiskAssessmentOrZero returns the aggregated risk score, 0 when absent
func (c *CoordinatedDecision) RiskAssessmentOrZero() float64 {
	if c.RiskAssessment == nil {
		return 0
	}
	return *c.RiskAssessment
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	dup := *v
	return &dup
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	dup := make(map[string]interface{}, len(m))
	for k, v := range m {
		dup[k] = v
	}
	return dup
}
