package coordinator

import (
	"math"
	"time"

	"tradecouncil/pkg/errors"
)

const (
	// recentPerformance is how many of the latest scores drive a weight update
	recentPerformance = 10
	minAgentWeight    = 0.1
	maxAgentWeight    = 2.0
)

// UpdateAgentPerformance records a realized performance score for an agent
// and moves its weight toward clamp(1 + mean(last 10), 0.1, 2.0) by
// exponential smoothing.
func (c *Coordinator) UpdateAgentPerformance(agentID string, performance float64) error {
	if agentID == "" {
		return errors.NewValidationError("agent_id", "is required", agentID)
	}
	if math.IsNaN(performance) || math.IsInf(performance, 0) {
		return errors.NewValidationError("performance", "must be finite", performance)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hist := append(c.agentPerformance[agentID], performance)
	if limit := 2 * c.cfg.PerformanceWindow; len(hist) > limit {
		hist = append([]float64(nil), hist[len(hist)-limit:]...)
	}
	c.agentPerformance[agentID] = hist

	target := math.Max(minAgentWeight, math.Min(maxAgentWeight, 1+tailMean(hist, recentPerformance)))
	prev, ok := c.agentWeights[agentID]
	if !ok {
		prev = 1
	}
	next := c.cfg.WeightDecay*prev + (1-c.cfg.WeightDecay)*target
	c.agentWeights[agentID] = next

	c.log.Debugw("Agent weight updated",
		"agent", agentID,
		"performance", performance,
		"previous_weight", prev,
		"weight", next,
	)
	return nil
}

// SetAgentWeight overrides an agent's tracked weight. NaN and negative values
// clamp to 0, +Inf to the largest weight performance updates can reach, so
// every stored weight stays snapshot-safe.
func (c *Coordinator) SetAgentWeight(agentID string, weight float64) {
	switch {
	case math.IsNaN(weight) || weight < 0:
		weight = 0
	case math.IsInf(weight, 1):
		weight = maxAgentWeight
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentWeights[agentID] = weight
}

// AgentWeights returns a copy of the tracked weights
func (c *Coordinator) AgentWeights() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyWeights(c.agentWeights)
}

// AgentPerformance returns a copy of the trailing performance histories
func (c *Coordinator) AgentPerformance() map[string][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyPerformance(c.agentPerformance)
}

// State is the persisted part of the coordinator
type State struct {
	AgentWeights     map[string]float64   `json:"agent_weights"`
	AgentPerformance map[string][]float64 `json:"agent_performance"`
	SavedAt          time.Time            `json:"saved_at"`
}

// Snapshot exports weights and performance
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		AgentWeights:     copyWeights(c.agentWeights),
		AgentPerformance: copyPerformance(c.agentPerformance),
		SavedAt:          c.now(),
	}
}

// Restore replaces weights and performance with s. Non-finite or negative
// entries are rejected; histories longer than 2x the window are trimmed.
func (c *Coordinator) Restore(s State) error {
	for id, w := range s.AgentWeights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return errors.NewValidationError("agent_weights."+id, "must be finite and non-negative", w)
		}
	}
	for id, hist := range s.AgentPerformance {
		for _, v := range hist {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValidationError("agent_performance."+id, "must be finite", v)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.agentWeights = copyWeights(s.AgentWeights)
	c.agentPerformance = copyPerformance(s.AgentPerformance)
	limit := 2 * c.cfg.PerformanceWindow
	for id, hist := range c.agentPerformance {
		if len(hist) > limit {
			c.agentPerformance[id] = hist[len(hist)-limit:]
		}
	}
	c.log.Infow("Agent state restored", "agents", len(c.agentWeights), "saved_at", s.SavedAt)
	return nil
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyPerformance(in map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(in))
	for k, v := range in {
		out[k] = append([]float64(nil), v...)
	}
	return out
}
