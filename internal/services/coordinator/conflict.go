package coordinator

import (
	"math"

	"tradecouncil/internal/domain/decision"
)

// conflict describes BUY/SELL disagreement among the participants
type conflict struct {
	detected bool
	severity float64
	buys     int
	sells    int
	holds    int
}

// detectConflict flags a conflict iff at least one BUY and one SELL coexist.
// severity = min(buys, sells) / total.
func detectConflict(ds []*decision.AgentDecision) conflict {
	var c conflict
	for _, d := range ds {
		switch d.Action {
		case decision.ActionBuy:
			c.buys++
		case decision.ActionSell:
			c.sells++
		case decision.ActionHold:
			c.holds++
		}
	}
	total := c.buys + c.sells + c.holds
	c.detected = c.buys > 0 && c.sells > 0
	if c.detected && total > 0 {
		c.severity = float64(min(c.buys, c.sells)) / float64(total)
	}
	return c
}

// resolve applies policy to a conflicted outcome and returns the adjusted
// outcome. majority_rule and weighted_average are already reflected by the
// voting method and leave o unchanged.
func resolve(b *ballot, o outcome, policy decision.ConflictResolution) outcome {
	switch policy {
	case decision.ResolutionHighestConfidence:
		id := argmaxAgent(b.ids, func(id string) float64 { return b.decisions[id].Confidence })
		return adopt(b, o, id)
	case decision.ResolutionBestPerformer:
		id := argmaxAgent(b.ids, func(id string) float64 {
			return tailMeanOr(b.performance[id], b.cfg.PerformanceWindow, 0.5)
		})
		return adopt(b, o, id)
	case decision.ResolutionAbstain:
		o.action = decision.ActionHold
		o.positionSize = 0
		o.coordinationConfidence = b.agreement(o.weights, o.action)
	}
	return o
}

// adopt overwrites the outcome with a single agent's decision
func adopt(b *ballot, o outcome, id string) outcome {
	d := b.decisions[id]
	o.action = d.Action
	o.confidence = d.Confidence
	o.positionSize = math.Max(d.PositionSizeOrZero(), 0)
	o.coordinationConfidence = b.agreement(o.weights, o.action)
	return o
}

// argmaxAgent returns the first id (ids are sorted) with the largest score
func argmaxAgent(ids []string, score func(string) float64) string {
	best := ids[0]
	bestScore := score(best)
	for _, id := range ids[1:] {
		if s := score(id); s > bestScore {
			best, bestScore = id, s
		}
	}
	return best
}

func tailMeanOr(values []float64, n int, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	return tailMean(values, n)
}
