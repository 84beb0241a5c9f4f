package coordinator

import (
	"math"

	"tradecouncil/internal/domain/decision"
)

// ballot is the validated input of one coordination call. ids is sorted so
// every reduction runs in a fixed order.
type ballot struct {
	ids       []string
	decisions map[string]*decision.AgentDecision

	// weights resolved from explicit > tracked > 1.0, normalized
	weights map[string]float64

	// trailing performance per agent, read only
	performance map[string][]float64

	cfg Config
}

// outcome is what a coordination strategy produces before conflict resolution
type outcome struct {
	action                 decision.Action
	confidence             float64
	positionSize           float64
	coordinationConfidence float64
	weights                map[string]float64
	abstained              bool
	branch                 decision.CoordinationMethod
	consensusRatio         float64
}

type strategy func(b *ballot) outcome

// strategies is the closed dispatch table; every CoordinationMethod has an entry
var strategies = map[decision.CoordinationMethod]strategy{
	decision.MethodSimpleVoting:        simpleVoting,
	decision.MethodWeightedVoting:      weightedVoting,
	decision.MethodConfidenceWeighted:  confidenceWeighted,
	decision.MethodPerformanceWeighted: performanceWeighted,
	decision.MethodConsensus:           consensus,
	decision.MethodHybrid:              hybrid,
}

func simpleVoting(b *ballot) outcome {
	counts := b.counts()
	action := decision.ArgmaxAction(counts)
	n := float64(len(b.ids))

	var conf, pos float64
	for _, id := range b.ids {
		d := b.decisions[id]
		conf += d.Confidence
		pos += d.PositionSizeOrZero()
	}
	return outcome{
		action:                 action,
		confidence:             conf / n,
		positionSize:           pos / n,
		coordinationConfidence: counts[action] / n,
		weights:                b.equalWeights(),
		branch:                 decision.MethodSimpleVoting,
	}
}

func weightedVoting(b *ballot) outcome {
	o := b.weightedVote(b.weights)
	o.branch = decision.MethodWeightedVoting
	return o
}

func confidenceWeighted(b *ballot) outcome {
	var total float64
	for _, id := range b.ids {
		total += b.decisions[id].Confidence
	}
	weights := make(map[string]float64, len(b.ids))
	if total > 0 {
		for _, id := range b.ids {
			weights[id] = b.decisions[id].Confidence / total
		}
	} else {
		weights = b.equalWeights()
	}

	var score, conf, pos float64
	for _, id := range b.ids {
		d := b.decisions[id]
		w := weights[id]
		score += d.Action.Float() * w
		conf += d.Confidence * w
		pos += d.PositionSizeOrZero() * w
	}

	action := decision.ActionHold
	switch {
	case score > b.cfg.ConfidenceThreshold:
		action = decision.ActionBuy
	case score < -b.cfg.ConfidenceThreshold:
		action = decision.ActionSell
	}

	return outcome{
		action:                 action,
		confidence:             clamp01(conf),
		positionSize:           math.Max(pos, 0),
		coordinationConfidence: b.agreement(weights, action),
		weights:                weights,
		branch:                 decision.MethodConfidenceWeighted,
	}
}

func performanceWeighted(b *ballot) outcome {
	raw := make(map[string]float64, len(b.ids))
	var total float64
	for _, id := range b.ids {
		w := trailingScore(b.performance[id], b.cfg.PerformanceWindow)
		raw[id] = w
		total += w
	}
	weights := make(map[string]float64, len(b.ids))
	for _, id := range b.ids {
		weights[id] = raw[id] / total
	}

	o := b.weightedVote(weights)
	o.branch = decision.MethodPerformanceWeighted
	return o
}

func consensus(b *ballot) outcome {
	counts := b.counts()
	majority := decision.ArgmaxAction(counts)
	n := float64(len(b.ids))
	ratio := counts[majority] / n

	if ratio+1e-12 < b.cfg.ConsensusThreshold {
		return outcome{
			action:                 decision.ActionHold,
			coordinationConfidence: 0.5,
			weights:                b.equalWeights(),
			abstained:              true,
			branch:                 decision.MethodConsensus,
			consensusRatio:         ratio,
		}
	}

	var conf, pos float64
	for _, id := range b.ids {
		d := b.decisions[id]
		if d.Action != majority {
			continue
		}
		conf += d.Confidence
		pos += d.PositionSizeOrZero()
	}
	supporters := counts[majority]
	return outcome{
		action:                 majority,
		confidence:             conf / supporters,
		positionSize:           math.Max(pos/supporters, 0),
		coordinationConfidence: ratio,
		weights:                b.equalWeights(),
		branch:                 decision.MethodConsensus,
		consensusRatio:         ratio,
	}
}

func hybrid(b *ballot) outcome {
	if o := consensus(b); !o.abstained {
		return o
	}
	return confidenceWeighted(b)
}

func (b *ballot) counts() map[decision.Action]float64 {
	counts := make(map[decision.Action]float64, 3)
	for _, id := range b.ids {
		counts[b.decisions[id].Action]++
	}
	return counts
}

func (b *ballot) equalWeights() map[string]float64 {
	w := make(map[string]float64, len(b.ids))
	for _, id := range b.ids {
		w[id] = 1 / float64(len(b.ids))
	}
	return w
}

// weightedVote picks the action with the largest weight mass
func (b *ballot) weightedVote(weights map[string]float64) outcome {
	mass := make(map[decision.Action]float64, 3)
	var conf, pos float64
	for _, id := range b.ids {
		d := b.decisions[id]
		w := weights[id]
		mass[d.Action] += w
		conf += d.Confidence * w
		pos += d.PositionSizeOrZero() * w
	}
	action := decision.ArgmaxAction(mass)
	return outcome{
		action:                 action,
		confidence:             clamp01(conf),
		positionSize:           math.Max(pos, 0),
		coordinationConfidence: mass[action],
		weights:                weights,
	}
}

// agreement is the weight share of agents voting for action
func (b *ballot) agreement(weights map[string]float64, action decision.Action) float64 {
	var share float64
	for _, id := range b.ids {
		if b.decisions[id].Action == action {
			share += weights[id]
		}
	}
	return share
}

// trailingScore is the mean of the last window performances floored at 0.1,
// or 0.5 for an agent without history
func trailingScore(perf []float64, window int) float64 {
	if len(perf) == 0 {
		return 0.5
	}
	return math.Max(tailMean(perf, window), 0.1)
}

func tailMean(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	if n > 0 && len(values) > n {
		values = values[len(values)-n:]
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
