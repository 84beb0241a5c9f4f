// Package coordinator combines per-agent decisions on one symbol into a single
// coordinated decision and evolves agent trust weights from realized performance.
package coordinator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradecouncil/internal/domain/decision"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// Option customizes a single Coordinate call
type Option func(*callOptions)

type callOptions struct {
	method  decision.CoordinationMethod
	weights map[string]float64
}

// WithMethod overrides the configured coordination method
func WithMethod(m decision.CoordinationMethod) Option {
	return func(o *callOptions) { o.method = m }
}

// WithWeights supplies explicit per-agent weights; they take precedence over
// tracked weights for the agents they name
func WithWeights(w map[string]float64) Option {
	return func(o *callOptions) { o.weights = w }
}

// Stats aggregates coordination outcomes since start or last ClearHistory
type Stats struct {
	TotalDecisions    int                                 `json:"total_decisions"`
	ConflictsDetected int                                 `json:"conflicts_detected"`
	ConflictsResolved int                                 `json:"conflicts_resolved"`
	Abstains          int                                 `json:"abstains"`
	Errors            int                                 `json:"errors"`
	MethodUsage       map[decision.CoordinationMethod]int `json:"method_usage"`
	AverageConfidence float64                             `json:"average_confidence"`
}

// Coordinator aggregates agent decisions. All mutable state is guarded by one
// mutex so an instance may be shared across goroutines.
type Coordinator struct {
	mu  sync.Mutex
	cfg Config
	log *logger.Logger

	agentWeights     map[string]float64
	agentPerformance map[string][]float64

	history []*decision.CoordinatedDecision
	stats   Stats

	now func() time.Time
}

// New creates a coordinator
func New(cfg Config, log *logger.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "coordinator config")
	}
	if log == nil {
		log = logger.Get()
	}
	return &Coordinator{
		cfg:              cfg,
		log:              log.Component("coordinator"),
		agentWeights:     make(map[string]float64),
		agentPerformance: make(map[string][]float64),
		stats:            Stats{MethodUsage: make(map[decision.CoordinationMethod]int)},
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

// Config returns the active configuration
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Coordinate resolves decisions for symbol into one CoordinatedDecision.
// It never fails: invalid input and internal errors produce an abstain
// decision whose Reasoning carries the cause.
func (c *Coordinator) Coordinate(decisions map[string]*decision.AgentDecision, symbol string, opts ...Option) (result *decision.CoordinatedDecision) {
	o := callOptions{method: c.cfg.DefaultMethod}
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := errors.FromPanic(r)
			c.log.ErrorWithContext(context.Background(), err, map[string]string{"symbol": symbol})
			c.stats.Errors++
			result = c.abstain(symbol, o.method, decisions, err)
			c.record(result)
		}
	}()

	res, err := c.coordinate(decisions, symbol, o)
	if err != nil {
		if !errors.Is(err, errors.ErrInsufficientAgents) && !errors.Is(err, errors.ErrInvalidDecision) {
			c.stats.Errors++
		}
		c.log.Warnw("Coordination abstained",
			"symbol", symbol,
			"method", o.method,
			"agents", len(decisions),
			"error", err,
		)
		res = c.abstain(symbol, o.method, decisions, err)
	}
	c.record(res)
	return res
}

func (c *Coordinator) coordinate(decisions map[string]*decision.AgentDecision, symbol string, o callOptions) (*decision.CoordinatedDecision, error) {
	run, ok := strategies[o.method]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownMethod, "coordination method %q", o.method)
	}
	if len(decisions) < c.cfg.MinAgentsRequired {
		return nil, errors.Wrapf(errors.ErrInsufficientAgents, "%d decisions, need %d", len(decisions), c.cfg.MinAgentsRequired)
	}

	ids := sortedIDs(decisions)
	for _, id := range ids {
		d := decisions[id]
		if err := d.Validate(); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidDecision, "agent %s: %v", id, err)
		}
		if d.Symbol != symbol {
			return nil, errors.Wrapf(errors.ErrInvalidDecision, "agent %s decided on %s, want %s", id, d.Symbol, symbol)
		}
	}

	b := &ballot{
		ids:         ids,
		decisions:   decisions,
		weights:     c.resolveWeights(ids, o.weights),
		performance: c.agentPerformance,
		cfg:         c.cfg,
	}

	ordered := make([]*decision.AgentDecision, len(ids))
	for i, id := range ids {
		ordered[i] = decisions[id]
	}
	cf := detectConflict(ordered)

	out := run(b)
	resolution := decision.ResolutionNone
	switch {
	case out.abstained:
		resolution = decision.ResolutionAbstain
	case cf.detected:
		resolution = c.cfg.ConflictResolution
		out = resolve(b, out, resolution)
	}

	res := &decision.CoordinatedDecision{
		ID:                     uuid.New(),
		Timestamp:              c.now(),
		Symbol:                 symbol,
		FinalAction:            out.action,
		FinalConfidence:        clamp01(out.confidence),
		FinalPositionSize:      math.Max(out.positionSize, 0),
		CoordinationMethod:     o.method,
		ParticipatingAgents:    ids,
		AgentDecisions:         cloneDecisions(decisions),
		DecisionWeights:        out.weights,
		ConflictDetected:       cf.detected,
		ConflictSeverity:       cf.severity,
		ConflictResolution:     resolution,
		CoordinationConfidence: clamp01(out.coordinationConfidence),
		Metadata: map[string]interface{}{
			"buy_votes":  cf.buys,
			"hold_votes": cf.holds,
			"sell_votes": cf.sells,
			"strategy":   string(out.branch),
		},
	}
	if out.branch == decision.MethodConsensus {
		res.Metadata["consensus_ratio"] = out.consensusRatio
	}
	res.ExpectedReturn = weightedOptional(b, out.weights, func(d *decision.AgentDecision) *float64 { return d.ExpectedReturn })
	res.RiskAssessment = weightedOptional(b, out.weights, func(d *decision.AgentDecision) *float64 { return d.RiskAssessment })
	res.Reasoning = explain(res, out, cf)
	return res, nil
}

// abstain builds the safe no-action result
func (c *Coordinator) abstain(symbol string, method decision.CoordinationMethod, decisions map[string]*decision.AgentDecision, cause error) *decision.CoordinatedDecision {
	var valid []*decision.AgentDecision
	for _, id := range sortedIDs(decisions) {
		if d := decisions[id]; d != nil && d.Action.Valid() {
			valid = append(valid, d)
		}
	}
	cf := detectConflict(valid)

	return &decision.CoordinatedDecision{
		ID:                  uuid.New(),
		Timestamp:           c.now(),
		Symbol:              symbol,
		FinalAction:         decision.ActionHold,
		CoordinationMethod:  method,
		ParticipatingAgents: []string{},
		AgentDecisions:      cloneDecisions(decisions),
		DecisionWeights:     map[string]float64{},
		ConflictDetected:    cf.detected,
		ConflictSeverity:    cf.severity,
		ConflictResolution:  decision.ResolutionAbstain,
		Reasoning:           fmt.Sprintf("abstain: %v", cause),
		Metadata:            map[string]interface{}{"error": cause.Error()},
	}
}

// record appends to the bounded history and updates stats. Caller holds mu.
func (c *Coordinator) record(res *decision.CoordinatedDecision) {
	c.history = append(c.history, res.Clone())
	if over := len(c.history) - c.cfg.MaxHistory; over > 0 {
		c.history = append([]*decision.CoordinatedDecision(nil), c.history[over:]...)
	}

	s := &c.stats
	s.TotalDecisions++
	s.MethodUsage[res.CoordinationMethod]++
	if res.ConflictDetected {
		s.ConflictsDetected++
		if res.ConflictResolution != decision.ResolutionNone {
			s.ConflictsResolved++
		}
	}
	if res.IsAbstain() {
		s.Abstains++
	}
	s.AverageConfidence += (res.FinalConfidence - s.AverageConfidence) / float64(s.TotalDecisions)
}

// resolveWeights picks explicit > tracked > 1.0 per agent, clamps negatives
// and normalizes to sum 1. All-zero weights become equal weights.
func (c *Coordinator) resolveWeights(ids []string, explicit map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(ids))
	var total float64
	for _, id := range ids {
		w := 1.0
		if v, ok := explicit[id]; ok {
			w = v
		} else if v, ok := c.agentWeights[id]; ok {
			w = v
		}
		if math.IsNaN(w) || w < 0 {
			w = 0
		}
		out[id] = w
		total += w
	}
	for _, id := range ids {
		if total > 0 && !math.IsInf(total, 0) {
			out[id] /= total
		} else {
			out[id] = 1 / float64(len(ids))
		}
	}
	return out
}

// Stats returns a copy of the coordination statistics
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.MethodUsage = make(map[decision.CoordinationMethod]int, len(c.stats.MethodUsage))
	for m, n := range c.stats.MethodUsage {
		s.MethodUsage[m] = n
	}
	return s
}

// History returns up to limit most recent decisions, oldest first. limit <= 0 returns all.
func (c *Coordinator) History(limit int) []*decision.CoordinatedDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]*decision.CoordinatedDecision, len(h))
	for i, d := range h {
		out[i] = d.Clone()
	}
	return out
}

// ClearHistory drops the decision history and resets stats. Weights and
// performance are kept.
func (c *Coordinator) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = nil
	c.stats = Stats{MethodUsage: make(map[decision.CoordinationMethod]int)}
}

func sortedIDs(decisions map[string]*decision.AgentDecision) []string {
	ids := make([]string, 0, len(decisions))
	for id := range decisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneDecisions(in map[string]*decision.AgentDecision) map[string]*decision.AgentDecision {
	out := make(map[string]*decision.AgentDecision, len(in))
	for id, d := range in {
		if d != nil {
			out[id] = d.Clone()
		}
	}
	return out
}

// weightedOptional averages an optional field over the agents that supplied
// it, renormalizing their weights. nil when nobody supplied one.
func weightedOptional(b *ballot, weights map[string]float64, field func(*decision.AgentDecision) *float64) *float64 {
	var sum, wsum float64
	var seen bool
	for _, id := range b.ids {
		v := field(b.decisions[id])
		if v == nil {
			continue
		}
		seen = true
		sum += *v * weights[id]
		wsum += weights[id]
	}
	if !seen {
		return nil
	}
	var avg float64
	if wsum > 0 {
		avg = sum / wsum
	}
	return &avg
}

func explain(res *decision.CoordinatedDecision, out outcome, cf conflict) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s via %s over %d agents (buy=%d hold=%d sell=%d)",
		res.FinalAction, out.branch, len(res.ParticipatingAgents), cf.buys, cf.holds, cf.sells)
	if res.CoordinationMethod == decision.MethodHybrid && out.branch != decision.MethodConsensus {
		sb.WriteString("; no consensus")
	}
	if out.abstained {
		fmt.Fprintf(&sb, "; consensus %.2f below threshold", out.consensusRatio)
	}
	if cf.detected {
		fmt.Fprintf(&sb, "; conflict severity %.2f resolved by %s", cf.severity, res.ConflictResolution)
	}
	return sb.String()
}
