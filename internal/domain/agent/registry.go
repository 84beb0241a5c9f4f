package agent

import (
	"context"
	"sync"

	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// Registry holds the agents participating in coordination, in registration order
type Registry struct {
	mu     sync.RWMutex
	agents []TradingAgent
	byID   map[string]TradingAgent
	log    *logger.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Get()
	}
	return &Registry{
		byID: make(map[string]TradingAgent),
		log:  log.Component("agent_registry"),
	}
}

// Register adds agents. Duplicate ids are rejected.
func (r *Registry) Register(agents ...TradingAgent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		if a == nil || a.ID() == "" {
			return errors.NewValidationError("agent", "id is required", nil)
		}
		if _, exists := r.byID[a.ID()]; exists {
			return errors.Wrapf(errors.ErrInvalidInput, "agent %s already registered", a.ID())
		}
		r.agents = append(r.agents, a)
		r.byID[a.ID()] = a
	}
	return nil
}

// Get returns an agent by id
func (r *Registry) Get(id string) (TradingAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownAgent, "agent %s", id)
	}
	return a, nil
}

// List returns the registered agents
func (r *Registry) List() []TradingAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TradingAgent(nil), r.agents...)
}

// Len returns the number of registered agents
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// DecideAll asks every agent for a decision on symbol. Agents that fail,
// return nil or return an invalid decision are logged and left out; the
// coordinator abstains when too few remain.
func (r *Registry) DecideAll(ctx context.Context, symbol string, series market_data.Series) map[string]*decision.AgentDecision {
	agents := r.List()
	out := make(map[string]*decision.AgentDecision, len(agents))

	for _, a := range agents {
		if ctx.Err() != nil {
			r.log.Warnw("Decision collection cancelled", "symbol", symbol, "collected", len(out))
			break
		}

		d, err := r.decide(ctx, a, symbol, series)
		if err != nil {
			if errors.Is(err, errors.ErrInsufficientHistory) {
				r.log.Debugw("Agent skipped", "agent", a.ID(), "symbol", symbol, "error", err)
			} else {
				r.log.Warnw("Agent failed", "agent", a.ID(), "symbol", symbol, "error", err)
			}
			continue
		}
		out[a.ID()] = d
	}
	return out
}

func (r *Registry) decide(ctx context.Context, a TradingAgent, symbol string, series market_data.Series) (d *decision.AgentDecision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.FromPanic(rec)
		}
	}()

	d, err = a.Decide(ctx, symbol, series)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errors.Wrap(errors.ErrInvalidDecision, "nil decision")
	}
	if d.AgentID == "" {
		d.AgentID = a.ID()
	}
	if d.Symbol == "" {
		d.Symbol = symbol
	}
	if err := d.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidDecision, err.Error())
	}
	return d, nil
}
