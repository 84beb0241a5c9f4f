// Package cycle runs one coordination and allocation round over the universe.
package cycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tradecouncil/internal/domain/agent"
	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/internal/metrics"
	"tradecouncil/internal/services/allocator"
	"tradecouncil/internal/services/coordinator"
	"tradecouncil/internal/services/orderplan"
	"tradecouncil/internal/workers"
	"tradecouncil/pkg/errors"
)

// EventPublisher is the subset of events.Publisher the cycle uses
type EventPublisher interface {
	PublishDecision(ctx context.Context, cycleID uuid.UUID, d *decision.CoordinatedDecision) error
	PublishAllocation(ctx context.Context, cycleID uuid.UUID, a *allocation.PortfolioAllocation) error
	PublishOrderIntents(ctx context.Context, cycleID uuid.UUID, intents []orderplan.OrderIntent) error
}

// StateStore persists coordinator weights between runs
type StateStore interface {
	Save(ctx context.Context, state coordinator.State) error
}

// Config controls the universe and cadence of the cycle
type Config struct {
	Exchange         string
	Symbols          []string
	Timeframe        string
	Bars             int
	PortfolioValue   float64
	MinOrderNotional decimal.Decimal
	Interval         time.Duration
	Timeout          time.Duration
	MaxConcurrency   int
	Enabled          bool
}

// AllocationCycle is the worker driving the council: every run it collects
// agent votes per symbol, coordinates them and allocates the portfolio
type AllocationCycle struct {
	*workers.BaseWorker

	cfg         Config
	marketData  market_data.Reader
	agents      agent.DecisionSource
	coordinator *coordinator.Coordinator
	allocator   *allocator.Allocator
	allocations allocation.Repository
	publisher   EventPublisher
	state       StateStore
}

// NewAllocationCycle creates the worker. allocations, publisher and state may
// be nil to run without persistence or messaging.
func NewAllocationCycle(
	cfg Config,
	marketData market_data.Reader,
	agents agent.DecisionSource,
	coord *coordinator.Coordinator,
	alloc *allocator.Allocator,
	allocations allocation.Repository,
	publisher EventPublisher,
	state StateStore,
) *AllocationCycle {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &AllocationCycle{
		BaseWorker:  workers.NewBaseWorker("allocation_cycle", cfg.Interval, cfg.Enabled).WithTimeout(cfg.Timeout),
		cfg:         cfg,
		marketData:  marketData,
		agents:      agents,
		coordinator: coord,
		allocator:   alloc,
		allocations: allocations,
		publisher:   publisher,
		state:       state,
	}
}

// Result is the outcome of one run
type Result struct {
	CycleID    uuid.UUID
	Decisions  map[string]*decision.CoordinatedDecision
	Allocation *allocation.PortfolioAllocation
	Orders     []orderplan.OrderIntent
	Skipped    []string // symbols without usable data
}

// Run executes one cycle
func (w *AllocationCycle) Run(ctx context.Context) error {
	_, err := w.RunCycle(ctx)
	return err
}

// RunCycle executes one cycle and returns what it produced. Symbols whose data
// cannot be loaded are skipped. Failures to persist or publish are collected
// into the returned error after every step has been attempted.
func (w *AllocationCycle) RunCycle(ctx context.Context) (*Result, error) {
	res := &Result{
		CycleID:   uuid.New(),
		Decisions: make(map[string]*decision.CoordinatedDecision, len(w.cfg.Symbols)),
	}
	ctx = errors.WithCycleID(ctx, res.CycleID.String())
	log := w.Log().With("cycle_id", res.CycleID)
	var failures errors.MultiError

	universe := w.collect(ctx, res, &failures)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if len(res.Decisions) == 0 {
		return res, errors.Wrapf(errors.ErrInsufficientHistory, "no symbol produced a decision (%d skipped)", len(res.Skipped))
	}

	res.Allocation = w.allocator.Allocate(res.Decisions, universe, w.cfg.PortfolioValue)
	metrics.RecordAllocation(res.Allocation)

	if w.allocations != nil {
		if err := w.allocations.Save(ctx, res.Allocation); err != nil {
			failures.Add(errors.Wrap(err, "persist allocation"))
		}
	}
	if w.publisher != nil {
		if err := w.publisher.PublishAllocation(ctx, res.CycleID, res.Allocation); err != nil {
			failures.Add(errors.Wrap(err, "publish allocation"))
		}
	}

	if !res.Allocation.IsFallback() {
		res.Orders = orderplan.Build(res.Allocation, w.cfg.MinOrderNotional)
		if w.publisher != nil && len(res.Orders) > 0 {
			if err := w.publisher.PublishOrderIntents(ctx, res.CycleID, res.Orders); err != nil {
				failures.Add(errors.Wrap(err, "publish order intents"))
			}
		}
	}

	if w.state != nil {
		if err := w.state.Save(ctx, w.coordinator.Snapshot()); err != nil {
			failures.Add(errors.Wrap(err, "snapshot agent weights"))
		}
	}

	log.Infow("Allocation cycle completed",
		"symbols", len(res.Decisions),
		"skipped", len(res.Skipped),
		"method", res.Allocation.AllocationMethod,
		"turnover", res.Allocation.Turnover,
		"rebalance", res.Allocation.RebalancingNeeded,
		"orders", len(res.Orders),
	)
	return res, failures.ToError()
}

// collect loads data, gathers votes and coordinates every symbol concurrently
func (w *AllocationCycle) collect(ctx context.Context, res *Result, failures *errors.MultiError) map[string]market_data.Series {
	var (
		mu       sync.Mutex
		universe = make(map[string]market_data.Series, len(w.cfg.Symbols))
		g        errgroup.Group
	)
	g.SetLimit(w.cfg.MaxConcurrency)

	for _, symbol := range w.cfg.Symbols {
		symbol := symbol
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			series, err := w.marketData.GetLatestOHLCV(ctx, w.cfg.Exchange, symbol, w.cfg.Timeframe, w.cfg.Bars)
			if err != nil || len(series) == 0 {
				w.Log().Warnw("Skipping symbol without market data", "symbol", symbol, "error", err)
				mu.Lock()
				res.Skipped = append(res.Skipped, symbol)
				mu.Unlock()
				return nil
			}

			votes := w.agents.DecideAll(ctx, symbol, series)
			for id, v := range votes {
				metrics.RecordAgentDecision(id, v.Action)
			}
			coordinated := w.coordinator.Coordinate(votes, symbol)
			metrics.RecordCoordination(coordinated)

			var pubErr error
			if w.publisher != nil {
				pubErr = w.publisher.PublishDecision(ctx, res.CycleID, coordinated)
			}

			mu.Lock()
			defer mu.Unlock()
			universe[symbol] = series
			res.Decisions[symbol] = coordinated
			if pubErr != nil {
				failures.Add(errors.Wrapf(pubErr, "publish decision %s", symbol))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(res.Skipped)
	return universe
}
