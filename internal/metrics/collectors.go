package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"tradecouncil/internal/services/allocator"
	"tradecouncil/internal/services/coordinator"
	"tradecouncil/pkg/logger"
)

// CoordinatorSource exposes coordinator state read at scrape time
type CoordinatorSource interface {
	Stats() coordinator.Stats
	AgentWeights() map[string]float64
}

// AllocatorSource exposes allocator state read at scrape time
type AllocatorSource interface {
	Stats() allocator.Stats
}

// CouncilCollector reports live coordinator and allocator state plus stored history
type CouncilCollector struct {
	log         *logger.Logger
	coordinator CoordinatorSource
	allocator   AllocatorSource
	postgres    *sqlx.DB // optional

	agentWeight       *prometheus.Desc
	coordinatorStats  *prometheus.Desc
	averageConfidence *prometheus.Desc
	allocatorStats    *prometheus.Desc
	averageTurnover   *prometheus.Desc
	storedAllocations *prometheus.Desc
}

// NewCouncilCollector creates the collector. postgres may be nil.
func NewCouncilCollector(log *logger.Logger, c CoordinatorSource, a AllocatorSource, postgres *sqlx.DB) *CouncilCollector {
	return &CouncilCollector{
		log:         log,
		coordinator: c,
		allocator:   a,
		postgres:    postgres,

		agentWeight: prometheus.NewDesc(
			"council_agent_weight",
			"Tracked performance weight per agent",
			[]string{"agent"}, nil,
		),
		coordinatorStats: prometheus.NewDesc(
			"council_coordinator_events",
			"Coordinator counters since start or last history reset",
			[]string{"event"}, // event: decisions|conflicts_detected|conflicts_resolved|abstains|errors
			nil,
		),
		averageConfidence: prometheus.NewDesc(
			"council_coordinator_average_confidence",
			"Running average final confidence",
			nil, nil,
		),
		allocatorStats: prometheus.NewDesc(
			"council_allocator_events",
			"Allocator counters since start",
			[]string{"event"}, // event: allocations|fallbacks|errors|rebalances
			nil,
		),
		averageTurnover: prometheus.NewDesc(
			"council_allocator_average_turnover",
			"Running average allocation turnover",
			nil, nil,
		),
		storedAllocations: prometheus.NewDesc(
			"council_stored_allocations_24h",
			"Allocations persisted in the last 24h",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CouncilCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.agentWeight
	ch <- c.coordinatorStats
	ch <- c.averageConfidence
	ch <- c.allocatorStats
	ch <- c.averageTurnover
	ch <- c.storedAllocations
}

// Collect implements prometheus.Collector
func (c *CouncilCollector) Collect(ch chan<- prometheus.Metric) {
	if c.coordinator != nil {
		c.collectCoordinator(ch)
	}
	if c.allocator != nil {
		c.collectAllocator(ch)
	}
	if c.postgres != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.collectStoredAllocations(ctx, ch)
	}
}

func (c *CouncilCollector) collectCoordinator(ch chan<- prometheus.Metric) {
	for agent, w := range c.coordinator.AgentWeights() {
		ch <- prometheus.MustNewConstMetric(c.agentWeight, prometheus.GaugeValue, w, agent)
	}

	s := c.coordinator.Stats()
	counters := map[string]int{
		"decisions":          s.TotalDecisions,
		"conflicts_detected": s.ConflictsDetected,
		"conflicts_resolved": s.ConflictsResolved,
		"abstains":           s.Abstains,
		"errors":             s.Errors,
	}
	for event, n := range counters {
		ch <- prometheus.MustNewConstMetric(c.coordinatorStats, prometheus.GaugeValue, float64(n), event)
	}
	ch <- prometheus.MustNewConstMetric(c.averageConfidence, prometheus.GaugeValue, s.AverageConfidence)
}

func (c *CouncilCollector) collectAllocator(ch chan<- prometheus.Metric) {
	s := c.allocator.Stats()
	counters := map[string]int{
		"allocations": s.TotalAllocations,
		"fallbacks":   s.Fallbacks,
		"errors":      s.Errors,
		"rebalances":  s.RebalancesNeeded,
	}
	for event, n := range counters {
		ch <- prometheus.MustNewConstMetric(c.allocatorStats, prometheus.GaugeValue, float64(n), event)
	}
	ch <- prometheus.MustNewConstMetric(c.averageTurnover, prometheus.GaugeValue, s.AverageTurnover)
}

func (c *CouncilCollector) collectStoredAllocations(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int
	err := c.postgres.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM portfolio_allocations
		WHERE created_at > NOW() - INTERVAL '24 hours'
	`)
	if err != nil {
		c.log.Warnw("Failed to collect stored allocation count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.storedAllocations, prometheus.GaugeValue, float64(count))
}

// RegisterCouncilCollector registers the collector with the default registry
func RegisterCouncilCollector(collector *CouncilCollector) {
	prometheus.MustRegister(collector)
}
