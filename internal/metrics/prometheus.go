package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/decision"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "council_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Coordination metrics
	Coordinations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_coordinations_total",
			Help: "Coordinated decisions by method and final action",
		},
		[]string{"method", "action"}, // action: BUY|HOLD|SELL|ABSTAIN
	)

	Conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_conflicts_total",
			Help: "Detected BUY/SELL conflicts by resolution policy",
		},
		[]string{"resolution"},
	)

	CoordinationConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_coordination_confidence",
			Help:    "Distribution of coordination confidence",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"method"},
	)

	AgentDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_agent_decisions_total",
			Help: "Decisions produced per agent",
		},
		[]string{"agent", "action"},
	)

	// Allocation metrics
	Allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_allocations_total",
			Help: "Portfolio allocations by method and outcome",
		},
		[]string{"method", "outcome"}, // outcome: ok|fallback|error
	)

	Turnover = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "council_allocation_turnover",
			Help:    "Sum of absolute weight changes per allocation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2},
		},
	)

	RebalancingCost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "council_rebalancing_cost_total",
			Help: "Estimated transaction cost of rebalances in quote currency",
		},
	)

	PortfolioVolatility = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "council_portfolio_volatility",
			Help: "Annualized volatility of the latest target portfolio",
		},
	)

	TargetWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "council_target_weight",
			Help: "Latest target weight per symbol",
		},
		[]string{"symbol"},
	)

	// Messaging metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_kafka_messages_total",
			Help: "Total Kafka messages",
		},
		[]string{"topic", "direction", "status"}, // direction: produced|consumed
	)
)

var registerOnce sync.Once

// Register registers all metrics with the default registry once
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			WorkerExecutions, WorkerDuration, WorkerLastRun,
			Coordinations, Conflicts, CoordinationConfidence, AgentDecisions,
			Allocations, Turnover, RebalancingCost, PortfolioVolatility, TargetWeight,
			KafkaMessages,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordAgentDecision counts one agent vote
func RecordAgentDecision(agentID string, action decision.Action) {
	AgentDecisions.WithLabelValues(agentID, action.String()).Inc()
}

// RecordCoordination records one coordinated decision
func RecordCoordination(d *decision.CoordinatedDecision) {
	method := string(d.CoordinationMethod)
	action := d.FinalAction.String()
	if d.IsAbstain() {
		action = "ABSTAIN"
	}
	Coordinations.WithLabelValues(method, action).Inc()
	CoordinationConfidence.WithLabelValues(method).Observe(d.CoordinationConfidence)
	if d.ConflictDetected {
		Conflicts.WithLabelValues(string(d.ConflictResolution)).Inc()
	}
}

// RecordAllocation records one portfolio allocation
func RecordAllocation(p *allocation.PortfolioAllocation) {
	outcome := "ok"
	if p.IsFallback() {
		outcome = "error"
	} else if _, ok := p.Metadata["fallback"]; ok {
		outcome = "fallback"
	}
	Allocations.WithLabelValues(string(p.AllocationMethod), outcome).Inc()
	Turnover.Observe(p.Turnover)
	RebalancingCost.Add(p.RebalancingCost)
	PortfolioVolatility.Set(p.RiskMetrics.PortfolioVolatility)

	TargetWeight.Reset()
	for sym, a := range p.TargetAllocations {
		TargetWeight.WithLabelValues(sym).Set(a.TargetWeight)
	}
}

// RecordKafkaMessage records a produced or consumed message
func RecordKafkaMessage(topic, direction string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, direction, status).Inc()
}
