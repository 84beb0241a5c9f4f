package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	chclient "tradecouncil/internal/adapters/clickhouse"
	"tradecouncil/internal/adapters/config"
	errnoop "tradecouncil/internal/adapters/errors/noop"
	"tradecouncil/internal/adapters/errors/sentry"
	"tradecouncil/internal/adapters/kafka"
	pgclient "tradecouncil/internal/adapters/postgres"
	redisclient "tradecouncil/internal/adapters/redis"
	"tradecouncil/internal/agents"
	"tradecouncil/internal/api/health"
	"tradecouncil/internal/domain/agent"
	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/events"
	"tradecouncil/internal/metrics"
	chrepo "tradecouncil/internal/repository/clickhouse"
	pgrepo "tradecouncil/internal/repository/postgres"
	redisrepo "tradecouncil/internal/repository/redis"
	"tradecouncil/internal/services/allocator"
	"tradecouncil/internal/services/coordinator"
	"tradecouncil/internal/workers"
	"tradecouncil/internal/workers/cycle"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure initializes data stores (Postgres, ClickHouse, Redis)
func (c *Container) MustInitInfrastructure() {
	var err error

	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	c.Log.Info("Connecting to ClickHouse...")
	c.CH, err = chclient.NewClient(c.Config.ClickHouse)
	if err != nil {
		c.Log.Fatalf("failed to connect clickhouse: %v", err)
	}
	c.Log.Info("✓ ClickHouse connected")

	c.Log.Info("Connecting to Redis...")
	c.Redis, err = redisclient.NewClient(c.Config.Redis)
	if err != nil {
		c.Log.Fatalf("failed to connect redis: %v", err)
	}
	c.Log.Info("✓ Redis connected")
}

// ========================================
// Phase 3: Repositories
// ========================================

// MustInitRepositories initializes the council's stores
func (c *Container) MustInitRepositories() {
	c.Repos.MarketData = chrepo.NewMarketDataRepository(c.CH.Conn())
	c.Repos.Allocations = pgrepo.NewAllocationRepository(c.PG.DB())
	c.Repos.Weights = redisrepo.NewWeightStore(c.Redis.Client(), c.Config.Redis.StateKey, c.Config.Redis.StateTTL)

	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters initializes Kafka producer, consumer and the event publisher
func (c *Container) MustInitAdapters() {
	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
	c.Adapters.PerformanceConsumer = provideKafkaConsumer(c.Config, kafka.TopicPerformance, c.Log)
	c.Adapters.Publisher = events.NewPublisher(
		c.Adapters.KafkaProducer,
		rate.Limit(c.Config.Kafka.PublishRate),
		c.Config.Kafka.PublishBurst,
		c.Log,
	)

	c.Log.Info("✓ Adapters initialized")
}

// ========================================
// Phase 5: Decision engine
// ========================================

// MustInitServices builds agents, the coordinator and the allocator, and
// restores their state from the last run
func (c *Container) MustInitServices() {
	var err error

	c.Services.Agents, err = provideAgents(c.Log)
	if err != nil {
		c.Log.Fatalf("failed to register agents: %v", err)
	}

	coordCfg, err := coordinatorConfig(c.Config.Coordinator)
	if err != nil {
		c.Log.Fatalf("invalid coordinator config: %v", err)
	}
	c.Services.Coordinator, err = coordinator.New(coordCfg, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create coordinator: %v", err)
	}

	allocCfg, err := allocatorConfig(c.Config.Allocator)
	if err != nil {
		c.Log.Fatalf("invalid allocator config: %v", err)
	}
	c.Services.Allocator, err = allocator.New(allocCfg, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to create allocator: %v", err)
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	restoreCoordinator(ctx, c.Services.Coordinator, c.Repos.Weights, c.Log)
	seedAllocator(ctx, c.Services.Allocator, c.Repos.Allocations, c.Log)

	c.Log.Infow("✓ Decision engine initialized",
		"agents", c.Services.Agents.Len(),
		"coordination", coordCfg.DefaultMethod,
		"allocation", allocCfg.Method,
	)
}

// ========================================
// Phase 6: Background Processing
// ========================================

// MustInitBackground wires the allocation cycle and the performance consumer
func (c *Container) MustInitBackground() {
	u := c.Config.Universe
	w := c.Config.Workers

	c.Background.AllocationCycle = cycle.NewAllocationCycle(cycle.Config{
		Exchange:         u.Exchange,
		Symbols:          u.Symbols,
		Timeframe:        u.Timeframe,
		Bars:             u.Bars,
		PortfolioValue:   c.Config.Allocator.PortfolioValue,
		MinOrderNotional: decimal.NewFromFloat(c.Config.Allocator.MinOrderNotional),
		Interval:         w.CycleInterval,
		Timeout:          w.CycleTimeout,
		MaxConcurrency:   w.MaxConcurrency,
		Enabled:          true,
	},
		c.Repos.MarketData,
		c.Services.Agents,
		c.Services.Coordinator,
		c.Services.Allocator,
		c.Repos.Allocations,
		c.Adapters.Publisher,
		c.Repos.Weights,
	)

	c.Background.PerformanceHandler = events.NewPerformanceHandler(c.Services.Coordinator, kafka.TopicPerformance, c.Log)

	c.Background.WorkerScheduler = workers.NewScheduler(c.Log.Component("scheduler")).WithShutdownTimeout(w.CycleTimeout)
	if err := c.Background.WorkerScheduler.RegisterWorker(c.Background.AllocationCycle); err != nil {
		c.Log.Fatalf("failed to register allocation cycle: %v", err)
	}

	c.Log.Info("✓ Background processing initialized")
}

// MustInitMetrics registers collectors and prepares the metrics endpoint
func (c *Container) MustInitMetrics() {
	metrics.Register()
	metrics.RegisterCouncilCollector(metrics.NewCouncilCollector(
		c.Log,
		c.Services.Coordinator,
		c.Services.Allocator,
		c.PG.DB(),
	))

	if !c.Config.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(c.Config.Metrics.Path, metrics.Handler())
	health.New(c.Log.Component("health"), c.Config.App.Name, map[string]health.Checker{
		"postgres":   c.PG,
		"clickhouse": c.CH,
		"redis":      c.Redis,
	}, c.Background.WorkerScheduler).Register(mux)
	c.MetricsServer = &http.Server{
		Addr:              c.Config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ========================================
// Helper Provider Functions
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New(log)
	}

	tracker, err := sentry.New(sentry.Options{
		DSN:         cfg.ErrorTracking.SentryDSN,
		Environment: cfg.ErrorTracking.Environment,
		Release:     cfg.App.Name,
	})
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New(log)
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	log.Info("Initializing Kafka producer...")
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Async:        false,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}, log)
	log.Info("✓ Kafka producer initialized")
	return producer
}

func provideKafkaConsumer(cfg *config.Config, topic string, log *logger.Logger) *kafka.Consumer {
	log.Infow("Initializing Kafka consumer", "topic", topic)
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topic,
	}, log)
	log.Infow("✓ Kafka consumer initialized", "topic", topic)
	return consumer
}

// provideAgents registers the built-in indicator agents
func provideAgents(log *logger.Logger) (*agent.Registry, error) {
	reg := agent.NewRegistry(log)
	err := reg.Register(
		agents.NewMomentumAgent("momentum-10", agents.DefaultMomentumConfig()),
		agents.NewMeanReversionAgent("rsi-14", agents.DefaultMeanReversionConfig()),
		agents.NewTrendAgent("ema-12-26", agents.DefaultTrendConfig()),
	)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func coordinatorConfig(c config.CoordinatorConfig) (coordinator.Config, error) {
	method, err := decision.ParseCoordinationMethod(c.Method)
	if err != nil {
		return coordinator.Config{}, err
	}
	resolution, err := decision.ParseConflictResolution(c.ConflictResolution)
	if err != nil {
		return coordinator.Config{}, err
	}
	cfg := coordinator.Config{
		MinAgentsRequired:   c.MinAgentsRequired,
		ConsensusThreshold:  c.ConsensusThreshold,
		PerformanceWindow:   c.PerformanceWindow,
		WeightDecay:         c.WeightDecay,
		DefaultMethod:       method,
		ConflictResolution:  resolution,
		MaxHistory:          c.MaxHistory,
		ConfidenceThreshold: c.ConfidenceThreshold,
	}
	return cfg, cfg.Validate()
}

func allocatorConfig(c config.AllocatorConfig) (allocator.Config, error) {
	method, err := allocation.ParseMethod(c.Method)
	if err != nil {
		return allocator.Config{}, err
	}
	cfg := allocator.Config{
		Method:                   method,
		LookbackWindow:           c.LookbackWindow,
		MinHistory:               c.MinHistory,
		HalfLife:                 c.HalfLife,
		Annualization:            c.Annualization,
		UseLogReturns:            c.UseLogReturns,
		MinPositionSize:          c.MinPositionSize,
		MaxPositionSize:          c.MaxPositionSize,
		OptimizerMinWeight:       c.OptimizerMinWeight,
		OptimizerMaxWeight:       c.OptimizerMaxWeight,
		LiquidityRequirement:     c.LiquidityRequirement,
		TargetVolatility:         c.TargetVolatility,
		RebalanceThreshold:       c.RebalanceThreshold,
		TransactionCost:          c.TransactionCost,
		BaseExpectedReturn:       c.BaseExpectedReturn,
		DefaultVolatility:        c.DefaultVolatility,
		ConcentrationThreshold:   c.ConcentrationThreshold,
		DefaultPortfolioValue:    c.PortfolioValue,
		MaxHistory:               c.MaxHistory,
		LiquidityReferenceVolume: c.LiquidityReferenceVolume,
	}
	return cfg, cfg.Validate()
}

// weightLoader is the read side of the weight store
type weightLoader interface {
	Load(ctx context.Context) (coordinator.State, error)
	Delete(ctx context.Context) error
}

// restoreCoordinator applies the last saved weights. A missing or unreadable
// snapshot starts the council with neutral weights; a corrupt one is removed
// so the next save starts clean.
func restoreCoordinator(ctx context.Context, c *coordinator.Coordinator, store weightLoader, log *logger.Logger) {
	state, err := store.Load(ctx)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		log.Info("No saved agent weights, starting neutral")
		return
	case errors.Is(err, errors.ErrMalformedMessage):
		log.Warnf("Dropping corrupt agent weights: %v", err)
		dropSnapshot(ctx, store, log)
		return
	case err != nil:
		log.Warnf("Failed to load agent weights: %v", err)
		return
	}
	if err := c.Restore(state); err != nil {
		log.Warnf("Discarding invalid agent weights: %v", err)
		dropSnapshot(ctx, store, log)
		return
	}
	log.Infow("✓ Agent weights restored", "agents", len(state.AgentWeights), "saved_at", state.SavedAt)
}

func dropSnapshot(ctx context.Context, store weightLoader, log *logger.Logger) {
	if err := store.Delete(ctx); err != nil {
		log.Warnf("Failed to delete agent weights: %v", err)
	}
}

// seedAllocator starts turnover accounting from the last persisted target
func seedAllocator(ctx context.Context, a *allocator.Allocator, repo allocation.Repository, log *logger.Logger) {
	recent, err := repo.ListRecent(ctx, 1)
	if err != nil {
		log.Warnf("Failed to load last allocation: %v", err)
		return
	}
	if len(recent) == 0 || recent[0].IsFallback() {
		return
	}
	a.SetCurrentAllocations(recent[0].TargetWeights())
	log.Infow("✓ Allocator seeded from last allocation", "allocation_id", recent[0].ID, "symbols", len(recent[0].TargetAllocations))
}
