package bootstrap

import (
	"context"
	"net/http"
	"sync"

	chclient "tradecouncil/internal/adapters/clickhouse"
	"tradecouncil/internal/adapters/config"
	"tradecouncil/internal/adapters/kafka"
	pgclient "tradecouncil/internal/adapters/postgres"
	redisclient "tradecouncil/internal/adapters/redis"
	"tradecouncil/internal/domain/agent"
	"tradecouncil/internal/events"
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

// Container holds all application dependencies and their lifecycle.
// Components are organized in initialization order.
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores)
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos      *Repositories
	Services   *Services
	Adapters   *Adapters
	Background *Background

	MetricsServer *http.Server

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the council's stores
type Repositories struct {
	MarketData  *chrepo.MarketDataRepository
	Allocations *pgrepo.AllocationRepository
	Weights     *redisrepo.WeightStore
}

// Services groups the decision engine
type Services struct {
	Agents      *agent.Registry
	Coordinator *coordinator.Coordinator
	Allocator   *allocator.Allocator
}

// Adapters groups messaging
type Adapters struct {
	KafkaProducer       *kafka.Producer
	PerformanceConsumer *kafka.Consumer
	Publisher           *events.Publisher
}

// Background groups all background processing components
type Background struct {
	WorkerScheduler    *workers.Scheduler
	AllocationCycle    *cycle.AllocationCycle
	PerformanceHandler *events.PerformanceHandler
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:      &Repositories{},
		Services:   &Services{},
		Adapters:   &Adapters{},
		Background: &Background{},
		Lifecycle:  NewLifecycle(),
		WG:         &sync.WaitGroup{},
		Context:    ctx,
		Cancel:     cancel,
	}
}

// MustInit initializes all components in the correct order.
// Panics on any initialization error (fail-fast at startup).
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitBackground()
	c.MustInitMetrics()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.MetricsServer != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			c.Log.Infow("Serving metrics", "addr", c.MetricsServer.Addr)
			if err := c.MetricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				c.Log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		err := c.Adapters.PerformanceConsumer.Consume(c.Context, c.Background.PerformanceHandler.Handle)
		if err != nil && c.Context.Err() == nil {
			c.Log.Errorf("Performance consumer failed: %v", err)
		}
	}()

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.Log.Info("✓ All systems operational")
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	c.Cancel()

	c.Lifecycle.Shutdown(ShutdownTargets{
		WG:                  c.WG,
		MetricsServer:       c.MetricsServer,
		WorkerScheduler:     c.Background.WorkerScheduler,
		Coordinator:         c.Services.Coordinator,
		Weights:             c.Repos.Weights,
		KafkaProducer:       c.Adapters.KafkaProducer,
		PerformanceConsumer: c.Adapters.PerformanceConsumer,
		PG:                  c.PG,
		CH:                  c.CH,
		Redis:               c.Redis,
		ErrorTracker:        c.ErrorTracker,
	}, c.Log)
}
