package bootstrap

import (
	"context"
	"net/http"
	"sync"
	"time"

	chclient "tradecouncil/internal/adapters/clickhouse"
	"tradecouncil/internal/adapters/kafka"
	pgclient "tradecouncil/internal/adapters/postgres"
	redisclient "tradecouncil/internal/adapters/redis"
	redisrepo "tradecouncil/internal/repository/redis"
	"tradecouncil/internal/services/coordinator"
	"tradecouncil/internal/workers"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 150 * time.Second,
	}
}

// ShutdownTargets lists everything Shutdown closes. Nil fields are skipped.
type ShutdownTargets struct {
	WG                  *sync.WaitGroup
	MetricsServer       *http.Server
	WorkerScheduler     *workers.Scheduler
	Coordinator         *coordinator.Coordinator
	Weights             *redisrepo.WeightStore
	KafkaProducer       *kafka.Producer
	PerformanceConsumer *kafka.Consumer
	PG                  *pgclient.Client
	CH                  *chclient.Client
	Redis               *redisclient.Client
	ErrorTracker        errors.Tracker
}

// Shutdown performs coordinated cleanup in order:
// 1. Workers finish the running cycle
// 2. Agent weights are snapshotted (feedback may have arrived after the last cycle)
// 3. Kafka consumer unblocks before waiting for goroutines
// 4. Producer closes after the workers that publish
// 5. Errors and logs are flushed
// 6. Database connections last
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/8] Stopping metrics server...")
	if t.MetricsServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := t.MetricsServer.Shutdown(httpCtx); err != nil {
			log.Errorf("Metrics server shutdown failed: %v", err)
		}
		httpCancel()
	}

	log.Info("[2/8] Stopping background workers...")
	if t.WorkerScheduler != nil && t.WorkerScheduler.IsRunning() {
		if err := t.WorkerScheduler.Stop(); err != nil {
			log.Errorf("Workers shutdown failed: %v", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	log.Info("[3/8] Saving agent weights...")
	if t.Coordinator != nil && t.Weights != nil {
		if err := t.Weights.Save(shutdownCtx, t.Coordinator.Snapshot()); err != nil {
			log.Errorf("Agent weight snapshot failed: %v", err)
		} else {
			log.Info("✓ Agent weights saved")
		}
	}

	log.Info("[4/8] Closing Kafka consumer...")
	if t.PerformanceConsumer != nil {
		if err := t.PerformanceConsumer.Close(); err != nil {
			log.Errorf("Kafka consumer close failed: %v", err)
		}
	}

	log.Info("[5/8] Waiting for goroutines...")
	if t.WG != nil {
		l.waitForGoroutines(t.WG, 5*time.Second, log)
	}

	log.Info("[6/8] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorf("Kafka producer close failed: %v", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[7/8] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(t.PG, t.CH, t.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Warnf("Error tracker flush failed: %v", err)
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors errors.MultiError

	if pgClient != nil {
		dbErrors.Add(errors.Wrap(pgClient.Close(), "postgres"))
	}
	if chClient != nil {
		dbErrors.Add(errors.Wrap(chClient.Close(), "clickhouse"))
	}
	if redisClient != nil {
		dbErrors.Add(errors.Wrap(redisClient.Close(), "redis"))
	}

	if err := dbErrors.ToError(); err != nil {
		log.Errorf("Database close errors: %v", err)
	} else {
		log.Info("✓ Database connections closed")
	}
}
