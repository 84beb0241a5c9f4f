package workers

import (
	"context"
	"sync"
	"time"

	"tradecouncil/pkg/logger"
)

// Worker is a periodic job driven by the Scheduler
type Worker interface {
	Name() string

	// Run executes one iteration and returns. The scheduler calls it again
	// every Interval().
	Run(ctx context.Context) error

	Interval() time.Duration
	Enabled() bool
}

// WorkerWithHealth is a Worker the scheduler reports run outcomes to
type WorkerWithHealth interface {
	Worker
	Health() WorkerHealth
	SetEnabled(enabled bool)
	RecordRun(duration time.Duration)
	RecordError(err error, duration time.Duration)
}

// WorkerWithTimeout bounds every Run call
type WorkerWithTimeout interface {
	Timeout() time.Duration
}

// WorkerHealth is a point-in-time view of a worker's runs
type WorkerHealth struct {
	Enabled           bool
	LastRun           time.Time
	LastSuccess       time.Time
	LastError         error
	LastDuration      time.Duration
	AvgDuration       time.Duration
	RunCount          int64
	ErrorCount        int64
	ConsecutiveErrors int64
}

type runStats struct {
	lastRun           time.Time
	lastSuccess       time.Time
	lastError         error
	lastDuration      time.Duration
	total             time.Duration
	runs              int64
	errors            int64
	consecutiveErrors int64
}

func (s *runStats) record(err error, d time.Duration, at time.Time) {
	s.lastRun = at
	s.lastDuration = d
	s.total += d
	s.runs++
	s.lastError = err
	if err != nil {
		s.errors++
		s.consecutiveErrors++
		return
	}
	s.lastSuccess = at
	s.consecutiveErrors = 0
}

// BaseWorker carries name, cadence, enablement and run stats for embedding
// workers
type BaseWorker struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	mu      sync.RWMutex
	enabled bool
	stats   runStats
	now     func() time.Time
}

// NewBaseWorker creates a base worker
func NewBaseWorker(name string, interval time.Duration, enabled bool) *BaseWorker {
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled,
		log:      logger.Get().Component("worker").With("worker", name),
		now:      time.Now,
	}
}

// WithTimeout sets the per-run deadline, 0 disables it
func (w *BaseWorker) WithTimeout(d time.Duration) *BaseWorker {
	w.timeout = d
	return w
}

func (w *BaseWorker) Name() string            { return w.name }
func (w *BaseWorker) Interval() time.Duration { return w.interval }
func (w *BaseWorker) Timeout() time.Duration  { return w.timeout }
func (w *BaseWorker) Log() *logger.Logger     { return w.log }

// Enabled returns whether the worker is enabled
func (w *BaseWorker) Enabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// SetEnabled toggles the worker; the scheduler skips disabled workers
func (w *BaseWorker) SetEnabled(enabled bool) {
	w.mu.Lock()
	changed := w.enabled != enabled
	w.enabled = enabled
	w.mu.Unlock()

	if changed {
		w.log.Infow("Worker enabled state changed", "enabled", enabled)
	}
}

// Health returns a snapshot of the run stats
func (w *BaseWorker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := w.stats
	h := WorkerHealth{
		Enabled:           w.enabled,
		LastRun:           s.lastRun,
		LastSuccess:       s.lastSuccess,
		LastError:         s.lastError,
		LastDuration:      s.lastDuration,
		RunCount:          s.runs,
		ErrorCount:        s.errors,
		ConsecutiveErrors: s.consecutiveErrors,
	}
	if s.runs > 0 {
		h.AvgDuration = s.total / time.Duration(s.runs)
	}
	return h
}

// RecordRun records a successful run
func (w *BaseWorker) RecordRun(duration time.Duration) {
	w.record(nil, duration)
}

// RecordError records a failed run
func (w *BaseWorker) RecordError(err error, duration time.Duration) {
	w.record(err, duration)
}

func (w *BaseWorker) record(err error, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.record(err, duration, w.now())
}
