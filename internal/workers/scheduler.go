package workers

import (
	"context"
	"sync"
	"time"

	"tradecouncil/internal/metrics"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// DefaultShutdownTimeout bounds Stop when a cycle is still running
const DefaultShutdownTimeout = 2 * time.Minute

// Scheduler runs each registered worker on its own goroutine: once at start,
// then every Interval. Enablement is checked before every run, so a worker
// toggled with SetEnabled pauses or resumes without a restart.
type Scheduler struct {
	log             *logger.Logger
	shutdownTimeout time.Duration

	mu      sync.RWMutex
	workers []Worker
	names   map[string]struct{}
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler; a nil log uses the process logger
func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Get().Component("scheduler")
	}
	return &Scheduler{
		log:             log,
		shutdownTimeout: DefaultShutdownTimeout,
		names:           make(map[string]struct{}),
	}
}

// WithShutdownTimeout overrides DefaultShutdownTimeout
func (s *Scheduler) WithShutdownTimeout(d time.Duration) *Scheduler {
	if d > 0 {
		s.shutdownTimeout = d
	}
	return s
}

// RegisterWorker adds w. Names key the health report, so they must be unique,
// and registration closes once the scheduler starts.
func (s *Scheduler) RegisterWorker(w Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Wrapf(errors.ErrInternal, "register %s: scheduler already started", w.Name())
	}
	if _, dup := s.names[w.Name()]; dup {
		return errors.NewValidationError("worker", "duplicate name", w.Name())
	}
	if w.Interval() <= 0 {
		return errors.NewValidationError("interval", "must be positive", w.Interval())
	}

	s.names[w.Name()] = struct{}{}
	s.workers = append(s.workers, w)
	s.log.Infow("Worker registered", "worker", w.Name(), "interval", w.Interval(), "enabled", w.Enabled())
	return nil
}

// Start launches every registered worker
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Wrap(errors.ErrInternal, "scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.log.Infow("Starting worker scheduler", "workers", len(s.workers))
	for _, w := range s.workers {
		s.wg.Add(1)
		go s.loop(runCtx, w)
	}
	return nil
}

// Stop cancels all workers and waits up to the shutdown timeout for the
// running iterations to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.Wrap(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.log.Info("Stopping worker scheduler...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.log.Info("All workers stopped gracefully")
		return nil
	case <-timer.C:
		s.log.Warnw("Worker shutdown timed out", "timeout", s.shutdownTimeout)
		return errors.Wrapf(errors.ErrInternal, "shutdown timeout after %s", s.shutdownTimeout)
	}
}

func (s *Scheduler) loop(ctx context.Context, w Worker) {
	defer s.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	for {
		if w.Enabled() {
			s.execute(ctx, w)
		} else {
			s.log.Debugw("Skipping disabled worker", "worker", w.Name())
		}

		select {
		case <-ctx.Done():
			s.log.Infow("Worker stopped", "worker", w.Name())
			return
		case <-ticker.C:
		}
	}
}

// execute runs one iteration; a panic counts as a failed run
func (s *Scheduler) execute(ctx context.Context, w Worker) {
	runCtx := ctx
	if tw, ok := w.(WorkerWithTimeout); ok && tw.Timeout() > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, tw.Timeout())
		defer cancel()
	}

	start := time.Now()
	err := runSafely(runCtx, w)
	duration := time.Since(start)

	metrics.RecordWorkerExecution(w.Name(), duration, err)
	if hw, ok := w.(WorkerWithHealth); ok {
		if err != nil {
			hw.RecordError(err, duration)
		} else {
			hw.RecordRun(duration)
		}
	}

	if err != nil {
		s.log.ErrorWithContext(ctx, errors.Wrapf(err, "worker %s failed after %s", w.Name(), duration),
			map[string]string{"worker": w.Name()})
		return
	}
	s.log.Debugw("Worker run completed", "worker", w.Name(), "duration", duration)
}

func runSafely(ctx context.Context, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(r)
		}
	}()
	return w.Run(ctx)
}

// Workers returns the registered workers in registration order
func (s *Scheduler) Workers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Worker(nil), s.workers...)
}

// Health returns health of every worker that tracks it, keyed by name
func (s *Scheduler) Health() map[string]WorkerHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]WorkerHealth, len(s.workers))
	for _, w := range s.workers {
		if hw, ok := w.(WorkerWithHealth); ok {
			out[w.Name()] = hw.Health()
		}
	}
	return out
}

// IsRunning reports whether Start has been called without a matching Stop
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
