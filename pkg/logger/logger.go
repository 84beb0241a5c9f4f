package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tradecouncil/pkg/errors"
)

// Logger wraps zap.SugaredLogger. Errors logged through Error, Errorf and
// ErrorWithContext are forwarded to the error tracker once one is installed,
// including on child loggers created before installation.
type Logger struct {
	*zap.SugaredLogger
	component string
	sink      *trackerSink
}

type trackerSink struct {
	mu      sync.RWMutex
	tracker errors.Tracker
}

func (s *trackerSink) get() errors.Tracker {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker
}

func (s *trackerSink) set(t errors.Tracker) {
	s.mu.Lock()
	s.tracker = t
	s.mu.Unlock()
}

var (
	globalMu sync.Mutex
	global   *Logger
)

// New builds a logger for the given level and environment. Production gets
// the JSON encoder, everything else the colored console one. An unknown level
// falls back to info.
func New(level, env string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	z, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build zap logger")
	}
	return wrap(z), nil
}

func wrap(z *zap.Logger) *Logger {
	return &Logger{SugaredLogger: z.Sugar(), sink: &trackerSink{}}
}

// Init builds the process logger returned by Get
func Init(level, env string) error {
	l, err := New(level, env)
	if err != nil {
		return err
	}
	globalMu.Lock()
	global = l
	globalMu.Unlock()
	return nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return wrap(zap.NewNop())
}

// Get returns the process logger, a development logger before Init
func Get() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		z, err := zap.NewDevelopment()
		if err != nil {
			z = zap.NewNop()
		}
		global = wrap(z)
	}
	return global
}

// SetErrorTracker installs the tracker on the process logger and every
// logger derived from it
func SetErrorTracker(tracker errors.Tracker) {
	Get().sink.set(tracker)
}

// Sync flushes the process logger
func Sync() error {
	globalMu.Lock()
	l := global
	globalMu.Unlock()
	if l == nil {
		return nil
	}
	return l.SugaredLogger.Sync()
}

// With creates a child logger with additional fields
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		component:     l.component,
		sink:          l.sink,
	}
}

// Component creates a child logger tagged with a component name, also used
// as the tracker tag for errors logged through it
func (l *Logger) Component(name string) *Logger {
	child := l.With("component", name)
	child.component = name
	return child
}

func (l *Logger) tags(extra map[string]string) map[string]string {
	component := l.component
	if component == "" {
		component = "logger"
	}
	tags := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		tags[k] = v
	}
	tags["component"] = component
	return tags
}

// skip one frame so the caller of Error, not this file, is reported
func (l *Logger) caller() *zap.SugaredLogger {
	return l.SugaredLogger.WithOptions(zap.AddCallerSkip(1))
}

func (l *Logger) capture(ctx context.Context, err error, extra map[string]string) {
	if t := l.sink.get(); t != nil {
		_ = t.CaptureError(ctx, err, l.tags(extra))
	}
}

// Error logs at error level and reports to the tracker
func (l *Logger) Error(args ...interface{}) {
	l.caller().Error(args...)
	l.capture(context.Background(), errors.Wrapf(errors.ErrInternal, "%s", fmt.Sprint(args...)), nil)
}

// Errorf logs a formatted error and reports it to the tracker
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.caller().Errorf(template, args...)
	l.capture(context.Background(), fmt.Errorf(template, args...), nil)
}

// ErrorWithContext logs err with the cycle id carried by ctx, if any, and
// reports it with the component tag merged over tags
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	kv := make([]interface{}, 0, 2*len(tags)+4)
	kv = append(kv, "error", err)
	if id, ok := errors.CycleIDFrom(ctx); ok {
		kv = append(kv, "cycle_id", id)
	}
	for k, v := range tags {
		kv = append(kv, k, v)
	}
	l.caller().Errorw(err.Error(), kv...)
	l.capture(ctx, err, tags)
}
