package errors

import (
	"context"
)

// Tracker reports degraded outcomes and unexpected failures to an external
// error tracking service
type Tracker interface {
	// CaptureError sends an error with component tags
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// CaptureMessage sends a message at the given severity
	CaptureMessage(ctx context.Context, message string, level Level, tags map[string]string) error

	// AddBreadcrumb records a step of the current cycle (symbol coordinated, allocation built)
	AddBreadcrumb(ctx context.Context, message string, category string, level Level, data map[string]interface{})

	// Flush waits for all pending events to be sent
	Flush(ctx context.Context) error
}

// Level represents the severity level of an error or message
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// String returns the string representation of the level
func (l Level) String() string {
	return string(l)
}

type cycleIDKey struct{}

// WithCycleID tags errors captured under ctx with the allocation cycle id
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey{}, cycleID)
}

// CycleIDFrom returns the cycle id stored by WithCycleID
func CycleIDFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(cycleIDKey{}).(string)
	return id, ok && id != ""
}
