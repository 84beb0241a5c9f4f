// Package noop provides the tracker used when Sentry is disabled. Events are
// written to the debug log so a local run still shows what would be reported.
package noop

import (
	"context"
	"sync/atomic"

	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

var _ errors.Tracker = (*Tracker)(nil)

// Tracker counts and debug-logs captured events
type Tracker struct {
	log      *logger.Logger
	captured atomic.Int64
}

// New creates a tracker; a nil logger discards events
func New(log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{log: log.Component("error_tracker")}
}

// CaptureError logs err at debug level
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	t.captured.Add(1)
	t.log.Debugw("Tracked error", fields(ctx, tags, "error", err)...)
	return nil
}

// CaptureMessage logs message at debug level
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	t.captured.Add(1)
	t.log.Debugw("Tracked message", fields(ctx, tags, "message", message, "level", level.String())...)
	return nil
}

// AddBreadcrumb is dropped
func (t *Tracker) AddBreadcrumb(ctx context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
}

// Flush has nothing to send
func (t *Tracker) Flush(ctx context.Context) error {
	return nil
}

// Captured returns the number of errors and messages seen
func (t *Tracker) Captured() int64 {
	return t.captured.Load()
}

func fields(ctx context.Context, tags map[string]string, kv ...interface{}) []interface{} {
	out := append(make([]interface{}, 0, len(kv)+2*len(tags)+2), kv...)
	if id, ok := errors.CycleIDFrom(ctx); ok {
		out = append(out, "cycle_id", id)
	}
	for k, v := range tags {
		out = append(out, "tag_"+k, v)
	}
	return out
}
