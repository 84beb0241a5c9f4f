package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"tradecouncil/pkg/errors"
)

var _ errors.Tracker = (*Tracker)(nil)

const defaultFlushTimeout = 2 * time.Second

var levels = map[errors.Level]sentry.Level{
	errors.LevelDebug:   sentry.LevelDebug,
	errors.LevelInfo:    sentry.LevelInfo,
	errors.LevelWarning: sentry.LevelWarning,
	errors.LevelError:   sentry.LevelError,
	errors.LevelFatal:   sentry.LevelFatal,
}

// Options configures the Sentry client. An empty DSN yields a tracker that
// drops events.
type Options struct {
	DSN         string
	Environment string
	Release     string

	// BeforeSend can inspect or drop events, nil sends them unchanged
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// Tracker reports council failures to Sentry through its own hub, leaving
// the sentry package globals untouched
type Tracker struct {
	hub *sentry.Hub
}

// New creates a tracker
func New(opts Options) (*Tracker, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		BeforeSend:  opts.BeforeSend,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to init sentry")
	}
	return &Tracker{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// scoped returns a hub clone carrying tags and the cycle id from ctx
func (t *Tracker) scoped(ctx context.Context, tags map[string]string) *sentry.Hub {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id, ok := errors.CycleIDFrom(ctx); ok {
			scope.SetTag("cycle_id", id)
		}
	})
	return hub
}

// CaptureError sends err with tags
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	if err == nil {
		return nil
	}
	t.scoped(ctx, tags).CaptureException(err)
	return nil
}

// CaptureMessage sends a message at level
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	hub := t.scoped(ctx, tags)
	hub.Scope().SetLevel(convertLevel(level))
	hub.CaptureMessage(message)
	return nil
}

// AddBreadcrumb records a cycle step on the shared hub, so later events
// carry the trail
func (t *Tracker) AddBreadcrumb(ctx context.Context, message string, category string, level errors.Level, data map[string]interface{}) {
	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:   message,
		Category:  category,
		Level:     convertLevel(level),
		Data:      data,
		Timestamp: time.Now(),
	}, nil)
}

// Flush waits for pending events until the ctx deadline (2s without one)
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := defaultFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !t.hub.Flush(timeout) {
		return errors.Wrap(errors.ErrUnavailable, "sentry flush timed out")
	}
	return nil
}

func convertLevel(level errors.Level) sentry.Level {
	if l, ok := levels[level]; ok {
		return l
	}
	return sentry.LevelInfo
}
