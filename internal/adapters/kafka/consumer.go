package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// messageReader is the part of kafka.Reader the consumer drives
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// Pause after a failed read, doubled per consecutive failure up to MaxBackoff
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.MinBytes == 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 1 << 20 // 1MB, performance reports are tiny
	}
	if c.MaxWait == 0 {
		c.MaxWait = time.Second
	}
	if c.Backoff == 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// ConsumerStats counts messages seen by Consume
type ConsumerStats struct {
	Processed  int64
	Failed     int64
	ReadErrors int64
}

// Consumer reads one topic in a consumer group and hands every message to a
// handler. Offsets are committed by the reader once ReadMessage returns.
type Consumer struct {
	reader messageReader
	cfg    ConsumerConfig
	log    *logger.Logger

	processed  atomic.Int64
	failed     atomic.Int64
	readErrors atomic.Int64
}

// NewConsumer creates a group consumer for cfg.Topic
func NewConsumer(cfg ConsumerConfig, log *logger.Logger) *Consumer {
	cfg.applyDefaults()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset, // replay feedback a restarted group never saw
	})
	return newConsumer(reader, cfg, log)
}

func newConsumer(reader messageReader, cfg ConsumerConfig, log *logger.Logger) *Consumer {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Get()
	}
	return &Consumer{
		reader: reader,
		cfg:    cfg,
		log:    log.Component("kafka_consumer").With("topic", cfg.Topic, "group_id", cfg.GroupID),
	}
}

// MessageHandler processes one message
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consume calls handler for every message until ctx is cancelled. Handler
// errors and panics are logged and the message is skipped; read errors back
// off exponentially.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.log.Info("Starting consumer")

	backoff := c.cfg.Backoff
	for {
		msg, err := c.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Infow("Consumer stopped", "processed", c.processed.Load(), "failed", c.failed.Load())
				return ctx.Err()
			}
			c.readErrors.Add(1)
			c.log.Warnw("Failed to read message", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}
		backoff = c.cfg.Backoff

		if err := handleSafely(ctx, handler, msg); err != nil {
			c.failed.Add(1)
			c.log.Warnw("Failed to handle message", "key", string(msg.Key), "offset", msg.Offset, "error", err)
			continue
		}
		c.processed.Add(1)
	}
}

// ReadMessageWithShutdownCheck checks for shutdown before blocking on the next message
func (c *Consumer) ReadMessageWithShutdownCheck(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}

	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return kafka.Message{}, ctx.Err()
		}
		return kafka.Message{}, errors.Unavailable(err, "read %s", c.cfg.Topic)
	}
	return msg, nil
}

// Stats returns message counters
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed:  c.processed.Load(),
		Failed:     c.failed.Load(),
		ReadErrors: c.readErrors.Load(),
	}
}

// Close closes the reader and leaves the group
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func handleSafely(ctx context.Context, handler MessageHandler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(r)
		}
	}()
	return handler(ctx, msg)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
