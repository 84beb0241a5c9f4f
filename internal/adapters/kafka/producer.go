package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// messageWriter is the part of kafka.Writer the producer drives
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers []string
	Async   bool

	// Wait for all in-sync replicas unless set; allocations must not be lost
	RequiredAcks kafka.RequiredAcks
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// Producer publishes JSON events with one lazily created writer per topic
type Producer struct {
	cfg       ProducerConfig
	log       *logger.Logger
	newWriter func(topic string) messageWriter

	mu      sync.Mutex
	writers map[string]messageWriter
	closed  bool
}

// NewProducer creates a producer for cfg.Brokers
func NewProducer(cfg ProducerConfig, log *logger.Logger) *Producer {
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = kafka.RequireAll
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	p := newProducer(cfg, log, nil)
	p.newWriter = func(topic string) messageWriter {
		return &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{}, // same key, same partition
			Async:                  cfg.Async,
			RequiredAcks:           cfg.RequiredAcks,
			BatchTimeout:           cfg.BatchTimeout,
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: true,
		}
	}
	return p
}

func newProducer(cfg ProducerConfig, log *logger.Logger, newWriter func(string) messageWriter) *Producer {
	if log == nil {
		log = logger.Get()
	}
	return &Producer{
		cfg:       cfg,
		log:       log.Component("kafka_producer"),
		newWriter: newWriter,
		writers:   make(map[string]messageWriter),
	}
}

func (p *Producer) writer(topic string) (messageWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.Wrapf(errors.ErrUnavailable, "producer closed, dropping %s event", topic)
	}
	if w, ok := p.writers[topic]; ok {
		return w, nil
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w, nil
}

// Publish sends a JSON-encoded event to a topic
func (p *Producer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal event for %s", topic)
	}

	w, err := p.writer(topic)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		p.log.Errorf("Failed to publish to %s: %v", topic, err)
		return errors.Unavailable(err, "publish to %s", topic)
	}

	p.log.Debugw("Published event", "topic", topic, "key", key, "bytes", len(data))
	return nil
}

// Close flushes and closes all writers. Later publishes fail.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs errors.MultiError
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Errorf("Failed to close writer for %s: %v", topic, err)
			errs.Add(errors.Wrapf(err, "close %s writer", topic))
		}
	}
	p.writers = make(map[string]messageWriter)
	return errs.ToError()
}
