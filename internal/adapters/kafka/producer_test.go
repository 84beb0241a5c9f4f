package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

type recordingWriter struct {
	topic    string
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer() (*Producer, map[string]*recordingWriter) {
	writers := map[string]*recordingWriter{}
	p := newProducer(ProducerConfig{}, logger.NewNop(), func(topic string) messageWriter {
		w := &recordingWriter{topic: topic}
		writers[topic] = w
		return w
	})
	return p, writers
}

func TestProducer_Publish(t *testing.T) {
	p, writers := newTestProducer()
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, TopicDecisions, "BTCUSDT", map[string]int{"final_action": 1}))
	require.NoError(t, p.Publish(ctx, TopicDecisions, "ETHUSDT", map[string]int{"final_action": -1}))
	require.NoError(t, p.Publish(ctx, TopicAllocations, "a-1", map[string]string{"id": "a-1"}))

	require.Len(t, writers, 2)
	decisions := writers[TopicDecisions].messages
	require.Len(t, decisions, 2)
	assert.Equal(t, "BTCUSDT", string(decisions[0].Key))
	assert.Equal(t, "content-type", decisions[0].Headers[0].Key)

	var body map[string]int
	require.NoError(t, json.Unmarshal(decisions[1].Value, &body))
	assert.Equal(t, -1, body["final_action"])
}

func TestProducer_PublishErrors(t *testing.T) {
	p, writers := newTestProducer()
	ctx := context.Background()

	err := p.Publish(ctx, TopicOrders, "k", func() {})
	assert.Error(t, err)

	require.NoError(t, p.Publish(ctx, TopicOrders, "k", "warmup"))
	writers[TopicOrders].err = errors.New("not enough replicas")
	err = p.Publish(ctx, TopicOrders, "k", "x")
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Contains(t, err.Error(), "not enough replicas")
}

func TestProducer_Close(t *testing.T) {
	p, writers := newTestProducer()
	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, TopicAllocations, "k", "v"))

	require.NoError(t, p.Close())
	assert.True(t, writers[TopicAllocations].closed)

	err := p.Publish(ctx, TopicAllocations, "k", "v")
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}

func TestNewProducerDefaults(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}}, logger.NewNop())
	assert.Equal(t, kafka.RequireAll, p.cfg.RequiredAcks)
	assert.NotZero(t, p.cfg.BatchTimeout)
	assert.NotZero(t, p.cfg.WriteTimeout)

	w, ok := p.newWriter(TopicPerformance).(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, TopicPerformance, w.Topic)
}
