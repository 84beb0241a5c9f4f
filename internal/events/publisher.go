package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradecouncil/internal/adapters/kafka"
	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/metrics"
	"tradecouncil/internal/services/orderplan"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// MessagePublisher writes one keyed message to a topic
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

var _ MessagePublisher = (*kafka.Producer)(nil)

// Publisher publishes council events to Kafka
type Publisher struct {
	producer MessagePublisher
	limiter  *rate.Limiter
	log      *logger.Logger
	now      func() time.Time
}

// NewPublisher creates a new event publisher. limit <= 0 disables throttling.
func NewPublisher(producer MessagePublisher, limit rate.Limit, burst int, log *logger.Logger) *Publisher {
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = logger.Get()
	}
	return &Publisher{
		producer: producer,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log.Component("events"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PublishDecision publishes a coordinated decision keyed by symbol
func (p *Publisher) PublishDecision(ctx context.Context, cycleID uuid.UUID, d *decision.CoordinatedDecision) error {
	if d == nil {
		return errors.Wrap(errors.ErrInvalidInput, "nil decision")
	}
	out := d.Clone()
	out.Reasoning = sanitizeUTF8(out.Reasoning)
	for _, ad := range out.AgentDecisions {
		if ad != nil {
			ad.Reasoning = sanitizeUTF8(ad.Reasoning)
		}
	}
	return p.publish(ctx, kafka.TopicDecisions, d.Symbol, TypeDecisionCoordinated, cycleID, out)
}

// PublishAllocation publishes a target portfolio keyed by allocation id
func (p *Publisher) PublishAllocation(ctx context.Context, cycleID uuid.UUID, a *allocation.PortfolioAllocation) error {
	if a == nil {
		return errors.Wrap(errors.ErrInvalidInput, "nil allocation")
	}
	out := a.Clone()
	out.Reasoning = sanitizeUTF8(out.Reasoning)
	return p.publish(ctx, kafka.TopicAllocations, a.ID.String(), TypeAllocationCreated, cycleID, out)
}

// PublishOrderIntents publishes the whole batch as one message. An empty batch
// is not published.
func (p *Publisher) PublishOrderIntents(ctx context.Context, cycleID uuid.UUID, intents []orderplan.OrderIntent) error {
	if len(intents) == 0 {
		return nil
	}
	return p.publish(ctx, kafka.TopicOrders, intents[0].AllocationID.String(), TypeOrdersPlanned, cycleID, intents)
}

func (p *Publisher) publish(ctx context.Context, topic, key, eventType string, cycleID uuid.UUID, payload interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "throttle %s", topic)
	}

	env := Envelope{
		ID:         uuid.New(),
		Type:       eventType,
		CycleID:    cycleID,
		OccurredAt: p.now(),
		Payload:    payload,
	}
	err := p.producer.Publish(ctx, topic, key, env)
	metrics.RecordKafkaMessage(topic, "produce", err)
	if err != nil {
		p.log.Warnw("Failed to publish event",
			"topic", topic,
			"type", eventType,
			"error", err,
		)
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debugw("Event published",
		"topic", topic,
		"type", eventType,
		"key", key,
	)
	return nil
}

// sanitizeUTF8 drops invalid byte sequences. Agent reasoning may carry
// arbitrary bytes that downstream JSON consumers reject.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
