package events

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"tradecouncil/internal/metrics"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

// PerformanceReport is realized performance of one agent, read from the
// performance topic
type PerformanceReport struct {
	AgentID     string    `json:"agent_id"`
	Performance float64   `json:"performance"`
	Symbol      string    `json:"symbol,omitempty"`
	OccurredAt  time.Time `json:"occurred_at,omitempty"`
}

// PerformanceSink receives realized performance, typically the coordinator
type PerformanceSink interface {
	UpdateAgentPerformance(agentID string, performance float64) error
}

// PerformanceHandler feeds performance reports into a sink
type PerformanceHandler struct {
	sink  PerformanceSink
	topic string
	log   *logger.Logger
}

// NewPerformanceHandler creates a handler reading from topic
func NewPerformanceHandler(sink PerformanceSink, topic string, log *logger.Logger) *PerformanceHandler {
	if log == nil {
		log = logger.Get()
	}
	return &PerformanceHandler{sink: sink, topic: topic, log: log.Component("performance_consumer")}
}

// Handle decodes one message. Both a bare report and an Envelope wrapping one
// are accepted. Malformed messages return ErrMalformedMessage and leave the
// sink untouched.
func (h *PerformanceHandler) Handle(ctx context.Context, msg kafka.Message) error {
	report, err := decodeReport(msg.Value)
	if err == nil {
		err = h.sink.UpdateAgentPerformance(report.AgentID, report.Performance)
	}
	metrics.RecordKafkaMessage(h.topic, "consume", err)
	if err != nil {
		return errors.Wrapf(err, "performance message at offset %d", msg.Offset)
	}

	h.log.Debugw("Agent performance recorded", "agent", report.AgentID, "performance", report.Performance)
	return nil
}

func decodeReport(data []byte) (PerformanceReport, error) {
	var probe struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return PerformanceReport{}, errors.Wrap(errors.ErrMalformedMessage, err.Error())
	}
	if len(probe.Payload) > 0 {
		data = probe.Payload
	}

	var r PerformanceReport
	if err := json.Unmarshal(data, &r); err != nil {
		return PerformanceReport{}, errors.Wrap(errors.ErrMalformedMessage, err.Error())
	}
	if strings.TrimSpace(r.AgentID) == "" {
		return PerformanceReport{}, errors.Wrap(errors.ErrMalformedMessage, "agent_id is required")
	}
	if math.IsNaN(r.Performance) || math.IsInf(r.Performance, 0) {
		return PerformanceReport{}, errors.Wrap(errors.ErrMalformedMessage, "performance must be finite")
	}
	return r, nil
}
