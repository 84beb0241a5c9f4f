package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types carried in Envelope.Type
const (
	TypeDecisionCoordinated = "decision.coordinated"
	TypeAllocationCreated   = "allocation.created"
	TypeOrdersPlanned       = "orders.planned"
	TypeAgentPerformance    = "agent.performance"
)

// Envelope wraps every published payload
type Envelope struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	CycleID    uuid.UUID   `json:"cycle_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}
