package kafka

// Topic definitions for council event streaming
const (
	// Per-symbol coordinated decisions
	TopicDecisions = "council.decisions"

	// Target portfolios
	TopicAllocations = "council.allocations"

	// Order intents derived from a rebalance
	TopicOrders = "council.orders"

	// Realized agent performance fed back into the coordinator
	TopicPerformance = "council.performance"
)
