package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the assignment engine. The engine never
// subscribes to anything; these are fire-and-forget notifications for
// external observers (dashboards, alerting, cycle-history archival).
const (
	EventTypeCycleCompleted    = "cycle.completed"
	EventTypeSurgeChanged      = "surge.changed"
	EventTypeAssignmentCreated = "assignment.created"
	EventTypeOrderReassigned   = "order.reassigned"
	EventTypeOrderUnassignable = "order.unassignable"
)

// Event is the base event structure
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data"`
	Metadata    EventMetadata   `json:"metadata"`
}

// EventMetadata contains event metadata
type EventMetadata struct {
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id"`
	Source        string `json:"source"`
}

// CycleCompletedEvent summarizes one orchestrator cycle.
type CycleCompletedEvent struct {
	CycleID           string  `json:"cycle_id"`
	SuccessCount      int     `json:"success_count"`
	FailureCount      int     `json:"failure_count"`
	AvgCost           float64 `json:"avg_cost"`
	TotalSlaSlackMins float64 `json:"total_sla_slack_minutes"`
	Algorithm         string  `json:"algorithm"`
}

// SurgeChangedEvent fires when the surge classification differs from the
// previous cycle's level.
type SurgeChangedEvent struct {
	PreviousLevel     string  `json:"previous_level"`
	Level             string  `json:"level"`
	DemandSupplyRatio float64 `json:"demand_supply_ratio"`
	PendingOrderCount int     `json:"pending_order_count"`
}

// AssignmentCreatedEvent mirrors one AssignmentDecision.
type AssignmentCreatedEvent struct {
	OrderID       string `json:"order_id"`
	RiderID       string `json:"rider_id"`
	SequenceIndex int    `json:"sequence_index"`
	CycleID       string `json:"cycle_id"`
}

// OrderReassignedEvent fires when the reassignment engine frees an order
// back to pending_assignment.
type OrderReassignedEvent struct {
	OrderID           string `json:"order_id"`
	PreviousRiderID   string `json:"previous_rider_id"`
	TriggerKind       string `json:"trigger_kind"`
	ReassignmentCount int    `json:"reassignment_count"`
}

// OrderUnassignableEvent fires when a pending order is left unassigned by
// a cycle. FailureReason is empty when the order had candidates but the
// optimizer did not match it.
type OrderUnassignableEvent struct {
	OrderID       string `json:"order_id"`
	CycleID       string `json:"cycle_id"`
	FailureReason string `json:"failure_reason"`
}

// NewEvent creates a new event envelope, marshalling data to JSON.
func NewEvent(eventType, aggregateID string, data interface{}, metadata EventMetadata) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now(),
		Version:     1,
		Data:        dataBytes,
		Metadata:    metadata,
	}, nil
}

// ParseEventData parses event data into the specified type.
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
