package engine

import (
	"context"

	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/reassign"
	"github.com/terminal-bench/dispatchengine/pkg/messaging"
)

// publishSurgeChange fires messaging.EventTypeSurgeChanged when the surge
// level differs from the previous cycle's (spec §7 — DOMAIN STACK wiring
// of nats-io/nats.go for C9's fire-and-forget event stream).
func (e *Engine) publishSurgeChange(ctx context.Context, state domain.SurgeState) {
	if e.msgClient == nil {
		return
	}
	if state.Level == e.lastSurge.Level {
		return
	}
	e.msgClient.Publish(ctx, messaging.EventTypeSurgeChanged, messaging.SurgeChangedEvent{
		PreviousLevel:     string(e.lastSurge.Level),
		Level:             string(state.Level),
		DemandSupplyRatio: state.DemandSupplyRatio,
		PendingOrderCount: state.PendingOrderCount,
	})
}

func (e *Engine) publishAssignmentCreated(ctx context.Context, orderID, riderID string, sequenceIndex int, cycleID string) {
	if e.msgClient == nil {
		return
	}
	e.msgClient.Publish(ctx, messaging.EventTypeAssignmentCreated, messaging.AssignmentCreatedEvent{
		OrderID: orderID, RiderID: riderID, SequenceIndex: sequenceIndex, CycleID: cycleID,
	})
}

func (e *Engine) publishUnassignable(ctx context.Context, orderID, cycleID, failureReason string) {
	if e.msgClient == nil {
		return
	}
	e.msgClient.Publish(ctx, messaging.EventTypeOrderUnassignable, messaging.OrderUnassignableEvent{
		OrderID: orderID, CycleID: cycleID, FailureReason: failureReason,
	})
}

func (e *Engine) publishOrderReassigned(ctx context.Context, outcome reassign.Outcome) {
	if e.msgClient == nil {
		return
	}
	e.msgClient.Publish(ctx, messaging.EventTypeOrderReassigned, messaging.OrderReassignedEvent{
		OrderID:     outcome.OrderID,
		TriggerKind: outcome.Trigger,
	})
}

func (e *Engine) publishCycleCompleted(ctx context.Context, result AssignmentCycleResult) {
	if e.msgClient == nil {
		return
	}
	e.msgClient.Publish(ctx, messaging.EventTypeCycleCompleted, messaging.CycleCompletedEvent{
		CycleID:           result.CycleID,
		SuccessCount:      result.SuccessCount,
		FailureCount:      result.FailureCount,
		AvgCost:           result.Metrics.AvgCost,
		TotalSlaSlackMins: result.Metrics.TotalSlaSlackMinutes,
		Algorithm:         result.Metrics.AlgorithmUsed,
	})
}
