// Package reassign implements reassignment-trigger detection and the
// per-order guards that decide whether a triggered order is actually
// pulled back to pending (spec §4.8). Grounded on the teacher's
// multi-condition trigger evaluation in internal/matching (independent
// boolean conditions accumulated into a typed event list).
package reassign

import (
	"context"
	"time"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/eta"
	"github.com/terminal-bench/dispatchengine/internal/geo"
)

// Trigger kind tokens (spec §4.8).
const (
	TriggerRiderOffline       = "rider_offline"
	TriggerEtaSpike           = "eta_spike"
	TriggerHighPriorityArrival = "high_priority_arrival"
	TriggerNewRiderOnline     = "new_rider_online"
)

// minReassignmentIntervalSeconds is the cooldown enforced by canReassign
// (spec §4.8).
const minReassignmentIntervalSeconds = 30

// highPriorityProximityKm is the radius within which an already-assigned
// normal order's rider is considered close enough to a priority pickup to
// be worth freeing up (spec §4.8).
const highPriorityProximityKm = 3.0

// Trigger is one detected reassignment signal.
type Trigger struct {
	Kind    string
	OrderID string // empty for new_rider_online
	RiderID string // the rider the trigger concerns; set for every kind
}

// DetectTriggers scans state for the four trigger kinds (spec §4.8).
func DetectTriggers(
	orders map[string]*domain.Order,
	riders map[string]*domain.Rider,
	assignments map[string]*domain.Assignment,
	etaModel *eta.Model,
	cfg config.ReassignmentConfig,
	now time.Time,
) []Trigger {
	var triggers []Trigger

	for _, assignment := range assignments {
		if assignment.Status != domain.AssignmentDispatched && assignment.Status != domain.AssignmentAccepted {
			continue
		}
		order, hasOrder := orders[assignment.OrderID]
		if !hasOrder || order.Status != domain.OrderAssigned {
			continue
		}
		rider, hasRider := riders[assignment.RiderID]

		if !hasRider || rider.Status == domain.RiderOffline {
			triggers = append(triggers, Trigger{Kind: TriggerRiderOffline, OrderID: order.ID, RiderID: assignment.RiderID})
			continue
		}

		recomputed := etaModel.EstimateETA(context.Background(), rider.Location, order.Delivery.Location, now, rider.ID, "")
		originalMinutes := assignment.EstimatedDeliveryAt.Sub(assignment.AssignedAt).Minutes()
		if float64(recomputed.EstimatedDurationMinutes)-originalMinutes > cfg.TriggerEtaSpikeMinutes {
			triggers = append(triggers, Trigger{Kind: TriggerEtaSpike, OrderID: order.ID, RiderID: rider.ID})
		}
	}

	for _, priorityOrder := range orders {
		if !isArrivingPriorityOrder(priorityOrder, cfg, now) {
			continue
		}
		for _, candidate := range orders {
			if candidate.Priority != domain.PriorityNormal || candidate.Status != domain.OrderAssigned {
				continue
			}
			rider, ok := riders[candidate.AssignedRiderID]
			if !ok {
				continue
			}
			if geo.Distance(rider.Location, priorityOrder.Pickup.Location) <= highPriorityProximityKm {
				triggers = append(triggers, Trigger{Kind: TriggerHighPriorityArrival, OrderID: candidate.ID, RiderID: rider.ID})
			}
		}
	}

	for id, rider := range riders {
		if rider.Status == domain.RiderActive && len(rider.CurrentAssignments) == 0 {
			triggers = append(triggers, Trigger{Kind: TriggerNewRiderOnline, RiderID: id})
		}
	}

	return triggers
}

func isArrivingPriorityOrder(order *domain.Order, cfg config.ReassignmentConfig, now time.Time) bool {
	if order.Priority != domain.PriorityCritical &&
		!(order.Priority == domain.PriorityHigh && order.Status == domain.OrderPendingAssignment) {
		return false
	}
	return order.SLAMinutesRemaining(now) <= cfg.TriggerHighPrioritySlaCutoffMinutes
}

// canReassign enforces the reassignment-attempt and cooldown guard (spec
// §4.8 "canReassign").
func canReassign(order *domain.Order, assignment *domain.Assignment, cfg config.ReassignmentConfig, now time.Time) bool {
	if assignment.ReassignmentCount >= cfg.MaxAttempts {
		return false
	}
	if assignment.LastReassignedAt.IsZero() {
		return true
	}
	return now.Sub(assignment.LastReassignedAt) >= minReassignmentIntervalSeconds*time.Second
}

// isReassignmentSuppressed enforces the proximity guard (spec §4.8
// "isReassignmentSuppressed") — a rider already within the suppression
// radius of the pickup is treated as committed and left undisturbed.
func isReassignmentSuppressed(riderLocation, pickupLocation domain.Location, cfg config.ReassignmentConfig) bool {
	return geo.Distance(riderLocation, pickupLocation)*1000 < cfg.SuppressionRadiusMeters
}

// Outcome is one order actually pulled back to pending_assignment.
type Outcome struct {
	OrderID string
	Trigger string
}

// ApplyTriggers applies the per-order guards to each actionable trigger
// (rider_offline, eta_spike, high_priority_arrival) and, where permitted,
// releases the order for reassignment next cycle, mutating order and
// assignment state in place (spec §4.8 "the orchestrator sets its status
// back to pending_assignment, clears assignedRiderId, and records the
// attempt"). new_rider_online triggers are informational and never acted
// on here.
func ApplyTriggers(
	triggers []Trigger,
	orders map[string]*domain.Order,
	riders map[string]*domain.Rider,
	assignments map[string]*domain.Assignment,
	cfg config.ReassignmentConfig,
	now time.Time,
) []Outcome {
	var outcomes []Outcome

	for _, trigger := range triggers {
		if trigger.Kind == TriggerNewRiderOnline {
			continue
		}
		order, ok := orders[trigger.OrderID]
		if !ok {
			continue
		}
		assignment := findAssignmentForOrder(assignments, order.ID)
		if assignment == nil || !canReassign(order, assignment, cfg, now) {
			continue
		}

		if trigger.Kind != TriggerRiderOffline {
			if rider, ok := riders[assignment.RiderID]; ok {
				if isReassignmentSuppressed(rider.Location, order.Pickup.Location, cfg) {
					continue
				}
			}
		}

		if err := order.ReleaseForReassignment(); err != nil {
			continue
		}
		assignment.ReassignmentCount++
		assignment.LastReassignedAt = now
		assignment.Status = domain.AssignmentReassigned

		if rider, ok := riders[assignment.RiderID]; ok {
			rider.CurrentAssignments = removeOrderID(rider.CurrentAssignments, order.ID)
		}

		outcomes = append(outcomes, Outcome{OrderID: order.ID, Trigger: trigger.Kind})
	}

	return outcomes
}

func findAssignmentForOrder(assignments map[string]*domain.Assignment, orderID string) *domain.Assignment {
	for _, a := range assignments {
		if a.OrderID == orderID && (a.Status == domain.AssignmentDispatched || a.Status == domain.AssignmentAccepted) {
			return a
		}
	}
	return nil
}

func removeOrderID(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
