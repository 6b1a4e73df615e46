// Package candidate implements the two-phase candidate-rider search: an
// adaptive-radius geographic filter followed by six hard-constraint
// checks. Grounded on the teacher's internal/risk/calculator.go (several
// independent boolean checks accumulated into a result) and internal/geo
// for the underlying distance math.
package candidate

import (
	"time"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/geo"
)

// Failure reason tokens (spec §4.3).
const (
	FailureNoRidersInServiceRadius    = "no_riders_in_service_radius"
	FailureAllRidersFailedConstraints = "all_riders_failed_constraints"
)

// Hard-constraint check identifiers (spec §4.3).
const (
	CheckCapacityExceeded       = "capacity_exceeded"
	CheckVehicleIncompatible    = "vehicle_incompatible"
	CheckShiftEndTime           = "shift_end_time"
	CheckFatigueLimitExceeded   = "fatigue_limit_exceeded"
	CheckSLAInfeasible          = "sla_infeasible"
	CheckRiderOfflineOrUnavail  = "rider_offline_or_unavailable"
)

// Result is the output of GenerateCandidates (spec §4.3).
type Result struct {
	OrderID           string
	CandidateRiderIDs []string
	FailureReason     string
}

// Generator runs candidate generation against a live rider population.
type Generator struct {
	radii   config.CandidateRadii
	fatigue config.FatigueConfig
}

// NewGenerator builds a Generator from validated configuration sections.
func NewGenerator(radii config.CandidateRadii, fatigue config.FatigueConfig) *Generator {
	return &Generator{radii: radii, fatigue: fatigue}
}

// GenerateCandidates runs the two-phase search for a single order.
func (g *Generator) GenerateCandidates(order *domain.Order, riders map[string]*domain.Rider, now time.Time) Result {
	result := Result{OrderID: order.ID}

	survivorIDs := g.geographicFilter(order, riders, now)
	if len(survivorIDs) == 0 {
		result.FailureReason = FailureNoRidersInServiceRadius
		return result
	}

	var candidates []string
	for _, riderID := range survivorIDs {
		rider := riders[riderID]
		if len(g.failedChecks(order, rider, now)) == 0 {
			candidates = append(candidates, riderID)
		}
	}

	if len(candidates) == 0 {
		result.FailureReason = FailureAllRidersFailedConstraints
		return result
	}

	result.CandidateRiderIDs = candidates
	return result
}

// geographicFilter implements the adaptive radius expansion (spec §4.3).
func (g *Generator) geographicFilter(order *domain.Order, riders map[string]*domain.Rider, now time.Time) []string {
	locations := make(map[string]domain.Location, len(riders))
	for id, r := range riders {
		locations[id] = r.Location
	}
	target := order.Pickup.Location

	slaMinutesRemaining := order.SLAMinutesRemaining(now)
	if slaMinutesRemaining < g.radii.RadiusExpansionMinutesThreshold {
		return geo.WithinRadius(locations, target, g.radii.MaxKm)
	}

	if ids := geo.WithinRadius(locations, target, g.radii.InitialKm); len(ids) > 0 {
		return ids
	}
	if ids := geo.WithinRadius(locations, target, g.radii.ExpandedKm); len(ids) > 0 {
		return ids
	}
	return geo.WithinRadius(locations, target, g.radii.MaxKm)
}

// failedChecks runs the six hard-constraint checks, returning the
// identifiers of every failed one.
func (g *Generator) failedChecks(order *domain.Order, rider *domain.Rider, now time.Time) []string {
	var failed []string

	if !hasCapacity(order, rider) {
		failed = append(failed, CheckCapacityExceeded)
	}
	if !vehicleCompatible(order, rider) {
		failed = append(failed, CheckVehicleIncompatible)
	}
	if !g.withinShiftEnd(order, rider, now) {
		failed = append(failed, CheckShiftEndTime)
	}
	if !g.withinFatigueLimits(rider) {
		failed = append(failed, CheckFatigueLimitExceeded)
	}
	if !slaFeasible(order, rider, now) {
		failed = append(failed, CheckSLAInfeasible)
	}
	if !rider.Status.IsCandidateEligible() {
		failed = append(failed, CheckRiderOfflineOrUnavail)
	}

	return failed
}

func hasCapacity(order *domain.Order, rider *domain.Rider) bool {
	return rider.RemainingWeightKg() >= order.Payload.WeightKg &&
		rider.RemainingVolumeLiters() >= order.Payload.VolumeLiters &&
		rider.RemainingItems() >= order.Payload.ItemCount
}

func vehicleCompatible(order *domain.Order, rider *domain.Rider) bool {
	switch order.Payload.VehicleRequirement {
	case domain.VehicleRequirementBike:
		if rider.Vehicle.Type != domain.VehicleBike {
			return false
		}
	case domain.VehicleRequirementCar:
		if rider.Vehicle.Type != domain.VehicleCar {
			return false
		}
	case domain.VehicleRequirementVan:
		if rider.Vehicle.Type != domain.VehicleVan {
			return false
		}
	case domain.VehicleRequirementRefrigerated:
		if !rider.Vehicle.HasCapability(domain.CapabilityColdChain) {
			return false
		}
	case domain.VehicleRequirementAny:
		// no vehicle-type constraint
	}

	if order.Payload.Fragile && !rider.Vehicle.HasCapability(domain.CapabilityFragile) {
		return false
	}
	if order.Payload.RequiresColdChain && !rider.Vehicle.HasCapability(domain.CapabilityColdChain) {
		return false
	}
	return true
}

// withinShiftEnd estimates the round trip (rider->pickup + pickup wait +
// pickup->delivery + 3 min delivery service) and requires at least 5
// minutes of shift remaining afterward (spec §4.3 check 3).
func (g *Generator) withinShiftEnd(order *domain.Order, rider *domain.Rider, now time.Time) bool {
	toPickupMinutes := float64(geo.TravelTimeMinutes(rider.Location, order.Pickup.Location, geo.DefaultAvgSpeedKmh, geo.DefaultTrafficFactor))
	toDeliveryMinutes := float64(geo.TravelTimeMinutes(order.Pickup.Location, order.Delivery.Location, geo.DefaultAvgSpeedKmh, geo.DefaultTrafficFactor))
	roundTrip := toPickupMinutes + float64(order.Pickup.EstimatedPickupWaitMinutes) + toDeliveryMinutes + 3

	estimatedFinish := now.Add(time.Duration(roundTrip) * time.Minute)
	remaining := rider.Shift.EndTime.Sub(estimatedFinish).Minutes()
	return remaining >= 5
}

func (g *Generator) withinFatigueLimits(rider *domain.Rider) bool {
	return rider.Shift.ContinuousDrivingMinutes < g.fatigue.MaxContinuousDrivingMinutes &&
		rider.Shift.TotalShiftDrivingMinutes < g.fatigue.MaxShiftDrivingMinutes
}

// slaFeasible checks the optimistic minimum trip time (no traffic, 25
// km/h) against the order's SLA deadline (spec §4.3 check 5).
func slaFeasible(order *domain.Order, rider *domain.Rider, now time.Time) bool {
	toPickup := geo.TravelTimeMinutes(rider.Location, order.Pickup.Location, geo.DefaultAvgSpeedKmh, 1.0)
	toDelivery := geo.TravelTimeMinutes(order.Pickup.Location, order.Delivery.Location, geo.DefaultAvgSpeedKmh, 1.0)
	optimisticMinutes := toPickup + toDelivery
	eta := now.Add(time.Duration(optimisticMinutes) * time.Minute)
	return !eta.After(order.SLADeadline)
}
