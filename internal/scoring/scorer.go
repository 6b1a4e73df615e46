// Package scoring implements the six-factor weighted cost function used to
// rank (order, rider) pairs before assignment. Grounded on the weighted
// multi-factor scoring config pattern in the OmniRoute allocation engine
// retrieved alongside the teacher, and on internal/risk/calculator.go for
// the "several independent factors combined into one score" shape.
package scoring

import (
	"context"
	"math"
	"time"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/eta"
	"github.com/terminal-bench/dispatchengine/internal/geo"
)

// deliveryServiceMinutes is the fixed delivery-service-time term used in
// the insertion-cost detour penalty (spec §4.4).
const deliveryServiceMinutes = 10.0

// Scorer computes per-(order,rider) cost.
type Scorer struct {
	weights config.ScoringWeights
	sla     config.SLAConfig
	eta     *eta.Model
}

// NewScorer builds a Scorer from validated configuration and an ETA model.
func NewScorer(weights config.ScoringWeights, sla config.SLAConfig, etaModel *eta.Model) *Scorer {
	return &Scorer{weights: weights, sla: sla, eta: etaModel}
}

// ScoreAssignment computes the weighted cost and its per-factor breakdown
// for one (order, rider) pair (spec §4.4).
func (s *Scorer) ScoreAssignment(order *domain.Order, rider *domain.Rider, now time.Time) domain.CostBreakdown {
	timeCost := s.timeCost(order, rider, now)
	slaRiskCost := s.slaRiskCost(order, rider, now)
	distanceCost := clamp01(geo.Distance(rider.Location, order.Pickup.Location) / 20)
	batchDisruptionCost := batchDisruptionCost(rider)
	workloadCost := workloadCost(rider)
	affinityCost := affinityCost(order, rider)

	breakdown := domain.CostBreakdown{
		TimeCost:            timeCost,
		SLARiskCost:         slaRiskCost,
		DistanceCost:        distanceCost,
		BatchDisruptionCost: batchDisruptionCost,
		WorkloadCost:        workloadCost,
		AffinityCost:        affinityCost,
	}
	breakdown.Total = s.weights.Time*timeCost +
		s.weights.SLARisk*slaRiskCost +
		s.weights.Distance*distanceCost +
		s.weights.BatchDisruption*batchDisruptionCost +
		s.weights.Workload*workloadCost +
		s.weights.Affinity*affinityCost
	return breakdown
}

func (s *Scorer) timeCost(order *domain.Order, rider *domain.Rider, now time.Time) float64 {
	if len(rider.CurrentAssignments) == 0 {
		etaPickup := s.eta.EstimateETA(context.Background(), rider.Location, order.Pickup.Location, now, rider.ID, "")
		etaDelivery := s.eta.EstimateETA(context.Background(), order.Pickup.Location, order.Delivery.Location, now, rider.ID, "")
		total := float64(etaPickup.EstimatedDurationMinutes + etaDelivery.EstimatedDurationMinutes)
		return clamp01(total / 120)
	}
	return clamp01(s.insertionCostMinutes(order, rider) / 60)
}

// insertionCostMinutes finds the cheapest position to insert the order's
// pickup into the rider's current route (spec §4.4 "Insertion cost").
func (s *Scorer) insertionCostMinutes(order *domain.Order, rider *domain.Rider) float64 {
	route := rider.CurrentRoute
	if len(route) == 0 {
		return deliveryServiceMinutes
	}

	pickup := order.Pickup.Location
	best := math.Inf(1)
	for insertPos := 0; insertPos < len(route); insertPos++ {
		var prev domain.Location
		if insertPos == 0 {
			prev = rider.Location
		} else {
			prev = route[insertPos-1].Location
		}
		next := route[insertPos].Location

		detour := geo.Distance(prev, pickup) + geo.Distance(pickup, next) - geo.Distance(prev, next)
		if detour < best {
			best = detour
		}
	}
	return best + deliveryServiceMinutes
}

func (s *Scorer) slaRiskCost(order *domain.Order, rider *domain.Rider, now time.Time) float64 {
	estimate := s.eta.EstimateETA(context.Background(), rider.Location, order.Delivery.Location, now, rider.ID, "")
	slackMinutes := order.SLADeadline.Sub(now).Minutes() - float64(estimate.EstimatedDurationMinutes)
	risk := sigmoid(-slackMinutes / s.sla.SLARiskSigmoidScale)
	return clamp01(risk)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func batchDisruptionCost(rider *domain.Rider) float64 {
	if len(rider.CurrentRoute) == 0 {
		return 0
	}
	return math.Min(1.0, 0.2*float64(len(rider.CurrentAssignments)))
}

func workloadCost(rider *domain.Rider) float64 {
	weightRatio := 0.0
	if rider.Vehicle.MaxWeightKg > 0 {
		weightRatio = rider.Load.WeightKg / rider.Vehicle.MaxWeightKg
	}
	itemRatio := 0.0
	if rider.Vehicle.MaxItems > 0 {
		itemRatio = float64(rider.Load.ItemCount) / float64(rider.Vehicle.MaxItems)
	}
	loadScore := 0.7*weightRatio + 0.3*itemRatio
	if loadScore < 0.7 {
		return 0
	}
	return math.Min(1.0, (loadScore-0.7)/0.3)
}

func affinityCost(order *domain.Order, rider *domain.Rider) float64 {
	zone := eta.ZoneKey(order.Pickup.Location)
	zoneFamiliarity := rider.Performance.ZoneFamiliarityScores[zone]
	speedBonus := math.Max(0, rider.Performance.AvgSpeedMultiplier-0.9)
	affinity := 0.5*zoneFamiliarity + 0.3*rider.Performance.AvgDeliverySuccessRate + 0.2*speedBonus
	return -affinity
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
