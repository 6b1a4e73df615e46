// Package batch implements per-rider order sequencing: cheapest-insertion
// construction followed by 2-opt improvement, capacity-checked. Grounded
// on the nearest-neighbor seeding and 2-opt segment-reversal pattern in
// the fleettracker route optimizer retrieved alongside the teacher.
package batch

import (
	"errors"
	"math"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/geo"
)

// ErrBatchNotFeasible is returned when the batch exceeds the rider's
// vehicle capacity or the configured max batch size (spec §4.5 — "the
// caller treats rejection as batch not feasible").
var ErrBatchNotFeasible = errors.New("batch not feasible")

const (
	pickupTravelMinutes    = 10.0
	deliveryServiceMinutes = 3.0
	interOrderHopMinutes   = 10.0
)

// Result is the output of OptimizeBatch (spec §4.5).
type Result struct {
	Stops                 []domain.RouteStop
	TotalDistanceKm        float64
	TotalDurationMinutes   int
	OrdersSequence         []string
}

// Optimizer sequences a rider's batch of orders.
type Optimizer struct {
	batchSizes           config.BatchSizes
	twoOptIterationLimit int
}

// NewOptimizer builds an Optimizer from validated batching configuration.
func NewOptimizer(batchSizes config.BatchSizes, twoOptIterationLimit int) *Optimizer {
	return &Optimizer{batchSizes: batchSizes, twoOptIterationLimit: twoOptIterationLimit}
}

// OptimizeBatch sequences orders for a rider (spec §4.5).
func (o *Optimizer) OptimizeBatch(rider *domain.Rider, orders []*domain.Order) (Result, error) {
	maxBatch := o.batchSizes.ByVehicle(string(rider.Vehicle.Type))
	if len(orders) > maxBatch {
		return Result{}, ErrBatchNotFeasible
	}
	if !capacityFits(rider, orders) {
		return Result{}, ErrBatchNotFeasible
	}
	if len(orders) == 0 {
		return Result{}, nil
	}

	byID := make(map[string]*domain.Order, len(orders))
	for _, ord := range orders {
		byID[ord.ID] = ord
	}

	sequence := o.cheapestInsertion(rider, orders)
	sequence = o.twoOptImprove(rider, sequence, byID)

	return o.buildResult(rider, sequence, byID), nil
}

func capacityFits(rider *domain.Rider, orders []*domain.Order) bool {
	var weight, volume float64
	var items int
	for _, ord := range orders {
		weight += ord.Payload.WeightKg
		volume += ord.Payload.VolumeLiters
		items += ord.Payload.ItemCount
	}
	return weight <= rider.RemainingWeightKg() &&
		volume <= rider.RemainingVolumeLiters() &&
		items <= rider.RemainingItems()
}

// cheapestInsertion seeds the route with the nearest pickup to the rider,
// then repeatedly inserts the remaining order whose pickup-to-pickup
// triangle detour is smallest (spec §4.5 steps 1-2).
func (o *Optimizer) cheapestInsertion(rider *domain.Rider, orders []*domain.Order) []string {
	remaining := make(map[string]*domain.Order, len(orders))
	for _, ord := range orders {
		remaining[ord.ID] = ord
	}

	seedID := nearestOrderID(rider.Location, remaining)
	sequence := []string{seedID}
	delete(remaining, seedID)

	for len(remaining) > 0 {
		bestOrderID := ""
		bestPos := 0
		bestDetour := math.Inf(1)

		for orderID, ord := range remaining {
			pickup := ord.Pickup.Location
			for pos := 0; pos <= len(sequence); pos++ {
				prev := rider.Location
				if pos > 0 {
					prev = pickupLocation(sequence[pos-1], orders)
				}
				var next domain.Location
				hasNext := pos < len(sequence)
				if hasNext {
					next = pickupLocation(sequence[pos], orders)
				}

				var detour float64
				if hasNext {
					detour = geo.Distance(prev, pickup) + geo.Distance(pickup, next) - geo.Distance(prev, next)
				} else {
					detour = geo.Distance(prev, pickup)
				}

				if detour < bestDetour {
					bestDetour = detour
					bestOrderID = orderID
					bestPos = pos
				}
			}
		}

		sequence = insertAt(sequence, bestPos, bestOrderID)
		delete(remaining, bestOrderID)
	}

	return sequence
}

func insertAt(sequence []string, pos int, orderID string) []string {
	result := make([]string, 0, len(sequence)+1)
	result = append(result, sequence[:pos]...)
	result = append(result, orderID)
	result = append(result, sequence[pos:]...)
	return result
}

func nearestOrderID(from domain.Location, orders map[string]*domain.Order) string {
	best := ""
	bestDistance := math.Inf(1)
	for id, ord := range orders {
		d := geo.Distance(from, ord.Pickup.Location)
		if d < bestDistance {
			bestDistance = d
			best = id
		}
	}
	return best
}

func pickupLocation(orderID string, orders []*domain.Order) domain.Location {
	for _, ord := range orders {
		if ord.ID == orderID {
			return ord.Pickup.Location
		}
	}
	return domain.Location{}
}

// twoOptImprove reverses sub-sequences when doing so shortens the total
// pickup-chain distance, restarting the sweep on each improvement, capped
// at twoOptIterationLimit (spec §4.5 step 3).
func (o *Optimizer) twoOptImprove(rider *domain.Rider, sequence []string, byID map[string]*domain.Order) []string {
	iterations := 0
	improved := true
	for improved && iterations < o.twoOptIterationLimit {
		improved = false
		for i := 0; i < len(sequence)-1 && !improved; i++ {
			for j := i + 2; j < len(sequence); j++ {
				iterations++
				if iterations >= o.twoOptIterationLimit {
					return sequence
				}
				candidate := reverseSegment(sequence, i+1, j)
				if pickupChainDistance(rider.Location, candidate, byID) < pickupChainDistance(rider.Location, sequence, byID) {
					sequence = candidate
					improved = true
					break
				}
			}
		}
	}
	return sequence
}

func reverseSegment(sequence []string, i, j int) []string {
	result := make([]string, len(sequence))
	copy(result, sequence)
	for lo, hi := i, j; lo < hi; lo, hi = lo+1, hi-1 {
		result[lo], result[hi] = result[hi], result[lo]
	}
	return result
}

func pickupChainDistance(start domain.Location, sequence []string, byID map[string]*domain.Order) float64 {
	total := 0.0
	current := start
	for _, orderID := range sequence {
		next := byID[orderID].Pickup.Location
		total += geo.Distance(current, next)
		current = next
	}
	return total
}

// buildResult emits, for each order in sequence order, its pickup stop
// then its delivery stop (spec §4.5 step 4), and computes duration per
// the fixed per-order/inter-order model.
func (o *Optimizer) buildResult(rider *domain.Rider, sequence []string, byID map[string]*domain.Order) Result {
	stops := make([]domain.RouteStop, 0, len(sequence)*2)
	totalDistance := 0.0
	current := rider.Location
	idx := 0

	for seqPos, orderID := range sequence {
		ord := byID[orderID]

		totalDistance += geo.Distance(current, ord.Pickup.Location)
		stops = append(stops, domain.RouteStop{
			Type: domain.RouteStopPickup, OrderID: orderID,
			Location: ord.Pickup.Location, SequenceIndex: idx,
		})
		idx++

		totalDistance += geo.Distance(ord.Pickup.Location, ord.Delivery.Location)
		stops = append(stops, domain.RouteStop{
			Type: domain.RouteStopDelivery, OrderID: orderID,
			Location: ord.Delivery.Location, SequenceIndex: idx,
		})
		idx++

		current = ord.Delivery.Location
		_ = seqPos
	}

	totalDuration := 0.0
	for _, orderID := range sequence {
		ord := byID[orderID]
		totalDuration += float64(ord.Pickup.EstimatedPickupWaitMinutes) + pickupTravelMinutes + deliveryServiceMinutes
	}
	if len(sequence) > 1 {
		totalDuration += interOrderHopMinutes * float64(len(sequence)-1)
	}

	return Result{
		Stops:                stops,
		TotalDistanceKm:      totalDistance,
		TotalDurationMinutes: int(math.Round(totalDuration)),
		OrdersSequence:       sequence,
	}
}
