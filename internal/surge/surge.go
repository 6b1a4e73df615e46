// Package surge implements demand/supply ratio classification, the
// per-level scoring/batch/radius modifiers, and preposition-target
// selection (spec §4.7). Grounded on the teacher's threshold-classifier
// style in internal/risk (ratio bands mapped to a small enum) and on the
// candidate generator's own bucket-keying idiom for the preposition grid.
package surge

import (
	"math"
	"sort"
	"time"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
)

// heldOrderSlaBufferMinutes is the deadline buffer past which a
// normal-priority order is deferred during hard surge (spec §4.7).
const heldOrderSlaBufferMinutes = 30.0

// bucketDegrees is the lat/lng preposition-clustering grid size (spec §4.7).
const bucketDegrees = 0.5

// Detector classifies demand/supply pressure and derives the orchestrator
// modifiers for each surge level.
type Detector struct {
	cfg config.SurgeConfig
}

// NewDetector builds a Detector from validated surge configuration.
func NewDetector(cfg config.SurgeConfig) *Detector {
	return &Detector{cfg: cfg}
}

// ActiveBatchCapacity is the maximum vehicle.maxItems over the current
// rider population (spec §4.7).
func ActiveBatchCapacity(riders map[string]*domain.Rider) int {
	max := 0
	for _, rider := range riders {
		if rider.Vehicle.MaxItems > max {
			max = rider.Vehicle.MaxItems
		}
	}
	return max
}

// DetectSurge classifies the current demand/supply ratio (spec §4.7).
func (d *Detector) DetectSurge(pendingOrders, availableRiders, activeBatchCapacity int) domain.SurgeState {
	availableCapacity := availableRiders * activeBatchCapacity
	denom := availableCapacity
	if denom < 1 {
		denom = 1
	}
	ratio := float64(pendingOrders) / float64(denom)

	level, actions := d.classify(ratio)

	return domain.SurgeState{
		Level:               level,
		DemandSupplyRatio:   ratio,
		PendingOrderCount:   pendingOrders,
		AvailableCapacity:   availableCapacity,
		RecommendedActions:  actions,
	}
}

func (d *Detector) classify(ratio float64) (domain.SurgeLevel, []string) {
	switch {
	case ratio < d.cfg.SoftRatio:
		return domain.SurgeNormal, nil
	case ratio < d.cfg.HardRatio:
		return domain.SurgeSoft, []string{
			domain.ActionIncreaseBatchSizesBy1,
			domain.ActionExpandCandidateRadius50Pct,
			domain.ActionReduceFairnessWeight,
		}
	case ratio < d.cfg.CrisisRatio:
		return domain.SurgeHard, []string{
			domain.ActionEnablePrepositioning,
			domain.ActionHoldSLAOrders,
			domain.ActionIncreaseBatchSizes,
			domain.ActionExpandSearchRadius,
		}
	default:
		return domain.SurgeCrisis, []string{
			domain.ActionEscalateSLAWindows,
			domain.ActionNotifyCustomers,
			domain.ActionActivateEmergencyProtocol,
			domain.ActionRequestAdditionalSupply,
		}
	}
}

// ApplyWeightModifiers returns the scoring weights adjusted for the given
// surge level (spec §4.7 "Surge-level modifier operations"). Levels other
// than soft/hard return weights unchanged.
func ApplyWeightModifiers(level domain.SurgeLevel, weights config.ScoringWeights) config.ScoringWeights {
	switch level {
	case domain.SurgeSoft:
		weights.Workload *= 0.5
		weights.SLARisk = math.Min(1, weights.SLARisk*1.2)
	case domain.SurgeHard:
		weights.Workload = 0
		weights.SLARisk = 0.5
		weights.Time = 0.3
		weights.Distance = 0.2
	}
	return weights
}

// ApplyBatchModifiers returns batch sizes increased by the configured
// increment (soft) or twice the increment (hard).
func ApplyBatchModifiers(level domain.SurgeLevel, sizes config.BatchSizes, surgeCfg config.SurgeConfig) config.BatchSizes {
	switch level {
	case domain.SurgeSoft:
		sizes.Bike += surgeCfg.BatchSizeIncrement
		sizes.Car += surgeCfg.BatchSizeIncrement
		sizes.Van += surgeCfg.BatchSizeIncrement
	case domain.SurgeHard:
		sizes.Bike += 2 * surgeCfg.BatchSizeIncrement
		sizes.Car += 2 * surgeCfg.BatchSizeIncrement
		sizes.Van += 2 * surgeCfg.BatchSizeIncrement
	}
	return sizes
}

// ApplyRadiusModifiers scales candidate radii by the configured expansion
// factor (soft) or its square (hard).
func ApplyRadiusModifiers(level domain.SurgeLevel, radii config.CandidateRadii, surgeCfg config.SurgeConfig) config.CandidateRadii {
	var multiplier float64
	switch level {
	case domain.SurgeSoft:
		multiplier = surgeCfg.RadiusExpansionFactor
	case domain.SurgeHard:
		multiplier = surgeCfg.RadiusExpansionFactor * surgeCfg.RadiusExpansionFactor
	default:
		return radii
	}
	radii.InitialKm *= multiplier
	radii.ExpandedKm *= multiplier
	radii.MaxKm *= multiplier
	return radii
}

// PrepositionTarget pairs a demand cluster centroid with an idle rider to
// send toward it ahead of demand (spec §4.7).
type PrepositionTarget struct {
	BucketCentroid domain.Location
	OrderCount     int
	RiderID        string
}

// HardSurgeOutcome is the hard-surge-only output: orders deferred this
// cycle and preposition assignments for idle riders (spec §4.7).
type HardSurgeOutcome struct {
	HeldOrderIDs       []string
	PrepositionTargets []PrepositionTarget
}

// ComputeHardSurgeOutcome derives held orders and preposition targets for
// hard surge. No-op for any other level.
func ComputeHardSurgeOutcome(level domain.SurgeLevel, pendingOrders []*domain.Order, riders map[string]*domain.Rider, now time.Time) HardSurgeOutcome {
	if level != domain.SurgeHard {
		return HardSurgeOutcome{}
	}
	return HardSurgeOutcome{
		HeldOrderIDs:       heldOrders(pendingOrders, now),
		PrepositionTargets: prepositionTargets(pendingOrders, riders),
	}
}

func heldOrders(orders []*domain.Order, now time.Time) []string {
	cutoff := now.Add(heldOrderSlaBufferMinutes * time.Minute)
	var held []string
	for _, order := range orders {
		if order.Priority == domain.PriorityNormal && order.SLADeadline.After(cutoff) {
			held = append(held, order.ID)
		}
	}
	return held
}

type bucket struct {
	latBucket, lngBucket float64
	count                int
	sumLat, sumLng       float64
}

func prepositionTargets(orders []*domain.Order, riders map[string]*domain.Rider) []PrepositionTarget {
	buckets := make(map[[2]float64]*bucket)
	for _, order := range orders {
		loc := order.Pickup.Location
		key := [2]float64{
			math.Floor(loc.Lat/bucketDegrees) * bucketDegrees,
			math.Floor(loc.Lng/bucketDegrees) * bucketDegrees,
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{latBucket: key[0], lngBucket: key[1]}
			buckets[key] = b
		}
		b.count++
		b.sumLat += loc.Lat
		b.sumLng += loc.Lng
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		if ordered[i].latBucket != ordered[j].latBucket {
			return ordered[i].latBucket < ordered[j].latBucket
		}
		return ordered[i].lngBucket < ordered[j].lngBucket
	})

	idleRiderIDs := make([]string, 0)
	for id, rider := range riders {
		if rider.Status == domain.RiderActive && len(rider.CurrentAssignments) == 0 {
			idleRiderIDs = append(idleRiderIDs, id)
		}
	}
	sort.Strings(idleRiderIDs)

	n := len(ordered)
	if len(idleRiderIDs) < n {
		n = len(idleRiderIDs)
	}

	targets := make([]PrepositionTarget, 0, n)
	for i := 0; i < n; i++ {
		b := ordered[i]
		targets = append(targets, PrepositionTarget{
			BucketCentroid: domain.Location{Lat: b.sumLat / float64(b.count), Lng: b.sumLng / float64(b.count)},
			OrderCount:     b.count,
			RiderID:        idleRiderIDs[i],
		})
	}
	return targets
}
