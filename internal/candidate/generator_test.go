package candidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
)

func testRadii(t *testing.T) (config.CandidateRadii, config.FatigueConfig) {
	t.Helper()
	cfg, err := config.NewBuilder().Build()
	require.NoError(t, err)
	return cfg.Radii, cfg.Fatigue
}

func baseOrder(now time.Time) *domain.Order {
	return &domain.Order{
		ID:          "order-1",
		Status:      domain.OrderPendingAssignment,
		CreatedAt:   now,
		SLADeadline: now.Add(60 * time.Minute),
		Pickup: domain.PickupInfo{
			Location: domain.Location{Lat: 12.9716, Lng: 77.5946},
		},
		Delivery: domain.DeliveryInfo{
			Location: domain.Location{Lat: 12.975, Lng: 77.601},
		},
		Payload: domain.Payload{
			WeightKg: 1, VolumeLiters: 1, ItemCount: 1,
			VehicleRequirement: domain.VehicleRequirementAny,
		},
		Priority: domain.PriorityNormal,
	}
}

func baseRider(now time.Time) *domain.Rider {
	return &domain.Rider{
		ID:       "rider-1",
		Status:   domain.RiderActive,
		Location: domain.Location{Lat: 12.972, Lng: 77.591},
		Vehicle: domain.Vehicle{
			Type: domain.VehicleBike, MaxWeightKg: 10, MaxVolumeLiters: 10, MaxItems: 5,
			Capabilities: map[domain.Capability]bool{domain.CapabilityStandard: true},
		},
		Shift: domain.Shift{StartTime: now.Add(-time.Hour), EndTime: now.Add(4 * time.Hour)},
	}
}

func TestGenerateCandidates_TrivialMatch(t *testing.T) {
	radii, fatigue := testRadii(t)
	g := NewGenerator(radii, fatigue)
	now := time.Now()

	order := baseOrder(now)
	rider := baseRider(now)
	riders := map[string]*domain.Rider{rider.ID: rider}

	result := g.GenerateCandidates(order, riders, now)
	assert.Empty(t, result.FailureReason)
	assert.Contains(t, result.CandidateRiderIDs, "rider-1")
}

func TestGenerateCandidates_NoRidersInRadius(t *testing.T) {
	radii, fatigue := testRadii(t)
	g := NewGenerator(radii, fatigue)
	now := time.Now()

	order := baseOrder(now)
	rider := baseRider(now)
	rider.Location = domain.Location{Lat: 40, Lng: 40}
	riders := map[string]*domain.Rider{rider.ID: rider}

	result := g.GenerateCandidates(order, riders, now)
	assert.Equal(t, FailureNoRidersInServiceRadius, result.FailureReason)
}

func TestGenerateCandidates_HeavyPayloadFailsCapacity(t *testing.T) {
	radii, fatigue := testRadii(t)
	g := NewGenerator(radii, fatigue)
	now := time.Now()

	order := baseOrder(now)
	order.Payload.WeightKg = 1000
	rider := baseRider(now)
	riders := map[string]*domain.Rider{rider.ID: rider}

	result := g.GenerateCandidates(order, riders, now)
	assert.Equal(t, FailureAllRidersFailedConstraints, result.FailureReason)
}

func TestGenerateCandidates_OfflineRiderExcluded(t *testing.T) {
	radii, fatigue := testRadii(t)
	g := NewGenerator(radii, fatigue)
	now := time.Now()

	order := baseOrder(now)
	rider := baseRider(now)
	rider.Status = domain.RiderOffline
	riders := map[string]*domain.Rider{rider.ID: rider}

	result := g.GenerateCandidates(order, riders, now)
	assert.Equal(t, FailureAllRidersFailedConstraints, result.FailureReason)
}

func TestGenerateCandidates_FatigueLimitBoundary(t *testing.T) {
	radii, fatigue := testRadii(t)
	g := NewGenerator(radii, fatigue)
	now := time.Now()

	order := baseOrder(now)
	failing := baseRider(now)
	failing.ID = "rider-fatigued"
	failing.Shift.ContinuousDrivingMinutes = fatigue.MaxContinuousDrivingMinutes

	passing := baseRider(now)
	passing.ID = "rider-fresh"
	passing.Shift.ContinuousDrivingMinutes = fatigue.MaxContinuousDrivingMinutes - 1

	riders := map[string]*domain.Rider{failing.ID: failing, passing.ID: passing}
	result := g.GenerateCandidates(order, riders, now)
	assert.NotContains(t, result.CandidateRiderIDs, "rider-fatigued")
	assert.Contains(t, result.CandidateRiderIDs, "rider-fresh")
}

func TestGenerateCandidates_RefrigeratedRequiresColdChainCapability(t *testing.T) {
	radii, fatigue := testRadii(t)
	g := NewGenerator(radii, fatigue)
	now := time.Now()

	order := baseOrder(now)
	order.Payload.VehicleRequirement = domain.VehicleRequirementRefrigerated
	rider := baseRider(now)
	riders := map[string]*domain.Rider{rider.ID: rider}

	result := g.GenerateCandidates(order, riders, now)
	assert.Equal(t, FailureAllRidersFailedConstraints, result.FailureReason)

	rider.Vehicle.Capabilities[domain.CapabilityColdChain] = true
	result = g.GenerateCandidates(order, riders, now)
	assert.Contains(t, result.CandidateRiderIDs, "rider-1")
}

func TestGenerateCandidates_SLAInfeasibleExcludesRider(t *testing.T) {
	radii, fatigue := testRadii(t)
	g := NewGenerator(radii, fatigue)
	now := time.Now()

	order := baseOrder(now)
	order.SLADeadline = now.Add(time.Second) // impossible to reach in time
	rider := baseRider(now)
	riders := map[string]*domain.Rider{rider.ID: rider}

	result := g.GenerateCandidates(order, riders, now)
	assert.Equal(t, FailureAllRidersFailedConstraints, result.FailureReason)
}

func TestGenerateCandidates_CandidateListMonotonicInRadius(t *testing.T) {
	_, fatigue := testRadii(t)
	now := time.Now()
	order := baseOrder(now)

	near := baseRider(now)
	near.ID = "near"
	mid := baseRider(now)
	mid.ID = "mid"
	mid.Location = domain.Location{Lat: 13.0, Lng: 77.6}
	far := baseRider(now)
	far.ID = "far"
	far.Location = domain.Location{Lat: 13.1, Lng: 77.7}

	riders := map[string]*domain.Rider{near.ID: near, mid.ID: mid, far.ID: far}

	small := NewGenerator(config.CandidateRadii{InitialKm: 1, ExpandedKm: 2, MaxKm: 3, RadiusExpansionMinutesThreshold: 20}, fatigue)
	large := NewGenerator(config.CandidateRadii{InitialKm: 1, ExpandedKm: 2, MaxKm: 50, RadiusExpansionMinutesThreshold: 20}, fatigue)

	smallResult := small.GenerateCandidates(order, riders, now)
	largeResult := large.GenerateCandidates(order, riders, now)
	assert.LessOrEqual(t, len(smallResult.CandidateRiderIDs), len(largeResult.CandidateRiderIDs))
}
