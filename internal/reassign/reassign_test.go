package reassign

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
	"github.com/terminal-bench/dispatchengine/internal/eta"
)

func testReassignConfig(t *testing.T) config.ReassignmentConfig {
	t.Helper()
	cfg, err := config.NewBuilder().Build()
	require.NoError(t, err)
	return cfg.Reassignment
}

func testEtaModel() *eta.Model {
	return eta.NewModel(config.ETAConfig{ETACacheMinutes: 10}, eta.WithRandSource(rand.New(rand.NewSource(1))))
}

func TestDetectTriggers_RiderOfflineFlagsAssignedOrder(t *testing.T) {
	now := time.Now()
	orders := map[string]*domain.Order{
		"o1": {ID: "o1", Status: domain.OrderAssigned, AssignedRiderID: "r1"},
	}
	riders := map[string]*domain.Rider{
		"r1": {ID: "r1", Status: domain.RiderOffline},
	}
	assignments := map[string]*domain.Assignment{
		"a1": {OrderID: "o1", RiderID: "r1", Status: domain.AssignmentDispatched},
	}

	triggers := DetectTriggers(orders, riders, assignments, testEtaModel(), testReassignConfig(t), now)

	found := false
	for _, tr := range triggers {
		if tr.Kind == TriggerRiderOffline && tr.OrderID == "o1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetectTriggers_MissingRiderFlagsOffline(t *testing.T) {
	now := time.Now()
	orders := map[string]*domain.Order{
		"o1": {ID: "o1", Status: domain.OrderAssigned, AssignedRiderID: "ghost"},
	}
	assignments := map[string]*domain.Assignment{
		"a1": {OrderID: "o1", RiderID: "ghost", Status: domain.AssignmentDispatched},
	}

	triggers := DetectTriggers(orders, map[string]*domain.Rider{}, assignments, testEtaModel(), testReassignConfig(t), now)
	require.Len(t, triggers, 1)
	assert.Equal(t, TriggerRiderOffline, triggers[0].Kind)
}

func TestDetectTriggers_NewRiderOnlineIsHintOnly(t *testing.T) {
	now := time.Now()
	riders := map[string]*domain.Rider{
		"idle": {ID: "idle", Status: domain.RiderActive},
	}
	triggers := DetectTriggers(map[string]*domain.Order{}, riders, map[string]*domain.Assignment{}, testEtaModel(), testReassignConfig(t), now)
	require.Len(t, triggers, 1)
	assert.Equal(t, TriggerNewRiderOnline, triggers[0].Kind)
	assert.Empty(t, triggers[0].OrderID)
}

func TestDetectTriggers_HighPriorityArrivalFlagsNearbyNormalOrder(t *testing.T) {
	now := time.Now()
	pickup := domain.Location{Lat: 12.97, Lng: 77.59}
	orders := map[string]*domain.Order{
		"urgent": {
			ID: "urgent", Priority: domain.PriorityCritical, Status: domain.OrderPendingAssignment,
			SLADeadline: now.Add(10 * time.Minute), Pickup: domain.PickupInfo{Location: pickup},
		},
		"normal": {
			ID: "normal", Priority: domain.PriorityNormal, Status: domain.OrderAssigned,
			AssignedRiderID: "r1",
		},
	}
	riders := map[string]*domain.Rider{
		"r1": {ID: "r1", Status: domain.RiderOnDelivery, Location: domain.Location{Lat: 12.971, Lng: 77.591}},
	}

	triggers := DetectTriggers(orders, riders, map[string]*domain.Assignment{}, testEtaModel(), testReassignConfig(t), now)

	found := false
	for _, tr := range triggers {
		if tr.Kind == TriggerHighPriorityArrival && tr.OrderID == "normal" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCanReassign_RespectsMaxAttemptsAndCooldown(t *testing.T) {
	cfg := testReassignConfig(t)
	now := time.Now()

	order := &domain.Order{}
	assignment := &domain.Assignment{ReassignmentCount: cfg.MaxAttempts}
	assert.False(t, canReassign(order, assignment, cfg, now))

	assignment2 := &domain.Assignment{ReassignmentCount: 0, LastReassignedAt: now.Add(-5 * time.Second)}
	assert.False(t, canReassign(order, assignment2, cfg, now))

	assignment3 := &domain.Assignment{ReassignmentCount: 0, LastReassignedAt: now.Add(-40 * time.Second)}
	assert.True(t, canReassign(order, assignment3, cfg, now))
}

func TestIsReassignmentSuppressed_NearbyRiderIsSuppressed(t *testing.T) {
	cfg := testReassignConfig(t)
	riderLoc := domain.Location{Lat: 12.9716, Lng: 77.5946}
	pickupLoc := domain.Location{Lat: 12.9716, Lng: 77.5947}
	assert.True(t, isReassignmentSuppressed(riderLoc, pickupLoc, cfg))

	farLoc := domain.Location{Lat: 13.5, Lng: 78.2}
	assert.False(t, isReassignmentSuppressed(riderLoc, farLoc, cfg))
}

func TestApplyTriggers_ReleasesOrderAndRecordsAttempt(t *testing.T) {
	now := time.Now()
	cfg := testReassignConfig(t)

	order := &domain.Order{ID: "o1", Status: domain.OrderAssigned, AssignedRiderID: "r1"}
	rider := &domain.Rider{ID: "r1", Location: domain.Location{Lat: 0, Lng: 0}, CurrentAssignments: []string{"o1"}}
	assignment := &domain.Assignment{OrderID: "o1", RiderID: "r1", Status: domain.AssignmentDispatched}

	orders := map[string]*domain.Order{"o1": order}
	riders := map[string]*domain.Rider{"r1": rider}
	assignments := map[string]*domain.Assignment{"a1": assignment}

	triggers := []Trigger{{Kind: TriggerRiderOffline, OrderID: "o1", RiderID: "r1"}}
	outcomes := ApplyTriggers(triggers, orders, riders, assignments, cfg, now)

	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OrderPendingAssignment, order.Status)
	assert.Empty(t, order.AssignedRiderID)
	assert.Equal(t, 1, assignment.ReassignmentCount)
	assert.NotContains(t, rider.CurrentAssignments, "o1")
}

func TestApplyTriggers_SuppressedWhenRiderNearPickup(t *testing.T) {
	now := time.Now()
	cfg := testReassignConfig(t)

	pickup := domain.Location{Lat: 12.9716, Lng: 77.5946}
	order := &domain.Order{ID: "o1", Status: domain.OrderAssigned, AssignedRiderID: "r1", Pickup: domain.PickupInfo{Location: pickup}}
	rider := &domain.Rider{ID: "r1", Location: pickup}
	assignment := &domain.Assignment{OrderID: "o1", RiderID: "r1", Status: domain.AssignmentDispatched}

	orders := map[string]*domain.Order{"o1": order}
	riders := map[string]*domain.Rider{"r1": rider}
	assignments := map[string]*domain.Assignment{"a1": assignment}

	triggers := []Trigger{{Kind: TriggerEtaSpike, OrderID: "o1", RiderID: "r1"}}
	outcomes := ApplyTriggers(triggers, orders, riders, assignments, cfg, now)

	assert.Empty(t, outcomes)
	assert.Equal(t, domain.OrderAssigned, order.Status)
}
