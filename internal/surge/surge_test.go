package surge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/dispatchengine/internal/config"
	"github.com/terminal-bench/dispatchengine/internal/domain"
)

func testSurgeConfig(t *testing.T) config.SurgeConfig {
	t.Helper()
	cfg, err := config.NewBuilder().Build()
	require.NoError(t, err)
	return cfg.Surge
}

func TestDetectSurge_ScenarioRatios(t *testing.T) {
	d := NewDetector(testSurgeConfig(t))
	capacity := 5 // 20 riders * maxItems 5 = 100

	cases := []struct {
		pending int
		want    domain.SurgeLevel
	}{
		{50, domain.SurgeNormal},
		{150, domain.SurgeSoft},
		{175, domain.SurgeHard},
		{250, domain.SurgeCrisis},
	}
	for _, c := range cases {
		state := d.DetectSurge(c.pending, 20, capacity)
		assert.Equal(t, c.want, state.Level, "pending=%d", c.pending)
	}
}

func TestDetectSurge_ZeroCapacityDoesNotDivideByZero(t *testing.T) {
	d := NewDetector(testSurgeConfig(t))
	state := d.DetectSurge(10, 0, 0)
	assert.Equal(t, 10.0, state.DemandSupplyRatio)
}

func TestActiveBatchCapacity_MaxAcrossRiders(t *testing.T) {
	riders := map[string]*domain.Rider{
		"r1": {Vehicle: domain.Vehicle{MaxItems: 3}},
		"r2": {Vehicle: domain.Vehicle{MaxItems: 10}},
	}
	assert.Equal(t, 10, ActiveBatchCapacity(riders))
}

func TestApplyWeightModifiers_Soft(t *testing.T) {
	weights := config.ScoringWeights{Time: 0.25, SLARisk: 0.25, Distance: 0.2, BatchDisruption: 0.1, Workload: 0.1, Affinity: 0.1}
	out := ApplyWeightModifiers(domain.SurgeSoft, weights)
	assert.InDelta(t, 0.05, out.Workload, 1e-9)
	assert.InDelta(t, 0.3, out.SLARisk, 1e-9)
}

func TestApplyWeightModifiers_Hard(t *testing.T) {
	weights := config.ScoringWeights{Time: 0.25, SLARisk: 0.25, Distance: 0.2, BatchDisruption: 0.1, Workload: 0.1, Affinity: 0.1}
	out := ApplyWeightModifiers(domain.SurgeHard, weights)
	assert.Equal(t, 0.0, out.Workload)
	assert.Equal(t, 0.5, out.SLARisk)
	assert.Equal(t, 0.3, out.Time)
	assert.Equal(t, 0.2, out.Distance)
}

func TestApplyWeightModifiers_NormalIsUnchanged(t *testing.T) {
	weights := config.ScoringWeights{Time: 0.25, SLARisk: 0.25, Distance: 0.2, BatchDisruption: 0.1, Workload: 0.1, Affinity: 0.1}
	out := ApplyWeightModifiers(domain.SurgeNormal, weights)
	assert.Equal(t, weights, out)
}

func TestApplyBatchModifiers_HardDoublesIncrement(t *testing.T) {
	surgeCfg := testSurgeConfig(t)
	sizes := config.BatchSizes{Bike: 3, Car: 6, Van: 10}
	soft := ApplyBatchModifiers(domain.SurgeSoft, sizes, surgeCfg)
	hard := ApplyBatchModifiers(domain.SurgeHard, sizes, surgeCfg)
	assert.Equal(t, sizes.Bike+surgeCfg.BatchSizeIncrement, soft.Bike)
	assert.Equal(t, sizes.Bike+2*surgeCfg.BatchSizeIncrement, hard.Bike)
}

func TestApplyRadiusModifiers_HardSquaresFactor(t *testing.T) {
	surgeCfg := testSurgeConfig(t)
	radii := config.CandidateRadii{InitialKm: 5, ExpandedKm: 10, MaxKm: 20}
	soft := ApplyRadiusModifiers(domain.SurgeSoft, radii, surgeCfg)
	hard := ApplyRadiusModifiers(domain.SurgeHard, radii, surgeCfg)
	assert.InDelta(t, radii.InitialKm*surgeCfg.RadiusExpansionFactor, soft.InitialKm, 1e-9)
	assert.InDelta(t, radii.InitialKm*surgeCfg.RadiusExpansionFactor*surgeCfg.RadiusExpansionFactor, hard.InitialKm, 1e-9)
}

func TestComputeHardSurgeOutcome_HeldOrdersOnlyNormalPriorityBeyondBuffer(t *testing.T) {
	now := time.Now()
	orders := []*domain.Order{
		{ID: "held-1", Priority: domain.PriorityNormal, SLADeadline: now.Add(45 * time.Minute)},
		{ID: "not-held-urgent", Priority: domain.PriorityCritical, SLADeadline: now.Add(45 * time.Minute)},
		{ID: "not-held-soon", Priority: domain.PriorityNormal, SLADeadline: now.Add(10 * time.Minute)},
	}
	outcome := ComputeHardSurgeOutcome(domain.SurgeHard, orders, nil, now)
	assert.Equal(t, []string{"held-1"}, outcome.HeldOrderIDs)
}

func TestComputeHardSurgeOutcome_NoOpOutsideHardSurge(t *testing.T) {
	outcome := ComputeHardSurgeOutcome(domain.SurgeSoft, nil, nil, time.Now())
	assert.Empty(t, outcome.HeldOrderIDs)
	assert.Empty(t, outcome.PrepositionTargets)
}

func TestPrepositionTargets_ClustersByBucketAndPairsIdleRiders(t *testing.T) {
	orders := []*domain.Order{
		{Pickup: domain.PickupInfo{Location: domain.Location{Lat: 12.1, Lng: 77.1}}},
		{Pickup: domain.PickupInfo{Location: domain.Location{Lat: 12.2, Lng: 77.2}}},
		{Pickup: domain.PickupInfo{Location: domain.Location{Lat: 20.0, Lng: 80.0}}},
	}
	riders := map[string]*domain.Rider{
		"idle-1": {Status: domain.RiderActive},
		"busy-1": {Status: domain.RiderActive, CurrentAssignments: []string{"x"}},
		"offline-1": {Status: domain.RiderOffline},
	}
	outcome := ComputeHardSurgeOutcome(domain.SurgeHard, orders, riders, time.Now())
	require.Len(t, outcome.PrepositionTargets, 1)
	assert.Equal(t, "idle-1", outcome.PrepositionTargets[0].RiderID)
	assert.Equal(t, 2, outcome.PrepositionTargets[0].OrderCount)
}
