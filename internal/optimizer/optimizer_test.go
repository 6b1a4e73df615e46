package optimizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squareMatrix(ids []string, rows [][]float64) Matrix {
	riderIDs := make([]string, len(rows[0]))
	for j := range riderIDs {
		riderIDs[j] = ids[j]
	}
	return Matrix{OrderIDs: ids, RiderIDs: riderIDs, Cost: rows}
}

func TestHungarian_ThreeByThreeWorkedExample(t *testing.T) {
	matrix := Matrix{
		OrderIDs: []string{"o1", "o2", "o3"},
		RiderIDs: []string{"r1", "r2", "r3"},
		Cost: [][]float64{
			{0.2, 0.9, 0.5},
			{0.8, 0.3, 0.6},
			{0.4, 0.7, 0.1},
		},
	}
	result := solveHungarian(matrix)
	require.Len(t, result.Decisions, 3)
	assert.InDelta(t, 0.6, result.TotalCost, 0.001)

	byOrder := make(map[string]string)
	for _, d := range result.Decisions {
		byOrder[d.OrderID] = d.RiderID
	}
	assert.Equal(t, "r1", byOrder["o1"])
	assert.Equal(t, "r2", byOrder["o2"])
	assert.Equal(t, "r3", byOrder["o3"])
}

func TestHungarian_SentinelPairsAreInfeasible(t *testing.T) {
	matrix := Matrix{
		OrderIDs: []string{"o1", "o2"},
		RiderIDs: []string{"r1"},
		Cost: [][]float64{
			{0.1},
			{0.2},
		},
	}
	result := solveHungarian(matrix)
	// only one rider exists; one order must go unassigned
	assert.Len(t, result.Decisions, 1)
}

func TestHungarian_TotalCostNeverExceedsGreedy(t *testing.T) {
	matrix := Matrix{
		OrderIDs: []string{"o1", "o2", "o3", "o4"},
		RiderIDs: []string{"r1", "r2", "r3", "r4"},
		Cost: [][]float64{
			{4, 1, 3, 9},
			{2, 0, 5, 7},
			{3, 2, 2, 8},
			{6, 1, 4, 1},
		},
	}
	hungarian := solveHungarian(matrix)
	greedy := solveGreedy(matrix)
	assert.LessOrEqual(t, hungarian.TotalCost, greedy.TotalCost+1e-9)
}

func TestAuction_ConvergesToFeasibleAssignment(t *testing.T) {
	matrix := squareMatrix([]string{"o1", "o2", "o3"}, [][]float64{
		{0.2, 0.9, 0.5},
		{0.8, 0.3, 0.6},
		{0.4, 0.7, 0.1},
	})
	result := solveAuction(matrix)
	assert.Len(t, result.Decisions, 3)

	seen := make(map[string]bool)
	for _, d := range result.Decisions {
		assert.False(t, seen[d.RiderID], "rider %s assigned twice", d.RiderID)
		seen[d.RiderID] = true
	}
}

func TestGreedy_AllowsSharedRiderAcrossOrders(t *testing.T) {
	// spec §4.6: greedy has no uniqueness constraint on riders — two
	// orders may both resolve to the same cheapest rider.
	matrix := Matrix{
		OrderIDs: []string{"o1", "o2"},
		RiderIDs: []string{"r1", "r2"},
		Cost: [][]float64{
			{1, 5},
			{1.5, 5},
		},
	}
	result := solveGreedy(matrix)
	require.Len(t, result.Decisions, 2)
	byOrder := make(map[string]string)
	for _, d := range result.Decisions {
		byOrder[d.OrderID] = d.RiderID
	}
	assert.Equal(t, "r1", byOrder["o1"])
	assert.Equal(t, "r1", byOrder["o2"])
}

func TestGreedy_AllSentinelYieldsNoDecisions(t *testing.T) {
	matrix := Matrix{
		OrderIDs: []string{"o1"},
		RiderIDs: []string{"r1"},
		Cost:     [][]float64{{SentinelCost}},
	}
	result := solveGreedy(matrix)
	assert.Empty(t, result.Decisions)
}

func TestSolve_EmptyMatrixReturnsEmptyResult(t *testing.T) {
	result := Solve(Matrix{}, Config{HungarianThreshold: 100})
	assert.Empty(t, result.Decisions)
}

func TestSolve_SmallProblemUsesHungarian(t *testing.T) {
	matrix := squareMatrix([]string{"o1", "o2"}, [][]float64{
		{1, 2},
		{2, 1},
	})
	result := Solve(matrix, Config{HungarianThreshold: 10000, OptimizerTimeoutSeconds: 2})
	assert.Equal(t, AlgorithmHungarian, result.Algorithm)
	assert.InDelta(t, 2.0, result.TotalCost, 1e-9)
}

func TestSolve_LargeProblemFallsBackToGreedy(t *testing.T) {
	matrix := squareMatrix([]string{"o1", "o2"}, [][]float64{
		{1, 2},
		{2, 1},
	})
	result := Solve(matrix, Config{HungarianThreshold: 0, AuctionThreshold: 1})
	assert.Equal(t, AlgorithmGreedy, result.Algorithm)
}

func TestSolve_MidSizedProblemUsesAuction(t *testing.T) {
	matrix := squareMatrix([]string{"o1", "o2"}, [][]float64{
		{1, 2},
		{2, 1},
	})
	result := Solve(matrix, Config{HungarianThreshold: 0, AuctionThreshold: 50000})
	assert.Equal(t, AlgorithmAuction, result.Algorithm)
}

func TestKuhnMunkres_HandlesSingleElement(t *testing.T) {
	assignment := kuhnMunkres([][]float64{{5}})
	require.Len(t, assignment, 1)
	assert.Equal(t, 0, assignment[0])
}

func TestHungarian_UnequalDimensionsPadsWithSentinel(t *testing.T) {
	matrix := Matrix{
		OrderIDs: []string{"o1", "o2", "o3"},
		RiderIDs: []string{"r1"},
		Cost: [][]float64{
			{1},
			{2},
			{3},
		},
	}
	result := solveHungarian(matrix)
	assert.Len(t, result.Decisions, 1)
	assert.Equal(t, "r1", result.Decisions[0].RiderID)
	assert.True(t, math.Abs(result.Decisions[0].Cost-1) < 1e-9)
}
