// Package optimizer implements the size-adaptive bipartite assignment
// solver: exact Hungarian / auction / greedy over a dense cost matrix.
// Grounded on spec.md §9 ("Dynamic dispatch among solvers... model as
// tagged variants or a small polymorphic capability with one method") —
// no teacher file solves an assignment problem, so the three solvers are
// this module's own, sharing one Solve(matrix) capability as instructed.
package optimizer

import (
	"time"
)

// SentinelCost marks an infeasible (order, rider) pair in the dense cost
// matrix (spec §4.6, glossary).
const SentinelCost = 1e10

// Algorithm name tokens surfaced in Result.Algorithm for telemetry.
const (
	AlgorithmHungarian = "hungarian"
	AlgorithmAuction   = "auction"
	AlgorithmGreedy    = "greedy"
)

// Matrix is the dense (order, rider) cost input (spec §4.6).
type Matrix struct {
	OrderIDs []string
	RiderIDs []string
	Cost     [][]float64 // Cost[i][j] for OrderIDs[i], RiderIDs[j]
}

// Decision is one resolved (order, rider) pairing.
type Decision struct {
	OrderID string
	RiderID string
	Cost    float64
}

// Result is the optimizer's output (spec §4.6).
type Result struct {
	Decisions []Decision
	TotalCost float64
	Algorithm string
}

// Config bounds the adaptive strategy's thresholds and exact-solver
// timeout (spec §5, §6).
type Config struct {
	HungarianThreshold      int
	AuctionThreshold        int
	OptimizerTimeoutSeconds float64
}

// DefaultAuctionThreshold is the spec's fixed upper bound for the auction
// path (spec §4.6 — "Else if problemSize <= 50000").
const DefaultAuctionThreshold = 50000

// Solve dispatches to the exact, auction, or greedy solver by problem
// size, falling back on exact-solver timeout (spec §4.6, §5).
func Solve(matrix Matrix, cfg Config) Result {
	n, m := len(matrix.OrderIDs), len(matrix.RiderIDs)
	if n == 0 || m == 0 {
		return Result{Algorithm: AlgorithmGreedy}
	}

	auctionThreshold := cfg.AuctionThreshold
	if auctionThreshold == 0 {
		auctionThreshold = DefaultAuctionThreshold
	}
	problemSize := n * m

	if problemSize <= cfg.HungarianThreshold {
		if result, ok := solveHungarianWithTimeout(matrix, cfg.OptimizerTimeoutSeconds); ok {
			return result
		}
		if problemSize <= auctionThreshold {
			return solveAuction(matrix)
		}
		return solveGreedy(matrix)
	}

	if problemSize <= auctionThreshold {
		return solveAuction(matrix)
	}

	return solveGreedy(matrix)
}

// SolveGreedy forces the greedy nearest-rider solver directly, bypassing
// the adaptive size-based dispatch (spec §4.7 crisis directive: "skip
// global optimization and use the greedy solver").
func SolveGreedy(matrix Matrix) Result {
	return solveGreedy(matrix)
}

// solveHungarianWithTimeout runs the exact solver on its own goroutine so
// a timeout can force a fallback (spec §5 "Cancellation and timeouts").
// The pure CPU computation has no natural cancellation point; on timeout
// the goroutine is abandoned and its eventual result discarded.
func solveHungarianWithTimeout(matrix Matrix, timeoutSeconds float64) (Result, bool) {
	if timeoutSeconds <= 0 {
		return solveHungarian(matrix), true
	}

	done := make(chan Result, 1)
	go func() {
		done <- solveHungarian(matrix)
	}()

	select {
	case result := <-done:
		return result, true
	case <-time.After(time.Duration(timeoutSeconds * float64(time.Second))):
		return Result{}, false
	}
}
