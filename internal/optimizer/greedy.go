package optimizer

import "math"

// solveGreedy assigns each order independently to its cheapest feasible
// rider, used above the auction threshold where even O(n*m) per-round
// bidding is too costly, and forced directly during crisis surge (spec
// §4.6 "Else: greedy nearest-rider (no uniqueness constraint on riders —
// this is an explicit approximation for crisis-scale problems)"). Two
// orders may legitimately end up paired with the same rider; callers that
// need hard uniqueness should use the Hungarian or auction path instead.
func solveGreedy(matrix Matrix) Result {
	n, m := len(matrix.OrderIDs), len(matrix.RiderIDs)

	decisions := make([]Decision, 0, n)
	total := 0.0
	for i := 0; i < n; i++ {
		bestJ, bestCost := -1, math.Inf(1)
		for j := 0; j < m; j++ {
			if matrix.Cost[i][j] < bestCost {
				bestCost = matrix.Cost[i][j]
				bestJ = j
			}
		}
		if bestJ == -1 || bestCost >= SentinelCost {
			continue
		}
		decisions = append(decisions, Decision{
			OrderID: matrix.OrderIDs[i],
			RiderID: matrix.RiderIDs[bestJ],
			Cost:    bestCost,
		})
		total += bestCost
	}

	return Result{Decisions: decisions, TotalCost: total, Algorithm: AlgorithmGreedy}
}
