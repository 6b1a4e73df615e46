package optimizer

import "math"

const (
	auctionEpsilon        = 0.01
	auctionIterationLimit = 1000
)

// solveAuction assigns orders to riders via the auction algorithm (spec
// §4.6 — "epsilon 0.01, capped at 1000 iterations"). Orders bid for
// riders, which carry prices; each round the most recently queued
// unassigned order claims its highest-value rider (value = -cost - price),
// raising that rider's price by the margin over the order's second-best
// option plus epsilon and displacing the rider's previous owner.
// Riders in excess of orders stay unassigned; orders still unassigned
// when the iteration cap is hit are left out of the result.
func solveAuction(matrix Matrix) Result {
	n, m := len(matrix.OrderIDs), len(matrix.RiderIDs)
	prices := make([]float64, m)
	ownerOf := make([]int, m) // order index owning rider j, -1 if none
	assignedRider := make([]int, n)
	for j := range ownerOf {
		ownerOf[j] = -1
	}
	for i := range assignedRider {
		assignedRider[i] = -1
	}

	unassigned := make([]int, n)
	for i := range unassigned {
		unassigned[i] = i
	}

	iterations := 0
	for len(unassigned) > 0 && iterations < auctionIterationLimit {
		iterations++
		i := unassigned[len(unassigned)-1]
		unassigned = unassigned[:len(unassigned)-1]

		bestJ, secondValue, bestValue := -1, math.Inf(-1), math.Inf(-1)
		for j := 0; j < m; j++ {
			if matrix.Cost[i][j] >= SentinelCost {
				continue
			}
			value := -matrix.Cost[i][j] - prices[j]
			if value > bestValue {
				secondValue = bestValue
				bestValue = value
				bestJ = j
			} else if value > secondValue {
				secondValue = value
			}
		}
		if bestJ == -1 {
			// no feasible rider for this order; drop it permanently
			continue
		}
		if math.IsInf(secondValue, -1) {
			secondValue = bestValue
		}

		bid := bestValue - secondValue + auctionEpsilon
		prices[bestJ] += bid

		if prev := ownerOf[bestJ]; prev != -1 {
			assignedRider[prev] = -1
			unassigned = append(unassigned, prev)
		}
		ownerOf[bestJ] = i
		assignedRider[i] = bestJ
	}

	decisions := make([]Decision, 0, n)
	total := 0.0
	for i := 0; i < n; i++ {
		j := assignedRider[i]
		if j == -1 {
			continue
		}
		c := matrix.Cost[i][j]
		decisions = append(decisions, Decision{
			OrderID: matrix.OrderIDs[i],
			RiderID: matrix.RiderIDs[j],
			Cost:    c,
		})
		total += c
	}

	return Result{Decisions: decisions, TotalCost: total, Algorithm: AlgorithmAuction}
}
