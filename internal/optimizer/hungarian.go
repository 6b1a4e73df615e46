package optimizer

import "math"

// solveHungarian solves the assignment problem exactly via the standard
// O(n^3) potentials/shortest-augmenting-path algorithm (spec §4.6 —
// "replace the broken greedy-labeled solver with the standard
// potentials-based algorithm directly"). The matrix is padded to square
// with SentinelCost so every order and every rider receives a slot;
// pairs resolving to a padded row/column, or to a real pair whose cost
// is itself >= SentinelCost, are infeasible and dropped from the result.
func solveHungarian(matrix Matrix) Result {
	n, m := len(matrix.OrderIDs), len(matrix.RiderIDs)
	size := n
	if m > size {
		size = m
	}

	cost := make([][]float64, size)
	for i := range cost {
		cost[i] = make([]float64, size)
		for j := range cost[i] {
			if i < n && j < m {
				cost[i][j] = matrix.Cost[i][j]
			} else {
				cost[i][j] = SentinelCost
			}
		}
	}

	assignment := kuhnMunkres(cost)

	decisions := make([]Decision, 0, n)
	total := 0.0
	for i := 0; i < n; i++ {
		j := assignment[i]
		if j < 0 || j >= m || cost[i][j] >= SentinelCost {
			continue
		}
		decisions = append(decisions, Decision{
			OrderID: matrix.OrderIDs[i],
			RiderID: matrix.RiderIDs[j],
			Cost:    cost[i][j],
		})
		total += cost[i][j]
	}

	return Result{Decisions: decisions, TotalCost: total, Algorithm: AlgorithmHungarian}
}

// kuhnMunkres is the classic 1-indexed shortest-augmenting-path assignment
// algorithm with row/column potentials, adapted to 0-indexed inputs. cost
// must be square. Returns assignment[i] = column matched to row i.
func kuhnMunkres(cost [][]float64) []int {
	const inf = math.MaxFloat64 / 2
	n := len(cost)
	if n == 0 {
		return nil
	}

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row currently matched to column j (1-indexed), 0 = unmatched
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assignment := make([]int, n)
	for i := range assignment {
		assignment[i] = -1
	}
	for j := 1; j <= n; j++ {
		if p[j] != 0 {
			assignment[p[j]-1] = j - 1
		}
	}
	return assignment
}
