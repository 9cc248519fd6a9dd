package meio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// DefaultZ is the service-level multiplier used when none is given
// (1.65 ~ a 95% cycle service level).
const DefaultZ = 1.65

// GSTConfig parameterizes the exact guaranteed-service-time solver.
type GSTConfig struct {
	// Z is the safety factor multiplying sigma*sqrt(NRT); zero means
	// DefaultZ.
	Z float64 `json:"z" yaml:"z"`
}

// GSTSolution is the exact-optimal service-time placement for a tree
// network: per item the guaranteed service time L*, the induced net
// replenishment time, and the safety stock z*sigma*sqrt(NRT).
type GSTSolution struct {
	ServiceTimes          []int
	NetReplenishmentTimes []int
	SafetyStocks          []float64
	TotalCost             float64
}

// SolveGST computes guaranteed service times minimizing total safety-stock
// holding cost on a tree network, by bottom-up dynamic programming over
// each item's integer bound range (Graves & Willems). Ties in cost are
// broken toward the smallest net replenishment time, then the smallest
// service time, so repeated runs return identical solutions.
func SolveGST(net *Network, cfg GSTConfig) (*GSTSolution, error) {
	if !net.IsTree() {
		return nil, fmt.Errorf("%w: an item supplies more than one parent", ErrNotATree)
	}
	for i, it := range net.Items {
		if it.ServiceTimeLB > it.ServiceTimeUB {
			return nil, fmt.Errorf("%w: item %q has lead_time_lb %d > lead_time_ub %d",
				ErrInfeasibleBounds, net.Name(i), it.ServiceTimeLB, it.ServiceTimeUB)
		}
	}
	z := cfg.Z
	if z == 0 {
		z = DefaultZ
	}

	_, sigma := net.PropagatedDemand()
	topo := net.TopologicalOrder()
	nItems := net.Len()

	// cost[i][s-lb] is the minimal cost of the subtree rooted at i when i
	// guarantees service time s; chosenSI[i][s-lb] is the inbound service
	// time achieving it.
	cost := make([][]float64, nItems)
	chosenSI := make([][]int, nItems)
	// bestTo[i][limit-lb] is the prefix minimum of cost[i] up to limit,
	// for O(1) child lookups during the parent's scan.
	bestTo := make([][]float64, nItems)

	for _, i := range topo {
		it := net.Items[i]
		lb, ub := it.ServiceTimeLB, it.ServiceTimeUB
		width := ub - lb + 1
		cost[i] = make([]float64, width)
		chosenSI[i] = make([]int, width)

		// Feasible inbound range: at least every child's lower bound, at
		// most the largest child upper bound (waiting longer never helps).
		siMin, siMax := 0, 0
		for _, ei := range net.componentEdges[i] {
			c := net.edges[ei].child
			if lbc := net.Items[c].ServiceTimeLB; lbc > siMin {
				siMin = lbc
			}
			if ubc := net.Items[c].ServiceTimeUB; ubc > siMax {
				siMax = ubc
			}
		}

		for s := lb; s <= ub; s++ {
			best := math.Inf(1)
			bestSI := -1
			lo := siMin
			if s-it.ProcTime > lo {
				lo = s - it.ProcTime // keeps NRT >= 0
			}
			for si := lo; si <= siMax; si++ {
				nrt := it.ProcTime + si - s
				c := it.HoldingCost * z * sigma[i] * math.Sqrt(float64(nrt))
				feasible := true
				for _, ei := range net.componentEdges[i] {
					child := net.edges[ei].child
					gc := childBest(net, bestTo, child, si)
					if math.IsInf(gc, 1) {
						feasible = false
						break
					}
					c += gc
				}
				if !feasible {
					continue
				}
				// Ascending si with strict improvement keeps the
				// smallest NRT among equal-cost candidates.
				if c < best {
					best = c
					bestSI = si
				}
			}
			cost[i][s-lb] = best
			chosenSI[i][s-lb] = bestSI
		}

		bestTo[i] = make([]float64, width)
		running := math.Inf(1)
		for k := 0; k < width; k++ {
			if cost[i][k] < running {
				running = cost[i][k]
			}
			bestTo[i][k] = running
		}
	}

	sol := &GSTSolution{
		ServiceTimes:          make([]int, nItems),
		NetReplenishmentTimes: make([]int, nItems),
		SafetyStocks:          make([]float64, nItems),
	}

	// Fix each root's service time, then walk the committed inbound times
	// back down to the leaves.
	type frame struct{ item, limit int }
	var stack []frame
	for i := 0; i < nItems; i++ {
		if len(net.consumerEdges[i]) == 0 {
			stack = append(stack, frame{item: i, limit: net.Items[i].ServiceTimeUB})
		}
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		i := f.item
		it := net.Items[i]
		lb := it.ServiceTimeLB
		hi := it.ServiceTimeUB
		if f.limit < hi {
			hi = f.limit
		}
		bestS, bestNRT := -1, 0
		best := math.Inf(1)
		for s := lb; s <= hi; s++ {
			c := cost[i][s-lb]
			if math.IsInf(c, 1) {
				continue
			}
			nrt := it.ProcTime + chosenSI[i][s-lb] - s
			if c < best || (c == best && nrt < bestNRT) {
				best = c
				bestS = s
				bestNRT = nrt
			}
		}
		if bestS < 0 {
			return nil, fmt.Errorf("%w: no feasible service time for item %q", ErrInfeasibleBounds, net.Name(i))
		}
		sol.ServiceTimes[i] = bestS
		sol.NetReplenishmentTimes[i] = bestNRT
		sol.SafetyStocks[i] = z * sigma[i] * math.Sqrt(float64(bestNRT))
		si := chosenSI[i][bestS-lb]
		for _, ei := range net.componentEdges[i] {
			stack = append(stack, frame{item: net.edges[ei].child, limit: si})
		}
	}

	for i := range sol.SafetyStocks {
		sol.TotalCost += net.Items[i].HoldingCost * sol.SafetyStocks[i]
	}
	logrus.Debugf("GST solve: %d items, total safety-stock cost %.2f", nItems, sol.TotalCost)
	return sol, nil
}

// childBest returns the child's minimal subtree cost when it must commit a
// service time no larger than limit; +Inf when even its lower bound is too
// slow.
func childBest(net *Network, bestTo [][]float64, child, limit int) float64 {
	lb := net.Items[child].ServiceTimeLB
	ub := net.Items[child].ServiceTimeUB
	if limit < lb {
		return math.Inf(1)
	}
	if limit > ub {
		limit = ub
	}
	return bestTo[child][limit-lb]
}
