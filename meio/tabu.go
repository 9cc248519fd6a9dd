package meio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// TabuConfig parameterizes the tabu-search coverage allocator. Zero values
// take the defaults noted per field.
type TabuConfig struct {
	// MaxIter is the iteration budget (default 100).
	MaxIter int `json:"max_iter" yaml:"max_iter"`
	// Tenure is the number of iterations a reversed move stays forbidden
	// (default 7).
	Tenure int `json:"tenure" yaml:"tenure"`
	// Z is the safety factor (zero means DefaultZ).
	Z float64 `json:"z" yaml:"z"`
	// StallFraction stops the search after this fraction of MaxIter passes
	// without improving the incumbent (default 0.2).
	StallFraction float64 `json:"stall_fraction" yaml:"stall_fraction"`
}

// TabuSolution is the best coverage assignment found: per item the coverage
// time, the induced net replenishment time, and the safety stock. CostHistory
// records the incumbent cost after every iteration.
type TabuSolution struct {
	BestCoverage []int
	BestNRT      []int
	SafetyStocks []float64
	BestCost     float64
	CostHistory  []float64
	Iterations   int
}

type tabuMove struct {
	item  int
	delta int
}

// SolveTabu searches over integer coverage times on a general acyclic
// network, where an item's inbound delay is the maximum coverage of its
// component suppliers. Unlike the exact tree solver it accepts items that
// feed multiple consumers. The search is deterministic: candidate moves are
// enumerated in item order with +1 before -1 and accepted on strict cost
// improvement only.
func SolveTabu(net *Network, cfg TabuConfig) (*TabuSolution, error) {
	if cfg.MaxIter < 0 || cfg.Tenure < 0 {
		return nil, fmt.Errorf("%w: tabu iterations and tenure must be non-negative", ErrValidation)
	}
	maxIter := cfg.MaxIter
	if maxIter == 0 {
		maxIter = 100
	}
	tenure := cfg.Tenure
	if tenure == 0 {
		tenure = 7
	}
	z := cfg.Z
	if z == 0 {
		z = DefaultZ
	}
	stallFrac := cfg.StallFraction
	if stallFrac == 0 {
		stallFrac = 0.2
	}
	maxStall := int(math.Ceil(stallFrac * float64(maxIter)))

	_, sigma := net.PropagatedDemand()
	nItems := net.Len()

	// All-zero coverage is always feasible: every NRT equals the item's
	// own processing time.
	cur := make([]int, nItems)
	curCost := coverageCost(net, cur, sigma, z)

	best := make([]int, nItems)
	bestCost := curCost

	tabuUntil := make(map[tabuMove]int)
	sol := &TabuSolution{CostHistory: make([]float64, 0, maxIter)}
	stall := 0

	for iter := 0; iter < maxIter; iter++ {
		moved := false
		var chosen tabuMove
		chosenCost := math.Inf(1)

		for i := 0; i < nItems; i++ {
			for _, d := range []int{1, -1} {
				next := cur[i] + d
				if next < 0 || next > net.Items[i].ServiceTimeUB {
					continue
				}
				cur[i] = next
				c := coverageCost(net, cur, sigma, z)
				cur[i] = next - d
				if math.IsInf(c, 1) {
					continue
				}
				mv := tabuMove{item: i, delta: d}
				if until, tabooed := tabuUntil[mv]; tabooed && iter < until && c >= bestCost {
					continue // aspiration admits only strict record-breakers
				}
				if c < chosenCost {
					chosenCost = c
					chosen = mv
					moved = true
				}
			}
		}
		if !moved {
			break
		}

		cur[chosen.item] += chosen.delta
		curCost = chosenCost
		// Forbid the immediate reversal.
		tabuUntil[tabuMove{item: chosen.item, delta: -chosen.delta}] = iter + 1 + tenure

		if curCost < bestCost {
			bestCost = curCost
			copy(best, cur)
			stall = 0
		} else {
			stall++
		}
		sol.CostHistory = append(sol.CostHistory, bestCost)
		sol.Iterations = iter + 1
		if stall >= maxStall {
			logrus.Debugf("tabu search: stalled after %d iterations, cost %.2f", iter+1, bestCost)
			break
		}
	}

	sol.BestCoverage = best
	sol.BestCost = bestCost
	sol.BestNRT = make([]int, nItems)
	sol.SafetyStocks = make([]float64, nItems)
	for i := 0; i < nItems; i++ {
		sol.BestNRT[i] = coverageNRT(net, best, i)
		sol.SafetyStocks[i] = z * sigma[i] * math.Sqrt(float64(sol.BestNRT[i]))
	}
	logrus.Debugf("tabu search: %d iterations, best cost %.2f", sol.Iterations, bestCost)
	return sol, nil
}

// coverageNRT is the net replenishment time of item i under a coverage
// assignment: processing time plus the slowest inbound supplier coverage
// minus its own coverage.
func coverageNRT(net *Network, coverage []int, i int) int {
	inbound := 0
	for _, ei := range net.componentEdges[i] {
		if c := coverage[net.edges[ei].child]; c > inbound {
			inbound = c
		}
	}
	return net.Items[i].ProcTime + inbound - coverage[i]
}

// coverageCost is the total safety-stock holding cost of an assignment,
// +Inf when any item's net replenishment time would be negative.
func coverageCost(net *Network, coverage []int, sigma []float64, z float64) float64 {
	total := 0.0
	for i := range net.Items {
		nrt := coverageNRT(net, coverage, i)
		if nrt < 0 {
			return math.Inf(1)
		}
		total += net.Items[i].HoldingCost * z * sigma[i] * math.Sqrt(float64(nrt))
	}
	return total
}
