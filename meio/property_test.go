package meio

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSolverInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based tests in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.Rng.Seed(1)

	properties := gopter.NewProperties(parameters)

	// A feasible GST solution respects every bound and never reports a
	// negative net replenishment time, whatever the line's cost structure.
	properties.Property("GST solutions stay inside their bounds", prop.ForAll(
		func(h1, h2 float64, proc1, proc2, ub1, ub2 int) bool {
			items := []Item{
				{Name: "up", HoldingCost: h1, ProcTime: proc1, ServiceTimeUB: ub1},
				{Name: "down", HoldingCost: h2, ProcTime: proc2, ServiceTimeUB: ub2,
					AvgDemand: 100, DemandStd: 15},
			}
			edges := []BOMEdge{{Child: "up", Parent: "down", Units: 1}}
			net, err := Build(items, edges)
			if err != nil {
				return true
			}
			sol, err := SolveGST(net, GSTConfig{})
			if err != nil {
				return true
			}
			for i := 0; i < net.Len(); i++ {
				if sol.ServiceTimes[i] < 0 || sol.ServiceTimes[i] > net.Items[i].ServiceTimeUB {
					return false
				}
				if sol.NetReplenishmentTimes[i] < 0 {
					return false
				}
			}
			return sol.TotalCost >= 0 && !math.IsInf(sol.TotalCost, 0)
		},
		gen.Float64Range(0.1, 10),
		gen.Float64Range(0.1, 10),
		gen.IntRange(0, 6),
		gen.IntRange(0, 6),
		gen.IntRange(0, 8),
		gen.IntRange(0, 8),
	))

	// The tabu incumbent never exceeds the all-zero starting point.
	properties.Property("tabu never loses to its starting coverage", prop.ForAll(
		func(h float64, sigma float64, proc, ub, iters int) bool {
			items := []Item{
				{Name: "only", HoldingCost: h, ProcTime: proc, ServiceTimeUB: ub,
					AvgDemand: 50, DemandStd: sigma},
			}
			net, err := Build(items, nil)
			if err != nil {
				return true
			}
			sol, err := SolveTabu(net, TabuConfig{MaxIter: iters})
			if err != nil {
				return true
			}
			start := h * DefaultZ * sigma * math.Sqrt(float64(proc))
			return sol.BestCost <= start+1e-9
		},
		gen.Float64Range(0.1, 10),
		gen.Float64Range(0, 30),
		gen.IntRange(0, 6),
		gen.IntRange(0, 8),
		gen.IntRange(1, 60),
	))

	properties.TestingRun(t)
}

func TestSimulatorInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based tests in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(2)

	properties := gopter.NewProperties(parameters)

	// On-hand stock never goes negative and service stays in [0, 1], for
	// any base-stock levels and seed on a two-stage line.
	properties.Property("stock conservation under arbitrary levels", prop.ForAll(
		func(sComp, sProd float64, seed int64) bool {
			items := []Item{
				{Name: "component", HoldingCost: 1, LeadTime: 1},
				{Name: "product", HoldingCost: 2, StockoutCost: 30,
					AvgDemand: 50, DemandStd: 10, LeadTime: 1},
			}
			net, err := Build(items, []BOMEdge{{Child: "component", Parent: "product", Units: 1}})
			if err != nil {
				return true
			}
			res, err := Simulate(net, SimulationConfig{
				NSamples: 2, NPeriods: 25, Seed: seed,
				Policies: []Policy{BaseStockPolicy(sComp), BaseStockPolicy(sProd)},
			})
			if err != nil {
				return false
			}
			if res.ServiceLevel < 0 || res.ServiceLevel > 1 {
				return false
			}
			for _, traj := range res.Trajectories.OnHand {
				for _, v := range traj {
					if v < -1e-6 {
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(0, 400),
		gen.Float64Range(0, 300),
		gen.Int64Range(0, 1<<30),
	))

	// Same seed, same result: the simulator is a pure function of its
	// inputs.
	properties.Property("seed determinism", prop.ForAll(
		func(s float64, seed int64) bool {
			items := []Item{
				{Name: "w", HoldingCost: 1, StockoutCost: 10, AvgDemand: 80, DemandStd: 8, LeadTime: 1},
			}
			net, err := Build(items, nil)
			if err != nil {
				return true
			}
			cfg := SimulationConfig{
				NSamples: 3, NPeriods: 20, Seed: seed,
				Policies: []Policy{BaseStockPolicy(s)},
			}
			a, err := Simulate(net, cfg)
			if err != nil {
				return false
			}
			b, err := Simulate(net, cfg)
			if err != nil {
				return false
			}
			return a.AverageCost == b.AverageCost && a.ServiceLevel == b.ServiceLevel
		},
		gen.Float64Range(0, 500),
		gen.Int64Range(0, 1<<30),
	))

	properties.TestingRun(t)
}
