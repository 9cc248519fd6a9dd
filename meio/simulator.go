package meio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/meio-sim/meio-sim/meio/demand"
)

// SimulationConfig groups the parameters of one Monte-Carlo simulation run.
type SimulationConfig struct {
	NSamples int   `json:"n_samples" yaml:"n_samples"`
	NPeriods int   `json:"n_periods" yaml:"n_periods"`
	Seed     int64 `json:"seed" yaml:"seed"`
	// Policies holds one replenishment policy per item, indexed like
	// Network.Items.
	Policies []Policy `json:"policies" yaml:"policies"`
	// Distribution names the demand family sampled at end items from
	// their (mu, sigma); empty means normal truncated at zero.
	Distribution string `json:"distribution" yaml:"distribution"`
	// FixedDemand, when non-nil, replaces sampling entirely: demand per
	// period keyed by item name, identical across replications.
	FixedDemand map[string][]float64 `json:"fixed_demand" yaml:"fixed_demand"`
	// Parallel runs replications across cores. Results are bit-identical
	// either way; each replication owns a pre-drawn demand matrix.
	Parallel bool `json:"parallel" yaml:"parallel"`
}

// SimulationResult aggregates the statistics of all replications.
type SimulationResult struct {
	AverageCost  float64
	ServiceLevel float64
	StockoutRate float64
	// Gradient is the marginal-cost signal per item: the average of
	// (-b when the item ended a period short, +h otherwise), the
	// derivative estimate of average cost w.r.t. that item's base stock.
	Gradient []float64
	// ReplicationCosts holds each replication's time-averaged cost.
	ReplicationCosts []float64
	// Trajectories are the inventory paths of the first replication,
	// kept for downstream visualization.
	Trajectories *Metrics
}

// Simulate runs cfg.NSamples independent replications of cfg.NPeriods
// periods each over the network and returns aggregated cost, service and
// gradient statistics. Identical (network, config) inputs reproduce
// identical results.
func Simulate(net *Network, cfg SimulationConfig) (*SimulationResult, error) {
	if err := validateSimConfig(net, cfg); err != nil {
		return nil, err
	}

	demands, err := generateDemand(net, cfg)
	if err != nil {
		return nil, err
	}

	nItems := net.Len()
	metrics := make([]*Metrics, cfg.NSamples)
	grads := make([][]float64, cfg.NSamples)

	run := func(k int) error {
		m := NewMetrics(nItems, cfg.NPeriods)
		g := make([]float64, nItems)
		if err := runReplication(net, cfg, demands[k], m, g); err != nil {
			return fmt.Errorf("replication %d: %w", k, err)
		}
		metrics[k] = m
		grads[k] = g
		return nil
	}

	if cfg.Parallel {
		var eg errgroup.Group
		for k := 0; k < cfg.NSamples; k++ {
			eg.Go(func() error { return run(k) })
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	} else {
		for k := 0; k < cfg.NSamples; k++ {
			if err := run(k); err != nil {
				return nil, err
			}
		}
	}

	res := &SimulationResult{
		Gradient:         make([]float64, nItems),
		ReplicationCosts: make([]float64, cfg.NSamples),
		Trajectories:     metrics[0],
	}
	var demandUnits, filledUnits float64
	var demandPeriods, stockoutPeriods int
	for k, m := range metrics {
		res.ReplicationCosts[k] = m.AverageCost(cfg.NPeriods)
		res.AverageCost += res.ReplicationCosts[k]
		demandUnits += m.DemandUnits
		filledUnits += m.FilledUnits
		demandPeriods += m.DemandPeriods
		stockoutPeriods += m.StockoutPeriods
		for i := range res.Gradient {
			res.Gradient[i] += grads[k][i]
		}
	}
	res.AverageCost /= float64(cfg.NSamples)
	norm := float64(cfg.NSamples * cfg.NPeriods)
	for i := range res.Gradient {
		res.Gradient[i] /= norm
	}
	if demandUnits > 0 {
		res.ServiceLevel = filledUnits / demandUnits
	} else {
		res.ServiceLevel = 1
	}
	if demandPeriods > 0 {
		res.StockoutRate = float64(stockoutPeriods) / float64(demandPeriods)
	}
	if math.IsNaN(res.AverageCost) || math.IsInf(res.AverageCost, 0) {
		return nil, fmt.Errorf("%w: average cost is not finite", ErrSimulationFailure)
	}
	logrus.Debugf("simulated %d replications x %d periods: avg cost %.2f, service level %.4f",
		cfg.NSamples, cfg.NPeriods, res.AverageCost, res.ServiceLevel)
	return res, nil
}

func validateSimConfig(net *Network, cfg SimulationConfig) error {
	if cfg.NSamples <= 0 || cfg.NPeriods <= 0 {
		return fmt.Errorf("%w: n_samples and n_periods must be positive", ErrValidation)
	}
	if len(cfg.Policies) != net.Len() {
		return fmt.Errorf("%w: got %d policies for %d items", ErrValidation, len(cfg.Policies), net.Len())
	}
	for i, p := range cfg.Policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("item %q: %w", net.Name(i), err)
		}
	}
	for name, arr := range cfg.FixedDemand {
		if _, ok := net.Index(name); !ok {
			return fmt.Errorf("%w: fixed demand references unknown item %q", ErrValidation, name)
		}
		if len(arr) < cfg.NPeriods {
			return fmt.Errorf("%w: fixed demand for %q has %d periods, need %d",
				ErrValidation, name, len(arr), cfg.NPeriods)
		}
	}
	return nil
}

// generateDemand draws every replication's demand matrix up front from
// per-replication RNG streams, so the period loop itself is deterministic
// and replications may run in parallel.
func generateDemand(net *Network, cfg SimulationConfig) ([][][]float64, error) {
	nItems := net.Len()
	demands := make([][][]float64, cfg.NSamples)

	if cfg.FixedDemand != nil {
		shared := make([][]float64, nItems)
		for i := range shared {
			shared[i] = make([]float64, cfg.NPeriods)
		}
		for name, arr := range cfg.FixedDemand {
			i, _ := net.Index(name)
			copy(shared[i], arr[:cfg.NPeriods])
		}
		for k := range demands {
			demands[k] = shared
		}
		return demands, nil
	}

	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	ends := net.EndItems()
	for k := 0; k < cfg.NSamples; k++ {
		src := rng.SourceFor(SubsystemReplication(k))
		mat := make([][]float64, nItems)
		for i := range mat {
			mat[i] = make([]float64, cfg.NPeriods)
		}
		for _, i := range ends {
			sampler, err := demand.ForMoments(cfg.Distribution, net.Items[i].AvgDemand, net.Items[i].DemandStd, src)
			if err != nil {
				return nil, fmt.Errorf("%w: item %q: %v", ErrValidation, net.Name(i), err)
			}
			for t := 0; t < cfg.NPeriods; t++ {
				mat[i][t] = sampler.Sample()
			}
		}
		demands[k] = mat
	}
	return demands, nil
}

// initialOnHand is the stock an item starts with: its order-up-to level,
// or R+Q for a (Q,R) policy.
func initialOnHand(p Policy) float64 {
	if p.Kind == PolicyQR {
		return p.ReorderPoint + p.OrderQuantity
	}
	return p.BaseStock
}

// runReplication simulates one replication over a pre-drawn demand matrix.
//
// Per period the pass is: (A) every item, consumers before suppliers,
// receives pipeline arrivals, serves external demand and places its policy
// order, registering component requests; (B) every supplying item splits
// its on-hand across the period's requests (explicit allocation fractions,
// else pro-rata by outstanding quantity) in a single pass, so no parent
// ever sees stock a sibling already claimed; (C) every ordering item
// receives the assembly-feasible minimum over its components and the
// consumed stock is withdrawn.
func runReplication(net *Network, cfg SimulationConfig, dm [][]float64, m *Metrics, grad []float64) error {
	nItems := net.Len()
	onHand := make([]float64, nItems)
	backlog := make([]float64, nItems)
	outstanding := make([]float64, nItems)
	arrivals := make([][]float64, nItems)
	for i := 0; i < nItems; i++ {
		onHand[i] = initialOnHand(cfg.Policies[i])
		arrivals[i] = make([]float64, cfg.NPeriods+net.Items[i].LeadTime+1)
		m.OnHand[i] = append(m.OnHand[i], onHand[i])
		m.Backlog[i] = append(m.Backlog[i], 0)
	}

	// Consumers-first order: reverse of the children-first topological
	// order, so an item's demand signal (its parents' orders) is complete
	// before the item ships.
	topo := net.TopologicalOrder()
	consumersFirst := make([]int, nItems)
	for k, i := range topo {
		consumersFirst[nItems-1-k] = i
	}

	order := make([]float64, nItems)
	requested := make([]float64, len(net.edges))
	shipped := make([]float64, len(net.edges))
	unserved := make([]float64, nItems)

	for t := 0; t < cfg.NPeriods; t++ {
		for i := range order {
			order[i] = 0
			unserved[i] = 0
		}
		for e := range requested {
			requested[e] = 0
			shipped[e] = 0
		}

		// Phase A: receive, serve external demand, place orders.
		for _, i := range consumersFirst {
			rec := arrivals[i][t]
			onHand[i] += rec
			outstanding[i] -= rec

			d := dm[i][t]
			serveOld := math.Min(onHand[i], backlog[i])
			onHand[i] -= serveOld
			backlog[i] -= serveOld
			fill := math.Min(onHand[i], d)
			onHand[i] -= fill
			backlog[i] += d - fill
			if d > 0 {
				m.DemandPeriods++
				m.DemandUnits += d
				m.FilledUnits += fill
				if fill < d {
					m.StockoutPeriods++
				}
			}

			pol := cfg.Policies[i]
			position := onHand[i] + outstanding[i] - backlog[i]
			q, placed := pol.OrderQty(position)
			if cap := net.Items[i].Capacity; cap > 0 && q > cap {
				q = cap
			}
			if placed && q > 0 {
				order[i] = q
				if pol.FixedCost > 0 {
					m.FixedCost += pol.FixedCost
				}
				for _, ei := range net.componentEdges[i] {
					requested[ei] = net.edges[ei].units * q
				}
			}
		}

		// Phase B: each supplier splits its on-hand across this period's
		// requests in one pass.
		for c := 0; c < nItems; c++ {
			edges := net.consumerEdges[c]
			if len(edges) == 0 {
				continue
			}
			total := 0.0
			for _, ei := range edges {
				total += requested[ei]
			}
			if total <= 0 {
				continue
			}
			avail := onHand[c]
			explicit := net.edges[edges[0]].allocation > 0
			if explicit {
				for _, ei := range edges {
					shipped[ei] = math.Min(requested[ei], net.edges[ei].allocation*avail)
				}
			} else if total <= avail {
				for _, ei := range edges {
					shipped[ei] = requested[ei]
				}
			} else {
				scale := avail / total
				for _, ei := range edges {
					shipped[ei] = requested[ei] * scale
				}
			}
			served := 0.0
			for _, ei := range edges {
				served += shipped[ei]
			}
			if served < total-1e-9 {
				unserved[c] = total - served
			}
		}

		// Phase C: ordering items receive the assembly-feasible minimum
		// over their components; consumed stock is withdrawn at the source.
		for p := 0; p < nItems; p++ {
			if order[p] <= 0 {
				continue
			}
			received := order[p]
			comps := net.componentEdges[p]
			for _, ei := range comps {
				received = math.Min(received, shipped[ei]/net.edges[ei].units)
			}
			if received <= 0 {
				continue
			}
			for _, ei := range comps {
				// Only matched component sets leave the child; any excess
				// a sibling component could not match stays on hand.
				child := net.edges[ei].child
				onHand[child] -= net.edges[ei].units * received
			}
			// Arrivals land at the start of period t+LT+1, the earliest
			// period whose demand the order can cover. The +1 is the review
			// lag: period t's demand was served before the order was placed.
			arrivals[p][t+net.Items[p].LeadTime+1] += received
			outstanding[p] += received
		}

		// Cost accounting and the marginal-cost gradient signal.
		for i := 0; i < nItems; i++ {
			if math.IsNaN(onHand[i]) || onHand[i] < -1e-6 {
				return fmt.Errorf("%w: item %q on-hand became invalid (%.6f) in period %d",
					ErrSimulationFailure, net.Name(i), onHand[i], t)
			}
			it := net.Items[i]
			m.HoldingCost += it.HoldingCost * math.Max(onHand[i], 0)
			m.BackorderCost += it.StockoutCost * backlog[i]
			if backlog[i] > 0 || unserved[i] > 0 {
				grad[i] -= it.StockoutCost
			} else {
				grad[i] += it.HoldingCost
			}
			m.OnHand[i] = append(m.OnHand[i], onHand[i])
			m.Backlog[i] = append(m.Backlog[i], backlog[i])
		}
	}
	return nil
}

// InitialBaseStockLevels seeds an order-up-to level per item from its
// echelon lead time and propagated demand, covering ELT+1 periods:
// S = mu*(ELT+1) + z*sigma*sqrt(ELT+1).
func InitialBaseStockLevels(net *Network, z float64) []float64 {
	mu, sigma := net.PropagatedDemand()
	elt := net.EchelonLeadTimes()
	levels := make([]float64, net.Len())
	for i := range levels {
		cover := float64(elt[i] + 1) // lead time plus the review period
		levels[i] = mu[i]*cover + z*sigma[i]*math.Sqrt(cover)
		if levels[i] < 0 {
			levels[i] = 0
		}
	}
	return levels
}

// LocalBaseStockLevels converts echelon order-up-to levels to local ones:
// an item's local level is its echelon level minus its consumers' levels.
func LocalBaseStockLevels(net *Network, echelon []float64) []float64 {
	local := make([]float64, len(echelon))
	copy(local, echelon)
	for i := range echelon {
		for _, ei := range net.consumerEdges[i] {
			local[i] -= echelon[net.edges[ei].parent]
		}
	}
	return local
}
