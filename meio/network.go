package meio

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// allocation fractions from one item may overshoot 1.0 by at most this much
const allocationEpsilon = 1e-9

var validate = validator.New()

// Item is one node of the BOM network: a product, intermediate or raw
// material held at a single stocking point.
type Item struct {
	Name         string  `json:"name" yaml:"name" validate:"required"`
	HoldingCost  float64 `json:"h" yaml:"h" validate:"gte=0"`
	StockoutCost float64 `json:"b" yaml:"b" validate:"gte=0"`
	AvgDemand    float64 `json:"avg_demand" yaml:"avg_demand" validate:"gte=0"`
	DemandStd    float64 `json:"demand_std" yaml:"demand_std" validate:"gte=0"`
	LeadTime     int     `json:"lead_time" yaml:"lead_time" validate:"gte=0"`
	// Capacity is the per-period production capacity; zero or negative
	// means unbounded.
	Capacity float64 `json:"capacity" yaml:"capacity"`
	// ProcTime and the service-time bounds are consumed by the
	// guaranteed-service solvers.
	ProcTime      int `json:"proc_time" yaml:"proc_time" validate:"gte=0"`
	ServiceTimeLB int `json:"lead_time_lb" yaml:"lead_time_lb" validate:"gte=0"`
	ServiceTimeUB int `json:"lead_time_ub" yaml:"lead_time_ub" validate:"gte=0"`
}

// BOMEdge is a directed consumption relation: Units of Child go into one
// unit of Parent. Allocation, when set, fixes the fraction of the child's
// output reserved for this parent; zero means pro-rata at simulation time.
type BOMEdge struct {
	Child      string  `json:"child" yaml:"child" validate:"required"`
	Parent     string  `json:"parent" yaml:"parent" validate:"required"`
	Units      float64 `json:"units" yaml:"units" validate:"gt=0"`
	Allocation float64 `json:"allocation" yaml:"allocation" validate:"gte=0,lte=1"`
}

// resolvedEdge is a BOMEdge with names resolved to arena indices.
type resolvedEdge struct {
	child, parent int
	units         float64
	allocation    float64
}

// Network is the validated BOM graph over which all solvers operate.
// Items are addressed by arena index (position in Items); the name→index
// mapping is fixed at Build time. A Network is immutable after Build and
// must not be shared across concurrent mutating calls.
type Network struct {
	Items []Item

	index map[string]int
	edges []resolvedEdge
	// consumerEdges[i] lists edge indices with child == i (toward parents);
	// componentEdges[i] lists edge indices with parent == i (toward children).
	consumerEdges  [][]int
	componentEdges [][]int
	// topo holds a children-first order (every child precedes its parents).
	topo   []int
	isTree bool
}

// Build validates items and edges and constructs the network.
// Structural problems are reported before any solver runs: field-level
// violations and reference errors as ErrValidation, cycles as ErrCycle.
func Build(items []Item, edges []BOMEdge) (*Network, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items given", ErrValidation)
	}

	index := make(map[string]int, len(items))
	hasDemand := false
	for i, it := range items {
		if err := validate.Struct(it); err != nil {
			return nil, fmt.Errorf("%w: item %q: %v", ErrValidation, it.Name, err)
		}
		if _, dup := index[it.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate item name %q", ErrValidation, it.Name)
		}
		index[it.Name] = i
		if it.AvgDemand > 0 {
			hasDemand = true
		}
	}
	if !hasDemand {
		return nil, fmt.Errorf("%w: no item has positive average demand", ErrValidation)
	}

	net := &Network{
		Items:          items,
		index:          index,
		consumerEdges:  make([][]int, len(items)),
		componentEdges: make([][]int, len(items)),
	}

	allocSum := make([]float64, len(items))
	allocCount := make([]int, len(items))
	for _, e := range edges {
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("%w: edge %s->%s: %v", ErrValidation, e.Child, e.Parent, err)
		}
		c, ok := index[e.Child]
		if !ok {
			return nil, fmt.Errorf("%w: edge references unknown item %q", ErrValidation, e.Child)
		}
		p, ok := index[e.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: edge references unknown item %q", ErrValidation, e.Parent)
		}
		if c == p {
			return nil, fmt.Errorf("%w: self-loop on item %q", ErrValidation, e.Child)
		}
		ei := len(net.edges)
		net.edges = append(net.edges, resolvedEdge{child: c, parent: p, units: e.Units, allocation: e.Allocation})
		net.consumerEdges[c] = append(net.consumerEdges[c], ei)
		net.componentEdges[p] = append(net.componentEdges[p], ei)
		if e.Allocation > 0 {
			allocSum[c] += e.Allocation
			allocCount[c]++
		}
	}

	for i := range items {
		if allocSum[i] > 1+allocationEpsilon {
			return nil, fmt.Errorf("%w: item %q allocates %.4f > 1 across its parents",
				ErrValidation, items[i].Name, allocSum[i])
		}
		// Explicit fractions must cover all of an item's outgoing edges or
		// none of them; a mix would make the pro-rata fallback ambiguous.
		if allocCount[i] != 0 && allocCount[i] != len(net.consumerEdges[i]) {
			return nil, fmt.Errorf("%w: item %q sets allocation on some but not all of its parent edges",
				ErrValidation, items[i].Name)
		}
	}

	topo, err := topologicalOrder(len(items), net.edges)
	if err != nil {
		return nil, err
	}
	net.topo = topo

	// Tree in the parent direction: every item supplies at most one parent.
	net.isTree = true
	for i := range items {
		if len(net.consumerEdges[i]) > 1 {
			net.isTree = false
			break
		}
	}
	return net, nil
}

// topologicalOrder runs Kahn's algorithm over child→parent edges, producing
// children before parents. Returns ErrCycle when no valid order exists.
func topologicalOrder(n int, edges []resolvedEdge) ([]int, error) {
	indeg := make([]int, n)
	out := make([][]int, n)
	for _, e := range edges {
		indeg[e.parent]++
		out[e.child] = append(out[e.child], e.parent)
	}
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]int, 0, n)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, p := range out[i] {
			indeg[p]--
			if indeg[p] == 0 {
				queue = append(queue, p)
			}
		}
	}
	if len(order) != n {
		return nil, fmt.Errorf("%w: BOM graph has no topological order", ErrCycle)
	}
	return order, nil
}

// Len returns the number of items.
func (n *Network) Len() int { return len(n.Items) }

// Index resolves an item name to its arena index.
func (n *Network) Index(name string) (int, bool) {
	i, ok := n.index[name]
	return i, ok
}

// Name returns the name of item i.
func (n *Network) Name(i int) string { return n.Items[i].Name }

// TopologicalOrder returns the items in dependency order, children before
// parents. The slice is a copy; callers may reorder it freely.
func (n *Network) TopologicalOrder() []int {
	out := make([]int, len(n.topo))
	copy(out, n.topo)
	return out
}

// IsTree reports whether every item supplies at most one parent, which is
// what the exact guaranteed-service solver requires.
func (n *Network) IsTree() bool { return n.isTree }

// EndItems returns the indices of demand-generating items (AvgDemand > 0).
func (n *Network) EndItems() []int {
	var out []int
	for i := range n.Items {
		if n.Items[i].AvgDemand > 0 {
			out = append(out, i)
		}
	}
	return out
}

// EchelonLeadTimes returns, per item, the item's own lead time plus the
// maximum echelon lead time among its children: the upper bound on the
// coverage time the echelon rooted at the item must absorb.
func (n *Network) EchelonLeadTimes() []int {
	elt := make([]int, len(n.Items))
	for _, i := range n.topo {
		maxChild := 0
		for _, ei := range n.componentEdges[i] {
			if c := elt[n.edges[ei].child]; c > maxChild {
				maxChild = c
			}
		}
		elt[i] = n.Items[i].LeadTime + maxChild
	}
	return elt
}

// PropagatedDemand pushes end-item demand statistics upstream through the
// BOM: a child's mean demand accumulates units × each parent's mean, and
// variances add under the independence assumption. Items with their own
// external demand keep it in addition to derived demand.
func (n *Network) PropagatedDemand() (mu, sigma []float64) {
	nItems := len(n.Items)
	mu = make([]float64, nItems)
	variance := make([]float64, nItems)
	for i, it := range n.Items {
		mu[i] = it.AvgDemand
		variance[i] = it.DemandStd * it.DemandStd
	}
	// Reverse topological order: parents settle before their children.
	for k := len(n.topo) - 1; k >= 0; k-- {
		p := n.topo[k]
		for _, ei := range n.componentEdges[p] {
			e := n.edges[ei]
			mu[e.child] += e.units * mu[p]
			variance[e.child] += e.units * e.units * variance[p]
		}
	}
	sigma = make([]float64, nItems)
	for i := range variance {
		sigma[i] = math.Sqrt(variance[i])
	}
	return mu, sigma
}
