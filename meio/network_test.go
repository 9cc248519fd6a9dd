package meio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainItems() []Item {
	return []Item{
		{Name: "raw", HoldingCost: 1, LeadTime: 3, ProcTime: 1, ServiceTimeUB: 2},
		{Name: "sub", HoldingCost: 2, LeadTime: 2, ProcTime: 2, ServiceTimeUB: 4},
		{Name: "finished", HoldingCost: 4, StockoutCost: 50, AvgDemand: 100, DemandStd: 20,
			LeadTime: 1, ProcTime: 2, ServiceTimeUB: 5},
	}
}

func chainEdges() []BOMEdge {
	return []BOMEdge{
		{Child: "raw", Parent: "sub", Units: 2},
		{Child: "sub", Parent: "finished", Units: 1},
	}
}

func TestBuild_ValidChain(t *testing.T) {
	net, err := Build(chainItems(), chainEdges())
	require.NoError(t, err)
	assert.Equal(t, 3, net.Len())
	assert.True(t, net.IsTree())

	i, ok := net.Index("sub")
	require.True(t, ok)
	assert.Equal(t, "sub", net.Name(i))

	_, ok = net.Index("nope")
	assert.False(t, ok)
}

func TestBuild_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		edges []BOMEdge
		want  error
	}{
		{
			name: "no items",
			want: ErrValidation,
		},
		{
			name:  "duplicate names",
			items: []Item{{Name: "a", AvgDemand: 1}, {Name: "a"}},
			want:  ErrValidation,
		},
		{
			name:  "negative holding cost",
			items: []Item{{Name: "a", AvgDemand: 1, HoldingCost: -1}},
			want:  ErrValidation,
		},
		{
			name:  "no demand anywhere",
			items: []Item{{Name: "a"}, {Name: "b"}},
			want:  ErrValidation,
		},
		{
			name:  "unknown edge reference",
			items: []Item{{Name: "a", AvgDemand: 1}},
			edges: []BOMEdge{{Child: "ghost", Parent: "a", Units: 1}},
			want:  ErrValidation,
		},
		{
			name:  "zero units",
			items: []Item{{Name: "a", AvgDemand: 1}, {Name: "b"}},
			edges: []BOMEdge{{Child: "b", Parent: "a", Units: 0}},
			want:  ErrValidation,
		},
		{
			name:  "self loop",
			items: []Item{{Name: "a", AvgDemand: 1}},
			edges: []BOMEdge{{Child: "a", Parent: "a", Units: 1}},
			want:  ErrValidation,
		},
		{
			name:  "allocation above one",
			items: []Item{{Name: "c"}, {Name: "p1", AvgDemand: 1}, {Name: "p2", AvgDemand: 1}},
			edges: []BOMEdge{
				{Child: "c", Parent: "p1", Units: 1, Allocation: 0.7},
				{Child: "c", Parent: "p2", Units: 1, Allocation: 0.7},
			},
			want: ErrValidation,
		},
		{
			name:  "partial explicit allocation",
			items: []Item{{Name: "c"}, {Name: "p1", AvgDemand: 1}, {Name: "p2", AvgDemand: 1}},
			edges: []BOMEdge{
				{Child: "c", Parent: "p1", Units: 1, Allocation: 0.5},
				{Child: "c", Parent: "p2", Units: 1},
			},
			want: ErrValidation,
		},
		{
			name:  "cycle",
			items: []Item{{Name: "a", AvgDemand: 1}, {Name: "b"}},
			edges: []BOMEdge{
				{Child: "a", Parent: "b", Units: 1},
				{Child: "b", Parent: "a", Units: 1},
			},
			want: ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.items, tt.edges)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNetwork_TopologicalOrder(t *testing.T) {
	net, err := Build(chainItems(), chainEdges())
	require.NoError(t, err)

	topo := net.TopologicalOrder()
	pos := make(map[string]int)
	for k, i := range topo {
		pos[net.Name(i)] = k
	}
	assert.Less(t, pos["raw"], pos["sub"])
	assert.Less(t, pos["sub"], pos["finished"])
}

func TestNetwork_DiamondIsNotATree(t *testing.T) {
	items := []Item{
		{Name: "base"},
		{Name: "left", AvgDemand: 10, DemandStd: 2},
		{Name: "right", AvgDemand: 5, DemandStd: 1},
	}
	edges := []BOMEdge{
		{Child: "base", Parent: "left", Units: 1},
		{Child: "base", Parent: "right", Units: 1},
	}
	net, err := Build(items, edges)
	require.NoError(t, err)
	assert.False(t, net.IsTree())
	assert.ElementsMatch(t, []int{1, 2}, net.EndItems())
}

func TestNetwork_EchelonLeadTimes(t *testing.T) {
	net, err := Build(chainItems(), chainEdges())
	require.NoError(t, err)

	elt := net.EchelonLeadTimes()
	raw, _ := net.Index("raw")
	sub, _ := net.Index("sub")
	fin, _ := net.Index("finished")
	assert.Equal(t, 3, elt[raw])
	assert.Equal(t, 5, elt[sub])
	assert.Equal(t, 6, elt[fin])
}

func TestNetwork_PropagatedDemand(t *testing.T) {
	net, err := Build(chainItems(), chainEdges())
	require.NoError(t, err)

	mu, sigma := net.PropagatedDemand()
	raw, _ := net.Index("raw")
	sub, _ := net.Index("sub")
	fin, _ := net.Index("finished")

	assert.InDelta(t, 100.0, mu[fin], 1e-12)
	assert.InDelta(t, 20.0, sigma[fin], 1e-12)
	// sub consumes 1 per finished unit; raw consumes 2 per sub unit.
	assert.InDelta(t, 100.0, mu[sub], 1e-12)
	assert.InDelta(t, 20.0, sigma[sub], 1e-12)
	assert.InDelta(t, 200.0, mu[raw], 1e-12)
	assert.InDelta(t, 40.0, sigma[raw], 1e-12)
}

func TestNetwork_PropagatedDemand_SharedComponent(t *testing.T) {
	items := []Item{
		{Name: "base"},
		{Name: "left", AvgDemand: 10, DemandStd: 3},
		{Name: "right", AvgDemand: 5, DemandStd: 4},
	}
	edges := []BOMEdge{
		{Child: "base", Parent: "left", Units: 2},
		{Child: "base", Parent: "right", Units: 1},
	}
	net, err := Build(items, edges)
	require.NoError(t, err)

	mu, sigma := net.PropagatedDemand()
	base, _ := net.Index("base")
	assert.InDelta(t, 25.0, mu[base], 1e-12)
	// var = 4*9 + 1*16 = 52
	assert.InDelta(t, 52.0, sigma[base]*sigma[base], 1e-9)
}
