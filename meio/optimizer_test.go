package meio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optimizerNetwork(t *testing.T) *Network {
	t.Helper()
	items := []Item{
		{Name: "widget", HoldingCost: 1, StockoutCost: 9, AvgDemand: 100, DemandStd: 10, LeadTime: 0},
	}
	net, err := Build(items, nil)
	require.NoError(t, err)
	return net
}

func optimizerSim() SimulationConfig {
	return SimulationConfig{NSamples: 30, NPeriods: 60, Seed: 42}
}

func TestOptimize_RejectsBadConfig(t *testing.T) {
	net := optimizerNetwork(t)

	_, err := Optimize(net, OptimizerConfig{Algorithm: "newton", Sim: optimizerSim()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Optimize(net, OptimizerConfig{Estimator: "spsa", Sim: optimizerSim()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Optimize(net, OptimizerConfig{Schedule: "onecycle", Algorithm: AlgorithmSGD, Sim: optimizerSim()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Optimize(net, OptimizerConfig{LearningRate: -1, Sim: optimizerSim()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Optimize(net, OptimizerConfig{InitialLevels: []float64{1, 2}, Sim: optimizerSim()})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOptimize_AdamApproachesNewsvendorLevel(t *testing.T) {
	// b=9, h=1 gives a critical ratio of 0.9; with lead time 0 the optimal
	// order-up-to level is mu + z(0.9)*sigma = 100 + 1.2816*10 ~ 112.8.
	net := optimizerNetwork(t)

	res, err := Optimize(net, OptimizerConfig{
		Algorithm:     AlgorithmAdam,
		LearningRate:  2.0,
		MaxIterations: 150,
		Sim:           optimizerSim(),
		InitialLevels: []float64{60},
	})
	require.NoError(t, err)
	require.Len(t, res.BestLevels, 1)

	assert.InDelta(t, 112.8, res.BestLevels[0], 12.0)
	assert.Greater(t, res.Iterations, 1)
	assert.NotEmpty(t, res.History)
}

func TestOptimize_ReducesCostFromStart(t *testing.T) {
	net := optimizerNetwork(t)

	res, err := Optimize(net, OptimizerConfig{
		Algorithm:     AlgorithmMomentum,
		LearningRate:  1.0,
		MaxIterations: 80,
		Sim:           optimizerSim(),
		InitialLevels: []float64{60},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.History)
	assert.Less(t, res.BestCost, res.History[0].Cost)
}

func TestOptimize_SGDRuns(t *testing.T) {
	net := optimizerNetwork(t)

	res, err := Optimize(net, OptimizerConfig{
		Algorithm:     AlgorithmSGD,
		LearningRate:  0.5,
		MaxIterations: 50,
		Sim:           optimizerSim(),
	})
	require.NoError(t, err)
	assert.Greater(t, res.Iterations, 0)
	for _, s := range res.BestLevels {
		assert.GreaterOrEqual(t, s, 0.0)
	}
}

func TestOptimize_FiniteDifferenceMatchesMarginalDirection(t *testing.T) {
	net := optimizerNetwork(t)

	res, err := Optimize(net, OptimizerConfig{
		Estimator:     EstimatorFiniteDifference,
		FDStep:        2.0,
		LearningRate:  2.0,
		MaxIterations: 40,
		Sim:           optimizerSim(),
		InitialLevels: []float64{60},
	})
	require.NoError(t, err)
	// Starting understocked, any sane gradient walks the level up.
	assert.Greater(t, res.BestLevels[0], 60.0)
}

func TestOptimize_Deterministic(t *testing.T) {
	net := optimizerNetwork(t)
	cfg := OptimizerConfig{
		Algorithm:     AlgorithmAdam,
		MaxIterations: 30,
		Sim:           optimizerSim(),
	}

	a, err := Optimize(net, cfg)
	require.NoError(t, err)
	b, err := Optimize(net, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.BestLevels, b.BestLevels)
	assert.Equal(t, a.BestCost, b.BestCost)
	assert.Equal(t, a.Iterations, b.Iterations)
}

func TestOptimize_HistoryRecordsLevels(t *testing.T) {
	net := optimizerNetwork(t)

	res, err := Optimize(net, OptimizerConfig{
		MaxIterations: 10,
		Tolerance:     1e-12,
		Sim:           optimizerSim(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.History)

	for k, rec := range res.History {
		assert.Equal(t, k, rec.Iteration)
		assert.Len(t, rec.Levels, net.Len())
	}
	// Snapshots are copies, not aliases of the working vector.
	if len(res.History) >= 2 {
		assert.NotSame(t, &res.History[0].Levels[0], &res.History[1].Levels[0])
	}
}

func TestOptimize_OneCycleScheduleRuns(t *testing.T) {
	net := optimizerNetwork(t)

	res, err := Optimize(net, OptimizerConfig{
		Algorithm:     AlgorithmAdam,
		Schedule:      "onecycle",
		LearningRate:  2.0,
		MaxIterations: 60,
		Sim:           optimizerSim(),
		InitialLevels: []float64{60},
	})
	require.NoError(t, err)
	assert.Greater(t, res.BestLevels[0], 60.0)
}

func TestOptimize_LocalLevelsDerivedFromBest(t *testing.T) {
	items := []Item{
		{Name: "component", HoldingCost: 1, LeadTime: 1},
		{Name: "product", HoldingCost: 2, StockoutCost: 20, AvgDemand: 50, DemandStd: 5, LeadTime: 1},
	}
	edges := []BOMEdge{{Child: "component", Parent: "product", Units: 1}}
	net, err := Build(items, edges)
	require.NoError(t, err)

	res, err := Optimize(net, OptimizerConfig{
		MaxIterations: 20,
		Sim:           SimulationConfig{NSamples: 10, NPeriods: 40, Seed: 9},
	})
	require.NoError(t, err)

	comp, _ := net.Index("component")
	prod, _ := net.Index("product")
	assert.InDelta(t, res.BestLevels[comp]-res.BestLevels[prod], res.LocalLevels[comp], 1e-9)
	assert.Equal(t, res.BestLevels[prod], res.LocalLevels[prod])
}
