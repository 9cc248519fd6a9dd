package meio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLearningRate_SweepShape(t *testing.T) {
	net := optimizerNetwork(t)

	res, err := FindLearningRate(net, LRFinderConfig{
		LRMin:         1e-4,
		LRMax:         5,
		NumIterations: 40,
		Sim:           SimulationConfig{NSamples: 10, NPeriods: 30, Seed: 21},
		InitialLevels: []float64{60},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.LearningRates)
	assert.Equal(t, len(res.LearningRates), len(res.Costs))
	assert.Equal(t, len(res.LearningRates), len(res.SmoothedCosts))

	// Rates grow strictly, starting at the floor.
	assert.InDelta(t, 1e-4, res.LearningRates[0], 1e-12)
	for k := 1; k < len(res.LearningRates); k++ {
		assert.Greater(t, res.LearningRates[k], res.LearningRates[k-1])
	}

	// The suggestion is one of the swept rates.
	found := false
	for _, lr := range res.LearningRates {
		if lr == res.SuggestedLR {
			found = true
			break
		}
	}
	assert.True(t, found, "suggested lr %v not in the sweep", res.SuggestedLR)
}

func TestFindLearningRate_Validation(t *testing.T) {
	net := optimizerNetwork(t)
	sim := SimulationConfig{NSamples: 2, NPeriods: 10, Seed: 1}

	_, err := FindLearningRate(net, LRFinderConfig{LRMin: 5, LRMax: 1, Sim: sim})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = FindLearningRate(net, LRFinderConfig{NumIterations: 1, Sim: sim})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = FindLearningRate(net, LRFinderConfig{Smoothing: 1.5, Sim: sim})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = FindLearningRate(net, LRFinderConfig{InitialLevels: []float64{1, 2}, Sim: sim})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFindLearningRate_Deterministic(t *testing.T) {
	net := optimizerNetwork(t)
	cfg := LRFinderConfig{
		LRMin: 1e-3, LRMax: 2, NumIterations: 25,
		Sim: SimulationConfig{NSamples: 5, NPeriods: 20, Seed: 8},
	}

	a, err := FindLearningRate(net, cfg)
	require.NoError(t, err)
	b, err := FindLearningRate(net, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.SuggestedLR, b.SuggestedLR)
	assert.Equal(t, a.Costs, b.Costs)
}

func TestOneCycleSchedule_Endpoints(t *testing.T) {
	const maxLR = 1.0
	s := NewOneCycleSchedule(maxLR, 0.85, 0.95, 100)

	assert.InDelta(t, maxLR/25, s.LR(0), 1e-12)
	assert.InDelta(t, maxLR, s.LR(50), 1e-12)
	assert.InDelta(t, 0, s.LR(99), 1e-12)

	// Momentum runs inverse to the learning rate.
	assert.InDelta(t, 0.95, s.Momentum(0), 1e-12)
	assert.InDelta(t, 0.85, s.Momentum(50), 1e-12)
	assert.InDelta(t, 0.95, s.Momentum(99), 1e-12)
}

func TestOneCycleSchedule_WarmupIsMonotone(t *testing.T) {
	s := NewOneCycleSchedule(2.0, 0.85, 0.95, 60)
	for k := 1; k < 30; k++ {
		assert.Greater(t, s.LR(k), s.LR(k-1), "warmup lr fell at step %d", k)
		assert.Less(t, s.Momentum(k), s.Momentum(k-1), "warmup momentum rose at step %d", k)
	}
	for k := 31; k < 60; k++ {
		assert.Less(t, s.LR(k), s.LR(k-1), "annealing lr rose at step %d", k)
		assert.Greater(t, s.Momentum(k), s.Momentum(k-1), "annealing momentum fell at step %d", k)
	}
}

func TestOneCycleSchedule_ClampsOutOfRange(t *testing.T) {
	s := NewOneCycleSchedule(1.0, 0.85, 0.95, 10)
	assert.Equal(t, s.LR(0), s.LR(-5))
	assert.Equal(t, s.LR(9), s.LR(50))
}
