package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleScenario = `
items:
  - name: raw
    h: 1
    lead_time: 3
  - name: finished
    h: 4
    b: 50
    avg_demand: 100
    demand_std: 20
    lead_time: 1
edges:
  - child: raw
    parent: finished
    units: 2
gst:
  z: 1.65
tabu:
  max_iter: 40
  tenure: 5
simulation:
  n_samples: 25
  n_periods: 60
  seed: 7
optimizer:
  algorithm: adam
  learning_rate: 2.0
  max_iterations: 30
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, sampleScenario))
	require.NoError(t, err)

	require.Len(t, sc.Items, 2)
	assert.Equal(t, 1.65, sc.GST.Z)
	assert.Equal(t, 40, sc.Tabu.MaxIter)
	assert.Equal(t, 25, sc.Simulation.NSamples)
	assert.Equal(t, int64(7), sc.Simulation.Seed)
	assert.Equal(t, "adam", string(sc.Optimizer.Algorithm))
}

func TestLoadScenario_Defaults(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, sampleScenario))
	require.NoError(t, err)

	// proc_time falls back to lead_time and the service window spans it.
	assert.Equal(t, 3, sc.Items[0].ProcTime)
	assert.Equal(t, 3, sc.Items[0].ServiceTimeUB)
	assert.Equal(t, 1, sc.Items[1].ProcTime)

	// The optimizer inherits the simulation section when it sets none.
	assert.Equal(t, 25, sc.Optimizer.Sim.NSamples)
	assert.Equal(t, int64(7), sc.Optimizer.Sim.Seed)
	assert.Equal(t, 25, sc.LRFinder.Sim.NSamples)
}

func TestLoadScenario_Errors(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadScenario(writeScenario(t, "items: [not a mapping"))
	assert.Error(t, err)
}

func TestScenario_BuildNetworkAndPolicies(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, sampleScenario))
	require.NoError(t, err)

	net, err := sc.BuildNetwork()
	require.NoError(t, err)
	assert.Equal(t, 2, net.Len())

	policies := sc.SimulationPolicies(net)
	require.Len(t, policies, 2)
	for _, p := range policies {
		assert.NoError(t, p.Validate())
		assert.Greater(t, p.BaseStock, 0.0)
	}
}

func TestLoadScenario_EmptySimulationGetsDefaults(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, `
items:
  - name: only
    h: 1
    b: 10
    avg_demand: 50
    demand_std: 5
    lead_time: 2
`))
	require.NoError(t, err)
	assert.Equal(t, 100, sc.Simulation.NSamples)
	assert.Equal(t, 100, sc.Simulation.NPeriods)
}
