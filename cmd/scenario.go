package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meio-sim/meio-sim/meio"
)

// Scenario is the YAML input shared by all subcommands: the network plus
// per-solver configuration sections, each optional.
type Scenario struct {
	Items []meio.Item    `yaml:"items"`
	Edges []meio.BOMEdge `yaml:"edges"`

	GST        meio.GSTConfig        `yaml:"gst"`
	Tabu       meio.TabuConfig       `yaml:"tabu"`
	Simulation meio.SimulationConfig `yaml:"simulation"`
	Optimizer  meio.OptimizerConfig  `yaml:"optimizer"`
	LRFinder   meio.LRFinderConfig   `yaml:"lr_finder"`
}

// LoadScenario reads and parses a scenario file, then fills the defaults a
// hand-written file usually omits.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}
	sc.applyDefaults()
	return &sc, nil
}

// applyDefaults fills per-item solver fields from the simulation-facing
// ones: an item that only declares a lead time gets that as its processing
// time, and an unset service-time window spans the full processing time.
func (sc *Scenario) applyDefaults() {
	for i := range sc.Items {
		it := &sc.Items[i]
		if it.ProcTime == 0 {
			it.ProcTime = it.LeadTime
		}
		if it.ServiceTimeLB == 0 && it.ServiceTimeUB == 0 {
			it.ServiceTimeUB = it.ProcTime
		}
	}
	if sc.Simulation.NSamples == 0 {
		sc.Simulation.NSamples = 100
	}
	if sc.Simulation.NPeriods == 0 {
		sc.Simulation.NPeriods = 100
	}
	// The optimizer and lr finder run simulations of their own; unless the
	// scenario overrides them they reuse the simulation section.
	if sc.Optimizer.Sim.NSamples == 0 {
		sc.Optimizer.Sim = sc.Simulation
	}
	if sc.LRFinder.Sim.NSamples == 0 {
		sc.LRFinder.Sim = sc.Simulation
	}
}

// BuildNetwork validates the scenario's items and edges.
func (sc *Scenario) BuildNetwork() (*meio.Network, error) {
	return meio.Build(sc.Items, sc.Edges)
}

// SimulationPolicies returns the scenario's policies, defaulting to
// newsvendor-seeded base-stock levels when the file gives none.
func (sc *Scenario) SimulationPolicies(net *meio.Network) []meio.Policy {
	if len(sc.Simulation.Policies) == net.Len() {
		return sc.Simulation.Policies
	}
	z := sc.GST.Z
	if z == 0 {
		z = meio.DefaultZ
	}
	levels := meio.InitialBaseStockLevels(net, z)
	policies := make([]meio.Policy, len(levels))
	for i, s := range levels {
		policies[i] = meio.BaseStockPolicy(s)
	}
	return policies
}
