package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meio-sim/meio-sim/meio"
)

var (
	scenarioPath string // Path to the YAML scenario file
	logLevel     string // Log verbosity level

	// CLI flags for the eoq subcommand
	eoqOrderCost     float64 // Fixed cost per order placed
	eoqDemandRate    float64 // Demand per period
	eoqHoldingCost   float64 // Holding cost per unit per period
	eoqBackorderCost float64 // Backorder cost per unit per period; 0 forbids backorders
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "meio-sim",
	Short: "Multi-echelon safety-stock and replenishment optimization",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// emit writes a report as indented JSON on stdout.
func emit(v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logrus.Fatalf("encoding result: %v", err)
	}
	fmt.Println(string(raw))
}

// fail emits a structured error report and exits non-zero.
func fail(err error) {
	emit(meio.ErrorResult(err))
	os.Exit(1)
}

// loadNetwork reads the scenario and builds its network, failing the run on
// any validation problem.
func loadNetwork() (*Scenario, *meio.Network) {
	sc, err := LoadScenario(scenarioPath)
	if err != nil {
		logrus.Fatalf("unable to read scenario: %v", err)
	}
	net, err := sc.BuildNetwork()
	if err != nil {
		fail(err)
	}
	return sc, net
}

var gstCmd = &cobra.Command{
	Use:   "gst",
	Short: "Solve exact guaranteed service times on a tree network",
	Run: func(cmd *cobra.Command, args []string) {
		sc, net := loadNetwork()
		sol, err := meio.SolveGST(net, sc.GST)
		if err != nil {
			fail(err)
		}
		logrus.Infof("exact solve done: total safety-stock cost %.2f", sol.TotalCost)
		emit(meio.NewGSTReport(net, sol))
	},
}

var tabuCmd = &cobra.Command{
	Use:   "tabu",
	Short: "Search coverage times on a general acyclic network",
	Run: func(cmd *cobra.Command, args []string) {
		sc, net := loadNetwork()
		sol, err := meio.SolveTabu(net, sc.Tabu)
		if err != nil {
			fail(err)
		}
		logrus.Infof("tabu search done: %d iterations, best cost %.2f", sol.Iterations, sol.BestCost)
		emit(meio.NewTabuReport(net, sol))
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate replenishment policies over the network",
	Run: func(cmd *cobra.Command, args []string) {
		sc, net := loadNetwork()
		cfg := sc.Simulation
		cfg.Policies = sc.SimulationPolicies(net)
		res, err := meio.Simulate(net, cfg)
		if err != nil {
			fail(err)
		}
		logrus.Infof("simulation done: avg cost %.2f, service level %.4f", res.AverageCost, res.ServiceLevel)
		emit(meio.NewSimulationReport(net, res))
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Optimize base-stock levels by simulation gradient descent",
	Run: func(cmd *cobra.Command, args []string) {
		sc, net := loadNetwork()
		res, err := meio.Optimize(net, sc.Optimizer)
		if err != nil {
			fail(err)
		}
		logrus.Infof("optimization done: best cost %.2f after %d iterations", res.BestCost, res.Iterations)
		emit(meio.NewOptimizeReport(net, res))
	},
}

var lrfindCmd = &cobra.Command{
	Use:   "lrfind",
	Short: "Sweep learning rates and suggest one for the optimizer",
	Run: func(cmd *cobra.Command, args []string) {
		sc, net := loadNetwork()
		res, err := meio.FindLearningRate(net, sc.LRFinder)
		if err != nil {
			fail(err)
		}
		logrus.Infof("lr sweep done: suggested lr %.4g", res.SuggestedLR)
		emit(meio.NewLRFinderReport(res))
	},
}

var eoqCmd = &cobra.Command{
	Use:   "eoq",
	Short: "Compute the economic order quantity for one item",
	Run: func(cmd *cobra.Command, args []string) {
		res, err := meio.EOQ(eoqOrderCost, eoqDemandRate, eoqHoldingCost, eoqBackorderCost)
		if err != nil {
			fail(err)
		}
		emit(res)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	for _, c := range []*cobra.Command{gstCmd, tabuCmd, simulateCmd, optimizeCmd, lrfindCmd} {
		c.Flags().StringVar(&scenarioPath, "scenario", "scenario.yaml", "Path to the YAML scenario file")
		rootCmd.AddCommand(c)
	}

	eoqCmd.Flags().Float64Var(&eoqOrderCost, "order-cost", 100, "Fixed cost per order placed")
	eoqCmd.Flags().Float64Var(&eoqDemandRate, "demand", 1000, "Demand per period")
	eoqCmd.Flags().Float64Var(&eoqHoldingCost, "holding", 1, "Holding cost per unit per period")
	eoqCmd.Flags().Float64Var(&eoqBackorderCost, "backorder", 0, "Backorder cost per unit per period (0 forbids backorders)")
	rootCmd.AddCommand(eoqCmd)
}
