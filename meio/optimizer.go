package meio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Algorithm selects the gradient update rule.
type Algorithm string

const (
	AlgorithmSGD      Algorithm = "sgd"
	AlgorithmMomentum Algorithm = "momentum"
	AlgorithmAdam     Algorithm = "adam"
)

// GradientEstimator selects how the cost gradient is obtained.
type GradientEstimator string

const (
	// EstimatorMarginal uses the per-item marginal-cost signal the
	// simulator accumulates alongside the cost itself (one simulation per
	// iteration).
	EstimatorMarginal GradientEstimator = "marginal"
	// EstimatorFiniteDifference perturbs each item's level by FDStep and
	// re-simulates (n+1 simulations per iteration).
	EstimatorFiniteDifference GradientEstimator = "finite_difference"
)

// OptimizerConfig groups the parameters of a base-stock optimization run.
// Zero values take the defaults noted per field.
type OptimizerConfig struct {
	// Algorithm is the update rule (default adam).
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`
	// LearningRate scales each step (default 1.0, in demand units).
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	// MaxIterations bounds the descent loop (default 100).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Beta1, Beta2 and Epsilon are the Adam moment decays and stabilizer
	// (defaults 0.9, 0.999, 1e-8).
	Beta1   float64 `json:"beta1" yaml:"beta1"`
	Beta2   float64 `json:"beta2" yaml:"beta2"`
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
	// Momentum is the velocity decay for the momentum rule (default 0.9).
	Momentum float64 `json:"momentum" yaml:"momentum"`
	// Tolerance stops the loop when the relative cost change over Window
	// iterations, or the gradient norm, falls below it (default 1e-5).
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
	// Window is the lookback span for the relative-change test (default 5).
	Window int `json:"window" yaml:"window"`
	// Estimator selects the gradient source (default marginal).
	Estimator GradientEstimator `json:"estimator" yaml:"estimator"`
	// FDStep is the finite-difference perturbation size (default 1.0).
	FDStep float64 `json:"fd_step" yaml:"fd_step"`
	// MaxConsecutiveFailures aborts after this many simulation errors in a
	// row (default 3).
	MaxConsecutiveFailures int `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	// Schedule names an optional learning-rate schedule; "onecycle"
	// requires the momentum or adam algorithm.
	Schedule string `json:"schedule" yaml:"schedule"`
	// CycleMomentumMin and CycleMomentumMax bound the one-cycle momentum
	// sweep (defaults 0.85 and 0.95).
	CycleMomentumMin float64 `json:"cycle_momentum_min" yaml:"cycle_momentum_min"`
	CycleMomentumMax float64 `json:"cycle_momentum_max" yaml:"cycle_momentum_max"`
	// Sim configures the simulation evaluated at each iterate. Its
	// Policies field is overwritten with base-stock policies at the
	// current levels; the Seed is reused every iteration so consecutive
	// iterates see common random numbers.
	Sim SimulationConfig `json:"sim" yaml:"sim"`
	// InitialLevels seeds the search; nil means InitialBaseStockLevels
	// with the default safety factor.
	InitialLevels []float64 `json:"initial_levels" yaml:"initial_levels"`
}

// IterationRecord snapshots one optimizer iteration for the result history.
type IterationRecord struct {
	Iteration    int       `json:"iteration"`
	Cost         float64   `json:"cost"`
	GradientNorm float64   `json:"gradient_norm"`
	Levels       []float64 `json:"levels"`
}

// OptimizerResult is the outcome of an optimization run. BestLevels is the
// lowest-cost iterate seen, which need not be the final one.
type OptimizerResult struct {
	BestLevels        []float64
	LocalLevels       []float64
	BestCost          float64
	Converged         bool
	FinalGradientNorm float64
	Iterations        int
	History           []IterationRecord
}

func (cfg *OptimizerConfig) applyDefaults(net *Network) error {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmAdam
	}
	switch cfg.Algorithm {
	case AlgorithmSGD, AlgorithmMomentum, AlgorithmAdam:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrValidation, cfg.Algorithm)
	}
	if cfg.Estimator == "" {
		cfg.Estimator = EstimatorMarginal
	}
	switch cfg.Estimator {
	case EstimatorMarginal, EstimatorFiniteDifference:
	default:
		return fmt.Errorf("%w: unknown gradient estimator %q", ErrValidation, cfg.Estimator)
	}
	if cfg.Schedule != "" && cfg.Schedule != "onecycle" {
		return fmt.Errorf("%w: unknown schedule %q", ErrValidation, cfg.Schedule)
	}
	if cfg.Schedule == "onecycle" && cfg.Algorithm == AlgorithmSGD {
		return fmt.Errorf("%w: the onecycle schedule needs momentum or adam", ErrValidation)
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 1.0
	}
	if cfg.LearningRate < 0 {
		return fmt.Errorf("%w: learning rate must be positive", ErrValidation)
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 100
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}
	if cfg.Momentum == 0 {
		cfg.Momentum = 0.9
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = 1e-5
	}
	if cfg.Window == 0 {
		cfg.Window = 5
	}
	if cfg.FDStep == 0 {
		cfg.FDStep = 1.0
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.CycleMomentumMin == 0 {
		cfg.CycleMomentumMin = 0.85
	}
	if cfg.CycleMomentumMax == 0 {
		cfg.CycleMomentumMax = 0.95
	}
	if cfg.InitialLevels == nil {
		cfg.InitialLevels = InitialBaseStockLevels(net, DefaultZ)
	}
	if len(cfg.InitialLevels) != net.Len() {
		return fmt.Errorf("%w: got %d initial levels for %d items",
			ErrValidation, len(cfg.InitialLevels), net.Len())
	}
	return nil
}

// Optimize descends the simulated average cost over per-item base-stock
// levels. The simulation seed is held fixed across iterations so that
// consecutive cost evaluations differ only through the levels, which keeps
// the stochastic cost surface stable enough for small-step descent.
func Optimize(net *Network, cfg OptimizerConfig) (*OptimizerResult, error) {
	if err := cfg.applyDefaults(net); err != nil {
		return nil, err
	}

	n := net.Len()
	levels := make([]float64, n)
	copy(levels, cfg.InitialLevels)

	var schedule *OneCycleSchedule
	if cfg.Schedule == "onecycle" {
		schedule = NewOneCycleSchedule(cfg.LearningRate, cfg.CycleMomentumMin, cfg.CycleMomentumMax, cfg.MaxIterations)
	}

	// Adam moments and momentum velocity.
	mom1 := make([]float64, n)
	mom2 := make([]float64, n)
	vel := make([]float64, n)
	grad := make([]float64, n)

	res := &OptimizerResult{
		BestLevels: make([]float64, n),
		BestCost:   math.Inf(1),
		History:    make([]IterationRecord, 0, cfg.MaxIterations),
	}

	fdStep := cfg.FDStep
	failures := 0

	for t := 0; t < cfg.MaxIterations; t++ {
		sim, err := evaluate(net, cfg.Sim, levels)
		if err != nil {
			failures++
			logrus.Warnf("iteration %d: simulation failed: %v", t, err)
			if failures >= cfg.MaxConsecutiveFailures {
				return nil, fmt.Errorf("%w: %d consecutive simulation failures: %v",
					ErrSimulationFailure, failures, err)
			}
			if cfg.Estimator == EstimatorFiniteDifference {
				fdStep /= 2
			}
			continue
		}
		failures = 0

		switch cfg.Estimator {
		case EstimatorFiniteDifference:
			if err := finiteDifference(net, cfg.Sim, levels, sim.AverageCost, fdStep, grad); err != nil {
				return nil, err
			}
		default:
			copy(grad, sim.Gradient)
		}

		if sim.AverageCost < res.BestCost {
			res.BestCost = sim.AverageCost
			copy(res.BestLevels, levels)
		}

		gradNorm := floats.Norm(grad, 2)
		res.FinalGradientNorm = gradNorm
		res.Iterations = t + 1
		rec := IterationRecord{Iteration: t, Cost: sim.AverageCost, GradientNorm: gradNorm}
		rec.Levels = append(rec.Levels, levels...)
		res.History = append(res.History, rec)
		logrus.Debugf("iteration %3d: cost %.4f, |grad| %.4f", t, sim.AverageCost, gradNorm)

		if gradNorm <= cfg.Tolerance {
			res.Converged = true
			break
		}
		if t >= cfg.Window {
			prev := res.History[t-cfg.Window].Cost
			rel := math.Abs(sim.AverageCost-prev) / math.Max(math.Abs(prev), cfg.Epsilon)
			if rel < cfg.Tolerance {
				res.Converged = true
				break
			}
		}

		lr := cfg.LearningRate
		beta1 := cfg.Beta1
		momentum := cfg.Momentum
		if schedule != nil {
			lr = schedule.LR(t)
			beta1 = schedule.Momentum(t)
			momentum = schedule.Momentum(t)
		}

		switch cfg.Algorithm {
		case AlgorithmAdam:
			for i := 0; i < n; i++ {
				mom1[i] = beta1*mom1[i] + (1-beta1)*grad[i]
				mom2[i] = cfg.Beta2*mom2[i] + (1-cfg.Beta2)*grad[i]*grad[i]
				m1hat := mom1[i] / (1 - math.Pow(beta1, float64(t+1)))
				m2hat := mom2[i] / (1 - math.Pow(cfg.Beta2, float64(t+1)))
				levels[i] -= lr * m1hat / (math.Sqrt(m2hat) + cfg.Epsilon)
			}
		case AlgorithmMomentum:
			for i := 0; i < n; i++ {
				vel[i] = momentum*vel[i] + lr*grad[i]
				levels[i] -= vel[i]
			}
		default:
			for i := 0; i < n; i++ {
				levels[i] -= lr * grad[i]
			}
		}
		for i := 0; i < n; i++ {
			if levels[i] < 0 {
				levels[i] = 0
			}
		}
	}

	if math.IsInf(res.BestCost, 1) {
		return nil, fmt.Errorf("%w: no iteration produced a finite cost", ErrSimulationFailure)
	}
	res.LocalLevels = LocalBaseStockLevels(net, res.BestLevels)
	logrus.Infof("optimization finished: %d iterations, best cost %.4f, converged=%v",
		res.Iterations, res.BestCost, res.Converged)
	return res, nil
}

// evaluate simulates base-stock policies at the given levels, keeping every
// other simulation parameter (seed included) from cfg.
func evaluate(net *Network, cfg SimulationConfig, levels []float64) (*SimulationResult, error) {
	policies := make([]Policy, len(levels))
	for i, s := range levels {
		policies[i] = BaseStockPolicy(s)
	}
	cfg.Policies = policies
	return Simulate(net, cfg)
}

// finiteDifference fills grad with forward differences of the average cost,
// one perturbed simulation per item.
func finiteDifference(net *Network, cfg SimulationConfig, levels []float64, base, step float64, grad []float64) error {
	probe := make([]float64, len(levels))
	for i := range levels {
		copy(probe, levels)
		probe[i] += step
		sim, err := evaluate(net, cfg, probe)
		if err != nil {
			return fmt.Errorf("%w: finite-difference probe at item %d: %v", ErrSimulationFailure, i, err)
		}
		grad[i] = (sim.AverageCost - base) / step
	}
	return nil
}
