package meio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// LRFinderConfig parameterizes the learning-rate range sweep. Zero values
// take the defaults noted per field.
type LRFinderConfig struct {
	// LRMin and LRMax bound the exponential sweep (defaults 1e-7 and 10).
	LRMin float64 `json:"lr_min" yaml:"lr_min"`
	LRMax float64 `json:"lr_max" yaml:"lr_max"`
	// NumIterations is the number of sweep points (default 100).
	NumIterations int `json:"num_iterations" yaml:"num_iterations"`
	// Smoothing is the EMA decay applied to costs before the descent test
	// (default 0.9).
	Smoothing float64 `json:"smoothing" yaml:"smoothing"`
	// DivergenceFactor aborts the sweep once the smoothed cost exceeds
	// this multiple of its starting value (default 4).
	DivergenceFactor float64 `json:"divergence_factor" yaml:"divergence_factor"`
	// Sim and InitialLevels are passed through to the descent steps, as in
	// OptimizerConfig.
	Sim           SimulationConfig `json:"sim" yaml:"sim"`
	InitialLevels []float64        `json:"initial_levels" yaml:"initial_levels"`
}

// LRFinderResult records the sweep and the suggested learning rate: the rate
// at which the smoothed cost was falling fastest.
type LRFinderResult struct {
	LearningRates []float64
	Costs         []float64
	SmoothedCosts []float64
	SuggestedLR   float64
	Diverged      bool
}

// FindLearningRate sweeps the learning rate exponentially from LRMin to
// LRMax, taking one SGD step per rate and recording the resulting cost. The
// suggestion is the rate of steepest smoothed-cost descent rather than the
// cost minimum, which lags the point where steps start overshooting.
func FindLearningRate(net *Network, cfg LRFinderConfig) (*LRFinderResult, error) {
	if cfg.LRMin == 0 {
		cfg.LRMin = 1e-7
	}
	if cfg.LRMax == 0 {
		cfg.LRMax = 10
	}
	if cfg.LRMin <= 0 || cfg.LRMax <= cfg.LRMin {
		return nil, fmt.Errorf("%w: need 0 < lr_min < lr_max", ErrValidation)
	}
	if cfg.NumIterations == 0 {
		cfg.NumIterations = 100
	}
	if cfg.NumIterations < 2 {
		return nil, fmt.Errorf("%w: the sweep needs at least 2 iterations", ErrValidation)
	}
	if cfg.Smoothing == 0 {
		cfg.Smoothing = 0.9
	}
	if cfg.Smoothing < 0 || cfg.Smoothing >= 1 {
		return nil, fmt.Errorf("%w: smoothing must be in [0, 1)", ErrValidation)
	}
	if cfg.DivergenceFactor == 0 {
		cfg.DivergenceFactor = 4
	}
	if cfg.InitialLevels == nil {
		cfg.InitialLevels = InitialBaseStockLevels(net, DefaultZ)
	}
	if len(cfg.InitialLevels) != net.Len() {
		return nil, fmt.Errorf("%w: got %d initial levels for %d items",
			ErrValidation, len(cfg.InitialLevels), net.Len())
	}

	n := net.Len()
	levels := make([]float64, n)
	copy(levels, cfg.InitialLevels)
	gamma := math.Pow(cfg.LRMax/cfg.LRMin, 1/float64(cfg.NumIterations-1))

	res := &LRFinderResult{}
	avg := 0.0

	for t := 0; t < cfg.NumIterations; t++ {
		lr := cfg.LRMin * math.Pow(gamma, float64(t))
		sim, err := evaluate(net, cfg.Sim, levels)
		if err != nil {
			// Steps at the top of the sweep can push levels somewhere the
			// simulation cannot follow; treat it like divergence.
			logrus.Warnf("lr sweep stopped at lr=%.3g: %v", lr, err)
			res.Diverged = true
			break
		}

		avg = cfg.Smoothing*avg + (1-cfg.Smoothing)*sim.AverageCost
		smoothed := avg / (1 - math.Pow(cfg.Smoothing, float64(t+1)))

		res.LearningRates = append(res.LearningRates, lr)
		res.Costs = append(res.Costs, sim.AverageCost)
		res.SmoothedCosts = append(res.SmoothedCosts, smoothed)

		if t > 0 && smoothed > cfg.DivergenceFactor*res.SmoothedCosts[0] {
			res.Diverged = true
			break
		}

		for i := 0; i < n; i++ {
			levels[i] -= lr * sim.Gradient[i]
			if levels[i] < 0 {
				levels[i] = 0
			}
		}
	}

	if len(res.SmoothedCosts) < 2 {
		return nil, fmt.Errorf("%w: the sweep produced too few points to suggest a rate", ErrSimulationFailure)
	}

	// Steepest descent of the smoothed curve; the log-spaced rates make
	// consecutive differences comparable across the sweep.
	bestDrop := math.Inf(1)
	for t := 1; t < len(res.SmoothedCosts); t++ {
		drop := res.SmoothedCosts[t] - res.SmoothedCosts[t-1]
		if drop < bestDrop {
			bestDrop = drop
			res.SuggestedLR = res.LearningRates[t]
		}
	}
	logrus.Infof("lr finder: %d points, suggested lr %.4g, diverged=%v",
		len(res.LearningRates), res.SuggestedLR, res.Diverged)
	return res, nil
}

// OneCycleSchedule ramps the learning rate linearly up to a peak over the
// first half of the run and anneals it to zero with a cosine over the
// second, with momentum swept inversely.
type OneCycleSchedule struct {
	maxLR      float64
	momMin     float64
	momMax     float64
	iterations int
}

// NewOneCycleSchedule builds a schedule over the given iteration count. The
// warmup starts at maxLR/25.
func NewOneCycleSchedule(maxLR, momMin, momMax float64, iterations int) *OneCycleSchedule {
	if iterations < 2 {
		iterations = 2
	}
	return &OneCycleSchedule{maxLR: maxLR, momMin: momMin, momMax: momMax, iterations: iterations}
}

func (s *OneCycleSchedule) half() int {
	return s.iterations / 2
}

// LR returns the learning rate for iteration t.
func (s *OneCycleSchedule) LR(t int) float64 {
	t = clampIter(t, s.iterations)
	half := s.half()
	low := s.maxLR / 25
	if t < half {
		if half == 1 {
			return s.maxLR
		}
		return low + (s.maxLR-low)*float64(t)/float64(half-1)
	}
	k := t - half
	span := s.iterations - half
	if span <= 1 {
		return 0
	}
	return s.maxLR / 2 * (1 + math.Cos(math.Pi*float64(k)/float64(span-1)))
}

// Momentum returns the momentum (or Adam beta1) for iteration t, high when
// the learning rate is low and vice versa.
func (s *OneCycleSchedule) Momentum(t int) float64 {
	t = clampIter(t, s.iterations)
	half := s.half()
	if t < half {
		if half == 1 {
			return s.momMin
		}
		return s.momMax - (s.momMax-s.momMin)*float64(t)/float64(half-1)
	}
	k := t - half
	span := s.iterations - half
	if span <= 1 {
		return s.momMax
	}
	return s.momMax - (s.momMax-s.momMin)/2*(1+math.Cos(math.Pi*float64(k)/float64(span-1)))
}

func clampIter(t, n int) int {
	if t < 0 {
		return 0
	}
	if t >= n {
		return n - 1
	}
	return t
}
