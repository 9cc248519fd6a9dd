// Package demand generates per-period demand realizations for the
// simulation engine. Samplers are bound to a rand source at construction
// so that a replication's stream fully determines its draws.
package demand

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Spec selects a demand distribution by name with free-form parameters,
// mirroring the scenario-file representation.
type Spec struct {
	Type   string             `json:"type" yaml:"type"`
	Params map[string]float64 `json:"params" yaml:"params"`
}

// Sampler draws one period's demand. Draws are never negative.
type Sampler interface {
	Sample() float64
}

// funcSampler adapts a draw function, clamping at zero for distributions
// whose support extends below it.
type funcSampler struct {
	draw func() float64
}

func (s funcSampler) Sample() float64 {
	v := s.draw()
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// ConstantSampler always returns the same fixed demand (zero variance).
type ConstantSampler struct {
	Value float64
}

func (s ConstantSampler) Sample() float64 {
	if s.Value < 0 {
		return 0
	}
	return s.Value
}

// requireParam checks that all required keys exist in a params map.
func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

// NewSampler creates a Sampler from a Spec, bound to src.
func NewSampler(spec Spec, src rand.Source) (Sampler, error) {
	switch spec.Type {
	case "normal":
		if err := requireParam(spec.Params, "mean", "std_dev"); err != nil {
			return nil, err
		}
		d := distuv.Normal{Mu: spec.Params["mean"], Sigma: spec.Params["std_dev"], Src: src}
		return funcSampler{draw: d.Rand}, nil

	case "poisson":
		if err := requireParam(spec.Params, "lambda"); err != nil {
			return nil, err
		}
		d := distuv.Poisson{Lambda: spec.Params["lambda"], Src: src}
		return funcSampler{draw: d.Rand}, nil

	case "uniform":
		if err := requireParam(spec.Params, "min", "max"); err != nil {
			return nil, err
		}
		if spec.Params["max"] < spec.Params["min"] {
			return nil, fmt.Errorf("uniform distribution requires min <= max")
		}
		d := distuv.Uniform{Min: spec.Params["min"], Max: spec.Params["max"], Src: src}
		return funcSampler{draw: d.Rand}, nil

	case "exponential":
		if err := requireParam(spec.Params, "mean"); err != nil {
			return nil, err
		}
		if spec.Params["mean"] <= 0 {
			return nil, fmt.Errorf("exponential distribution requires mean > 0")
		}
		d := distuv.Exponential{Rate: 1 / spec.Params["mean"], Src: src}
		return funcSampler{draw: d.Rand}, nil

	case "gamma":
		if err := requireParam(spec.Params, "shape", "scale"); err != nil {
			return nil, err
		}
		if spec.Params["shape"] <= 0 || spec.Params["scale"] <= 0 {
			return nil, fmt.Errorf("gamma distribution requires shape > 0 and scale > 0")
		}
		d := distuv.Gamma{Alpha: spec.Params["shape"], Beta: 1 / spec.Params["scale"], Src: src}
		return funcSampler{draw: d.Rand}, nil

	case "lognormal":
		if err := requireParam(spec.Params, "mu", "sigma"); err != nil {
			return nil, err
		}
		d := distuv.LogNormal{Mu: spec.Params["mu"], Sigma: spec.Params["sigma"], Src: src}
		return funcSampler{draw: d.Rand}, nil

	case "constant":
		if err := requireParam(spec.Params, "value"); err != nil {
			return nil, err
		}
		return ConstantSampler{Value: spec.Params["value"]}, nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}

// ForMoments creates a sampler of the named family matched to a target
// mean and standard deviation, for callers whose items carry (mu, sigma)
// rather than distribution parameters. Families that cannot express the
// requested moments exactly use standard moment-matching transforms.
func ForMoments(typ string, mu, sigma float64, src rand.Source) (Sampler, error) {
	if mu < 0 || sigma < 0 {
		return nil, fmt.Errorf("moments require mu >= 0 and sigma >= 0")
	}
	switch typ {
	case "", "normal":
		return NewSampler(Spec{Type: "normal", Params: map[string]float64{"mean": mu, "std_dev": sigma}}, src)
	case "poisson":
		return NewSampler(Spec{Type: "poisson", Params: map[string]float64{"lambda": mu}}, src)
	case "uniform":
		// Width chosen so mean = mu and std dev = sigma.
		half := sigma * math.Sqrt(3)
		lo := mu - half
		if lo < 0 {
			lo = 0
		}
		return NewSampler(Spec{Type: "uniform", Params: map[string]float64{"min": lo, "max": mu + half}}, src)
	case "exponential":
		return NewSampler(Spec{Type: "exponential", Params: map[string]float64{"mean": mu}}, src)
	case "gamma":
		if sigma == 0 {
			return ConstantSampler{Value: mu}, nil
		}
		shape := (mu / sigma) * (mu / sigma)
		scale := sigma * sigma / mu
		return NewSampler(Spec{Type: "gamma", Params: map[string]float64{"shape": shape, "scale": scale}}, src)
	case "lognormal":
		if mu == 0 {
			return ConstantSampler{Value: 0}, nil
		}
		if sigma == 0 {
			return ConstantSampler{Value: mu}, nil
		}
		s2 := math.Log(1 + (sigma*sigma)/(mu*mu))
		return NewSampler(Spec{Type: "lognormal", Params: map[string]float64{
			"mu":    math.Log(mu) - s2/2,
			"sigma": math.Sqrt(s2),
		}}, src)
	case "constant":
		return ConstantSampler{Value: mu}, nil
	default:
		return nil, fmt.Errorf("unknown distribution type %q", typ)
	}
}
