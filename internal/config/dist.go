package config

import (
	"fmt"
	"math"
	"math/rand"
)

// Distribution family names accepted in parameter specs.
const (
	DistConstant        = "constant"
	DistUniform         = "uniform"
	DistDiscreteUniform = "discrete_uniform"
	DistLognormal       = "lognormal"
)

// Dist is a stochastic parameter spec. Which fields matter depends on the
// family: constant{value}, uniform{min,max}, discrete_uniform{values},
// lognormal{mean,std}.
type Dist struct {
	Distribution string    `yaml:"distribution"`
	Value        float64   `yaml:"value"`
	Min          float64   `yaml:"min"`
	Max          float64   `yaml:"max"`
	Values       []float64 `yaml:"values"`
	Mean         float64   `yaml:"mean"`
	Std          float64   `yaml:"std"`
}

// Sample draws one value from the spec using the supplied generator. An
// unrecognized family is an error.
func (d Dist) Sample(rng *rand.Rand) (float64, error) {
	switch d.Distribution {
	case DistConstant:
		return d.Value, nil
	case DistUniform:
		return d.Min + rng.Float64()*(d.Max-d.Min), nil
	case DistDiscreteUniform:
		if len(d.Values) == 0 {
			return 0, fmt.Errorf("discrete_uniform spec has no values")
		}
		return d.Values[rng.Intn(len(d.Values))], nil
	case DistLognormal:
		if d.Mean <= 0 {
			return 0, fmt.Errorf("lognormal spec needs positive mean, got %v", d.Mean)
		}
		return math.Exp(math.Log(d.Mean) + d.Std*rng.NormFloat64()), nil
	default:
		return 0, fmt.Errorf("unknown distribution type: %q", d.Distribution)
	}
}
