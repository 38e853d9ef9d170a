// Package kernel computes soft (probabilistic) branch membership with a
// von Mises directional kernel.
package kernel

import (
	"fmt"
	"math"

	"github.com/bazodiac/bafe/pkg/angular"
)

// TypeVonMises is the only supported kernel family.
const TypeVonMises = "von_mises"

// DefaultKappa is the concentration used when a spec leaves it unset.
const DefaultKappa = 4.0

// Spec configures the kernel.
type Spec struct {
	Type  string  `json:"type" yaml:"type"`
	Kappa float64 `json:"kappa" yaml:"kappa"`
}

// DefaultSpec returns a von Mises kernel with DefaultKappa.
func DefaultSpec() Spec {
	return Spec{Type: TypeVonMises, Kappa: DefaultKappa}
}

// Validate rejects unknown kernel families and negative concentrations.
func (s Spec) Validate() error {
	if s.Type != "" && s.Type != TypeVonMises {
		return fmt.Errorf("unsupported kernel type %q", s.Type)
	}
	if math.IsNaN(s.Kappa) || s.Kappa < 0 {
		return fmt.Errorf("kappa must be >= 0, got %v", s.Kappa)
	}
	return nil
}

// Centers returns the twelve sector centres, starting at the apex.
func Centers(g angular.Geometry) [angular.BranchCount]float64 {
	var out [angular.BranchCount]float64
	for k := range out {
		out[k] = angular.Wrap360(g.ApexDeg + float64(k)*g.WidthDeg)
	}
	return out
}

// SoftBranchWeights returns one non-negative weight per sector, summing to 1.
// The unnormalised weight of a centre c is exp(kappa*cos(lambda-c)). Each
// exponent is taken relative to the largest cosine so the biggest term is 1
// and large kappa cannot overflow.
func SoftBranchWeights(lambda float64, spec Spec, g angular.Geometry) ([angular.BranchCount]float64, error) {
	var out [angular.BranchCount]float64
	if err := spec.Validate(); err != nil {
		return out, err
	}

	var cosines [angular.BranchCount]float64
	peak := math.Inf(-1)
	for k, c := range Centers(g) {
		d := angular.Wrap180(lambda-c) * math.Pi / 180
		cosines[k] = math.Cos(d)
		peak = math.Max(peak, cosines[k])
	}

	sum := 0.0
	for k, cs := range cosines {
		w := 1.0
		if cs != peak {
			w = math.Exp(spec.Kappa * (cs - peak))
		}
		out[k] = w
		sum += w
	}

	if sum <= 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		for k := range out {
			out[k] = 1.0 / angular.BranchCount
		}
		return out, nil
	}
	for k := range out {
		out[k] /= sum
	}
	return out, nil
}
