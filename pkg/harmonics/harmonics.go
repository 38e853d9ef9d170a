// Package harmonics extracts circular-statistics (phasor) features from a
// weighted set of angles.
package harmonics

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/bazodiac/bafe/pkg/angular"
)

// DefaultEpsilon is the amplitude below which a harmonic is degenerate.
const DefaultEpsilon = 1e-12

// Feature is the phasor summary for one harmonic k.
type Feature struct {
	// R is the complex sum as [real, imag].
	R [2]float64 `json:"R_k"`
	// Amplitude is |R|.
	Amplitude float64 `json:"A_k"`
	// OrientationDeg is arg(R)/k wrapped to [0,360); nil when degenerate.
	OrientationDeg *float64 `json:"O_k_deg"`
	Degenerate     bool     `json:"degenerate"`
}

// Phasor returns sum(w_i * exp(i*k*theta_i)).
func Phasor(anglesDeg, weights []float64, k int) (complex128, error) {
	if len(anglesDeg) != len(weights) {
		return 0, errors.New("angles and weights length mismatch")
	}
	if k <= 0 {
		return 0, fmt.Errorf("harmonic must be positive, got %d", k)
	}
	var re, im float64
	for i, a := range anglesDeg {
		th := angular.Wrap360(a) * math.Pi / 180 * float64(k)
		re += weights[i] * math.Cos(th)
		im += weights[i] * math.Sin(th)
	}
	return complex(re, im), nil
}

// Features computes one Feature per harmonic in ks, keyed by the decimal
// harmonic number. eps <= 0 selects DefaultEpsilon.
func Features(anglesDeg, weights []float64, ks []int, eps float64) (map[string]Feature, error) {
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	out := make(map[string]Feature, len(ks))
	for _, k := range ks {
		z, err := Phasor(anglesDeg, weights, k)
		if err != nil {
			return nil, err
		}
		key := strconv.Itoa(k)
		amp := math.Hypot(real(z), imag(z))
		if amp <= eps {
			out[key] = Feature{Degenerate: true}
			continue
		}
		phase := angular.Wrap360(math.Atan2(imag(z), real(z)) * 180 / math.Pi)
		orientation := angular.Wrap360(phase / float64(k))
		out[key] = Feature{
			R:              [2]float64{real(z), imag(z)},
			Amplitude:      amp,
			OrientationDeg: &orientation,
		}
	}
	return out, nil
}
