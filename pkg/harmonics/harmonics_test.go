package harmonics

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazodiac/bafe/pkg/angular"
)

func TestFeatures_AntipodalIsDegenerate(t *testing.T) {
	fs, err := Features([]float64{10, 190}, []float64{1, 1}, []int{1, 2}, 0)
	require.NoError(t, err)

	k1 := fs["1"]
	assert.True(t, k1.Degenerate)
	assert.Nil(t, k1.OrientationDeg)
	assert.InDelta(t, 0.0, k1.Amplitude, 1e-12)

	// At k=2 the pair coincides and reinforces.
	k2 := fs["2"]
	require.False(t, k2.Degenerate)
	assert.InDelta(t, 2.0, k2.Amplitude, 1e-12)
	require.NotNil(t, k2.OrientationDeg)
	assert.InDelta(t, 10.0, *k2.OrientationDeg, 1e-9)
}

func TestFeatures_SingleAngleOrientation(t *testing.T) {
	fs, err := Features([]float64{123}, []float64{0.5}, []int{1, 3}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, fs["1"].Amplitude, 1e-12)
	assert.InDelta(t, 123.0, *fs["1"].OrientationDeg, 1e-9)
	// 3*123 = 369 -> 9 -> 3: orientation reports the fundamental modulo 120.
	assert.InDelta(t, 3.0, *fs["3"].OrientationDeg, 1e-9)
}

func TestPhasor_Rejects(t *testing.T) {
	_, err := Phasor([]float64{1, 2}, []float64{1}, 1)
	assert.Error(t, err)
	_, err = Phasor([]float64{1}, []float64{1}, 0)
	assert.Error(t, err)
	_, err = Features([]float64{1}, []float64{1}, []int{-2}, 0)
	assert.Error(t, err)
}

func TestFeatures_ShiftInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("adding 360 to every angle leaves features unchanged", prop.ForAll(
		func(angles []float64, k int) bool {
			weights := make([]float64, len(angles))
			shifted := make([]float64, len(angles))
			for i, a := range angles {
				weights[i] = 1 + float64(i%3)
				shifted[i] = a + 360
			}
			a, err := Features(angles, weights, []int{k}, 0)
			if err != nil {
				return false
			}
			b, err := Features(shifted, weights, []int{k}, 0)
			if err != nil {
				return false
			}
			fa, fb := a[strconv.Itoa(k)], b[strconv.Itoa(k)]
			if fa.Degenerate != fb.Degenerate {
				// Both sides must agree unless the amplitude straddles epsilon.
				return fa.Amplitude < 1e-9 && fb.Amplitude < 1e-9
			}
			if fa.Degenerate {
				return true
			}
			if !near(fa.Amplitude, fb.Amplitude, 1e-9) {
				return false
			}
			if fa.Amplitude < 1e-6 {
				// Orientation is numerically meaningless this close to zero.
				return true
			}
			// Compare phases rather than orientations: phase/k can jump by 360/k.
			pa := float64(k) * *fa.OrientationDeg
			pb := float64(k) * *fb.OrientationDeg
			return angular.Delta(pa, pb) < 1e-6
		},
		gen.SliceOf(gen.Float64Range(0, 360)),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

func near(a, b, tol float64) bool {
	d := a - b
	return d < tol && d > -tol
}
