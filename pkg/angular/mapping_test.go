package angular

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap360_Ranges(t *testing.T) {
	cases := map[float64]float64{
		0:     0,
		360:   0,
		-1:    359,
		725:   5,
		-720:  0,
		359.5: 359.5,
	}
	for in, want := range cases {
		assert.InDelta(t, want, Wrap360(in), 1e-12, "Wrap360(%v)", in)
	}
	assert.Less(t, Wrap360(-1e-17), 360.0)
}

func TestWrap180_HalfOpen(t *testing.T) {
	assert.Equal(t, 180.0, Wrap180(-180))
	assert.Equal(t, 180.0, Wrap180(180))
	assert.InDelta(t, -179.0, Wrap180(181), 1e-12)
	assert.InDelta(t, 10.0, Wrap180(370), 1e-12)
}

func TestDelta_Shortest(t *testing.T) {
	assert.InDelta(t, 20.0, Delta(350, 10), 1e-12)
	assert.InDelta(t, 180.0, Delta(0, 180), 1e-12)
	assert.InDelta(t, 0.0, Delta(720, 0), 1e-12)
}

func TestIndexShiftBoundaries_HalfOpen(t *testing.T) {
	g := DefaultGeometry()
	cases := []struct {
		lambda float64
		want   int
	}{
		{255, 0},      // Zi starts exactly on its boundary
		{254.999, 11}, // last instant of Hai
		{270, 0},
		{284.999, 0},
		{285, 1},
		{315, 2},
		{0, 3},
		{75, 6},
		{90, 6},
		{240, 11},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IndexShiftBoundaries(c.lambda, g), "lambda=%v", c.lambda)
	}
}

func TestConventions_Equivalent(t *testing.T) {
	g := DefaultGeometry()
	for lam := -720.0; lam <= 720; lam += 0.25 {
		require.Equal(t, IndexShiftBoundaries(lam, g), IndexShiftLongitudes(lam, g), "lambda=%v", lam)
	}
	assert.Nil(t, CheckEquivalence(IndexShiftLongitudes, g, nil))
}

func TestCheckEquivalence_InexactApexOffset(t *testing.T) {
	for _, phi := range []float64{0.1, 1e-7, 1e-12, 0.3, 7.7, 33.3, 359.9} {
		g := DefaultGeometry()
		g.PhiOffsetDeg = phi
		assert.Nil(t, CheckEquivalence(IndexShiftLongitudes, g, nil), "phi=%v", phi)
		assert.Equal(t, 1, IndexShiftLongitudes(285, g), "phi=%v", phi)
		assert.NotNil(t, CheckEquivalence(IndexShiftLongitudesOriginUnshifted, g, []float64{284.999, 285}), "phi=%v", phi)
	}
}

func TestCheckEquivalence_DetectsUnshiftedOrigin(t *testing.T) {
	g := DefaultGeometry()
	m := CheckEquivalence(IndexShiftLongitudesOriginUnshifted, g, nil)
	require.NotNil(t, m)
	assert.NotEqual(t, m.Reference, m.Candidate)
}

func TestCheckEquivalence_NonDefaultGeometry(t *testing.T) {
	g := Geometry{ApexDeg: 0, WidthDeg: 30, PhiOffsetDeg: 7.5}
	assert.Nil(t, CheckEquivalence(IndexShiftLongitudes, g, nil))
	assert.NotNil(t, CheckEquivalence(IndexShiftLongitudesOriginUnshifted, g, []float64{0, 7.5, 15, 22.5, 45}))
}

func TestGeometry_Validate(t *testing.T) {
	require.NoError(t, DefaultGeometry().Validate())

	g := DefaultGeometry()
	g.WidthDeg = 36
	assert.Error(t, g.Validate())

	g.WidthDeg = 0
	assert.Error(t, g.Validate())

	g = DefaultGeometry()
	g.ApexDeg = math.NaN()
	assert.Error(t, g.Validate())
}

func TestNearestBoundaryDistance(t *testing.T) {
	g := DefaultGeometry()
	assert.InDelta(t, 0.0, NearestBoundaryDistance(255, g), 1e-9)
	assert.InDelta(t, 15.0, NearestBoundaryDistance(270, g), 1e-9)
	assert.InDelta(t, 0.05, NearestBoundaryDistance(284.95, g), 1e-9)
}

func TestHourBranchIndex(t *testing.T) {
	cases := []struct {
		tlst float64
		want int
	}{
		{23, 0},
		{0, 0},
		{0.999, 0},
		{1, 1},
		{2.5, 1},
		{11, 6},
		{12.5, 6},
		{22.999, 11},
		{-1, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HourBranchIndex(c.tlst), "tlst=%v", c.tlst)
	}
}

func TestNearestHourBoundaryMinutes(t *testing.T) {
	assert.InDelta(t, 60.0, NearestHourBoundaryMinutes(0), 1e-9)
	assert.InDelta(t, 0.0, NearestHourBoundaryMinutes(23), 1e-9)
	assert.InDelta(t, 30.0, NearestHourBoundaryMinutes(1.5), 1e-9)
	assert.InDelta(t, 6.0, NearestHourBoundaryMinutes(22.9), 1e-6)
}
