// Package angular implements the angle normalisation and branch discretisation
// conventions shared by every evaluator.
//
// All angles are in degrees. Sectors use HALF_OPEN intervals: a longitude that
// lands exactly on a boundary belongs to the sector that starts there.
package angular

import (
	"fmt"
	"math"
)

// BranchCount is the number of calendrical sectors.
const BranchCount = 12

// Convention selects how the apex offset is applied before discretisation.
type Convention string

const (
	ShiftBoundaries Convention = "SHIFT_BOUNDARIES"
	ShiftLongitudes Convention = "SHIFT_LONGITUDES"
)

// Valid reports whether c is a known convention.
func (c Convention) Valid() bool {
	return c == ShiftBoundaries || c == ShiftLongitudes
}

// Wrap360 maps x into [0, 360).
func Wrap360(x float64) float64 {
	y := math.Mod(x, 360)
	if y < 0 {
		y += 360
	}
	// -1e-17 + 360 rounds to 360.
	if y >= 360 {
		y -= 360
	}
	return y
}

// Wrap180 maps x into (-180, 180].
func Wrap180(x float64) float64 {
	y := Wrap360(x+180) - 180
	if y <= -180 {
		return 180
	}
	return y
}

// Delta returns the shortest angular distance between a and b, in [0, 180].
func Delta(a, b float64) float64 {
	return math.Abs(Wrap180(a - b))
}

// Geometry describes the sector grid: the apex angle of the first branch,
// the sector width and the apex offset used by SHIFT_LONGITUDES.
type Geometry struct {
	ApexDeg      float64
	WidthDeg     float64
	PhiOffsetDeg float64
}

// DefaultGeometry is the standard grid: Zi centred on 270°, 30° sectors.
func DefaultGeometry() Geometry {
	return Geometry{ApexDeg: 270, WidthDeg: 30, PhiOffsetDeg: 15}
}

// Validate checks that the width splits the circle into exactly twelve equal sectors.
func (g Geometry) Validate() error {
	if !finite(g.WidthDeg) || g.WidthDeg <= 0 {
		return fmt.Errorf("branch width must be a positive finite number, got %v", g.WidthDeg)
	}
	if math.Abs(g.WidthDeg*BranchCount-360) > 1e-9 {
		return fmt.Errorf("branch width %v does not divide 360 into %d sectors", g.WidthDeg, BranchCount)
	}
	if !finite(g.ApexDeg) {
		return fmt.Errorf("apex angle must be finite, got %v", g.ApexDeg)
	}
	if !finite(g.PhiOffsetDeg) {
		return fmt.Errorf("phi offset must be finite, got %v", g.PhiOffsetDeg)
	}
	return nil
}

// Origin returns the longitude of the first sector boundary: half a width
// before the apex.
func (g Geometry) Origin() float64 {
	return Wrap360(g.ApexDeg - g.WidthDeg/2)
}

// Index discretises lambda under the given convention.
func (g Geometry) Index(conv Convention, lambda float64) int {
	if conv == ShiftLongitudes {
		return IndexShiftLongitudes(lambda, g)
	}
	return IndexShiftBoundaries(lambda, g)
}

// IndexFunc is a branch discretisation under test by CheckEquivalence.
type IndexFunc func(lambda float64, g Geometry) int

// IndexShiftBoundaries shifts the boundary grid and keeps longitudes as given.
func IndexShiftBoundaries(lambda float64, g Geometry) int {
	x := Wrap360(lambda-g.Origin()) / g.WidthDeg
	return floorMod(snapSector(x))
}

// IndexShiftLongitudes shifts the longitude by the apex offset and the
// boundary origin by the same amount.
func IndexShiftLongitudes(lambda float64, g Geometry) int {
	shifted := Wrap360(lambda - g.PhiOffsetDeg)
	origin := Wrap360(g.Origin() - g.PhiOffsetDeg)
	x := Wrap360(shifted-origin) / g.WidthDeg
	return floorMod(snapSector(x))
}

// IndexShiftLongitudesOriginUnshifted shifts the longitude but leaves the
// boundary origin in the unshifted frame. It mixes conventions and is kept
// so the equivalence self-check can be exercised against a known-bad mapping.
func IndexShiftLongitudesOriginUnshifted(lambda float64, g Geometry) int {
	shifted := Wrap360(lambda - g.PhiOffsetDeg)
	x := Wrap360(shifted-g.Origin()) / g.WidthDeg
	return floorMod(x)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sectorSnapTolerance is the distance, in sector widths, under which a
// position counts as sitting on a boundary. Subtracting an inexact apex
// offset from both sides leaves a residue far below it.
const sectorSnapTolerance = 1e-9

func snapSector(x float64) float64 {
	if r := math.Round(x); math.Abs(x-r) < sectorSnapTolerance {
		return r
	}
	return x
}

func floorMod(x float64) int {
	i := int(math.Floor(x)) % BranchCount
	if i < 0 {
		i += BranchCount
	}
	return i
}

// EquivalenceSamples are the longitudes probed by CheckEquivalence. They sit
// on and just below the boundaries of the default grid.
var EquivalenceSamples = []float64{0, 14.999, 15, 123.456, 179.999, 180, 284.999, 285, 359.999}

// Mismatch records the first sample on which two conventions disagree.
type Mismatch struct {
	LambdaDeg float64
	Reference int
	Candidate int
}

// CheckEquivalence compares candidate against SHIFT_BOUNDARIES on samples
// (EquivalenceSamples when nil). It returns nil when both agree everywhere.
func CheckEquivalence(candidate IndexFunc, g Geometry, samples []float64) *Mismatch {
	if samples == nil {
		samples = EquivalenceSamples
	}
	for _, lam := range samples {
		k1 := IndexShiftBoundaries(lam, g)
		k2 := candidate(lam, g)
		if k1 != k2 {
			return &Mismatch{LambdaDeg: lam, Reference: k1, Candidate: k2}
		}
	}
	return nil
}

// NearestBoundaryDistance is the distance in degrees from lambda to the
// closest sector edge.
func NearestBoundaryDistance(lambda float64, g Geometry) float64 {
	pos := Wrap360(lambda-g.Origin()) / g.WidthDeg
	frac := pos - math.Floor(pos)
	return math.Min(frac, 1-frac) * g.WidthDeg
}

// HourBranchIndex maps true local solar time (hours) to an hour branch:
// Zi covers [23, 1), Chou [1, 3), and so on.
func HourBranchIndex(tlstHours float64) int {
	x := math.Mod(tlstHours+1, 24)
	if x < 0 {
		x += 24
	}
	return floorMod(x / 2)
}

// NearestHourBoundaryMinutes is the distance in minutes from tlstHours to the
// closest hour-branch boundary. Boundaries sit on odd hours.
func NearestHourBoundaryMinutes(tlstHours float64) float64 {
	t := math.Mod(tlstHours, 24)
	if t < 0 {
		t += 24
	}
	lower := math.Floor((t-1)/2)*2 + 1
	upper := lower + 2
	dist := math.Min(circularHours(t, lower), circularHours(t, upper))
	return dist * 60
}

func circularHours(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 24)
	return math.Min(d, 24-d)
}
