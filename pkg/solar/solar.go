// Package solar provides the approximate equation-of-time and true solar
// time formulas consumed by time resolution. They ignore UT1-UTC, so callers
// must label results derived from them as approximate.
package solar

import "math"

// EquationOfTime returns apparent minus mean solar time in minutes for a
// day of year (1..366), using Spencer's Fourier series.
func EquationOfTime(dayOfYear int) float64 {
	g := 2 * math.Pi / 365 * float64(dayOfYear-1)
	return 229.18 * (0.000075 +
		0.001868*math.Cos(g) -
		0.032077*math.Sin(g) -
		0.014615*math.Cos(2*g) -
		0.040849*math.Sin(2*g))
}

// EquationOfTimeSimple is the three-term approximation, good to about a minute.
func EquationOfTimeSimple(dayOfYear int) float64 {
	b := 2 * math.Pi / 365 * float64(dayOfYear-81)
	return 9.87*math.Sin(2*b) - 7.53*math.Cos(b) - 1.5*math.Sin(b)
}

// TrueSolarTime converts civil clock hours at longitude lonDeg (east
// positive) in a zone offsetHours from UTC into true local solar time, in
// [0, 24).
func TrueSolarTime(civilHours, lonDeg float64, dayOfYear int, offsetHours float64) float64 {
	correctionMin := 4*(lonDeg-15*offsetHours) + EquationOfTime(dayOfYear)
	return wrap24(civilHours + correctionMin/60)
}

// LocalMeanTime converts UTC hours to local mean time at lonDeg, in [0, 24).
func LocalMeanTime(utcHours, lonDeg float64) float64 {
	return wrap24(utcHours + lonDeg/15)
}

func wrap24(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	if h >= 24 {
		h -= 24
	}
	return h
}
