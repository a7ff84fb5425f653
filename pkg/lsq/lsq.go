// Package lsq provides the small numerical building blocks the CGGTTS and
// interpolation passes are built on: linear and quadratic least-squares fits,
// and 3-point Lagrange interpolation.
package lsq

import (
	"fmt"
	"math"
)

// LinearFit is the result of a linear least-squares fit y = a + b*(x - xc).
type LinearFit struct {
	ValueAtCentre float64 // a
	Slope         float64 // b
	ResidualRMS   float64
	N             int
}

// Linear fits y = a + b*(x-xc) to the points (xs[i], ys[i]) centred at xc,
// returning the value at xc, the slope, and the RMS residual.
func Linear(xs, ys []float64, xc float64) (LinearFit, error) {
	n := len(xs)
	if n != len(ys) {
		return LinearFit{}, fmt.Errorf("lsq: xs/ys length mismatch: %d/%d", n, len(ys))
	}
	if n < 2 {
		return LinearFit{}, fmt.Errorf("lsq: need at least 2 points, got %d", n)
	}

	var sx, sy, sxx, sxy float64
	for i := 0; i < n; i++ {
		x := xs[i] - xc
		sx += x
		sy += ys[i]
		sxx += x * x
		sxy += x * ys[i]
	}
	fn := float64(n)
	denom := fn*sxx - sx*sx
	if denom == 0 {
		return LinearFit{}, fmt.Errorf("lsq: singular normal equations")
	}
	b := (fn*sxy - sx*sy) / denom
	a := (sy - b*sx) / fn

	var sumSq float64
	for i := 0; i < n; i++ {
		x := xs[i] - xc
		resid := ys[i] - (a + b*x)
		sumSq += resid * resid
	}
	rms := 0.0
	if n > 2 {
		rms = math.Sqrt(sumSq / fn)
	}

	return LinearFit{ValueAtCentre: a, Slope: b, ResidualRMS: rms, N: n}, nil
}

// QuadraticFit is the result of a quadratic least-squares fit
// y = a + b*(x-xc) + c*(x-xc)^2, used for the CGGTTS V1 15s sub-fits.
type QuadraticFit struct {
	ValueAtCentre float64 // a
	Slope         float64 // b
	Curvature     float64 // c
	N             int
}

// Quadratic fits a quadratic to (xs[i], ys[i]) centred at xc by solving the
// 3x3 normal equations directly (small, fixed-size system; no need for a
// general linear-algebra dependency).
func Quadratic(xs, ys []float64, xc float64) (QuadraticFit, error) {
	n := len(xs)
	if n != len(ys) {
		return QuadraticFit{}, fmt.Errorf("lsq: xs/ys length mismatch: %d/%d", n, len(ys))
	}
	if n < 3 {
		return QuadraticFit{}, fmt.Errorf("lsq: need at least 3 points, got %d", n)
	}

	var s0, s1, s2, s3, s4 float64
	var t0, t1, t2 float64
	for i := 0; i < n; i++ {
		x := xs[i] - xc
		x2 := x * x
		s0++
		s1 += x
		s2 += x2
		s3 += x2 * x
		s4 += x2 * x2
		t0 += ys[i]
		t1 += ys[i] * x
		t2 += ys[i] * x2
	}

	// Solve [[s0,s1,s2],[s1,s2,s3],[s2,s3,s4]] * [a,b,c]' = [t0,t1,t2]'
	a, b, c, err := solve3(s0, s1, s2, s1, s2, s3, s2, s3, s4, t0, t1, t2)
	if err != nil {
		return QuadraticFit{}, err
	}
	return QuadraticFit{ValueAtCentre: a, Slope: b, Curvature: c, N: n}, nil
}

func solve3(a11, a12, a13, a21, a22, a23, a31, a32, a33, b1, b2, b3 float64) (x1, x2, x3 float64, err error) {
	det := a11*(a22*a33-a23*a32) - a12*(a21*a33-a23*a31) + a13*(a21*a32-a22*a31)
	if det == 0 {
		return 0, 0, 0, fmt.Errorf("lsq: singular 3x3 system")
	}
	det1 := b1*(a22*a33-a23*a32) - a12*(b2*a33-a23*b3) + a13*(b2*a32-a22*b3)
	det2 := a11*(b2*a33-a23*b3) - b1*(a21*a33-a23*a31) + a13*(a21*b3-b2*a31)
	det3 := a11*(a22*b3-b2*a32) - a12*(a21*b3-b2*a31) + b1*(a21*a32-a22*a31)
	return det1 / det, det2 / det, det3 / det, nil
}

// Lagrange3 evaluates the 3-point Lagrange interpolating polynomial through
// (xs[i], ys[i]) i=0..2 at x. Used to place pseudoranges onto integer-second
// stamps (spec.md §4.1 post-load pass step ii).
func Lagrange3(xs, ys [3]float64, x float64) float64 {
	var result float64
	for i := 0; i < 3; i++ {
		term := ys[i]
		for j := 0; j < 3; j++ {
			if i == j {
				continue
			}
			term *= (x - xs[j]) / (xs[i] - xs[j])
		}
		result += term
	}
	return result
}
