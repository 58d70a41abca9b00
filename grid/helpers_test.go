package grid

import (
	"math"
	"testing"
)

// testInterpsHadronic returns the standard axes for a two-hadron grid: one
// squared-scale axis and two momentum fractions.
func testInterpsHadronic() []Interp {
	return []Interp{
		NewInterp(1e2, 1e8, 40, 3, NoReweight, ApplGridH0, Lagrange),
		NewInterp(2e-7, 1.0, 50, 3, ApplGridX, ApplGridF2, Lagrange),
		NewInterp(2e-7, 1.0, 50, 3, ApplGridX, ApplGridF2, Lagrange),
	}
}

func testInterpsDIS() []Interp {
	return []Interp{
		NewInterp(1e2, 1e8, 40, 3, NoReweight, ApplGridH0, Lagrange),
		NewInterp(2e-7, 1.0, 50, 3, ApplGridX, ApplGridF2, Lagrange),
	}
}

func testKinematicsHadronic() []Kinematics {
	return []Kinematics{ScaleAxis(0), XAxis(0), XAxis(1)}
}

func testKinematicsDIS() []Kinematics {
	return []Kinematics{ScaleAxis(0), XAxis(0)}
}

func testScales() Scales {
	return Scales{Ren: SingleScale(0), Fac: SingleScale(0), Frg: NoScale()}
}

// testGridHadronic builds a proton-proton grid with the given channels and
// orders over one-dimensional bins.
func testGridHadronic(t *testing.T, channels []Channel, orders []Order, fillLimits []float64) *Grid {
	t.Helper()
	bins, err := FromFillLimits(fillLimits)
	if err != nil {
		t.Fatalf("building bins: %v", err)
	}
	g, err := NewGrid(
		PidBasisPdg,
		channels,
		orders,
		bins,
		[]Conv{NewConv(UnpolPDF, 2212), NewConv(UnpolPDF, 2212)},
		testInterpsHadronic(),
		testKinematicsHadronic(),
		testScales(),
	)
	if err != nil {
		t.Fatalf("building grid: %v", err)
	}
	return g
}

// toyXfx is a smooth distribution used in convolution tests, returned as
// x*f(x).
func toyXfx(pid int32, x, q2 float64) float64 {
	_ = pid
	_ = q2
	return x * (1.0 - x)
}

// flatXfx has f(x) = 1 for every parton, so a convolution reduces to the
// sum of the interpolation weights.
func flatXfx(pid int32, x, q2 float64) float64 {
	_ = pid
	_ = q2
	return x
}

func toyAlphas(q2 float64) float64 {
	_ = q2
	return 0.118
}

func testCacheHadronic(xfx XfxFunc) *ConvolutionCache {
	convs := []Conv{NewConv(UnpolPDF, 2212), NewConv(UnpolPDF, 2212)}
	return NewConvolutionCache(convs, []XfxFunc{xfx, xfx}, toyAlphas)
}

func relDiff(a, b float64) float64 {
	if a == b {
		return 0
	}
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}
