package grid

import (
	"fmt"
	"math"
)

// maxInterpOrder bounds the polynomial degree of the interpolation.
const maxInterpOrder = 7

// ReweightMeth selects the fill-time reweighting applied along one axis.
type ReweightMeth int

const (
	// NoReweight leaves the weights untouched.
	NoReweight ReweightMeth = iota
	// ApplGridX divides out the APPLgrid x-space weight
	// (sqrt(x)/(1-0.99x))^3, flattening the small-x growth of PDFs.
	ApplGridX
)

// Map selects the variable transform from physical coordinates to the
// equally-spaced interpolation variable y.
type Map int

const (
	// ApplGridF2 maps momentum fractions via y = -ln(x) + 5(1-x).
	ApplGridF2 Map = iota
	// ApplGridH0 maps squared scales via tau = ln(ln(q2/0.0625)).
	ApplGridH0
)

// InterpMeth selects the interpolation method. Only Lagrange polynomials
// are implemented.
type InterpMeth int

const (
	// Lagrange interpolates with Lagrange polynomials of the configured
	// order.
	Lagrange InterpMeth = iota
)

// Interp describes the interpolation along a single axis: the physical
// range, the number of equally-spaced nodes in the mapped variable, the
// polynomial order, and the reweighting and mapping methods.
type Interp struct {
	min      float64
	max      float64
	nodes    int
	order    int
	reweight ReweightMeth
	mapping  Map
	method   InterpMeth
}

// NewInterp constructs an Interp over [min, max] in physical coordinates.
// Panics when nodes is zero, order is not smaller than nodes, or order
// exceeds the supported maximum. Both limits are mapped into y space; maps
// that reverse the orientation swap them so min <= max always holds there.
func NewInterp(min, max float64, nodes, order int, reweight ReweightMeth, mapping Map, method InterpMeth) Interp {
	if min > max {
		panic(fmt.Sprintf("interpolation range [%g, %g] is inverted", min, max))
	}
	if nodes <= 0 {
		panic("interpolation needs at least one node")
	}
	if nodes <= order {
		panic(fmt.Sprintf("interpolation order %d needs more than %d nodes", order, nodes))
	}
	if order > maxInterpOrder {
		panic(fmt.Sprintf("interpolation order %d exceeds maximum %d", order, maxInterpOrder))
	}

	in := Interp{nodes: nodes, order: order, reweight: reweight, mapping: mapping, method: method}
	in.min = in.mapXToY(min)
	in.max = in.mapXToY(max)
	if in.min > in.max {
		in.min, in.max = in.max, in.min
	}
	return in
}

func (in Interp) deltaY() float64 {
	return (in.max - in.min) / float64(in.nodes-1)
}

func (in Interp) getY(index int) float64 {
	// A single node sits at min; the spacing is undefined there.
	if in.nodes == 1 {
		return in.min
	}
	return float64(index)*in.deltaY() + in.min
}

// Reweight returns the reweighting factor at the physical coordinate x.
func (in Interp) Reweight(x float64) float64 {
	if in.reweight == ApplGridX {
		return applgridWeight(x)
	}
	return 1
}

// Interpolate locates the interpolation stencil for the physical
// coordinate x. It returns the index of the first node of the stencil and
// the fractional distance of x from that node in units of the node
// spacing; ok is false when x lies outside the range. A coordinate exactly
// on a node selects the stencil starting at that node, clamped so the
// stencil stays inside the node range.
func (in Interp) Interpolate(x float64) (index int, fraction float64, ok bool) {
	y := in.mapXToY(x)
	if y < in.min || y > in.max {
		return 0, 0, false
	}
	if in.nodes == 1 {
		return 0, 0, true
	}
	index = int((y-in.min)/in.deltaY() - float64(in.order/2))
	if index < 0 {
		index = 0
	}
	if max := in.nodes - in.order - 1; index > max {
		index = max
	}
	return index, (y - in.getY(index)) / in.deltaY(), true
}

// NodeWeights evaluates the order+1 stencil weights at the given stencil
// fraction. The weights of any fraction sum to one.
func (in Interp) NodeWeights(fraction float64) []float64 {
	weights := make([]float64, in.order+1)
	for i := range weights {
		weights[i] = lagrangeWeight(i, in.order, fraction)
	}
	return weights
}

// NodeValues returns the node positions in physical coordinates.
func (in Interp) NodeValues() []float64 {
	values := make([]float64, in.nodes)
	for i := range values {
		values[i] = in.mapYToX(in.getY(i))
	}
	return values
}

// Nodes returns the node count.
func (in Interp) Nodes() int { return in.nodes }

// Order returns the polynomial order.
func (in Interp) Order() int { return in.order }

// Min returns the lower range limit in the mapped variable.
func (in Interp) Min() float64 { return in.min }

// Max returns the upper range limit in the mapped variable.
func (in Interp) Max() float64 { return in.max }

// Mapping returns the coordinate map.
func (in Interp) Mapping() Map { return in.mapping }

// ReweightMethod returns the reweighting method.
func (in Interp) ReweightMethod() ReweightMeth { return in.reweight }

// Method returns the interpolation method.
func (in Interp) Method() InterpMeth { return in.method }

func (in Interp) mapXToY(x float64) float64 {
	if in.mapping == ApplGridH0 {
		return math.Log(math.Log(x / 0.0625))
	}
	return 5*(1-x) - math.Log(x)
}

func (in Interp) mapYToX(y float64) float64 {
	if in.mapping == ApplGridH0 {
		return 0.0625 * math.Exp(math.Exp(y))
	}
	return invertF2(y)
}

// applgridWeight is the APPLgrid x-space reweighting (sqrt(x)/(1-0.99x))^3.
func applgridWeight(x float64) float64 {
	r := math.Sqrt(x) / (1 - 0.99*x)
	return r * r * r
}

// invertF2 solves y = -ln(x) + 5(1-x) for x with Newton iterations.
func invertF2(y float64) float64 {
	yp := y
	for iter := 0; iter < 100; iter++ {
		x := math.Exp(-yp)
		delta := y - yp - 5*(1-x)
		if math.Abs(delta) < 1e-12 {
			return x
		}
		deriv := -1 - 5*x
		yp -= delta / deriv
	}
	panic(fmt.Sprintf("x-map inversion did not converge for y = %g", y))
}

// lagrangeWeight evaluates the i-th Lagrange basis polynomial of degree n
// at u, with nodes at 0, 1, ..., n.
func lagrangeWeight(i, n int, u float64) float64 {
	factorials := 1
	product := 1.0
	for z := 0; z < i; z++ {
		product *= u - float64(z)
		factorials *= i - z
	}
	for z := i + 1; z <= n; z++ {
		product *= float64(z) - u
		factorials *= z - i
	}
	return product / float64(factorials)
}

// interpolateInto scatters weight onto array at the stencil spanned by the
// per-axis interpolations of ntuple. It reports whether anything was
// filled; zero weights and out-of-range coordinates fill nothing. The
// weight is divided by the product of the per-axis reweighting factors so
// that reading the lattice back through the node reweights reproduces it.
func interpolateInto(interps []Interp, ntuple []float64, weight float64, array *PackedArray) bool {
	if weight == 0 {
		return false
	}

	indices := make([]int, len(interps))
	fractions := make([]float64, len(interps))
	for i, in := range interps {
		idx, frac, ok := in.Interpolate(ntuple[i])
		if !ok {
			return false
		}
		indices[i], fractions[i] = idx, frac
	}

	for i, in := range interps {
		weight /= in.Reweight(ntuple[i])
	}

	nodeWeights := make([][]float64, len(interps))
	shape := make([]int, len(interps))
	for i, in := range interps {
		nodeWeights[i] = in.NodeWeights(fractions[i])
		shape[i] = in.Order() + 1
	}

	stencil := make([]int, len(interps))
	total := 1
	for _, n := range shape {
		total *= n
	}
	for flat := 0; flat < total; flat++ {
		Unravel(flat, shape, stencil)
		w := weight
		for i, j := range stencil {
			w *= nodeWeights[i][j]
			stencil[i] = indices[i] + j
		}
		array.Add(stencil, w)
	}
	return true
}
