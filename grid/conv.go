package grid

import (
	"fmt"
	"math"
	"sort"
)

// Scale slots of the convolution cache.
const (
	renIdx    = 0
	facIdx    = 1
	frgIdx    = 2
	scalesCnt = 3
)

// ConvType identifies the kind of a convolution function.
type ConvType int

const (
	// UnpolPDF is an unpolarized parton distribution function.
	UnpolPDF ConvType = iota
	// PolPDF is a polarized parton distribution function.
	PolPDF
	// UnpolFF is an unpolarized fragmentation function.
	UnpolFF
	// PolFF is a polarized fragmentation function.
	PolFF
)

// NewConvType maps the two flags to the convolution type.
func NewConvType(polarized, timeLike bool) ConvType {
	switch {
	case polarized && timeLike:
		return PolFF
	case polarized:
		return PolPDF
	case timeLike:
		return UnpolFF
	}
	return UnpolPDF
}

// IsPDF reports whether the type is a parton distribution, which is
// evaluated at the factorization scale rather than the fragmentation
// scale.
func (t ConvType) IsPDF() bool { return t == UnpolPDF || t == PolPDF }

func (t ConvType) String() string {
	switch t {
	case UnpolPDF:
		return "UnpolPDF"
	case PolPDF:
		return "PolPDF"
	case UnpolFF:
		return "UnpolFF"
	case PolFF:
		return "PolFF"
	}
	return fmt.Sprintf("ConvType(%d)", int(t))
}

// Conv identifies one convolution of a grid: the type of the function and
// the PDG id of the hadron it belongs to.
type Conv struct {
	Type ConvType
	PID  int32
}

// NewConv constructs a Conv.
func NewConv(convType ConvType, pid int32) Conv {
	return Conv{Type: convType, PID: pid}
}

// CC returns the convolution with the hadron charge conjugated.
func (c Conv) CC() Conv {
	return Conv{Type: c.Type, PID: chargeConjugatePdgPid(c.PID)}
}

// XfxFunc evaluates a convolution function, returning x times the
// distribution at momentum fraction x and squared scale q2 for the parton
// with the given PDG id.
type XfxFunc func(pid int32, x, q2 float64) float64

// AlphasFunc evaluates the strong coupling at the squared renormalization
// scale.
type AlphasFunc func(q2 float64) float64

type xfxKey struct {
	pid  int32
	ix   int
	imu2 int
}

type convCache1d struct {
	xfx   XfxFunc
	cache map[xfxKey]float64
	conv  Conv
}

// ConvolutionCache memoizes convolution-function and coupling evaluations
// across the bins and channels of a convolution. One cache can be reused
// across grids; the per-grid node unions are rebuilt on every Convolve.
type ConvolutionCache struct {
	caches      []convCache1d
	alphas      AlphasFunc
	alphasCache []float64
	mu2         [scalesCnt][]float64
	xGrid       []float64
}

// NewConvolutionCache couples the convolution functions, in the same
// order, with the convolutions they implement.
func NewConvolutionCache(convolutions []Conv, xfx []XfxFunc, alphas AlphasFunc) *ConvolutionCache {
	if len(convolutions) != len(xfx) {
		panic(fmt.Sprintf("got %d convolutions but %d functions", len(convolutions), len(xfx)))
	}
	caches := make([]convCache1d, len(xfx))
	for i := range caches {
		caches[i] = convCache1d{xfx: xfx[i], cache: make(map[xfxKey]float64), conv: convolutions[i]}
	}
	return &ConvolutionCache{caches: caches, alphas: alphas}
}

// Clear drops all memoized evaluations.
func (c *ConvolutionCache) Clear() {
	c.alphasCache = c.alphasCache[:0]
	for i := range c.caches {
		c.caches[i].cache = make(map[xfxKey]float64)
	}
	for i := range c.mu2 {
		c.mu2[i] = c.mu2[i][:0]
	}
	c.xGrid = c.xGrid[:0]
}

// newGridConvCache prepares the cache for one grid and one list of scale
// variations: it collects the unions of all scale and x node values over
// the non-empty subgrids, evaluates the coupling on the renormalization
// union, and matches the supplied convolutions to the grid's, allowing a
// charge-conjugated function to stand in for a missing one.
func (c *ConvolutionCache) newGridConvCache(g *Grid, xi [][3]float64) (*gridConvCache, error) {
	c.Clear()

	scaleForms := [scalesCnt]ScaleFuncForm{g.scales.Ren, g.scales.Fac, g.scales.Frg}
	for slot, form := range scaleForms {
		xiVars := make([]float64, 0, len(xi))
		for _, x := range xi {
			xiVars = append(xiVars, x[slot])
		}
		sort.Float64s(xiVars)
		xiVars = dedupFloats(xiVars)

		var union []float64
		g.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
			if subgrid.IsEmpty() {
				return
			}
			for _, scale := range form.Calc(subgrid.NodeValues(), g.kinematics) {
				for _, v := range xiVars {
					union = append(union, v*v*scale)
				}
			}
		})
		sort.Float64s(union)
		c.mu2[slot] = dedupFloats(union)
	}

	var xs []float64
	g.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
		if subgrid.IsEmpty() {
			return
		}
		nodes := subgrid.NodeValues()
		for i, kin := range g.kinematics {
			if kin.Kind == KinX {
				xs = append(xs, nodes[i]...)
			}
		}
	})
	sort.Float64s(xs)
	c.xGrid = dedupFloats(xs)

	c.alphasCache = make([]float64, len(c.mu2[renIdx]))
	for i, mur2 := range c.mu2[renIdx] {
		c.alphasCache[i] = c.alphas(mur2)
	}

	perm := make([]permEntry, len(g.convolutions))
	for maxIdx, gridConv := range g.convolutions {
		found := false
		for idx := min(maxIdx, len(c.caches)-1); idx >= 0; idx-- {
			if c.caches[idx].conv == gridConv {
				perm[maxIdx] = permEntry{idx: idx}
				found = true
				break
			}
			if c.caches[idx].conv.CC() == gridConv {
				perm[maxIdx] = permEntry{idx: idx, cc: true}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no supplied function matches convolution %d (%v): %w",
				maxIdx, gridConv, ErrConvolutionMismatch)
		}
	}

	return &gridConvCache{cache: c, perm: perm, scales: g.scales}, nil
}

type permEntry struct {
	idx int
	cc  bool
}

// gridConvCache is the per-grid view of a ConvolutionCache: mappings from
// subgrid node indices into the cached unions.
type gridConvCache struct {
	cache     *ConvolutionCache
	perm      []permEntry
	imu2      [scalesCnt][]int
	scales    Scales
	ix        [][]int
	scaleDims []int
}

// setGrids rebuilds the node-index mappings for one subgrid and one scale
// variation.
func (gc *gridConvCache) setGrids(g *Grid, subgrid Subgrid, xi [3]float64) {
	nodeValues := subgrid.NodeValues()
	scaleForms := [scalesCnt]ScaleFuncForm{gc.scales.Ren, gc.scales.Fac, gc.scales.Frg}

	for slot, form := range scaleForms {
		gc.imu2[slot] = gc.imu2[slot][:0]
		for _, s := range form.Calc(nodeValues, g.kinematics) {
			target := xi[slot] * xi[slot] * s
			pos := -1
			for i, v := range gc.cache.mu2[slot] {
				if nodeValueEq(v, target) {
					pos = i
					break
				}
			}
			if pos < 0 {
				panic(fmt.Sprintf("scale %g missing from cache union", target))
			}
			gc.imu2[slot] = append(gc.imu2[slot], pos)
		}
	}

	gc.ix = gc.ix[:0]
	for idx := range g.convolutions {
		var axis []float64
		for i, kin := range g.kinematics {
			if kin == XAxis(idx) {
				axis = nodeValues[i]
				break
			}
		}
		mapped := make([]int, len(axis))
		for i, xd := range axis {
			pos := -1
			for j, x := range gc.cache.xGrid {
				if nodeValueEq(xd, x) {
					pos = j
					break
				}
			}
			if pos < 0 {
				panic(fmt.Sprintf("x node %g missing from cache union", xd))
			}
			mapped[i] = pos
		}
		gc.ix = append(gc.ix, mapped)
	}

	gc.scaleDims = gc.scaleDims[:0]
	for i, kin := range g.kinematics {
		if kin.Kind == KinScale {
			gc.scaleDims = append(gc.scaleDims, len(nodeValues[i]))
		}
	}
}

// asFxProd evaluates the product of the convolution functions for one
// channel pid tuple at one lattice cell, times the strong coupling raised
// to asOrder. The leading entries of indices are the scale-axis node
// indices, the trailing ones the x-axis node indices.
func (gc *gridConvCache) asFxProd(pdgIDs []int32, asOrder uint8, indices []int) float64 {
	xStart := len(indices) - len(pdgIDs)
	indicesScales := indices[:xStart]
	indicesX := indices[xStart:]

	fxProd := 1.0
	for i, pdgID := range pdgIDs {
		entry := gc.perm[i]
		pid := pdgID
		if entry.cc {
			pid = chargeConjugatePdgPid(pid)
		}
		cache := &gc.cache.caches[entry.idx]

		slot := frgIdx
		scaleIdx := 0
		if cache.conv.Type.IsPDF() {
			slot = facIdx
			scaleIdx = gc.scales.Fac.Idx(indicesScales, gc.scaleDims)
		} else {
			scaleIdx = gc.scales.Frg.Idx(indicesScales, gc.scaleDims)
		}

		imu2 := gc.imu2[slot][scaleIdx]
		ix := gc.ix[i][indicesX[i]]
		key := xfxKey{pid: pid, ix: ix, imu2: imu2}
		fx, ok := cache.cache[key]
		if !ok {
			x := gc.cache.xGrid[ix]
			mu2 := gc.cache.mu2[slot][imu2]
			fx = cache.xfx(pid, x, mu2) / x
			cache.cache[key] = fx
		}
		fxProd *= fx
	}

	if asOrder != 0 {
		renScaleIdx := gc.scales.Ren.Idx(indicesScales, gc.scaleDims)
		fxProd *= math.Pow(gc.cache.alphasCache[gc.imu2[renIdx][renScaleIdx]], float64(asOrder))
	}
	return fxProd
}

func dedupFloats(sorted []float64) []float64 {
	out := sorted[:0]
	for _, v := range sorted {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}
