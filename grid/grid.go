package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats/scalar"
)

// binCompareULPs is the tolerance used when deciding whether two grids
// have the same binning during a merge.
const binCompareULPs = 8

// Grid stores the results of a perturbative calculation in interpolated
// form, independent of any convolution function. The subgrid lattice is
// indexed by (order, bin, channel).
type Grid struct {
	subgrids     [][][]Subgrid
	pidBasis     PidBasis
	channels     []Channel
	orders       []Order
	bwfl         *BinsWithFillLimits
	convolutions []Conv
	interps      []Interp
	kinematics   []Kinematics
	scales       Scales
	metadata     map[string]string
}

// NewGrid constructs a grid with all axis descriptors fixed for its
// lifetime. The channel pid tuples must be as wide as the convolution
// list, every interpolation needs a kinematic label and vice versa, every
// convolution needs a momentum-fraction axis, and the scale forms may only
// refer to scale axes that exist. Violations return ErrAxisConfig.
func NewGrid(
	pidBasis PidBasis,
	channels []Channel,
	orders []Order,
	bins *BinsWithFillLimits,
	convolutions []Conv,
	interps []Interp,
	kinematics []Kinematics,
	scales Scales,
) (*Grid, error) {
	for i, channel := range channels {
		for _, term := range channel.Terms() {
			if len(term.PIDs) != len(convolutions) {
				return nil, fmt.Errorf("channel %d has %d pids for %d convolutions: %w",
					i, len(term.PIDs), len(convolutions), ErrAxisConfig)
			}
		}
	}
	if len(interps) != len(kinematics) {
		return nil, fmt.Errorf("%d interpolations for %d kinematic variables: %w",
			len(interps), len(kinematics), ErrAxisConfig)
	}
	for i := range convolutions {
		if !hasKinematics(kinematics, XAxis(i)) {
			return nil, fmt.Errorf("no momentum-fraction axis for convolution %d: %w", i, ErrAxisConfig)
		}
	}
	if !scales.CompatibleWith(kinematics) {
		return nil, fmt.Errorf("scale forms refer to missing scale axes: %w", ErrAxisConfig)
	}

	g := &Grid{
		pidBasis:     pidBasis,
		channels:     append([]Channel(nil), channels...),
		orders:       append([]Order(nil), orders...),
		bwfl:         bins.Clone(),
		convolutions: append([]Conv(nil), convolutions...),
		interps:      append([]Interp(nil), interps...),
		kinematics:   append([]Kinematics(nil), kinematics...),
		scales:       scales,
		metadata:     make(map[string]string),
	}
	g.subgrids = emptySubgrids(len(orders), bins.Len(), len(channels))
	return g, nil
}

func emptySubgrids(orders, bins, channels int) [][][]Subgrid {
	subgrids := make([][][]Subgrid, orders)
	for o := range subgrids {
		subgrids[o] = make([][]Subgrid, bins)
		for b := range subgrids[o] {
			row := make([]Subgrid, channels)
			for c := range row {
				row[c] = EmptySubgrid{}
			}
			subgrids[o][b] = row
		}
	}
	return subgrids
}

// eachSubgrid visits every lattice cell in (order, bin, channel) order.
func (g *Grid) eachSubgrid(fn func(order, bin, channel int, subgrid Subgrid)) {
	for o, byBin := range g.subgrids {
		for b, byChannel := range byBin {
			for c, subgrid := range byChannel {
				fn(o, b, c, subgrid)
			}
		}
	}
}

// Accessors for the immutable axis descriptors.

// PidBasis returns the basis the channel definitions are written in.
func (g *Grid) PidBasis() PidBasis { return g.pidBasis }

// Channels returns the channel list.
func (g *Grid) Channels() []Channel { return g.channels }

// Orders returns the perturbative orders.
func (g *Grid) Orders() []Order { return g.orders }

// Bins returns the bin container.
func (g *Grid) Bins() *BinsWithFillLimits { return g.bwfl }

// Convolutions returns the convolutions the grid expects.
func (g *Grid) Convolutions() []Conv { return g.convolutions }

// Interps returns the per-axis interpolation descriptors.
func (g *Grid) Interps() []Interp { return g.interps }

// Kinematics returns the axis labels.
func (g *Grid) Kinematics() []Kinematics { return g.kinematics }

// Scales returns the scale functional forms.
func (g *Grid) Scales() Scales { return g.scales }

// Subgrid returns the subgrid of one lattice cell.
func (g *Grid) Subgrid(order, bin, channel int) Subgrid {
	return g.subgrids[order][bin][channel]
}

// SetSubgrid replaces the subgrid of one lattice cell.
func (g *Grid) SetSubgrid(order, bin, channel int, subgrid Subgrid) {
	g.subgrids[order][bin][channel] = subgrid
}

// Metadata returns the key/value metadata of the grid.
func (g *Grid) Metadata() map[string]string { return g.metadata }

// SetMetadata stores a key/value pair.
func (g *Grid) SetMetadata(key, value string) { g.metadata[key] = value }

// Fill adds weight at the physical coordinates ntuple to the given order
// and channel, routed to the bin the observable falls into. Observables
// outside all bins and coordinates outside the interpolation ranges are
// silently dropped.
func (g *Grid) Fill(order int, observable float64, channel int, ntuple []float64, weight float64) {
	bin, ok := g.bwfl.FillIndex(observable)
	if !ok {
		return
	}
	subgrid := g.subgrids[order][bin][channel]
	if _, empty := subgrid.(EmptySubgrid); empty {
		subgrid = NewInterpSubgrid(g.interps)
		g.subgrids[order][bin][channel] = subgrid
	}
	subgrid.Fill(g.interps, ntuple, weight)
}

// FillAll adds one weight per channel at the same coordinates.
func (g *Grid) FillAll(order int, observable float64, ntuple []float64, weights []float64) {
	for channel, weight := range weights {
		g.Fill(order, observable, channel, ntuple, weight)
	}
}

// FillArray adds a batch of weights to one order and channel, one fill per
// row of ntuples.
func (g *Grid) FillArray(order int, observables []float64, channel int, ntuples [][]float64, weights []float64) {
	for i, ntuple := range ntuples {
		g.Fill(order, observables[i], channel, ntuple, weights[i])
	}
}

// SetBins replaces the bin container, remapping the existing fills to new
// limits and normalizations. The new container must hold as many bins as
// the current one.
func (g *Grid) SetBins(bins *BinsWithFillLimits) error {
	if bins.Len() != g.bwfl.Len() {
		return fmt.Errorf("replacing %d bins with %d: %w", g.bwfl.Len(), bins.Len(), ErrAxisConfig)
	}
	g.bwfl = bins
	return nil
}

// channelsPdg returns the channels translated to PDG ids, which is the
// basis convolution functions are evaluated in.
func (g *Grid) channelsPdg() []Channel {
	if g.pidBasis == PidBasisPdg {
		return g.channels
	}
	translated := make([]Channel, len(g.channels))
	for i, channel := range g.channels {
		translated[i] = channel.Translate(func(pid int32) []BasisTerm {
			return evolToPdgMcIDs(pid)
		})
	}
	return translated
}

// Convolve evaluates the grid with the convolution functions in cache and
// returns one number per bin and scale variation, xi-major: the result for
// variation v and the i-th selected bin is at v*len(bins)+i. Empty
// orderMask, binIndices and channelMask select everything; xi defaults to
// the central scale choice (1, 1, 1). The per-bin results are divided by
// the bin normalizations.
func (g *Grid) Convolve(
	cache *ConvolutionCache,
	orderMask []bool,
	binIndices []int,
	channelMask []bool,
	xi [][3]float64,
) ([]float64, error) {
	if len(xi) == 0 {
		xi = [][3]float64{{1, 1, 1}}
	}
	gc, err := cache.newGridConvCache(g, xi)
	if err != nil {
		return nil, err
	}

	if len(binIndices) == 0 {
		binIndices = make([]int, g.bwfl.Len())
		for i := range binIndices {
			binIndices[i] = i
		}
	}
	binPos := make(map[int]int, len(binIndices))
	for pos, bin := range binIndices {
		binPos[bin] = pos
	}

	results := make([]float64, len(xi)*len(binIndices))
	normalizations := g.bwfl.Normalizations()
	pdgChannels := g.channelsPdg()

	for xiIdx, xiVals := range xi {
		xir, xif, xia := xiVals[0], xiVals[1], xiVals[2]
		for o, byBin := range g.subgrids {
			order := g.orders[o]
			// log-order contributions vanish at the central scale
			if (order.LogXiR > 0 && scalar.EqualWithinULP(xir, 1, 4)) ||
				(order.LogXiF > 0 && scalar.EqualWithinULP(xif, 1, 4)) ||
				(order.LogXiA > 0 && scalar.EqualWithinULP(xia, 1, 4)) {
				continue
			}
			if len(orderMask) > 0 && !orderMask[o] {
				continue
			}
			for b, byChannel := range byBin {
				pos, selected := binPos[b]
				if !selected {
					continue
				}
				for c, subgrid := range byChannel {
					if len(channelMask) > 0 && !channelMask[c] {
						continue
					}
					if subgrid.IsEmpty() {
						continue
					}

					channel := pdgChannels[c]
					gc.setGrids(g, subgrid, xiVals)

					value := 0.0
					subgrid.Each(func(index []int, weight float64) {
						lumi := 0.0
						for _, term := range channel.Terms() {
							lumi += term.Factor * gc.asFxProd(term.PIDs, order.AlphaS, index)
						}
						value += lumi * weight
					})

					if order.LogXiR > 0 {
						value *= math.Pow(math.Log(xir*xir), float64(order.LogXiR))
					}
					if order.LogXiF > 0 {
						value *= math.Pow(math.Log(xif*xif), float64(order.LogXiF))
					}
					if order.LogXiA > 0 {
						value *= math.Pow(math.Log(xia*xia), float64(order.LogXiA))
					}

					results[xiIdx*len(binIndices)+pos] += value / normalizations[b]
				}
			}
		}
	}
	return results, nil
}

// ConvolveSubgrid evaluates a single lattice cell without summing over
// nodes: the returned tensor has the subgrid's shape and holds, per cell,
// the weight times the channel's convolution-function combination. Bin
// normalizations are not applied.
func (g *Grid) ConvolveSubgrid(
	cache *ConvolutionCache,
	order, bin, channel int,
	xi [3]float64,
) (*Tensor, error) {
	gc, err := cache.newGridConvCache(g, [][3]float64{xi})
	if err != nil {
		return nil, err
	}

	subgrid := g.subgrids[order][bin][channel]
	ord := g.orders[order]
	pdgChannel := g.channelsPdg()[channel]

	shape := subgrid.Shape()
	if shape == nil {
		shape = make([]int, len(g.interps))
	}
	out := NewTensor(shape)
	if subgrid.IsEmpty() {
		return out, nil
	}

	gc.setGrids(g, subgrid, xi)
	subgrid.Each(func(index []int, weight float64) {
		lumi := 0.0
		for _, term := range pdgChannel.Terms() {
			lumi += term.Factor * gc.asFxProd(term.PIDs, ord.AlphaS, index)
		}
		out.Set(lumi*weight, index...)
	})
	return out, nil
}

// Merge adds another grid into the receiver. When the binnings agree
// within a few ULPs the grids are summed bin by bin, with orders and
// channels missing from the receiver appended. Otherwise the bins of
// other must line up directly after the receiver's fill limits and the
// bin lists are concatenated; anything else returns
// ErrNonConsecutiveBins.
func (g *Grid) Merge(other *Grid) error {
	if len(g.convolutions) != len(other.convolutions) {
		return fmt.Errorf("grids have %d and %d convolutions: %w",
			len(g.convolutions), len(other.convolutions), ErrConvolutionMismatch)
	}
	for i, conv := range g.convolutions {
		if conv != other.convolutions[i] {
			return fmt.Errorf("convolution %d differs: %w", i, ErrConvolutionMismatch)
		}
	}

	sameBins := g.bwfl.BinsEqualWithinULP(other.bwfl, binCompareULPs)
	binOffset := 0
	if !sameBins {
		merged, err := concatBins(g.bwfl, other.bwfl)
		if err != nil {
			return err
		}
		binOffset = g.bwfl.Len()
		g.bwfl = merged
	}

	var newOrders []Order
	for _, order := range other.orders {
		if orderIndex(g.orders, order) < 0 && orderIndex(newOrders, order) < 0 {
			newOrders = append(newOrders, order)
		}
	}
	var newChannels []Channel
	for _, channel := range other.channels {
		if channelIndex(g.channels, channel) < 0 && channelIndex(newChannels, channel) < 0 {
			newChannels = append(newChannels, channel)
		}
	}
	logrus.Debugf("merging grids: %d new orders, %d new channels, %d new bins",
		len(newOrders), len(newChannels), other.bwfl.Len()*boolToInt(!sameBins))

	g.orders = append(g.orders, newOrders...)
	g.channels = append(g.channels, newChannels...)
	g.reshapeSubgrids()

	var mergeErr error
	other.eachSubgrid(func(o, b, c int, subgrid Subgrid) {
		if mergeErr != nil || subgrid.IsEmpty() {
			return
		}
		targetOrder := orderIndex(g.orders, other.orders[o])
		targetChannel := channelIndex(g.channels, other.channels[c])
		targetBin := b + binOffset

		existing := g.subgrids[targetOrder][targetBin][targetChannel]
		if existing.IsEmpty() {
			g.subgrids[targetOrder][targetBin][targetChannel] = subgrid.Clone()
			return
		}
		if err := existing.Merge(subgrid, nil); err != nil {
			mergeErr = err
		}
	})
	return mergeErr
}

// concatBins appends the bins of rhs after lhs. The fill limits must be
// back-to-back; synthetic integer fill limits, as produced by
// FromLimitsAndNormalizations, are shifted to follow on from lhs.
func concatBins(lhs, rhs *BinsWithFillLimits) (*BinsWithFillLimits, error) {
	lhsLimits := lhs.FillLimits()
	rhsLimits := append([]float64(nil), rhs.FillLimits()...)
	last := lhsLimits[len(lhsLimits)-1]

	if syntheticLimits(lhsLimits) && syntheticLimits(rhsLimits) {
		for i := range rhsLimits {
			rhsLimits[i] += last
		}
	}
	if !scalar.EqualWithinULP(last, rhsLimits[0], binCompareULPs) {
		return nil, fmt.Errorf("fill limits end at %g but continue at %g: %w",
			last, rhsLimits[0], ErrNonConsecutiveBins)
	}

	bins := append(append([]Bin(nil), lhs.Bins()...), rhs.Bins()...)
	limits := append(append([]float64(nil), lhsLimits...), rhsLimits[1:]...)
	return NewBinsWithFillLimits(bins, limits)
}

// syntheticLimits recognizes the 0, 1, ..., n fill limits assigned when
// bins were built from explicit limits instead of a fill axis.
func syntheticLimits(limits []float64) bool {
	for i, v := range limits {
		if v != float64(i) {
			return false
		}
	}
	return true
}

// reshapeSubgrids grows the lattice to the current axis lengths, keeping
// existing subgrids in place.
func (g *Grid) reshapeSubgrids() {
	grown := emptySubgrids(len(g.orders), g.bwfl.Len(), len(g.channels))
	for o, byBin := range g.subgrids {
		for b, byChannel := range byBin {
			copy(grown[o][b], byChannel)
		}
	}
	g.subgrids = grown
}

func orderIndex(orders []Order, order Order) int {
	for i, o := range orders {
		if o == order {
			return i
		}
	}
	return -1
}

func channelIndex(channels []Channel, channel Channel) int {
	for i, c := range channels {
		if c.Equal(channel) {
			return i
		}
	}
	return -1
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Scale multiplies all subgrids by factor.
func (g *Grid) Scale(factor float64) {
	g.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
		subgrid.Scale(factor)
	})
}

// ScaleByOrder rescales each order by alphas and alpha raised to the
// order's coupling powers and the log factors raised to its log powers,
// times a global factor.
func (g *Grid) ScaleByOrder(alphas, alpha, logxir, logxif, logxia, global float64) {
	for o, byBin := range g.subgrids {
		order := g.orders[o]
		factor := global *
			math.Pow(alphas, float64(order.AlphaS)) *
			math.Pow(alpha, float64(order.Alpha)) *
			math.Pow(logxir, float64(order.LogXiR)) *
			math.Pow(logxif, float64(order.LogXiF)) *
			math.Pow(logxia, float64(order.LogXiA))
		for _, byChannel := range byBin {
			for _, subgrid := range byChannel {
				subgrid.Scale(factor)
			}
		}
	}
}

// ScaleByBin multiplies the subgrids of each bin by the matching factor.
func (g *Grid) ScaleByBin(factors []float64) {
	g.eachSubgrid(func(_, bin, _ int, subgrid Subgrid) {
		if bin < len(factors) {
			subgrid.Scale(factors[bin])
		}
	})
}

// DeleteBins removes the given bins and their subgrids. Out-of-range
// indices are ignored.
func (g *Grid) DeleteBins(indices []int) {
	valid := validIndices(indices, g.bwfl.Len())
	// delete from the back so earlier indices stay valid
	sort.Sort(sort.Reverse(sort.IntSlice(valid)))
	for _, bin := range valid {
		g.bwfl.Remove(bin)
		for o := range g.subgrids {
			g.subgrids[o] = append(g.subgrids[o][:bin], g.subgrids[o][bin+1:]...)
		}
	}
}

// DeleteOrders removes the given orders and their subgrids. Out-of-range
// indices are ignored.
func (g *Grid) DeleteOrders(indices []int) {
	valid := validIndices(indices, len(g.orders))
	sort.Sort(sort.Reverse(sort.IntSlice(valid)))
	for _, o := range valid {
		g.orders = append(g.orders[:o], g.orders[o+1:]...)
		g.subgrids = append(g.subgrids[:o], g.subgrids[o+1:]...)
	}
}

// DeleteChannels removes the given channels and their subgrids.
// Out-of-range indices are ignored.
func (g *Grid) DeleteChannels(indices []int) {
	valid := validIndices(indices, len(g.channels))
	sort.Sort(sort.Reverse(sort.IntSlice(valid)))
	for _, c := range valid {
		g.channels = append(g.channels[:c], g.channels[c+1:]...)
		for o := range g.subgrids {
			for b := range g.subgrids[o] {
				g.subgrids[o][b] = append(g.subgrids[o][b][:c], g.subgrids[o][b][c+1:]...)
			}
		}
	}
}

func validIndices(indices []int, limit int) []int {
	seen := make(map[int]bool, len(indices))
	var valid []int
	for _, idx := range indices {
		if idx >= 0 && idx < limit && !seen[idx] {
			seen[idx] = true
			valid = append(valid, idx)
		}
	}
	return valid
}

// SplitChannels splits every multi-term channel into one channel per
// term, cloning the subgrids. Convolution results are unchanged.
func (g *Grid) SplitChannels() {
	var channels []Channel
	var origin []int
	for c, channel := range g.channels {
		for _, term := range channel.Terms() {
			channels = append(channels, NewChannel([]ChannelTerm{term}))
			origin = append(origin, c)
		}
	}
	if len(channels) == len(g.channels) {
		return
	}

	split := emptySubgrids(len(g.orders), g.bwfl.Len(), len(channels))
	for o, byBin := range g.subgrids {
		for b, byChannel := range byBin {
			for c, old := range origin {
				if !byChannel[old].IsEmpty() {
					split[o][b][c] = byChannel[old].Clone()
				}
			}
		}
	}
	g.channels = channels
	g.subgrids = split
}

// DedupChannels merges channels that have identical pid tuples and whose
// subgrids agree element-wise within the given ULP tolerance across all
// orders and bins. The duplicate channel is removed and its term factors
// added to the survivor.
func (g *Grid) DedupChannels(ulps uint) {
	for idx := len(g.channels) - 1; idx > 0; idx-- {
		for other := idx - 1; other >= 0; other-- {
			if !samePidTuples(g.channels[idx], g.channels[other]) {
				continue
			}
			if !g.subgridsEqual(other, idx, ulps) {
				continue
			}

			terms := append([]ChannelTerm(nil), g.channels[other].Terms()...)
			for i, term := range g.channels[idx].Terms() {
				terms[i].Factor += term.Factor
			}
			g.channels[other] = NewChannel(terms)
			logrus.Debugf("deduplicating channel %d into %d", idx, other)
			g.DeleteChannels([]int{idx})
			break
		}
	}
}

func samePidTuples(a, b Channel) bool {
	if len(a.Terms()) != len(b.Terms()) {
		return false
	}
	for i, term := range a.Terms() {
		if !pidsEqual(term.PIDs, b.Terms()[i].PIDs) {
			return false
		}
	}
	return true
}

// subgridsEqual compares the reweighted contents of two channel columns.
func (g *Grid) subgridsEqual(chanA, chanB int, ulps uint) bool {
	for o := range g.subgrids {
		for b := range g.subgrids[o] {
			lhs := g.subgrids[o][b][chanA]
			rhs := g.subgrids[o][b][chanB]
			if lhs.IsEmpty() != rhs.IsEmpty() {
				return false
			}
			if lhs.IsEmpty() {
				continue
			}
			type cell struct {
				index []int
				value float64
			}
			var lhsCells, rhsCells []cell
			lhs.Each(func(index []int, value float64) {
				lhsCells = append(lhsCells, cell{append([]int(nil), index...), value})
			})
			rhs.Each(func(index []int, value float64) {
				rhsCells = append(rhsCells, cell{append([]int(nil), index...), value})
			})
			if len(lhsCells) != len(rhsCells) {
				return false
			}
			for i, lc := range lhsCells {
				rc := rhsCells[i]
				if len(lc.index) != len(rc.index) {
					return false
				}
				for d := range lc.index {
					if lc.index[d] != rc.index[d] {
						return false
					}
				}
				if !scalar.EqualWithinULP(lc.value, rc.value, ulps) {
					return false
				}
			}
		}
	}
	return true
}

// RotatePidBasis rewrites the channel definitions in another flavor
// basis. Subgrids are untouched; only the linear combinations change.
func (g *Grid) RotatePidBasis(target PidBasis) {
	if g.pidBasis == target {
		return
	}
	from := g.pidBasis
	for i, channel := range g.channels {
		g.channels[i] = channel.Translate(func(pid int32) []BasisTerm {
			return from.Translate(target, pid)
		})
	}
	g.pidBasis = target
}

// SymmetrizeChannels folds channels that are transposes of each other
// into one when the grid's two convolutions are identical. A channel that
// is its own transpose has its subgrids folded onto the upper triangle of
// the two momentum-fraction axes.
func (g *Grid) SymmetrizeChannels() {
	if len(g.convolutions) != 2 || g.convolutions[0] != g.convolutions[1] {
		return
	}
	xa := kinematicsPosition(g.kinematics, XAxis(0))
	xb := kinematicsPosition(g.kinematics, XAxis(1))

	var deleted []int
	for i := 0; i < len(g.channels); i++ {
		if containsInt(deleted, i) {
			continue
		}
		transposed := g.channels[i].Transpose(0, 1)
		if g.channels[i].Equal(transposed) {
			for o := range g.subgrids {
				for b := range g.subgrids[o] {
					if !g.subgrids[o][b][i].IsEmpty() {
						g.subgrids[o][b][i].Symmetrize(xa, xb)
					}
				}
			}
			continue
		}
		for j := i + 1; j < len(g.channels); j++ {
			if containsInt(deleted, j) || !g.channels[j].Equal(transposed) {
				continue
			}
			transposeAxes := [2]int{xa, xb}
			for o := range g.subgrids {
				for b := range g.subgrids[o] {
					lhs := g.subgrids[o][b][i]
					rhs := g.subgrids[o][b][j]
					if rhs.IsEmpty() {
						continue
					}
					if lhs.IsEmpty() {
						g.subgrids[o][b][i] = transposeSubgrid(rhs, xa, xb)
						continue
					}
					if err := lhs.Merge(rhs, &transposeAxes); err != nil {
						// representations differ, fold through the import form
						imported := ImportFrom(lhs)
						if err := imported.Merge(rhs, &transposeAxes); err != nil {
							logrus.Debugf("channel symmetrization kept %d and %d apart: %v", i, j, err)
							continue
						}
						g.subgrids[o][b][i] = imported
					}
				}
			}
			deleted = append(deleted, j)
			break
		}
	}
	if len(deleted) > 0 {
		g.DeleteChannels(deleted)
	}
}

// transposeSubgrid returns an import-form copy of s with axes a and b
// swapped.
func transposeSubgrid(s Subgrid, a, b int) Subgrid {
	nodes := append([][]float64(nil), s.NodeValues()...)
	nodes[a], nodes[b] = nodes[b], nodes[a]
	shape := append([]int(nil), s.Shape()...)
	shape[a], shape[b] = shape[b], shape[a]

	array := NewPackedArray(shape)
	target := make([]int, len(shape))
	s.Each(func(index []int, value float64) {
		copy(target, index)
		target[a], target[b] = target[b], target[a]
		array.Add(target, value)
	})
	return NewImportSubgrid(array, nodes)
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Optimize chooses the most compact representation for every subgrid
// without changing convolution results: fully zero lattices become
// placeholders, axes that only ever saw one coordinate collapse to a
// single node, and filled lattices are shrunk to their populated node
// ranges.
func (g *Grid) Optimize() {
	g.eachSubgrid(func(o, b, c int, subgrid Subgrid) {
		if subgrid.IsEmpty() {
			g.subgrids[o][b][c] = EmptySubgrid{}
			return
		}
		subgrid.OptimizeNodes()
		g.subgrids[o][b][c] = ImportFrom(subgrid)
	})
	logrus.Debugf("optimized %d x %d x %d subgrids", len(g.orders), g.bwfl.Len(), len(g.channels))
}

// EvolveInfo summarizes the node values and pids an evolution operator
// must cover for the orders selected by orderMask.
type EvolveInfo struct {
	// Fac1 are the squared factorization scales appearing in the grid.
	Fac1 []float64
	// Pids1 are the parton ids appearing in the channels.
	Pids1 []int32
	// X1 are the momentum fractions appearing in the grid.
	X1 []float64
	// Ren1 are the squared renormalization scales appearing in the grid.
	Ren1 []float64
}

// EvolveInfo gathers the scales, momentum fractions and pids of the
// non-empty subgrids of the selected orders.
func (g *Grid) EvolveInfo(orderMask []bool) EvolveInfo {
	var fac1, x1, ren1 []float64
	var pids1 []int32

	g.eachSubgrid(func(o, _, c int, subgrid Subgrid) {
		if len(orderMask) > 0 && !orderMask[o] {
			return
		}
		if subgrid.IsEmpty() {
			return
		}
		nodes := subgrid.NodeValues()
		fac1 = append(fac1, g.scales.Fac.Calc(nodes, g.kinematics)...)
		ren1 = append(ren1, g.scales.Ren.Calc(nodes, g.kinematics)...)
		for i, kin := range g.kinematics {
			if kin.Kind == KinX {
				x1 = append(x1, nodes[i]...)
			}
		}
		for _, term := range g.channels[c].Terms() {
			for _, pid := range term.PIDs {
				if !containsPid(pids1, pid) {
					pids1 = append(pids1, pid)
				}
			}
		}
	})

	sort.Slice(pids1, func(i, j int) bool { return pids1[i] < pids1[j] })
	return EvolveInfo{
		Fac1:  sortDedupULP(fac1, evolveInfoTolULPs),
		Pids1: pids1,
		X1:    sortDedupULP(x1, evolveInfoTolULPs),
		Ren1:  sortDedupULP(ren1, evolveInfoTolULPs),
	}
}

func containsPid(pids []int32, pid int32) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}

func sortDedupULP(values []float64, ulps uint) []float64 {
	sort.Float64s(values)
	out := values[:0]
	for _, v := range values {
		if len(out) == 0 || !scalar.EqualWithinULP(out[len(out)-1], v, ulps) {
			out = append(out, v)
		}
	}
	return append([]float64(nil), out...)
}
