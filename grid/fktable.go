package grid

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats/scalar"
)

// FkAssumptions is a set of assumptions about the PDFs at the starting
// scale of an FK table which allow merging distributions that become
// indistinguishable under them.
type FkAssumptions int

const (
	// Nf6Ind assumes nothing.
	Nf6Ind FkAssumptions = iota
	// Nf6Sym assumes the top valence distribution vanishes.
	Nf6Sym
	// Nf5Ind assumes the top distributions vanish.
	Nf5Ind
	// Nf5Sym additionally assumes the bottom valence distribution
	// vanishes.
	Nf5Sym
	// Nf4Ind assumes the top and bottom distributions vanish.
	Nf4Ind
	// Nf4Sym additionally assumes the charm valence distribution
	// vanishes.
	Nf4Sym
	// Nf3Ind assumes the top, bottom and charm distributions vanish.
	Nf3Ind
	// Nf3Sym additionally assumes the strange valence distribution
	// vanishes.
	Nf3Sym
)

// String returns the canonical name of the assumption set.
func (a FkAssumptions) String() string {
	switch a {
	case Nf6Ind:
		return "Nf6Ind"
	case Nf6Sym:
		return "Nf6Sym"
	case Nf5Ind:
		return "Nf5Ind"
	case Nf5Sym:
		return "Nf5Sym"
	case Nf4Ind:
		return "Nf4Ind"
	case Nf4Sym:
		return "Nf4Sym"
	case Nf3Ind:
		return "Nf3Ind"
	case Nf3Sym:
		return "Nf3Sym"
	}
	return fmt.Sprintf("FkAssumptions(%d)", int(a))
}

// ParseFkAssumptions parses the canonical assumption names.
func ParseFkAssumptions(s string) (FkAssumptions, error) {
	for a := Nf6Ind; a <= Nf3Sym; a++ {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown FK assumptions %q", s)
}

// mergePairs lists, per assumption set, the evolution-basis ids that can
// no longer be distinguished from another id and may be merged into it.
// The lists are cumulative: each set includes the pairs of the weaker
// ones.
func (a FkAssumptions) mergePairs() [][2]int32 {
	var pairs [][2]int32
	if a >= Nf6Sym {
		pairs = append(pairs, [2]int32{235, 200})
	}
	if a >= Nf5Ind {
		pairs = append(pairs, [2]int32{135, 100})
	}
	if a >= Nf5Sym {
		pairs = append(pairs, [2]int32{224, 200})
	}
	if a >= Nf4Ind {
		pairs = append(pairs, [2]int32{124, 100})
	}
	if a >= Nf4Sym {
		pairs = append(pairs, [2]int32{215, 200})
	}
	if a >= Nf3Ind {
		pairs = append(pairs, [2]int32{115, 100})
	}
	if a >= Nf3Sym {
		pairs = append(pairs, [2]int32{208, 200})
	}
	return pairs
}

// FkTable is a grid in a restricted form: a single trivial perturbative
// order, a single factorization scale per subgrid and channels with a
// single factor-one term, which makes the convolution a plain tensor
// contraction.
type FkTable struct {
	grid *Grid
}

// FkTableFromGrid validates that g is in FK form and wraps it. The grid
// is taken over, not copied.
func FkTableFromGrid(g *Grid) (*FkTable, error) {
	if len(g.orders) != 1 || g.orders[0] != (Order{}) {
		return nil, fmt.Errorf("grid has %d orders, FK tables have a single trivial order: %w",
			len(g.orders), ErrAxisConfig)
	}
	for i, channel := range g.channels {
		terms := channel.Terms()
		if len(terms) != 1 || terms[0].Factor != 1 {
			return nil, fmt.Errorf("channel %d is not a single unit-factor term: %w", i, ErrAxisConfig)
		}
		for j := 0; j < i; j++ {
			if g.channels[j].Equal(channel) {
				return nil, fmt.Errorf("channels %d and %d are duplicates: %w", j, i, ErrAxisConfig)
			}
		}
	}
	var muf2 *float64
	var mismatch bool
	g.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
		if subgrid.IsEmpty() || mismatch {
			return
		}
		nodes := subgrid.NodeValues()
		scaleAxis := kinematicsPosition(g.kinematics, ScaleAxis(0))
		if len(nodes[scaleAxis]) != 1 {
			mismatch = true
			return
		}
		value := nodes[scaleAxis][0]
		if muf2 == nil {
			muf2 = &value
		} else if !nodeValueEq(*muf2, value) {
			mismatch = true
		}
	})
	if mismatch {
		return nil, fmt.Errorf("subgrids do not share a single factorization scale: %w", ErrAxisConfig)
	}
	return &FkTable{grid: g}, nil
}

// Grid exposes the underlying grid.
func (fk *FkTable) Grid() *Grid { return fk.grid }

// Bins returns the bin definitions.
func (fk *FkTable) Bins() *BinsWithFillLimits { return fk.grid.Bins() }

// Channels returns the pid tuples of the channels.
func (fk *FkTable) Channels() [][]int32 {
	channels := make([][]int32, len(fk.grid.channels))
	for i, channel := range fk.grid.channels {
		channels[i] = channel.Terms()[0].PIDs
	}
	return channels
}

// MuF2 returns the squared factorization scale of the table, or -1 when
// every subgrid is empty.
func (fk *FkTable) MuF2() float64 {
	muf2 := -1.0
	fk.grid.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
		if subgrid.IsEmpty() || muf2 >= 0 {
			return
		}
		scaleAxis := kinematicsPosition(fk.grid.kinematics, ScaleAxis(0))
		muf2 = subgrid.NodeValues()[scaleAxis][0]
	})
	return muf2
}

// XGrid returns the union of momentum-fraction nodes over all subgrids.
func (fk *FkTable) XGrid() []float64 {
	var xGrid []float64
	fk.grid.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
		if subgrid.IsEmpty() {
			return
		}
		nodes := subgrid.NodeValues()
		for i, kin := range fk.grid.kinematics {
			if kin.Kind == KinX {
				xGrid = append(xGrid, nodes[i]...)
			}
		}
	})
	return sortDedupULP(xGrid, evolveInfoTolULPs)
}

// Table returns the dense coefficients of the table, indexed by bin,
// channel and one momentum fraction per convolution. Nodes missing from
// a subgrid contribute zeros.
func (fk *FkTable) Table() *Tensor {
	xGrid := fk.XGrid()
	xAxes := make([]int, 0, len(fk.grid.kinematics))
	for i, kin := range fk.grid.kinematics {
		if kin.Kind == KinX {
			xAxes = append(xAxes, i)
		}
	}

	shape := make([]int, 0, 2+len(xAxes))
	shape = append(shape, fk.grid.bwfl.Len(), len(fk.grid.channels))
	for range xAxes {
		shape = append(shape, len(xGrid))
	}
	table := NewTensor(shape)

	index := make([]int, len(shape))
	fk.grid.eachSubgrid(func(_, bin, channel int, subgrid Subgrid) {
		if subgrid.IsEmpty() {
			return
		}
		nodes := subgrid.NodeValues()
		positions := make([][]int, len(xAxes))
		for k, axis := range xAxes {
			positions[k] = make([]int, len(nodes[axis]))
			for j, x := range nodes[axis] {
				pos := nodePosition(xGrid, x)
				if pos < 0 {
					// XGrid dedups more aggressively than node equality
					for g, xg := range xGrid {
						if scalar.EqualWithinULP(xg, x, evolveInfoTolULPs) {
							pos = g
							break
						}
					}
				}
				positions[k][j] = pos
			}
		}
		subgrid.Each(func(subIndex []int, value float64) {
			index[0] = bin
			index[1] = channel
			for k, axis := range xAxes {
				index[2+k] = positions[k][subIndex[axis]]
			}
			table.Add(value, index...)
		})
	})
	return table
}

// Convolve convolves the table with PDFs. The result has one value per
// bin.
func (fk *FkTable) Convolve(cache *ConvolutionCache, binIndices []int, channelMask []bool) ([]float64, error) {
	return fk.grid.Convolve(cache, nil, binIndices, channelMask, nil)
}

// Optimize merges channels that the given assumptions render
// indistinguishable and shrinks the subgrids. The assumptions are
// recorded in the metadata.
func (fk *FkTable) Optimize(assumptions FkAssumptions) {
	pairs := assumptions.mergePairs()
	if len(pairs) > 0 && fk.grid.pidBasis != PidBasisEvol {
		fk.grid.RotatePidBasis(PidBasisEvol)
	}

	for i := range fk.grid.channels {
		terms := fk.grid.channels[i].Terms()
		pids := append([]int32(nil), terms[0].PIDs...)
		changed := false
		for j, pid := range pids {
			for _, pair := range pairs {
				if pid == pair[0] {
					pids[j] = pair[1]
					changed = true
				}
			}
		}
		if changed {
			logrus.Debugf("rewriting channel %d: %v -> %v", i, terms[0].PIDs, pids)
			fk.grid.channels[i] = NewChannel([]ChannelTerm{{PIDs: pids, Factor: 1}})
		}
	}
	fk.mergeDuplicateChannels()

	if assumptions != Nf6Ind {
		fk.grid.SetMetadata("fk_assumptions", assumptions.String())
	}
	fk.grid.Optimize()
}

// mergeDuplicateChannels folds channels with identical pid tuples into
// the first occurrence. All factors are one, so folding adds subgrids.
func (fk *FkTable) mergeDuplicateChannels() {
	for i := 0; i < len(fk.grid.channels); i++ {
		for j := len(fk.grid.channels) - 1; j > i; j-- {
			if !fk.grid.channels[i].Equal(fk.grid.channels[j]) {
				continue
			}
			for o := range fk.grid.subgrids {
				for b := range fk.grid.subgrids[o] {
					lhs := fk.grid.subgrids[o][b][i]
					rhs := fk.grid.subgrids[o][b][j]
					if rhs.IsEmpty() {
						continue
					}
					if lhs.IsEmpty() {
						fk.grid.subgrids[o][b][i] = rhs.Clone()
						continue
					}
					if err := lhs.Merge(rhs, nil); err != nil {
						imported := ImportFrom(lhs)
						if mergeErr := imported.Merge(rhs, nil); mergeErr != nil {
							panic(fmt.Sprintf("merging duplicate channels: %v", mergeErr))
						}
						fk.grid.subgrids[o][b][i] = imported
					}
				}
			}
			fk.grid.DeleteChannels([]int{j})
		}
	}
}
