package grid

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// evolveInfoTolULPs deduplicates node values reported by EvolveInfo.
const evolveInfoTolULPs = 256

// evolutionTolULPs matches grid values against operator values. It must be
// a large-enough multiple of evolveInfoTolULPs, otherwise values that were
// deduplicated on one side are not found on the other.
const evolutionTolULPs = 4 * evolveInfoTolULPs

// OperatorSliceInfo describes one slice of an evolution kernel operator:
// the mapping from the grid's basis (pids1, x1) at the squared
// factorization scale Fac1 down to the fitting basis (pids0, x0) at Fac0.
type OperatorSliceInfo struct {
	// Fac0 is the squared starting scale of the resulting FK table.
	Fac0 float64
	// Pids0 are the parton ids of the FK table.
	Pids0 []int32
	// X0 are the momentum fractions of the FK table.
	X0 []float64
	// Fac1 is the squared factorization scale of the grid slice being
	// evolved.
	Fac1 float64
	// Pids1 are the parton ids of the grid. Ids the grid uses but which
	// are missing here are silently dropped.
	Pids1 []int32
	// X1 are the momentum fractions of the grid.
	X1 []float64
	// PidBasis is the basis Pids0 is written in.
	PidBasis PidBasis
	// ConvType is the convolution type this operator applies to.
	ConvType ConvType
}

// OperatorSlice couples slice metadata with the operator values, stored as
// a tensor indexed by (pid0, x0, pid1, x1).
type OperatorSlice struct {
	Info     OperatorSliceInfo
	Operator *Tensor
}

// AlphasTable maps squared renormalization scales to strong couplings.
// Both slices are index-aligned.
type AlphasTable struct {
	Ren1   []float64
	Alphas []float64
}

// AlphasTableFromGrid evaluates alphas on every renormalization scale the
// grid uses, varied by xir.
func AlphasTableFromGrid(g *Grid, xir float64, alphas AlphasFunc) AlphasTable {
	var ren1 []float64
	g.eachSubgrid(func(_, _, _ int, subgrid Subgrid) {
		if subgrid.IsEmpty() {
			return
		}
		for _, ren := range g.scales.Ren.Calc(subgrid.NodeValues(), g.kinematics) {
			ren1 = append(ren1, xir*xir*ren)
		}
	})
	sort.Float64s(ren1)
	ren1 = dedupFloats(ren1)

	table := AlphasTable{Ren1: ren1, Alphas: make([]float64, len(ren1))}
	for i, mur2 := range ren1 {
		table.Alphas[i] = alphas(mur2)
	}
	return table
}

// gluonHasPidZero reports whether any channel uses the APPLgrid-style
// gluon id 0, which the operators address as 21.
func gluonHasPidZero(g *Grid) bool {
	if g.pidBasis != PidBasisPdg {
		return false
	}
	for _, channel := range g.channels {
		for _, term := range channel.Terms() {
			for _, pid := range term.PIDs {
				if pid == 0 {
					return true
				}
			}
		}
	}
	return false
}

// Evolve contracts the grid with evolution operators and returns the
// resulting FK table. slices holds one list of operator slices per
// convolution, covering every factorization scale the selected orders
// use. xi varies the renormalization and factorization scales during the
// contraction; alphasTable supplies the coupling on the varied
// renormalization scales.
func (g *Grid) Evolve(
	slices [][]OperatorSlice,
	orderMask []bool,
	xi [3]float64,
	alphasTable AlphasTable,
) (*FkTable, error) {
	if len(slices) != len(g.convolutions) {
		return nil, fmt.Errorf("got %d operator lists for %d convolutions: %w",
			len(slices), len(g.convolutions), ErrOperatorShapeMismatch)
	}
	for d, list := range slices {
		if len(list) == 0 {
			return nil, fmt.Errorf("no operator slices for convolution %d: %w", d, ErrOperatorShapeMismatch)
		}
		for _, slice := range list {
			want := []int{len(slice.Info.Pids0), len(slice.Info.X0), len(slice.Info.Pids1), len(slice.Info.X1)}
			got := slice.Operator.Shape()
			if len(got) != 4 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] || got[3] != want[3] {
				return nil, fmt.Errorf("operator shape %v does not match slice info %v: %w",
					got, want, ErrOperatorShapeMismatch)
			}
		}
	}

	// the starting scale and basis must agree across all slices
	first := slices[0][0].Info
	for _, list := range slices {
		for _, slice := range list {
			if !scalar.EqualWithinULP(slice.Info.Fac0, first.Fac0, evolutionTolULPs) ||
				slice.Info.PidBasis != first.PidBasis {
				return nil, fmt.Errorf("operator slices disagree on starting scale or basis: %w",
					ErrOperatorShapeMismatch)
			}
			if len(slice.Info.Pids0) != len(list[0].Info.Pids0) ||
				len(slice.Info.X0) != len(list[0].Info.X0) {
				return nil, fmt.Errorf("operator slices disagree on target basis: %w",
					ErrOperatorShapeMismatch)
			}
		}
	}

	// every factorization scale of the grid needs a slice per convolution
	info := g.EvolveInfo(orderMask)
	groups := make([][]OperatorSlice, len(info.Fac1))
	for i, fac1 := range info.Fac1 {
		group := make([]OperatorSlice, len(slices))
		for d, list := range slices {
			found := false
			for _, slice := range list {
				if scalar.EqualWithinULP(xi[1]*xi[1]*fac1, slice.Info.Fac1, evolutionTolULPs) {
					group[d] = slice
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("no operator slice for fac1 = %g of convolution %d: %w",
					xi[1]*xi[1]*fac1, d, ErrOperatorShapeMismatch)
			}
		}
		groups[i] = group
	}

	type channelKey string
	accumulated := make(map[channelKey][]*Tensor) // channel -> per-bin tables
	var channelTuples [][]int32

	for _, group := range groups {
		channels0, tables, err := g.evolveSliceMany(group, orderMask, xi, alphasTable)
		if err != nil {
			return nil, err
		}
		for cIdx, tuple := range channels0 {
			key := channelKey(fmt.Sprint(tuple))
			if _, seen := accumulated[key]; !seen {
				accumulated[key] = tables[cIdx]
				channelTuples = append(channelTuples, tuple)
				continue
			}
			for bin, table := range tables[cIdx] {
				dst := accumulated[key][bin].Data()
				for i, v := range table.Data() {
					dst[i] += v
				}
			}
		}
	}

	sort.Slice(channelTuples, func(i, j int) bool {
		return pidsLess(channelTuples[i], channelTuples[j])
	})

	newChannels := make([]Channel, len(channelTuples))
	for i, tuple := range channelTuples {
		newChannels[i] = NewChannel([]ChannelTerm{{PIDs: tuple, Factor: 1}})
	}
	newConvs := make([]Conv, len(g.convolutions))
	for d, conv := range g.convolutions {
		newConvs[d] = Conv{Type: slices[d][0].Info.ConvType, PID: conv.PID}
	}

	evolved, err := NewGrid(
		first.PidBasis,
		newChannels,
		[]Order{{}},
		g.bwfl,
		newConvs,
		g.interps,
		g.kinematics,
		g.scales,
	)
	if err != nil {
		return nil, err
	}
	for key, value := range g.metadata {
		evolved.SetMetadata(key, value)
	}

	nodeValues := make([][]float64, 0, len(slices)+1)
	nodeValues = append(nodeValues, []float64{first.Fac0})
	shape := make([]int, 0, len(slices)+1)
	shape = append(shape, 1)
	for _, list := range slices {
		nodeValues = append(nodeValues, list[0].Info.X0)
		shape = append(shape, len(list[0].Info.X0))
	}

	for c, tuple := range channelTuples {
		tables := accumulated[channelKey(fmt.Sprint(tuple))]
		for bin, table := range tables {
			if table.IsZero() {
				continue
			}
			array := NewPackedArray(shape)
			index := make([]int, len(shape))
			for flat, v := range table.Data() {
				if v == 0 {
					continue
				}
				Unravel(flat, shape[1:], index[1:])
				array.Set(index, v)
			}
			evolved.SetSubgrid(0, bin, c, NewImportSubgrid(array, cloneNodeValues(nodeValues)))
		}
	}

	return FkTableFromGrid(evolved)
}

func cloneNodeValues(values [][]float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, v := range values {
		out[i] = append([]float64(nil), v...)
	}
	return out
}

// evolveSliceMany evolves the whole grid at one factorization scale. It
// returns the FK channel pid tuples and, per channel, one tensor per bin
// over the operators' x0 axes.
func (g *Grid) evolveSliceMany(
	group []OperatorSlice,
	orderMask []bool,
	xi [3]float64,
	alphasTable AlphasTable,
) ([][]int32, map[int][]*Tensor, error) {
	gluonZero := gluonHasPidZero(g)
	fac1 := group[0].Info.Fac1

	// non-zero (pid0, pid1) pairs per convolution
	pairs := make([][]pidPair, len(group))
	for d, slice := range group {
		for pid1Idx, pid1 := range slice.Info.Pids1 {
			effectivePid1 := pid1
			if gluonZero && pid1 == 21 {
				effectivePid1 = 0
			}
			if !g.channelUsesPid(d, effectivePid1) {
				continue
			}
			for pid0Idx, pid0 := range slice.Info.Pids0 {
				if operatorBlockNonZero(slice.Operator, pid0Idx, pid1Idx) {
					pairs[d] = append(pairs[d], pidPair{pid0Idx, pid1Idx, pid0, effectivePid1})
				}
			}
		}
		if len(pairs[d]) == 0 {
			return nil, nil, fmt.Errorf("no non-zero operator for convolution %d, result would be empty: %w",
				d, ErrOperatorShapeMismatch)
		}
	}

	// FK channels: all combinations of pid0 values
	tupleSet := make(map[string][]int32)
	combo := make([]int, len(group))
	for {
		tuple := make([]int32, len(group))
		for d, k := range combo {
			tuple[d] = pairs[d][k].pid0
		}
		tupleSet[fmt.Sprint(tuple)] = tuple

		d := len(combo) - 1
		for ; d >= 0; d-- {
			combo[d]++
			if combo[d] < len(pairs[d]) {
				break
			}
			combo[d] = 0
		}
		if d < 0 {
			break
		}
	}
	var channels0 [][]int32
	for _, tuple := range tupleSet {
		channels0 = append(channels0, tuple)
	}
	sort.Slice(channels0, func(i, j int) bool { return pidsLess(channels0[i], channels0[j]) })
	channelPos := make(map[string]int, len(channels0))
	for i, tuple := range channels0 {
		channelPos[fmt.Sprint(tuple)] = i
	}

	dims := make([]int, len(group))
	for d, slice := range group {
		dims[d] = len(slice.Info.X0)
	}

	// operator matrices are rebuilt only when the grid x nodes change
	lastX1 := make([][]float64, len(group))
	ekoSlices := make([][]*mat.Dense, len(group))

	tables := make(map[int][]*Tensor, len(channels0))
	for c := range channels0 {
		binTables := make([]*Tensor, g.bwfl.Len())
		for b := range binTables {
			binTables[b] = NewTensor(dims)
		}
		tables[c] = binTables
	}

	for bin := 0; bin < g.bwfl.Len(); bin++ {
		for chanIdx, channel := range g.channels {
			x1n, array, err := g.arrayFromSubgridOrders(bin, chanIdx, fac1, orderMask, xi, alphasTable)
			if err != nil {
				return nil, nil, err
			}
			if array == nil {
				continue
			}

			for d := range group {
				if !x1ListsEqual(lastX1[d], x1n[d]) {
					ops, err := operatorMatrices(group[d], pairs[d], x1n[d])
					if err != nil {
						return nil, nil, err
					}
					ekoSlices[d] = ops
					lastX1[d] = x1n[d]
				}
			}

			for _, term := range channel.Terms() {
				for cIdx, tuple := range channels0 {
					ops := make([]*mat.Dense, len(group))
					matched := true
					for d := range group {
						ops[d] = nil
						for pIdx, pair := range pairs[d] {
							if pair.pid0 == tuple[d] && pair.pid1 == term.PIDs[d] {
								ops[d] = ekoSlices[d][pIdx]
								break
							}
						}
						if ops[d] == nil {
							matched = false
							break
						}
					}
					if !matched {
						continue
					}
					contractInto(term.Factor, array, ops, tables[cIdx][bin])
				}
			}
		}
	}

	return channels0, tables, nil
}

// channelUsesPid reports whether any channel's pid at convolution slot d
// is pid1.
func (g *Grid) channelUsesPid(d int, pid1 int32) bool {
	for _, channel := range g.channels {
		for _, term := range channel.Terms() {
			if term.PIDs[d] == pid1 {
				return true
			}
		}
	}
	return false
}

func operatorBlockNonZero(op *Tensor, pid0Idx, pid1Idx int) bool {
	shape := op.Shape()
	for i := 0; i < shape[1]; i++ {
		for j := 0; j < shape[3]; j++ {
			if op.At(pid0Idx, i, pid1Idx, j) != 0 {
				return true
			}
		}
	}
	return false
}

// pidPair is a non-zero (pid0, pid1) block of an operator slice.
type pidPair struct {
	pid0Idx, pid1Idx int
	pid0, pid1       int32
}

// operatorMatrices extracts, per pid pair, the (x0, x1) matrix with the
// x1 columns permuted into the grid's node order.
func operatorMatrices(slice OperatorSlice, pairs []pidPair, x1 []float64) ([]*mat.Dense, error) {
	x1Indices := make([]int, len(x1))
	for i, x := range x1 {
		pos := -1
		for j, opX := range slice.Info.X1 {
			if scalar.EqualWithinULP(x, opX, evolutionTolULPs) {
				pos = j
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("no operator column for x = %g: %w", x, ErrOperatorShapeMismatch)
		}
		x1Indices[i] = pos
	}

	x0Len := len(slice.Info.X0)
	ops := make([]*mat.Dense, len(pairs))
	for p, pair := range pairs {
		m := mat.NewDense(x0Len, len(x1), nil)
		for i := 0; i < x0Len; i++ {
			for j, x1Idx := range x1Indices {
				m.Set(i, j, slice.Operator.At(pair.pid0Idx, i, pair.pid1Idx, x1Idx))
			}
		}
		ops[p] = m
	}
	return ops, nil
}

func x1ListsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !scalar.EqualWithinULP(a[i], b[i], evolutionTolULPs) {
			return false
		}
	}
	return true
}

// arrayFromSubgridOrders sums the subgrids of all selected orders for one
// (bin, channel) at one factorization scale into a dense tensor over the
// unified momentum-fraction nodes, applying coupling powers and scale
// logs. A nil tensor means nothing contributed.
func (g *Grid) arrayFromSubgridOrders(
	bin, channel int,
	fac1 float64,
	orderMask []bool,
	xi [3]float64,
	alphasTable AlphasTable,
) ([][]float64, *Tensor, error) {
	xir, xif, xia := xi[0], xi[1], xi[2]

	xAxes := make([]int, 0, len(g.kinematics))
	for i, kin := range g.kinematics {
		if kin.Kind == KinX {
			xAxes = append(xAxes, i)
		}
	}

	// union of the x nodes over the contributing orders
	x1n := make([][]float64, len(xAxes))
	for o := range g.subgrids {
		if len(orderMask) > 0 && !orderMask[o] {
			continue
		}
		subgrid := g.subgrids[o][bin][channel]
		if subgrid.IsEmpty() {
			continue
		}
		nodes := subgrid.NodeValues()
		for xi, axis := range xAxes {
			x1n[xi] = append(x1n[xi], nodes[axis]...)
		}
	}
	for i := range x1n {
		x1n[i] = sortDedupULP(x1n[i], evolutionTolULPs)
	}

	dims := make([]int, len(x1n))
	for i, x1 := range x1n {
		dims[i] = len(x1)
	}
	array := NewTensor(dims)
	zero := true

	for o := range g.subgrids {
		if len(orderMask) > 0 && !orderMask[o] {
			continue
		}
		subgrid := g.subgrids[o][bin][channel]
		if subgrid.IsEmpty() {
			continue
		}
		order := g.orders[o]

		logs := 1.0
		if order.LogXiR > 0 {
			if scalar.EqualWithinULP(xir, 1, 4) {
				continue
			}
			logs *= math.Pow(math.Log(xir*xir), float64(order.LogXiR))
		}
		if order.LogXiF > 0 {
			if scalar.EqualWithinULP(xif, 1, 4) {
				continue
			}
			logs *= math.Pow(math.Log(xif*xif), float64(order.LogXiF))
		}
		if order.LogXiA > 0 {
			if scalar.EqualWithinULP(xia, 1, 4) {
				continue
			}
			logs *= math.Pow(math.Log(xia*xia), float64(order.LogXiA))
		}

		nodes := subgrid.NodeValues()
		scaleAxis := kinematicsPosition(g.kinematics, ScaleAxis(0))
		facValues := nodes[scaleAxis]

		// map subgrid x indices into the union
		x1Indices := make([][]int, len(xAxes))
		for xi, axis := range xAxes {
			x1Indices[xi] = make([]int, len(nodes[axis]))
			for k, xs := range nodes[axis] {
				pos := -1
				for j, x := range x1n[xi] {
					if scalar.EqualWithinULP(x, xs, evolutionTolULPs) {
						pos = j
						break
					}
				}
				x1Indices[xi][k] = pos
			}
		}

		var loopErr error
		target := make([]int, len(xAxes))
		subgrid.Each(func(index []int, value float64) {
			if loopErr != nil {
				return
			}
			fac := facValues[index[scaleAxis]]
			if !scalar.EqualWithinULP(xif*xif*fac, fac1, evolutionTolULPs) {
				return
			}

			als := 1.0
			if order.AlphaS > 0 {
				mur2 := xir * xir * fac
				found := false
				for i, ren1 := range alphasTable.Ren1 {
					if scalar.EqualWithinULP(ren1, mur2, evolutionTolULPs) {
						als = math.Pow(alphasTable.Alphas[i], float64(order.AlphaS))
						found = true
						break
					}
				}
				if !found {
					loopErr = fmt.Errorf("no alphas for mur2 = %g: %w", mur2, ErrOperatorShapeMismatch)
					return
				}
			}

			for xi, axis := range xAxes {
				target[xi] = x1Indices[xi][index[axis]]
			}
			array.Add(als*logs*value, target...)
			zero = false
		})
		if loopErr != nil {
			return nil, nil, loopErr
		}
	}

	if zero {
		return x1n, nil, nil
	}
	return x1n, array, nil
}

// contractInto computes fk += factor * op0 · array · op1ᵀ for two
// convolutions, or fk += factor * op0 · array for one.
func contractInto(factor float64, array *Tensor, ops []*mat.Dense, fk *Tensor) {
	switch len(ops) {
	case 1:
		n := array.Shape()[0]
		vec := mat.NewVecDense(n, array.Data())
		rows, _ := ops[0].Dims()
		out := mat.NewVecDense(rows, nil)
		out.MulVec(ops[0], vec)
		dst := fk.Data()
		for i := 0; i < rows; i++ {
			dst[i] += factor * out.AtVec(i)
		}
	case 2:
		shape := array.Shape()
		a := mat.NewDense(shape[0], shape[1], array.Data())
		rows0, _ := ops[0].Dims()
		rows1, _ := ops[1].Dims()

		var tmp mat.Dense
		tmp.Mul(a, ops[1].T())
		var out mat.Dense
		out.Mul(ops[0], &tmp)

		dst := fk.Data()
		for i := 0; i < rows0; i++ {
			for j := 0; j < rows1; j++ {
				dst[i*rows1+j] += factor * out.At(i, j)
			}
		}
	default:
		panic(fmt.Sprintf("evolution with %d convolutions is not supported", len(ops)))
	}
}
