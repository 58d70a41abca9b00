package grid

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
)

// nodeValueULPs is the tolerance, in units in the last place, within which
// two node coordinates count as the same node when merging subgrids.
const nodeValueULPs = 64

func nodeValueEq(a, b float64) bool {
	return scalar.EqualWithinULP(a, b, nodeValueULPs)
}

// Stats summarizes the storage of a subgrid.
type Stats struct {
	// Total is the number of lattice cells.
	Total int
	// Allocated is the number of cells backed by memory.
	Allocated int
	// Zeros is the number of allocated cells holding an explicit zero.
	Zeros int
	// Overhead is the number of bookkeeping words.
	Overhead int
	// BytesPerValue is the size of one stored value.
	BytesPerValue int
}

// Subgrid stores the weights of one (order, bin, channel) cell of a grid
// on a lattice of interpolation nodes.
//
// Each iterates the non-zero lattice cells with the reweighting factors
// already applied, which is the representation convolutions and
// serialization consume. Merge with a transpose swaps the two given axes
// of other before adding.
type Subgrid interface {
	// Fill scatters weight onto the lattice at the physical coordinates
	// ntuple. Representations that are read-only panic.
	Fill(interps []Interp, ntuple []float64, weight float64)
	// NodeValues returns the per-axis node coordinates.
	NodeValues() [][]float64
	// IsEmpty reports whether nothing has been stored.
	IsEmpty() bool
	// Merge adds other into the receiver.
	Merge(other Subgrid, transpose *[2]int) error
	// Scale multiplies all weights by factor.
	Scale(factor float64)
	// Symmetrize folds the weights below the diagonal of axes a and b
	// onto the weights above it.
	Symmetrize(a, b int)
	// Each calls fn for every non-zero cell, reweighting applied, in a
	// fixed ascending order. The index slice is reused across calls.
	Each(fn func(index []int, value float64))
	// Shape returns the per-axis node counts.
	Shape() []int
	// Stats returns storage statistics.
	Stats() Stats
	// OptimizeNodes shrinks the node layout without changing the
	// reweighted contents.
	OptimizeNodes()
	// Clone returns a deep copy.
	Clone() Subgrid
}

// EmptySubgrid is the placeholder stored before any fill. It carries no
// nodes and no weights.
type EmptySubgrid struct{}

// Fill panics: the grid swaps in an interpolation subgrid before the
// first fill ever reaches an EmptySubgrid.
func (EmptySubgrid) Fill([]Interp, []float64, float64) {
	panic("empty subgrid does not support fill")
}

func (EmptySubgrid) NodeValues() [][]float64 { return nil }

func (EmptySubgrid) IsEmpty() bool { return true }

// Merge accepts only empty subgrids; anything else is an axis mismatch.
func (EmptySubgrid) Merge(other Subgrid, _ *[2]int) error {
	if !other.IsEmpty() {
		return fmt.Errorf("merge into empty subgrid: %w", ErrAxisMismatch)
	}
	return nil
}

func (EmptySubgrid) Scale(float64) {}

func (EmptySubgrid) Symmetrize(int, int) {}

func (EmptySubgrid) Each(func([]int, float64)) {}

func (EmptySubgrid) Shape() []int { return nil }

func (EmptySubgrid) Stats() Stats { return Stats{BytesPerValue: 8} }

func (EmptySubgrid) OptimizeNodes() {}

func (EmptySubgrid) Clone() Subgrid { return EmptySubgrid{} }

// staticUnset marks an axis that has not seen a fill yet.
const staticUnset = -1.0

// InterpSubgrid is the fill-time representation: a packed lattice sized by
// the interpolation node counts. It tracks per axis whether every fill hit
// the same coordinate, which later allows collapsing that axis to a single
// node.
type InterpSubgrid struct {
	array   *PackedArray
	interps []Interp
	// staticNodes[i] is the common fill coordinate of axis i, staticUnset
	// before the first fill, and NaN-free; nil-like "not static" is
	// encoded by staticOff[i].
	staticNodes []float64
	staticOff   []bool
}

// NewInterpSubgrid returns an empty lattice for the given axes.
func NewInterpSubgrid(interps []Interp) *InterpSubgrid {
	shape := make([]int, len(interps))
	static := make([]float64, len(interps))
	for i, in := range interps {
		shape[i] = in.Nodes()
		static[i] = staticUnset
	}
	return &InterpSubgrid{
		array:       NewPackedArray(shape),
		interps:     append([]Interp(nil), interps...),
		staticNodes: static,
		staticOff:   make([]bool, len(interps)),
	}
}

func (s *InterpSubgrid) Fill(interps []Interp, ntuple []float64, weight float64) {
	if !interpolateInto(interps, ntuple, weight, s.array) {
		return
	}
	for i, value := range ntuple {
		if s.staticOff[i] {
			continue
		}
		if s.staticNodes[i] < 0 {
			s.staticNodes[i] = value
		} else if !scalar.EqualWithinULP(s.staticNodes[i], value, 4) {
			s.staticOff[i] = true
		}
	}
}

func (s *InterpSubgrid) NodeValues() [][]float64 {
	values := make([][]float64, len(s.interps))
	for i, in := range s.interps {
		values[i] = in.NodeValues()
	}
	return values
}

func (s *InterpSubgrid) IsEmpty() bool { return s.array.IsEmpty() }

// Merge adds another interpolation subgrid with the same node layout. The
// raw lattice values are added, without applying reweights on either side.
func (s *InterpSubgrid) Merge(other Subgrid, transpose *[2]int) error {
	if other.IsEmpty() {
		return nil
	}
	rhs, ok := other.(*InterpSubgrid)
	if !ok || !nodeLayoutsEqual(s.NodeValues(), rhs.NodeValues()) {
		return fmt.Errorf("merge interpolation subgrid: %w", ErrAxisMismatch)
	}
	rhs.array.Each(func(index []int, value float64) {
		if transpose != nil {
			index[transpose[0]], index[transpose[1]] = index[transpose[1]], index[transpose[0]]
		}
		s.array.Add(index, value)
	})
	// merged fills may hit other coordinates
	for i := range s.staticOff {
		if rhs.staticOff[i] || s.staticNodes[i] < 0 {
			s.staticOff[i] = s.staticOff[i] || rhs.staticOff[i]
			if s.staticNodes[i] < 0 {
				s.staticNodes[i] = rhs.staticNodes[i]
			}
		} else if rhs.staticNodes[i] >= 0 && !scalar.EqualWithinULP(s.staticNodes[i], rhs.staticNodes[i], 4) {
			s.staticOff[i] = true
		}
	}
	return nil
}

func (s *InterpSubgrid) Scale(factor float64) { s.array.Scale(factor) }

func (s *InterpSubgrid) Symmetrize(a, b int) {
	s.array = symmetrizeArray(s.array, a, b)
}

func (s *InterpSubgrid) Each(fn func(index []int, value float64)) {
	nodes := s.NodeValues()
	s.array.Each(func(index []int, value float64) {
		reweight := 1.0
		for i, in := range s.interps {
			reweight *= in.Reweight(nodes[i][index[i]])
		}
		fn(index, value*reweight)
	})
}

func (s *InterpSubgrid) Shape() []int {
	shape := make([]int, len(s.interps))
	for i, in := range s.interps {
		shape[i] = in.Nodes()
	}
	return shape
}

func (s *InterpSubgrid) Stats() Stats {
	total := 1
	for _, n := range s.array.Shape() {
		total *= n
	}
	return Stats{
		Total:         total,
		Allocated:     s.array.NonZeros() + s.array.ExplicitZeros(),
		Zeros:         s.array.ExplicitZeros(),
		Overhead:      s.array.Overhead(),
		BytesPerValue: 8,
	}
}

// OptimizeNodes collapses every axis whose fills all hit the same
// coordinate to a single node at that coordinate.
func (s *InterpSubgrid) OptimizeNodes() {
	anyStatic := false
	shape := make([]int, len(s.interps))
	for i, in := range s.interps {
		if !s.staticOff[i] && s.staticNodes[i] >= 0 {
			shape[i] = 1
			anyStatic = true
		} else {
			shape[i] = in.Nodes()
		}
	}
	if !anyStatic {
		return
	}

	collapsed := NewPackedArray(shape)
	s.array.Each(func(index []int, value float64) {
		target := append([]int(nil), index...)
		for i := range target {
			if shape[i] == 1 {
				target[i] = 0
			}
		}
		collapsed.Add(target, value)
	})
	s.array = collapsed

	for i := range s.interps {
		if shape[i] == 1 {
			value := s.staticNodes[i]
			s.interps[i] = NewInterp(value, value, 1, 0,
				s.interps[i].ReweightMethod(), s.interps[i].Mapping(), s.interps[i].Method())
		}
	}
}

func (s *InterpSubgrid) Clone() Subgrid {
	return &InterpSubgrid{
		array:       s.array.Clone(),
		interps:     append([]Interp(nil), s.interps...),
		staticNodes: append([]float64(nil), s.staticNodes...),
		staticOff:   append([]bool(nil), s.staticOff...),
	}
}

// ImportSubgrid is the read-only representation used after optimization
// and on disk: explicit node coordinates and a packed lattice whose values
// already include the reweighting factors.
type ImportSubgrid struct {
	array      *PackedArray
	nodeValues [][]float64
}

// NewImportSubgrid wraps a packed lattice and its node coordinates.
func NewImportSubgrid(array *PackedArray, nodeValues [][]float64) *ImportSubgrid {
	return &ImportSubgrid{array: array, nodeValues: nodeValues}
}

// ImportFrom converts any subgrid into an ImportSubgrid, shrinking every
// axis to the smallest index range holding non-zero weights.
func ImportFrom(subgrid Subgrid) *ImportSubgrid {
	nodes := subgrid.NodeValues()
	starts := make([]int, len(nodes))
	ends := make([]int, len(nodes))
	for i, values := range nodes {
		starts[i] = len(values)
	}
	subgrid.Each(func(index []int, _ float64) {
		for i, idx := range index {
			if idx < starts[i] {
				starts[i] = idx
			}
			if idx+1 > ends[i] {
				ends[i] = idx + 1
			}
		}
	})

	newNodes := make([][]float64, len(nodes))
	shape := make([]int, len(nodes))
	for i, values := range nodes {
		if starts[i] > ends[i] {
			starts[i], ends[i] = 0, 0
		}
		newNodes[i] = append([]float64(nil), values[starts[i]:ends[i]]...)
		shape[i] = ends[i] - starts[i]
	}

	array := NewPackedArray(shape)
	target := make([]int, len(shape))
	subgrid.Each(func(index []int, value float64) {
		for i, idx := range index {
			target[i] = idx - starts[i]
		}
		array.Add(target, value)
	})
	return NewImportSubgrid(array, newNodes)
}

// Fill panics: imported lattices have lost their interpolation axes.
func (s *ImportSubgrid) Fill([]Interp, []float64, float64) {
	panic("import subgrid does not support fill")
}

func (s *ImportSubgrid) NodeValues() [][]float64 { return s.nodeValues }

func (s *ImportSubgrid) IsEmpty() bool { return s.array.IsEmpty() }

// Merge adds any subgrid into the receiver, growing the node coordinates
// to the union of both layouts first. Axis counts must agree.
func (s *ImportSubgrid) Merge(other Subgrid, transpose *[2]int) error {
	if other.IsEmpty() {
		return nil
	}
	rhsNodes := other.NodeValues()
	if len(rhsNodes) != len(s.nodeValues) {
		return fmt.Errorf("merge import subgrid: %w", ErrAxisMismatch)
	}
	if transpose != nil {
		rhsNodes = append([][]float64(nil), rhsNodes...)
		rhsNodes[transpose[0]], rhsNodes[transpose[1]] = rhsNodes[transpose[1]], rhsNodes[transpose[0]]
	}

	if !nodeLayoutsEqual(s.nodeValues, rhsNodes) {
		union := make([][]float64, len(s.nodeValues))
		shape := make([]int, len(union))
		for i, values := range s.nodeValues {
			merged := append(append([]float64(nil), values...), rhsNodes[i]...)
			sort.Float64s(merged)
			union[i] = dedupNodes(merged)
			shape[i] = len(union[i])
		}

		array := NewPackedArray(shape)
		target := make([]int, len(shape))
		s.array.Each(func(index []int, value float64) {
			for i, idx := range index {
				target[i] = nodePosition(union[i], s.nodeValues[i][idx])
			}
			array.Set(target, value)
		})
		s.array = array
		s.nodeValues = union
	}

	target := make([]int, len(s.nodeValues))
	var mergeErr error
	other.Each(func(index []int, value float64) {
		if mergeErr != nil {
			return
		}
		if transpose != nil {
			index[transpose[0]], index[transpose[1]] = index[transpose[1]], index[transpose[0]]
		}
		for i, idx := range index {
			pos := nodePosition(s.nodeValues[i], rhsNodes[i][idx])
			if pos < 0 {
				mergeErr = fmt.Errorf("merge import subgrid: node %g missing from union: %w",
					rhsNodes[i][idx], ErrAxisMismatch)
				return
			}
			target[i] = pos
		}
		s.array.Add(target, value)
	})
	return mergeErr
}

func (s *ImportSubgrid) Scale(factor float64) { s.array.Scale(factor) }

func (s *ImportSubgrid) Symmetrize(a, b int) {
	s.array = symmetrizeArray(s.array, a, b)
}

func (s *ImportSubgrid) Each(fn func(index []int, value float64)) {
	s.array.Each(fn)
}

func (s *ImportSubgrid) Shape() []int { return s.array.Shape() }

func (s *ImportSubgrid) Stats() Stats {
	total := 1
	for _, n := range s.array.Shape() {
		total *= n
	}
	return Stats{
		Total:         total,
		Allocated:     s.array.NonZeros() + s.array.ExplicitZeros(),
		Zeros:         s.array.ExplicitZeros(),
		Overhead:      s.array.Overhead(),
		BytesPerValue: 8,
	}
}

func (s *ImportSubgrid) OptimizeNodes() {}

func (s *ImportSubgrid) Clone() Subgrid {
	nodes := make([][]float64, len(s.nodeValues))
	for i, values := range s.nodeValues {
		nodes[i] = append([]float64(nil), values...)
	}
	return &ImportSubgrid{array: s.array.Clone(), nodeValues: nodes}
}

func symmetrizeArray(array *PackedArray, a, b int) *PackedArray {
	folded := NewPackedArray(array.Shape())
	target := make([]int, len(array.Shape()))
	array.Each(func(index []int, value float64) {
		copy(target, index)
		if target[b] < target[a] {
			target[a], target[b] = target[b], target[a]
		}
		folded.Add(target, value)
	})
	return folded
}

func nodeLayoutsEqual(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if !nodeValueEq(a[i][j], b[i][j]) {
				return false
			}
		}
	}
	return true
}

func dedupNodes(sorted []float64) []float64 {
	out := sorted[:0]
	for _, v := range sorted {
		if len(out) == 0 || !nodeValueEq(out[len(out)-1], v) {
			out = append(out, v)
		}
	}
	return append([]float64(nil), out...)
}

func nodePosition(nodes []float64, value float64) int {
	for i, v := range nodes {
		if nodeValueEq(v, value) {
			return i
		}
	}
	return -1
}
