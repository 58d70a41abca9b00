package grid

import "fmt"

// PackedArray is an n-dimensional sparse array. Non-zero entries are
// stored in groups of adjacent raveled indices; each group records its
// raveled start index and length. Lookups outside any group read as zero.
type PackedArray struct {
	entries      []float64
	startIndices []int
	lengths      []int
	shape        []int
}

// groupMergeDistance is how close a new entry must be to an existing group
// to be merged into it instead of opening a new group. Storing one
// explicit zero costs less than a fresh start-index/length pair.
const groupMergeDistance = 2

// NewPackedArray returns an empty array of the given shape.
func NewPackedArray(shape []int) *PackedArray {
	return &PackedArray{shape: append([]int(nil), shape...)}
}

// Shape returns the dimensions of the array.
func (p *PackedArray) Shape() []int { return p.shape }

// IsEmpty reports whether no entries are stored.
func (p *PackedArray) IsEmpty() bool { return len(p.entries) == 0 }

// Clear drops all stored entries and keeps the shape.
func (p *PackedArray) Clear() {
	p.entries = p.entries[:0]
	p.startIndices = p.startIndices[:0]
	p.lengths = p.lengths[:0]
}

// Overhead counts the bookkeeping words spent on group starts and lengths.
func (p *PackedArray) Overhead() int {
	return len(p.startIndices) + len(p.lengths)
}

// ExplicitZeros counts stored entries whose value is zero.
func (p *PackedArray) ExplicitZeros() int {
	zeros := 0
	for _, e := range p.entries {
		if e == 0 {
			zeros++
		}
	}
	return zeros
}

// NonZeros counts stored entries whose value is not zero.
func (p *PackedArray) NonZeros() int {
	return len(p.entries) - p.ExplicitZeros()
}

// Scale multiplies every stored entry by factor.
func (p *PackedArray) Scale(factor float64) {
	for i := range p.entries {
		p.entries[i] *= factor
	}
}

// At returns the value at the multi-index, zero when unset. Panics on
// out-of-bounds indices.
func (p *PackedArray) At(index []int) float64 {
	raveled := Ravel(index, p.shape)
	offset := 0
	for g, start := range p.startIndices {
		if raveled >= start && raveled < start+p.lengths[g] {
			return p.entries[offset+raveled-start]
		}
		offset += p.lengths[g]
	}
	return 0
}

// Add adds value to the entry at the multi-index, growing or merging
// groups as needed.
func (p *PackedArray) Add(index []int, value float64) {
	*p.at(index) += value
}

// Set overwrites the entry at the multi-index.
func (p *PackedArray) Set(index []int, value float64) {
	*p.at(index) = value
}

func (p *PackedArray) at(index []int) *float64 {
	raveled := Ravel(index, p.shape)

	// first group starting after the new entry
	point := len(p.startIndices)
	for g, start := range p.startIndices {
		if start > raveled {
			point = g
			break
		}
	}
	pointEntries := 0
	for _, l := range p.lengths[:point] {
		pointEntries += l
	}

	if point > 0 {
		start := p.startIndices[point-1]
		length := p.lengths[point-1]
		switch {
		case raveled < start+length:
			// already stored
			return &p.entries[pointEntries-length+raveled-start]
		case raveled < start+length+groupMergeDistance:
			// append to the preceding group, padding with zeros
			distance := raveled - (start + length) + 1
			p.lengths[point-1] += distance
			p.entries = insertZeros(p.entries, pointEntries, distance)
			// close enough to the next group to swallow it too
			if point < len(p.startIndices) && raveled+groupMergeDistance >= p.startIndices[point] {
				distanceNext := p.startIndices[point] - raveled
				p.lengths[point-1] += distanceNext - 1 + p.lengths[point]
				p.startIndices = append(p.startIndices[:point], p.startIndices[point+1:]...)
				p.lengths = append(p.lengths[:point], p.lengths[point+1:]...)
				p.entries = insertZeros(p.entries, pointEntries, distanceNext-1)
			}
			return &p.entries[pointEntries-1+distance]
		}
	}

	// prepend to the following group
	if point < len(p.startIndices) && raveled+groupMergeDistance >= p.startIndices[point] {
		distance := p.startIndices[point] - raveled
		p.startIndices[point] = raveled
		p.lengths[point] += distance
		p.entries = insertZeros(p.entries, pointEntries, distance)
		return &p.entries[pointEntries]
	}

	// open a new group of length one
	p.startIndices = insertInt(p.startIndices, point, raveled)
	p.lengths = insertInt(p.lengths, point, 1)
	p.entries = insertZeros(p.entries, pointEntries, 1)
	return &p.entries[pointEntries]
}

// Each calls fn for every stored non-zero entry in ascending raveled
// order. The index slice is reused across calls.
func (p *PackedArray) Each(fn func(index []int, value float64)) {
	index := make([]int, len(p.shape))
	offset := 0
	for g, start := range p.startIndices {
		for i := 0; i < p.lengths[g]; i++ {
			if v := p.entries[offset+i]; v != 0 {
				Unravel(start+i, p.shape, index)
				fn(index, v)
			}
		}
		offset += p.lengths[g]
	}
}

// Clone returns a deep copy.
func (p *PackedArray) Clone() *PackedArray {
	return &PackedArray{
		entries:      append([]float64(nil), p.entries...),
		startIndices: append([]int(nil), p.startIndices...),
		lengths:      append([]int(nil), p.lengths...),
		shape:        append([]int(nil), p.shape...),
	}
}

func insertZeros(s []float64, at, n int) []float64 {
	s = append(s, make([]float64, n)...)
	copy(s[at+n:], s[at:])
	for i := 0; i < n; i++ {
		s[at+i] = 0
	}
	return s
}

func insertInt(s []int, at, v int) []int {
	s = append(s, 0)
	copy(s[at+1:], s[at:])
	s[at] = v
	return s
}

// Ravel flattens a multi-index into a single index, last dimension fastest.
// Panics when the index is out of bounds for the shape.
func Ravel(index, shape []int) int {
	if len(index) != len(shape) {
		panic(fmt.Sprintf("index %v does not match shape %v", index, shape))
	}
	raveled := 0
	for d, i := range index {
		if i < 0 || i >= shape[d] {
			panic(fmt.Sprintf("index %v is out of bounds for shape %v", index, shape))
		}
		raveled = raveled*shape[d] + i
	}
	return raveled
}

// Unravel is the inverse of Ravel, writing the multi-index into out.
func Unravel(raveled int, shape []int, out []int) {
	for d := len(shape) - 1; d >= 0; d-- {
		out[d] = raveled % shape[d]
		raveled /= shape[d]
	}
}
