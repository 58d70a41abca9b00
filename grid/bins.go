package grid

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
)

// Bin is one observable bin: per-dimension limits and the normalization
// the convolved result of the bin is divided by.
type Bin struct {
	limits        [][2]float64
	normalization float64
}

// NewBin constructs a Bin. Panics when an upper limit lies below its lower
// limit.
func NewBin(limits [][2]float64, normalization float64) Bin {
	for _, lim := range limits {
		if lim[1] < lim[0] {
			panic(fmt.Sprintf("bin limit %v has upper below lower", lim))
		}
	}
	return Bin{limits: append([][2]float64(nil), limits...), normalization: normalization}
}

// Dimensions returns the number of observables the bin is differential in.
func (b Bin) Dimensions() int { return len(b.limits) }

// Normalization returns the bin normalization.
func (b Bin) Normalization() float64 { return b.normalization }

// Limits returns the per-dimension limits.
func (b Bin) Limits() [][2]float64 { return b.limits }

// EqualWithinULP compares limits and normalization within the given number
// of ULPs.
func (b Bin) EqualWithinULP(other Bin, ulps uint) bool {
	if len(b.limits) != len(other.limits) {
		return false
	}
	for i, lim := range b.limits {
		if !scalar.EqualWithinULP(lim[0], other.limits[i][0], ulps) ||
			!scalar.EqualWithinULP(lim[1], other.limits[i][1], ulps) {
			return false
		}
	}
	return scalar.EqualWithinULP(b.normalization, other.normalization, ulps)
}

// BinsWithFillLimits couples the bins of a grid with the one-dimensional
// fill limits that route a fill's observable value to a bin index. The fill
// limits are strictly ascending and one longer than the bin list.
type BinsWithFillLimits struct {
	bins       []Bin
	fillLimits []float64
}

// NewBinsWithFillLimits constructs the container, checking that the number
// of fill limits is the number of bins plus one.
func NewBinsWithFillLimits(bins []Bin, fillLimits []float64) (*BinsWithFillLimits, error) {
	if len(fillLimits) != len(bins)+1 {
		return nil, fmt.Errorf("number of fill limits must be the number of bins plus 1, got %d and %d",
			len(fillLimits), len(bins))
	}
	return &BinsWithFillLimits{
		bins:       append([]Bin(nil), bins...),
		fillLimits: append([]float64(nil), fillLimits...),
	}, nil
}

// FromFillLimits builds one-dimensional bins directly from the fill
// limits, normalizing each bin by its width.
func FromFillLimits(fillLimits []float64) (*BinsWithFillLimits, error) {
	bins := make([]Bin, 0, len(fillLimits)-1)
	for i := 0; i+1 < len(fillLimits); i++ {
		lo, hi := fillLimits[i], fillLimits[i+1]
		bins = append(bins, NewBin([][2]float64{{lo, hi}}, hi-lo))
	}
	return NewBinsWithFillLimits(bins, fillLimits)
}

// FromLimitsAndNormalizations builds bins from explicit multi-dimensional
// limits, assigning the synthetic fill limits 0, 1, ..., n.
func FromLimitsAndNormalizations(limits [][][2]float64, normalizations []float64) (*BinsWithFillLimits, error) {
	if len(limits) != len(normalizations) {
		return nil, fmt.Errorf("number of limits must be the number of normalizations, got %d and %d",
			len(limits), len(normalizations))
	}
	fillLimits := make([]float64, len(limits)+1)
	for i := range fillLimits {
		fillLimits[i] = float64(i)
	}
	bins := make([]Bin, len(limits))
	for i, lim := range limits {
		bins[i] = NewBin(lim, normalizations[i])
	}
	return NewBinsWithFillLimits(bins, fillLimits)
}

// Bins returns the bin list.
func (b *BinsWithFillLimits) Bins() []Bin { return b.bins }

// Len returns the number of bins.
func (b *BinsWithFillLimits) Len() int { return len(b.bins) }

// Dimensions returns the dimensionality of the bins.
func (b *BinsWithFillLimits) Dimensions() int { return b.bins[0].Dimensions() }

// FillLimits returns the fill limits.
func (b *BinsWithFillLimits) FillLimits() []float64 { return b.fillLimits }

// Normalizations returns the per-bin normalizations.
func (b *BinsWithFillLimits) Normalizations() []float64 {
	norms := make([]float64, len(b.bins))
	for i, bin := range b.bins {
		norms[i] = bin.Normalization()
	}
	return norms
}

// FillIndex maps an observable value to the bin it falls into, or false
// when the value lies outside all fill limits. Intervals are half-open;
// a value on an interior limit belongs to the bin above it, the topmost
// limit itself is outside.
func (b *BinsWithFillLimits) FillIndex(value float64) (int, bool) {
	idx := sort.SearchFloat64s(b.fillLimits, value)
	exact := idx < len(b.fillLimits) && b.fillLimits[idx] == value
	switch {
	case !exact && idx == 0:
		return 0, false
	case !exact && idx == len(b.fillLimits):
		return 0, false
	case exact && idx == len(b.fillLimits)-1:
		return 0, false
	case exact:
		return idx, true
	default:
		return idx - 1, true
	}
}

// Slices partitions the bin indices into ranges over which all limits but
// the innermost dimension stay constant. One-dimensional bins form a
// single slice.
func (b *BinsWithFillLimits) Slices() [][2]int {
	dim := b.Dimensions()
	if dim == 1 {
		return [][2]int{{0, b.Len()}}
	}
	var slices [][2]int
	start := 0
	for i := 1; i <= b.Len(); i++ {
		if i < b.Len() && outerLimitsEqual(b.bins[i], b.bins[start], dim) {
			continue
		}
		slices = append(slices, [2]int{start, i})
		start = i
	}
	return slices
}

func outerLimitsEqual(a, c Bin, dim int) bool {
	for d := 0; d < dim-1; d++ {
		if a.Limits()[d] != c.Limits()[d] {
			return false
		}
	}
	return true
}

// MergeRange collapses the bins in the half-open index range [start, end)
// into one bin. The range must lie inside a single slice; the merged bin
// spans the innermost limits of the first and last bin and sums the
// normalizations.
func (b *BinsWithFillLimits) MergeRange(start, end int) (*BinsWithFillLimits, error) {
	inSlice := false
	for _, sl := range b.Slices() {
		if sl[0] <= start && end <= sl[1] {
			inSlice = true
			break
		}
	}
	if !inSlice {
		return nil, fmt.Errorf("merge bins [%d, %d): bins are not simply connected", start, end)
	}

	dim := b.Dimensions()
	var bins []Bin
	var fillLimits []float64
	for i, bin := range b.bins {
		if i > start && i < end {
			continue
		}
		limits := append([][2]float64(nil), bin.Limits()...)
		norm := bin.Normalization()
		if i == start {
			limits[dim-1][1] = b.bins[end-1].Limits()[dim-1][1]
			for j := start + 1; j < end; j++ {
				norm += b.bins[j].Normalization()
			}
		}
		bins = append(bins, NewBin(limits, norm))
		fillLimits = append(fillLimits, b.fillLimits[i])
	}
	fillLimits = append(fillLimits, b.fillLimits[len(b.fillLimits)-1])
	return NewBinsWithFillLimits(bins, fillLimits)
}

// Remove deletes the bin at index, dropping the topmost fill limit. Panics
// when only one bin is left.
func (b *BinsWithFillLimits) Remove(index int) Bin {
	if b.Len() <= 1 {
		panic("can not remove the last bin")
	}
	removed := b.bins[index]
	b.bins = append(b.bins[:index], b.bins[index+1:]...)
	b.fillLimits = b.fillLimits[:len(b.fillLimits)-1]
	return removed
}

// BinsEqualWithinULP compares the bins of the two containers, ignoring
// fill limits.
func (b *BinsWithFillLimits) BinsEqualWithinULP(other *BinsWithFillLimits, ulps uint) bool {
	if b.Len() != other.Len() {
		return false
	}
	for i, bin := range b.bins {
		if !bin.EqualWithinULP(other.bins[i], ulps) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (b *BinsWithFillLimits) Clone() *BinsWithFillLimits {
	bins := make([]Bin, len(b.bins))
	for i, bin := range b.bins {
		bins[i] = NewBin(bin.Limits(), bin.Normalization())
	}
	return &BinsWithFillLimits{
		bins:       bins,
		fillLimits: append([]float64(nil), b.fillLimits...),
	}
}
