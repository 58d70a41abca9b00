package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackedArray_SetAndAt(t *testing.T) {
	array := NewPackedArray([]int{4, 4})

	assert.True(t, array.IsEmpty())
	assert.Equal(t, 0.0, array.At([]int{2, 2}))

	array.Set([]int{2, 2}, 1.5)
	array.Add([]int{2, 2}, 0.5)

	assert.False(t, array.IsEmpty())
	assert.Equal(t, 2.0, array.At([]int{2, 2}))
	assert.Equal(t, 0.0, array.At([]int{0, 0}))
}

func TestPackedArray_AdjacentEntriesShareAGroup(t *testing.T) {
	// GIVEN entries within the merge distance of each other
	array := NewPackedArray([]int{10})
	array.Set([]int{3}, 1)
	array.Set([]int{5}, 2)

	// THEN one group with a padded zero holds both
	assert.Equal(t, 1, array.ExplicitZeros())
	assert.Equal(t, 2, array.NonZeros())
	assert.Equal(t, 1.0, array.At([]int{3}))
	assert.Equal(t, 0.0, array.At([]int{4}))
	assert.Equal(t, 2.0, array.At([]int{5}))
}

func TestPackedArray_DistantEntriesOpenNewGroups(t *testing.T) {
	array := NewPackedArray([]int{100})
	array.Set([]int{10}, 1)
	array.Set([]int{90}, 2)

	assert.Equal(t, 0, array.ExplicitZeros())
	assert.Equal(t, 2, array.NonZeros())
	assert.Equal(t, 1.0, array.At([]int{10}))
	assert.Equal(t, 2.0, array.At([]int{90}))
}

func TestPackedArray_InsertBetweenGroupsSwallowsTheFollowing(t *testing.T) {
	// GIVEN two groups one entry apart
	array := NewPackedArray([]int{10})
	array.Set([]int{1}, 1)
	array.Set([]int{7}, 3)

	// WHEN filling the gap between them
	array.Set([]int{5}, 2)

	// THEN all values stay intact
	assert.Equal(t, 1.0, array.At([]int{1}))
	assert.Equal(t, 2.0, array.At([]int{5}))
	assert.Equal(t, 3.0, array.At([]int{7}))
}

func TestPackedArray_FillEveryCellInReverse(t *testing.T) {
	array := NewPackedArray([]int{3, 3})
	want := map[[2]int]float64{}
	n := 0.0
	for i := 2; i >= 0; i-- {
		for j := 2; j >= 0; j-- {
			n++
			array.Set([]int{i, j}, n)
			want[[2]int{i, j}] = n
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, want[[2]int{i, j}], array.At([]int{i, j}), "cell (%d, %d)", i, j)
		}
	}
}

func TestPackedArray_Each_VisitsNonZerosInRaveledOrder(t *testing.T) {
	array := NewPackedArray([]int{3, 4})
	array.Set([]int{2, 1}, 3)
	array.Set([]int{0, 2}, 1)
	array.Set([]int{1, 0}, 2)

	var indices [][]int
	var values []float64
	array.Each(func(index []int, value float64) {
		indices = append(indices, append([]int(nil), index...))
		values = append(values, value)
	})

	assert.Equal(t, [][]int{{0, 2}, {1, 0}, {2, 1}}, indices)
	assert.Equal(t, []float64{1, 2, 3}, values)
}

func TestPackedArray_Each_SkipsExplicitZeros(t *testing.T) {
	array := NewPackedArray([]int{10})
	array.Set([]int{3}, 1)
	array.Set([]int{5}, 2)

	count := 0
	array.Each(func([]int, float64) { count++ })
	assert.Equal(t, 2, count)
}

func TestPackedArray_Scale(t *testing.T) {
	array := NewPackedArray([]int{5})
	array.Set([]int{1}, 2)
	array.Scale(0.5)
	assert.Equal(t, 1.0, array.At([]int{1}))
}

func TestRavelUnravel_RoundTrip(t *testing.T) {
	shape := []int{3, 4, 5}
	out := make([]int, 3)
	for _, index := range [][]int{{0, 0, 0}, {1, 2, 3}, {2, 3, 4}} {
		raveled := Ravel(index, shape)
		Unravel(raveled, shape, out)
		assert.Equal(t, index, out)
	}
}

func TestRavel_PanicsOutOfBounds(t *testing.T) {
	assert.Panics(t, func() { Ravel([]int{3, 0}, []int{3, 4}) })
}
