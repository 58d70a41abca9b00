package grid

import "fmt"

// Tensor is a dense n-dimensional array backed by a flat slice, last
// dimension fastest. It is the exchange format for convolved subgrids,
// evolution operators and FkTable exports.
type Tensor struct {
	data  []float64
	shape []int
}

// NewTensor returns a zero-filled tensor of the given shape.
func NewTensor(shape []int) *Tensor {
	size := 1
	for _, n := range shape {
		size *= n
	}
	return &Tensor{data: make([]float64, size), shape: append([]int(nil), shape...)}
}

// TensorFromData wraps an existing flat slice. Panics when the length does
// not match the shape.
func TensorFromData(data []float64, shape []int) *Tensor {
	size := 1
	for _, n := range shape {
		size *= n
	}
	if len(data) != size {
		panic(fmt.Sprintf("data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{data: data, shape: append([]int(nil), shape...)}
}

// Shape returns the dimensions.
func (t *Tensor) Shape() []int { return t.shape }

// Data returns the backing slice, last dimension fastest.
func (t *Tensor) Data() []float64 { return t.data }

// At returns the value at the multi-index.
func (t *Tensor) At(index ...int) float64 {
	return t.data[Ravel(index, t.shape)]
}

// Set writes the value at the multi-index.
func (t *Tensor) Set(value float64, index ...int) {
	t.data[Ravel(index, t.shape)] = value
}

// Add accumulates value at the multi-index.
func (t *Tensor) Add(value float64, index ...int) {
	t.data[Ravel(index, t.shape)] += value
}

// Scale multiplies every element by factor.
func (t *Tensor) Scale(factor float64) {
	for i := range t.data {
		t.data[i] *= factor
	}
}

// IsZero reports whether every element vanishes.
func (t *Tensor) IsZero() bool {
	for _, v := range t.data {
		if v != 0 {
			return false
		}
	}
	return true
}
