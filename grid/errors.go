package grid

import "errors"

// Sentinel errors for the failure modes of grid construction and
// manipulation. Callers match them with errors.Is; the wrapped messages
// carry the offending indices and shapes.
var (
	// ErrAxisConfig is returned when the kinematics, interpolation and
	// scale descriptors passed to NewGrid are inconsistent.
	ErrAxisConfig = errors.New("inconsistent axis configuration")

	// ErrConvolutionMismatch is returned when the convolution functions
	// supplied to Convolve do not match the convolutions the grid was
	// created with (wrong polarization, time-like flag or hadron PID).
	ErrConvolutionMismatch = errors.New("convolution type mismatch")

	// ErrNonConsecutiveBins is returned by Grid.Merge when the bin limits
	// of the two grids neither agree nor line up back-to-back.
	ErrNonConsecutiveBins = errors.New("bins are not consecutive")

	// ErrOperatorShapeMismatch is returned by Grid.Evolve when an operator
	// slice disagrees with the shape promised by its OperatorSliceInfo, or
	// when no slice exists for a scale the grid needs.
	ErrOperatorShapeMismatch = errors.New("operator shape mismatch")

	// ErrAxisMismatch is returned when merging subgrids whose node layouts
	// differ.
	ErrAxisMismatch = errors.New("subgrid axis layouts differ")
)

// Out-of-acceptance fills are deliberately not part of this list: a fill
// whose observable lies outside all bins, or whose coordinates fall outside
// an interpolation range, is silently dropped. That reproduces physical
// acceptance cuts and must not be turned into an error.
