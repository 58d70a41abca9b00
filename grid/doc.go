// Package grid stores perturbative-QCD calculation results in an
// interpolation-grid form that is independent of any particular parton
// distribution function (PDF), so that one expensive Monte-Carlo run can be
// re-evaluated against arbitrarily many PDF sets and scale choices.
//
// # Reading Guide
//
// Start with these three files to understand the data model:
//   - grid.go: the Grid container and its fill/convolve/merge operations
//   - subgrid.go: per-(order, bin, channel) weight storage variants
//   - interp.go: node placement and Lagrange interpolation
//
// # Architecture
//
// A Grid is a three-dimensional arrangement of Subgrids keyed by
// (order, bin, channel):
//   - order.go: perturbative orders and order masks
//   - channel.go: weighted parton-id combinations (luminosities)
//   - bins.go: observable bins with fill limits and normalizations
//   - kinematics.go: meaning of fill-tuple coordinates and scale functions
//   - conv.go: convolution types and the PDF evaluation cache
//   - packedarray.go: sparse n-dimensional weight storage
//   - evolve.go, fktable.go: applying evolution operators and the
//     resulting FK tables
//   - pids.go: particle-id bases and their linear transformations
//   - readwrite.go: the versioned binary container format
//
// # Callbacks
//
// The package never loads PDFs itself. Callers supply one XfxFunc per
// convolution, returning x·f(x, Q²), and one AlphasFunc for the strong
// coupling. Both are evaluated only at interpolation-node coordinates.
//
// # Concurrency
//
// A Grid is a plain data structure with no internal locking. The intended
// contract is exclusive-writer, shared-reader per Grid instance; all
// reductions iterate in a fixed order (orders, then bins, then channels,
// then nodes) so results are reproducible across runs.
package grid
