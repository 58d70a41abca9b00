package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func photonChannel() []Channel {
	return []Channel{NewChannel([]ChannelTerm{{PIDs: []int32{22, 22}, Factor: 1}})}
}

func loOrder() []Order {
	return []Order{{Alpha: 2}}
}

func TestNewGrid_RejectsBadConfigurations(t *testing.T) {
	bins, err := FromFillLimits([]float64{0, 1})
	assert.NoError(t, err)

	t.Run("channel arity must match convolutions", func(t *testing.T) {
		_, err := NewGrid(
			PidBasisPdg,
			[]Channel{NewChannel([]ChannelTerm{{PIDs: []int32{22}, Factor: 1}})},
			loOrder(),
			bins,
			[]Conv{NewConv(UnpolPDF, 2212), NewConv(UnpolPDF, 2212)},
			testInterpsHadronic(),
			testKinematicsHadronic(),
			testScales(),
		)
		assert.ErrorIs(t, err, ErrAxisConfig)
	})

	t.Run("interpolations must match kinematics", func(t *testing.T) {
		_, err := NewGrid(
			PidBasisPdg,
			photonChannel(),
			loOrder(),
			bins,
			[]Conv{NewConv(UnpolPDF, 2212), NewConv(UnpolPDF, 2212)},
			testInterpsDIS(),
			testKinematicsHadronic(),
			testScales(),
		)
		assert.ErrorIs(t, err, ErrAxisConfig)
	})
}

func TestGrid_FillAndConvolve_RecoversWeight(t *testing.T) {
	// GIVEN a photon-photon grid with unit-width bins
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1, 2})

	// WHEN filling one point with both momentum fractions on nodes
	xNodes := g.Interps()[1].NodeValues()
	g.Fill(0, 0.5, 0, []float64{8100.0, xNodes[10], xNodes[20]}, 1.5)

	// THEN convolving with f(x) = 1 returns the weight in the filled bin
	results, err := g.Convolve(testCacheHadronic(flatXfx), nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.InDelta(t, 0, relDiff(1.5, results[0]), 1e-9)
	assert.Zero(t, results[1])
}

func TestGrid_Fill_OutsideBinsIsDropped(t *testing.T) {
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})

	g.Fill(0, 5.0, 0, []float64{8100.0, 0.1, 0.2}, 1.0)
	g.Fill(0, -1.0, 0, []float64{8100.0, 0.1, 0.2}, 1.0)

	assert.True(t, g.Subgrid(0, 0, 0).IsEmpty())
}

func TestGrid_Convolve_IsLinearInTheWeights(t *testing.T) {
	single := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	double := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})

	single.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
	double.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 2.0)

	cache := testCacheHadronic(toyXfx)
	r1, err := single.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	r2, err := double.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	assert.InDelta(t, 0, relDiff(2*r1[0], r2[0]), 1e-12)
}

func TestGrid_Convolve_LogOrdersOnlyEnterUnderScaleVariation(t *testing.T) {
	// GIVEN a grid with a central order and a renormalization log order
	orders := []Order{{Alpha: 2}, {Alpha: 2, LogXiR: 1}}
	g := testGridHadronic(t, photonChannel(), orders, []float64{0, 1})
	xNodes := g.Interps()[1].NodeValues()
	point := []float64{8100.0, xNodes[10], xNodes[20]}
	g.Fill(0, 0.5, 0, point, 1.0)
	g.Fill(1, 0.5, 0, point, 0.5)

	// WHEN convolving at the central scale and at xiR = 2
	results, err := g.Convolve(testCacheHadronic(flatXfx), nil, nil, nil,
		[][3]float64{{1, 1, 1}, {2, 1, 1}})
	assert.NoError(t, err)
	assert.Len(t, results, 2)

	// THEN the log order is absent centrally and enters with ln(xiR^2)
	assert.InDelta(t, 0, relDiff(1.0, results[0]), 1e-9)
	lnXi2 := 2 * 0.6931471805599453 // ln 4
	assert.InDelta(t, 0, relDiff(1.0+0.5*lnXi2, results[1]), 1e-9)
}

func TestGrid_Convolve_OrderAndChannelMasks(t *testing.T) {
	channels := []Channel{
		NewChannel([]ChannelTerm{{PIDs: []int32{22, 22}, Factor: 1}}),
		NewChannel([]ChannelTerm{{PIDs: []int32{21, 21}, Factor: 1}}),
	}
	g := testGridHadronic(t, channels, loOrder(), []float64{0, 1})
	xNodes := g.Interps()[1].NodeValues()
	point := []float64{8100.0, xNodes[10], xNodes[20]}
	g.Fill(0, 0.5, 0, point, 1.0)
	g.Fill(0, 0.5, 1, point, 2.0)

	cache := testCacheHadronic(flatXfx)

	all, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(3.0, all[0]), 1e-9)

	firstOnly, err := g.Convolve(cache, nil, nil, []bool{true, false}, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(1.0, firstOnly[0]), 1e-9)

	masked, err := g.Convolve(cache, []bool{false}, nil, nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, masked[0])
}

func TestGrid_Merge_SameBinsAddsSubgrids(t *testing.T) {
	a := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	b := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	a.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
	b.Fill(0, 0.5, 0, []float64{1e5, 0.3, 0.4}, 2.0)

	cache := testCacheHadronic(toyXfx)
	ra, err := a.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	rb, err := b.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	assert.NoError(t, a.Merge(b))

	merged, err := a.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(ra[0]+rb[0], merged[0]), 1e-9)
}

func TestGrid_Merge_ConsecutiveBinsConcatenate(t *testing.T) {
	a := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	b := testGridHadronic(t, photonChannel(), loOrder(), []float64{1, 2})
	a.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
	b.Fill(0, 1.5, 0, []float64{8100.0, 0.15, 0.25}, 2.0)

	assert.NoError(t, a.Merge(b))
	assert.Equal(t, 2, a.Bins().Len())

	results, err := a.Convolve(testCacheHadronic(toyXfx), nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.NotZero(t, results[0])
	assert.NotZero(t, results[1])
	assert.InDelta(t, 0, relDiff(2*results[0], results[1]), 1e-9)
}

func TestGrid_Merge_DisjointBinsFail(t *testing.T) {
	a := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	b := testGridHadronic(t, photonChannel(), loOrder(), []float64{2, 3})

	assert.ErrorIs(t, a.Merge(b), ErrNonConsecutiveBins)
}

func TestGrid_Merge_DifferentConvolutionsFail(t *testing.T) {
	a := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})

	bins, err := FromFillLimits([]float64{0, 1})
	assert.NoError(t, err)
	b, err := NewGrid(
		PidBasisPdg,
		photonChannel(),
		loOrder(),
		bins,
		[]Conv{NewConv(UnpolPDF, 2212), NewConv(UnpolPDF, -2212)},
		testInterpsHadronic(),
		testKinematicsHadronic(),
		testScales(),
	)
	assert.NoError(t, err)

	assert.ErrorIs(t, a.Merge(b), ErrConvolutionMismatch)
}

func TestGrid_ScaleVariants(t *testing.T) {
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1, 2})
	g.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
	g.Fill(0, 1.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)

	cache := testCacheHadronic(toyXfx)
	base, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	t.Run("global scale", func(t *testing.T) {
		clone := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1, 2})
		clone.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
		clone.Fill(0, 1.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
		clone.Scale(3)
		results, err := clone.Convolve(cache, nil, nil, nil, nil)
		assert.NoError(t, err)
		assert.InDelta(t, 0, relDiff(3*base[0], results[0]), 1e-12)
	})

	t.Run("per-bin scale", func(t *testing.T) {
		clone := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1, 2})
		clone.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
		clone.Fill(0, 1.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
		clone.ScaleByBin([]float64{1, 2})
		results, err := clone.Convolve(cache, nil, nil, nil, nil)
		assert.NoError(t, err)
		assert.InDelta(t, 0, relDiff(base[0], results[0]), 1e-12)
		assert.InDelta(t, 0, relDiff(2*base[1], results[1]), 1e-12)
	})

	t.Run("per-order scale", func(t *testing.T) {
		clone := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1, 2})
		clone.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
		// alpha^2 picks up the alpha factor squared
		clone.ScaleByOrder(1, 2, 1, 1, 1, 1)
		results, err := clone.Convolve(cache, nil, nil, nil, nil)
		assert.NoError(t, err)
		assert.InDelta(t, 0, relDiff(4*base[0], results[0]), 1e-12)
	})
}

func TestGrid_DeleteOperations(t *testing.T) {
	channels := []Channel{
		NewChannel([]ChannelTerm{{PIDs: []int32{22, 22}, Factor: 1}}),
		NewChannel([]ChannelTerm{{PIDs: []int32{21, 21}, Factor: 1}}),
	}
	g := testGridHadronic(t, channels, loOrder(), []float64{0, 1, 2})
	g.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
	g.Fill(0, 1.5, 1, []float64{8100.0, 0.15, 0.25}, 2.0)

	g.DeleteChannels([]int{1})
	assert.Len(t, g.Channels(), 1)
	assert.Equal(t, []int32{22, 22}, g.Channels()[0].Terms()[0].PIDs)

	g.DeleteBins([]int{1})
	assert.Equal(t, 1, g.Bins().Len())

	// out-of-range indices are ignored
	g.DeleteOrders([]int{7})
	assert.Len(t, g.Orders(), 1)
}

func TestGrid_SplitThenDedupChannels_RestoresConvolve(t *testing.T) {
	// GIVEN a two-term channel
	channels := []Channel{NewChannel([]ChannelTerm{
		{PIDs: []int32{22, 22}, Factor: 1},
		{PIDs: []int32{21, 21}, Factor: 0.5},
	})}
	g := testGridHadronic(t, channels, loOrder(), []float64{0, 1})
	g.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)

	cache := testCacheHadronic(toyXfx)
	before, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	// WHEN splitting into per-term channels
	g.SplitChannels()
	assert.Len(t, g.Channels(), 2)

	after, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(before[0], after[0]), 1e-12)
}

func TestGrid_DedupChannels_MergesIdenticalContent(t *testing.T) {
	// GIVEN two channels with the same pids filled identically
	channels := []Channel{
		NewChannel([]ChannelTerm{{PIDs: []int32{22, 22}, Factor: 1}}),
		NewChannel([]ChannelTerm{{PIDs: []int32{22, 22}, Factor: 2}}),
	}
	g := testGridHadronic(t, channels, loOrder(), []float64{0, 1})
	point := []float64{8100.0, 0.15, 0.25}
	g.Fill(0, 0.5, 0, point, 1.0)
	g.Fill(0, 0.5, 1, point, 1.0)

	cache := testCacheHadronic(toyXfx)
	before, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	// WHEN deduplicating
	g.DedupChannels(64)

	// THEN one channel with the summed factor remains and the prediction
	// is unchanged
	assert.Len(t, g.Channels(), 1)
	assert.Equal(t, 3.0, g.Channels()[0].Terms()[0].Factor)

	after, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(before[0], after[0]), 1e-9)
}

func TestGrid_Optimize_PreservesConvolve(t *testing.T) {
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1, 2})
	xNodes := g.Interps()[1].NodeValues()
	g.Fill(0, 0.5, 0, []float64{8100.0, xNodes[10], xNodes[20]}, 1.0)

	cache := testCacheHadronic(toyXfx)
	before, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	g.Optimize()

	// unfilled cells become the empty subgrid, filled ones shrink
	_, isEmpty := g.Subgrid(0, 1, 0).(EmptySubgrid)
	assert.True(t, isEmpty)
	_, isImport := g.Subgrid(0, 0, 0).(*ImportSubgrid)
	assert.True(t, isImport)

	after, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(before[0], after[0]), 1e-9)
	assert.Zero(t, after[1])
}

func TestGrid_SymmetrizeChannels_FoldsMirroredChannels(t *testing.T) {
	// GIVEN mirrored quark-gluon channels in a proton-proton grid
	channels := []Channel{
		NewChannel([]ChannelTerm{{PIDs: []int32{2, 21}, Factor: 1}}),
		NewChannel([]ChannelTerm{{PIDs: []int32{21, 2}, Factor: 1}}),
	}
	g := testGridHadronic(t, channels, loOrder(), []float64{0, 1})
	g.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)
	g.Fill(0, 0.5, 1, []float64{8100.0, 0.35, 0.45}, 2.0)

	cache := testCacheHadronic(toyXfx)
	before, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	// WHEN symmetrizing
	g.SymmetrizeChannels()

	// THEN one channel holds both contributions
	assert.Len(t, g.Channels(), 1)
	after, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(before[0], after[0]), 1e-9)
}

func TestGrid_EvolveInfo(t *testing.T) {
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	xNodes := g.Interps()[1].NodeValues()
	g.Fill(0, 0.5, 0, []float64{8100.0, xNodes[10], xNodes[20]}, 1.0)
	g.Optimize()

	info := g.EvolveInfo(nil)

	// a single fill collapses to one scale and one node per x axis
	assert.Len(t, info.Fac1, 1)
	assert.InDelta(t, 0, relDiff(8100.0, info.Fac1[0]), 1e-9)
	assert.Len(t, info.Ren1, 1)
	assert.Len(t, info.X1, 2)
	assert.InDelta(t, 0, relDiff(xNodes[20], info.X1[0]), 1e-9)
	assert.InDelta(t, 0, relDiff(xNodes[10], info.X1[1]), 1e-9)
	assert.Equal(t, []int32{22}, info.Pids1)
}

func TestGrid_RotatePidBasis_KeepsPredictions(t *testing.T) {
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	g.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.0)

	cache := testCacheHadronic(toyXfx)
	before, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)

	g.RotatePidBasis(PidBasisEvol)
	assert.Equal(t, PidBasisEvol, g.PidBasis())

	after, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(before[0], after[0]), 1e-9)
}

func TestGrid_Metadata(t *testing.T) {
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	g.SetMetadata("y_label", "dsig/dy")
	assert.Equal(t, "dsig/dy", g.Metadata()["y_label"])
}

func TestGrid_Optimize_SingleFillCollapsesEveryAxis(t *testing.T) {
	// GIVEN a grid holding one off-node fill, leaving every axis static
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1, 2})
	g.Fill(0, 0.5, 0, []float64{8100.0, 0.15, 0.25}, 1.5)

	cache := testCacheHadronic(toyXfx)
	before, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.NotZero(t, before[0])
	assert.Zero(t, before[1])

	// WHEN optimizing collapses all three axes to one node each
	g.Optimize()

	sub := g.Subgrid(0, 0, 0)
	for _, values := range sub.NodeValues() {
		assert.Len(t, values, 1)
		assert.False(t, math.IsNaN(values[0]))
	}

	// THEN the predictions are unchanged and the empty bin stays empty
	after, err := g.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.InDelta(t, 0, relDiff(before[0], after[0]), 1e-9)
	assert.Zero(t, after[1])
}

func TestGrid_FillArray_MatchesSingleFills(t *testing.T) {
	single := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})
	batch := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})

	observables := []float64{0.25, 0.75}
	ntuples := [][]float64{{8100.0, 0.15, 0.25}, {10000.0, 0.35, 0.45}}
	weights := []float64{1.5, 2.5}

	for i := range weights {
		single.Fill(0, observables[i], 0, ntuples[i], weights[i])
	}
	batch.FillArray(0, observables, 0, ntuples, weights)

	cache := testCacheHadronic(toyXfx)
	want, err := single.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	got, err := batch.Convolve(cache, nil, nil, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGrid_SetBins(t *testing.T) {
	g := testGridHadronic(t, photonChannel(), loOrder(), []float64{0, 1})

	// WHEN the bin count changes the replacement is refused
	grown, err := FromFillLimits([]float64{0, 0.5, 1})
	assert.NoError(t, err)
	assert.ErrorIs(t, g.SetBins(grown), ErrAxisConfig)

	// WHEN the count matches the new limits take over
	relabeled, err := NewBinsWithFillLimits(
		[]Bin{NewBin([][2]float64{{10, 20}}, 2.0)}, []float64{0, 1})
	assert.NoError(t, err)
	assert.NoError(t, g.SetBins(relabeled))
	assert.Equal(t, [][2]float64{{10, 20}}, g.Bins().Bins()[0].Limits())
}
