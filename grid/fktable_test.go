package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fkTestGrid builds a grid already in FK form: one trivial order and a
// single factorization scale.
func fkTestGrid(t *testing.T, channels []Channel) *Grid {
	t.Helper()
	bins, err := FromFillLimits([]float64{0, 1})
	assert.NoError(t, err)
	g, err := NewGrid(
		PidBasisEvol,
		channels,
		[]Order{{}},
		bins,
		[]Conv{NewConv(UnpolPDF, 2212)},
		testInterpsDIS(),
		testKinematicsDIS(),
		testScales(),
	)
	assert.NoError(t, err)
	return g
}

func fkImportSubgrid(fac0 float64, x []float64, values []float64) *ImportSubgrid {
	array := NewPackedArray([]int{1, len(x)})
	for i, v := range values {
		if v != 0 {
			array.Set([]int{0, i}, v)
		}
	}
	return NewImportSubgrid(array, [][]float64{{fac0}, x})
}

func singlePidChannel(pid int32) Channel {
	return NewChannel([]ChannelTerm{{PIDs: []int32{pid}, Factor: 1}})
}

func TestFkTableFromGrid_AcceptsFkForm(t *testing.T) {
	g := fkTestGrid(t, []Channel{singlePidChannel(100)})
	g.SetSubgrid(0, 0, 0, fkImportSubgrid(2.7225, []float64{0.1, 0.5}, []float64{1, 2}))

	fk, err := FkTableFromGrid(g)
	assert.NoError(t, err)
	assert.Equal(t, 2.7225, fk.MuF2())
	assert.Equal(t, [][]int32{{100}}, fk.Channels())
	assert.Equal(t, []float64{0.1, 0.5}, fk.XGrid())
}

func TestFkTableFromGrid_RejectsNonTrivialOrders(t *testing.T) {
	bins, err := FromFillLimits([]float64{0, 1})
	assert.NoError(t, err)
	g, err := NewGrid(
		PidBasisEvol,
		[]Channel{singlePidChannel(100)},
		[]Order{{AlphaS: 1}},
		bins,
		[]Conv{NewConv(UnpolPDF, 2212)},
		testInterpsDIS(),
		testKinematicsDIS(),
		testScales(),
	)
	assert.NoError(t, err)

	_, err = FkTableFromGrid(g)
	assert.ErrorIs(t, err, ErrAxisConfig)
}

func TestFkTableFromGrid_RejectsCompositeChannels(t *testing.T) {
	composite := NewChannel([]ChannelTerm{
		{PIDs: []int32{100}, Factor: 1},
		{PIDs: []int32{21}, Factor: 1},
	})
	g := fkTestGrid(t, []Channel{composite})

	_, err := FkTableFromGrid(g)
	assert.ErrorIs(t, err, ErrAxisConfig)
}

func TestFkTableFromGrid_RejectsScaledChannels(t *testing.T) {
	scaled := NewChannel([]ChannelTerm{{PIDs: []int32{100}, Factor: 2}})
	g := fkTestGrid(t, []Channel{scaled})

	_, err := FkTableFromGrid(g)
	assert.ErrorIs(t, err, ErrAxisConfig)
}

func TestFkTableFromGrid_RejectsMultipleScales(t *testing.T) {
	g := fkTestGrid(t, []Channel{singlePidChannel(100)})
	array := NewPackedArray([]int{2, 1})
	array.Set([]int{0, 0}, 1)
	array.Set([]int{1, 0}, 2)
	g.SetSubgrid(0, 0, 0, NewImportSubgrid(array, [][]float64{{2.7225, 10000}, {0.1}}))

	_, err := FkTableFromGrid(g)
	assert.ErrorIs(t, err, ErrAxisConfig)
}

func TestFkTable_Table_DensifiesTheSubgrids(t *testing.T) {
	// GIVEN two channels on partially overlapping x nodes
	g := fkTestGrid(t, []Channel{singlePidChannel(100), singlePidChannel(21)})
	g.SetSubgrid(0, 0, 0, fkImportSubgrid(2.7225, []float64{0.1}, []float64{1}))
	g.SetSubgrid(0, 0, 1, fkImportSubgrid(2.7225, []float64{0.5}, []float64{2}))

	fk, err := FkTableFromGrid(g)
	assert.NoError(t, err)

	table := fk.Table()
	assert.Equal(t, []int{1, 2, 2}, table.Shape())
	assert.Equal(t, 1.0, table.At(0, 0, 0))
	assert.Equal(t, 0.0, table.At(0, 0, 1))
	assert.Equal(t, 0.0, table.At(0, 1, 0))
	assert.Equal(t, 2.0, table.At(0, 1, 1))
}

func TestFkAssumptions_StringParse_RoundTrip(t *testing.T) {
	for a := Nf6Ind; a <= Nf3Sym; a++ {
		parsed, err := ParseFkAssumptions(a.String())
		assert.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	_, err := ParseFkAssumptions("Nf2Ind")
	assert.Error(t, err)
}

func TestFkAssumptions_MergePairsAreCumulative(t *testing.T) {
	assert.Empty(t, Nf6Ind.mergePairs())
	assert.Equal(t, [][2]int32{{235, 200}}, Nf6Sym.mergePairs())
	assert.Equal(t, [][2]int32{{235, 200}, {135, 100}}, Nf5Ind.mergePairs())
	assert.Len(t, Nf3Sym.mergePairs(), 7)
}

func TestFkTable_Optimize_MergesIndistinguishableChannels(t *testing.T) {
	// GIVEN channels that coincide once the top distributions vanish
	g := fkTestGrid(t, []Channel{singlePidChannel(100), singlePidChannel(135)})
	g.SetSubgrid(0, 0, 0, fkImportSubgrid(2.7225, []float64{0.1}, []float64{1}))
	g.SetSubgrid(0, 0, 1, fkImportSubgrid(2.7225, []float64{0.1}, []float64{2}))

	fk, err := FkTableFromGrid(g)
	assert.NoError(t, err)

	// WHEN optimizing under Nf5Ind (no top quarks)
	fk.Optimize(Nf5Ind)

	// THEN 135 folds into 100 and the subgrids add
	assert.Equal(t, [][]int32{{100}}, fk.Channels())
	table := fk.Table()
	assert.Equal(t, 3.0, table.At(0, 0, 0))
	assert.Equal(t, "Nf5Ind", fk.Grid().Metadata()["fk_assumptions"])
}

func TestFkTable_Optimize_Nf6IndIsANoOp(t *testing.T) {
	g := fkTestGrid(t, []Channel{singlePidChannel(100)})
	g.SetSubgrid(0, 0, 0, fkImportSubgrid(2.7225, []float64{0.1}, []float64{1}))

	fk, err := FkTableFromGrid(g)
	assert.NoError(t, err)

	fk.Optimize(Nf6Ind)

	assert.Equal(t, [][]int32{{100}}, fk.Channels())
	_, recorded := fk.Grid().Metadata()["fk_assumptions"]
	assert.False(t, recorded)
}
