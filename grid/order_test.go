package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// drellYanOrders is the classic tower used by hadronic Drell-Yan
// predictions up to NNLO, including scale-variation logs at NLO.
func drellYanOrders() []Order {
	return []Order{
		{AlphaS: 0, Alpha: 2},                       //   LO
		{AlphaS: 1, Alpha: 2},                       //  NLO QCD
		{AlphaS: 1, Alpha: 2, LogXiR: 1},            //  NLO QCD ren log
		{AlphaS: 1, Alpha: 2, LogXiF: 1},            //  NLO QCD fac log
		{AlphaS: 0, Alpha: 3},                       //  NLO EW
		{AlphaS: 0, Alpha: 3, LogXiF: 1},            //  NLO EW fac log
		{AlphaS: 2, Alpha: 2},                       // NNLO QCD
		{AlphaS: 1, Alpha: 3},                       // NNLO mixed
		{AlphaS: 0, Alpha: 4},                       // NNLO EW
	}
}

func TestCreateMask_SelectsTowersByRelativePower(t *testing.T) {
	orders := drellYanOrders()

	tests := []struct {
		name         string
		maxAS, maxAL uint8
		logs         bool
		want         []bool
	}{
		{
			name: "nothing selected",
			want: []bool{false, false, false, false, false, false, false, false, false},
		},
		{
			name:  "LO only",
			maxAS: 1, maxAL: 0,
			want: []bool{true, false, false, false, false, false, false, false, false},
		},
		{
			name:  "NLO QCD without logs",
			maxAS: 2, maxAL: 0,
			want: []bool{true, true, false, false, false, false, false, false, false},
		},
		{
			name:  "NLO QCD with logs",
			maxAS: 2, maxAL: 0, logs: true,
			want: []bool{true, true, true, true, false, false, false, false, false},
		},
		{
			name:  "NLO EW without logs",
			maxAS: 0, maxAL: 2,
			want: []bool{true, false, false, false, true, false, false, false, false},
		},
		{
			name:  "full NLO",
			maxAS: 2, maxAL: 2,
			want: []bool{true, true, false, false, true, false, false, false, false},
		},
		{
			name:  "everything",
			maxAS: 3, maxAL: 3, logs: true,
			want: []bool{true, true, true, true, true, true, true, true, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CreateMask(orders, tt.maxAS, tt.maxAL, tt.logs)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateMask_UnequalTowersKeepOnlyTheirOwnBranch(t *testing.T) {
	// GIVEN a tower with both QCD and EW corrections
	orders := []Order{
		{AlphaS: 0, Alpha: 2}, //   LO
		{AlphaS: 1, Alpha: 2}, //  NLO QCD
		{AlphaS: 0, Alpha: 3}, //  NLO EW
		{AlphaS: 2, Alpha: 2}, // NNLO QCD
		{AlphaS: 1, Alpha: 3}, // NNLO mixed
		{AlphaS: 0, Alpha: 4}, // NNLO EW
	}

	// WHEN more QCD than EW orders are requested
	got := CreateMask(orders, 2, 1, false)

	// THEN beyond the common level only the QCD branch survives
	assert.Equal(t, []bool{true, true, false, false, false, false}, got)
}

func TestOrder_StringParse_RoundTrip(t *testing.T) {
	orders := []Order{
		{},
		{AlphaS: 1},
		{Alpha: 2},
		{AlphaS: 2, Alpha: 1},
		{AlphaS: 1, Alpha: 2, LogXiR: 1, LogXiF: 1},
		{AlphaS: 1, Alpha: 2, LogXiR: 1, LogXiF: 1, LogXiA: 1},
	}
	for _, order := range orders {
		parsed, err := ParseOrder(order.String())
		assert.NoError(t, err)
		assert.Equal(t, order, parsed, "round trip of %q", order.String())
	}
}

func TestParseOrder_RejectsGarbage(t *testing.T) {
	for _, s := range []string{"as", "xy1", "as1as2", "a1garbage"} {
		_, err := ParseOrder(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestOrder_Less_OrdersBySumThenPowers(t *testing.T) {
	lo := Order{Alpha: 2}
	nloQCD := Order{AlphaS: 1, Alpha: 2}
	nloEW := Order{Alpha: 3}

	assert.True(t, lo.Less(nloQCD))
	assert.True(t, lo.Less(nloEW))
	assert.True(t, nloQCD.Less(nloEW))
	assert.False(t, nloEW.Less(nloQCD))
}
