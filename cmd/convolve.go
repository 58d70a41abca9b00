package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NNPDF/pineappl/grid"
)

var (
	xiRen     float64 // Renormalization scale variation
	xiFac     float64 // Factorization scale variation
	maxOrders []int   // Optional maximum coupling powers (as, al)
)

// toyDistribution is x*f(x) for the built-in smoke-test distribution.
func toyDistribution(pid int32, x, q2 float64) float64 {
	_ = pid
	_ = q2
	return x * (1.0 - x)
}

func toyCoupling(q2 float64) float64 {
	_ = q2
	return 0.118
}

var convolveCmd = &cobra.Command{
	Use:   "convolve <grid>",
	Short: "Convolve a grid with built-in toy distributions",
	Long: "Convolve a grid with the built-in distribution x*f(x) = x*(1-x) " +
		"and a constant coupling. Useful as a smoke check of a grid's " +
		"contents; loading real PDF sets is outside the scope of this tool.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		g, err := readGridFile(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		var orderMask []bool
		if len(maxOrders) > 0 {
			if len(maxOrders) != 2 {
				logrus.Fatalf("--orders wants two values, given %d", len(maxOrders))
			}
			orderMask = grid.CreateMask(g.Orders(), uint8(maxOrders[0]), uint8(maxOrders[1]), true)
		}

		xfx := make([]grid.XfxFunc, len(g.Convolutions()))
		for i := range xfx {
			xfx[i] = toyDistribution
		}
		cache := grid.NewConvolutionCache(g.Convolutions(), xfx, toyCoupling)

		results, err := g.Convolve(cache, orderMask, nil, nil,
			[][3]float64{{xiRen, xiFac, 1}})
		if err != nil {
			logrus.Fatalf("convolving: %v", err)
		}

		for bin, value := range results {
			limits := g.Bins().Bins()[bin].Limits()
			fmt.Printf("%4d  [%g, %g]  % .8e\n", bin, limits[0][0], limits[0][1], value)
		}
	},
}

func init() {
	convolveCmd.Flags().Float64Var(&xiRen, "xir", 1.0, "Renormalization scale variation factor")
	convolveCmd.Flags().Float64Var(&xiFac, "xif", 1.0, "Factorization scale variation factor")
	convolveCmd.Flags().IntSliceVar(&maxOrders, "orders", nil, "Maximum coupling powers, as alpha_s,alpha")
	rootCmd.AddCommand(convolveCmd)
}
