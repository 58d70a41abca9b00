package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NNPDF/pineappl/grid"
)

var (
	optimizeUncompressed  bool   // Write the optimized grid without compression
	optimizeDedupUlps     uint   // Tolerance for deduplicating channels, in ULPs
	optimizeFkAssumptions string // FK assumptions to apply, when the input is an FK table
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <input> <output>",
	Short: "Shrink a grid's storage without changing its predictions",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		g, err := readGridFile(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		if optimizeDedupUlps > 0 {
			g.DedupChannels(optimizeDedupUlps)
		}

		if optimizeFkAssumptions != "" {
			assumptions, err := grid.ParseFkAssumptions(optimizeFkAssumptions)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			fk, err := grid.FkTableFromGrid(g)
			if err != nil {
				logrus.Fatalf("input is not an FK table: %v", err)
			}
			fk.Optimize(assumptions)
			g = fk.Grid()
		} else {
			g.Optimize()
		}

		if err := writeGridFile(g, args[1], optimizeUncompressed); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func init() {
	optimizeCmd.Flags().BoolVar(&optimizeUncompressed, "uncompressed", false, "Write without compression")
	optimizeCmd.Flags().UintVar(&optimizeDedupUlps, "dedup-channels", 0, "Merge channels with equal content within this many ULPs")
	optimizeCmd.Flags().StringVar(&optimizeFkAssumptions, "fk-assumptions", "", "FK assumptions (Nf6Ind ... Nf3Sym) for FK table inputs")
	rootCmd.AddCommand(optimizeCmd)
}
