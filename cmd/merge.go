package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mergeUncompressed bool // Write the merged grid without compression

var mergeCmd = &cobra.Command{
	Use:   "merge <output> <input>...",
	Short: "Merge grids into one",
	Long: "Merge the input grids into a single output grid. Grids with " +
		"identical bins add up; grids with back-to-back bins concatenate.",
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		merged, err := readGridFile(args[1])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		for _, path := range args[2:] {
			g, err := readGridFile(path)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
			if err := merged.Merge(g); err != nil {
				logrus.Fatalf("merging %s: %v", path, err)
			}
		}
		if err := writeGridFile(merged, args[0], mergeUncompressed); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("merged %d grids into %s", len(args)-1, args[0])
	},
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeUncompressed, "uncompressed", false, "Write without compression")
	rootCmd.AddCommand(mergeCmd)
}
