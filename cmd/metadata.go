package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	metadataSet    []string // key=value pairs to store
	metadataOutput string   // Where to write the updated grid
)

var metadataCmd = &cobra.Command{
	Use:   "metadata <grid> [key]",
	Short: "Show or update the key/value metadata of a grid",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		g, err := readGridFile(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		if len(metadataSet) > 0 {
			if metadataOutput == "" {
				logrus.Fatalf("--set needs --output")
			}
			for _, pair := range metadataSet {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					logrus.Fatalf("--set wants key=value, given %q", pair)
				}
				g.SetMetadata(key, value)
			}
			if err := writeGridFile(g, metadataOutput, false); err != nil {
				logrus.Fatalf("%v", err)
			}
			return
		}

		if len(args) == 2 {
			value, ok := g.Metadata()[args[1]]
			if !ok {
				logrus.Fatalf("no metadata for key %q", args[1])
			}
			fmt.Println(value)
			return
		}

		keys := make([]string, 0, len(g.Metadata()))
		for key := range g.Metadata() {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s: %s\n", key, g.Metadata()[key])
		}
	},
}

func init() {
	metadataCmd.Flags().StringSliceVar(&metadataSet, "set", nil, "Store key=value pairs")
	metadataCmd.Flags().StringVar(&metadataOutput, "output", "", "File to write the updated grid to")
	rootCmd.AddCommand(metadataCmd)
}
