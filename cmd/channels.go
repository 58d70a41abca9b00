package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels <grid>",
	Short: "List the channels of a grid",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		g, err := readGridFile(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		for i, channel := range g.Channels() {
			fmt.Printf("%4d  %s\n", i, channel)
		}
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}
