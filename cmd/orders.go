package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:   "orders <grid>",
	Short: "List the perturbative orders of a grid",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		g, err := readGridFile(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		for i, order := range g.Orders() {
			fmt.Printf("%4d  %s\n", i, order)
		}
	},
}

func init() {
	rootCmd.AddCommand(ordersCmd)
}
