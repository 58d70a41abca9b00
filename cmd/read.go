package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// gridSummary is the YAML shape printed by the read subcommand.
type gridSummary struct {
	Bins         []binSummary      `yaml:"bins"`
	Orders       []string          `yaml:"orders"`
	Channels     []string          `yaml:"channels"`
	Convolutions []string          `yaml:"convolutions"`
	PidBasis     string            `yaml:"pid_basis"`
	Metadata     map[string]string `yaml:"metadata,omitempty"`
}

type binSummary struct {
	Limits        [][2]float64 `yaml:"limits"`
	Normalization float64      `yaml:"normalization"`
}

var readCmd = &cobra.Command{
	Use:   "read <grid>",
	Short: "Print the structure of a grid as YAML",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		g, err := readGridFile(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		summary := gridSummary{
			PidBasis: g.PidBasis().String(),
			Metadata: g.Metadata(),
		}
		for _, bin := range g.Bins().Bins() {
			summary.Bins = append(summary.Bins, binSummary{
				Limits:        bin.Limits(),
				Normalization: bin.Normalization(),
			})
		}
		for _, order := range g.Orders() {
			summary.Orders = append(summary.Orders, order.String())
		}
		for _, channel := range g.Channels() {
			summary.Channels = append(summary.Channels, channel.String())
		}
		for _, conv := range g.Convolutions() {
			summary.Convolutions = append(summary.Convolutions,
				fmt.Sprintf("%s %d", conv.Type, conv.PID))
		}

		out, err := yaml.Marshal(summary)
		if err != nil {
			logrus.Fatalf("encoding summary: %v", err)
		}
		fmt.Print(string(out))
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}
