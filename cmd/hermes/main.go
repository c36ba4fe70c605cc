// Command hermes runs the strategy orchestration engine.
//
// Usage:
//
//	hermes serve --config config.yaml
//	hermes backtest --db data/candles.db --speed 0
//	hermes config check --config config.yaml
//	hermes token --subject ops --ttl 12h
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "hermes",
		Short:        "Strategy orchestration and indicator evaluation engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("HERMES_CONFIG"), "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newBacktestCmd(&cfgPath),
		newConfigCmd(&cfgPath),
		newTokenCmd(&cfgPath),
	)
	return root
}
