package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/strategy"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/tuning"
)

func newConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the config and print the effective engine settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			b, err := yaml.Marshal(cfg.Engine)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "# engine (version %d)\n%s\n", cfg.Engine.Version, b)

			reg := strategy.Default()
			rig := cfg.Engine.RigidityState()
			fmt.Fprintln(out, "# strategies (evaluation order)")
			for _, id := range reg.Order(cfg.Engine.Priority) {
				level := rig.Level(id)
				fmt.Fprintf(out, "%-16s enabled=%-5t rigidity=%3d %s\n",
					id, cfg.Engine.Enabled(id), level, tuning.Label(level))
			}
			return nil
		},
	})
	return cmd
}
