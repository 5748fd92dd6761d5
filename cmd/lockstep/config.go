package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/lockstep/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the search order and flag overrides have
been applied, as YAML. The output can be saved as lockstep.yaml.

Examples:
  lockstep config > ~/.lockstep/lockstep.yaml
  lockstep config --config ./lan.yaml --log-level debug`,
	RunE: func(_ *cobra.Command, _ []string) error {
		out, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}
