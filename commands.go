package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/readaloud-dev/readaloud/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: "Prints the configuration that would be used, after merging the\n" +
		"config file and environment variables over the defaults.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		if configFile == "" {
			if path, err := config.DefaultConfigPath(); err == nil {
				fmt.Printf("# config file: %s\n", path)
			}
		} else {
			fmt.Printf("# config file: %s\n", configFile)
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("unable to render configuration: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}
