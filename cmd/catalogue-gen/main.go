package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	dashcfg "github.com/clustermon/dashboard/pkg/config"
)

func writeConfig(out io.Writer, cfg *dashcfg.DashboardConfig) error {
	if err := cfg.Queries.Validate(); err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func main() {
	var maxConcurrency int

	cmd := &cobra.Command{
		Short: "Generate a config containing the built-in query catalogue",
		Long: `Generate a config that produces the same queries as the
built-in catalogue: cluster CPU and GPU availability, job queue depth, and
job wait time history.  The output can be edited and passed to the dashboard
with --config.`,
		RunE: func(c *cobra.Command, args []string) error {
			cfg := dashcfg.Default()
			cfg.MaxConcurrency = maxConcurrency
			return writeConfig(os.Stdout, cfg)
		},
	}

	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0,
		"Maximum number of queries in flight to record in the config (0 for no limit)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to generate config: %v\n", err)
		os.Exit(1)
	}
}
