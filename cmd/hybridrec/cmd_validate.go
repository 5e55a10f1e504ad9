package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rushteam/hybridrec/config"
)

func newValidateConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a configuration file",
		Long: `Load the configuration (defaults, file, then HYBRIDREC_* environment
variables) and report every validation problem.

With --strict the file is also decoded on its own and unknown keys are errors.`,
		Args: cobra.NoArgs,
		RunE: validateConfigE,
	}
	cmd.Flags().Bool("strict", false, "Reject unknown keys in the config file")
	return cmd
}

func validateConfigE(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	if strict, _ := cmd.Flags().GetBool("strict"); strict && path != "" {
		if _, err := config.LoadFromYAML(path); err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	enabled := 0
	for _, s := range cfg.Recall.Sources {
		if !s.Disabled {
			enabled++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d recall sources, cache=%t (%s), mmr=%t lambda=%.2f\n",
		enabled, cfg.Cache.Enabled, cfg.Cache.Backend, cfg.Rerank.MMR, cfg.Rerank.Lambda)
	return nil
}
