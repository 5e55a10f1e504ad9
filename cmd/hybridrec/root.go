package main

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/hybridrec/core"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hybridrec",
		Short: "hybridrec - hybrid recommendation pipeline",
		Long: `hybridrec fuses collaborative, content, graph and trending signals into one
diversified, explained ranked list per request.

Use "recommend" to run a single request against a JSON catalog fixture and
"validate-config" to check a configuration file.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file (env HYBRIDREC_* overrides)")
	cmd.PersistentFlags().String("log-level", "", "Override log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newRecommendCommand())
	cmd.AddCommand(newValidateConfigCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

func exitCode(err error) int {
	if core.IsNoCandidates(err) {
		return ExitNoCandidates
	}
	return ExitError
}
