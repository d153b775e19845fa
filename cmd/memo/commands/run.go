package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/memo/internal/engine/executor"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the graph described by memo.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workers, _ := cmd.Flags().GetInt("workers")
			keepGoing, _ := cmd.Flags().GetBool("keep-going")
			force, _ := cmd.Flags().GetBool("force")
			prefetch, _ := cmd.Flags().GetBool("prefetch")
			envPairs, _ := cmd.Flags().GetStringSlice("env")

			return c.app.Build(cmd.Context(), ".", executor.Options{
				Workers:   workers,
				KeepGoing: keepGoing,
				Force:     force,
				Prefetch:  prefetch,
				Env:       parseEnv(envPairs),
			})
		},
	}
	cmd.Flags().IntP("workers", "j", 0, "Number of concurrent workers (0 means the CPU count)")
	cmd.Flags().BoolP("keep-going", "k", false, "Continue independent subgraphs after a failure")
	cmd.Flags().BoolP("force", "f", false, "Rebuild everything, bypassing history")
	cmd.Flags().Bool("prefetch", false, "Warm the fast cache tiers before executing")
	cmd.Flags().StringSlice("env", nil, "KEY=VALUE pairs folded into node digests")
	return cmd
}

// parseEnv splits KEY=VALUE pairs. A pair without '=' becomes an empty
// value, matching how shells treat unset assignments.
func parseEnv(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		env[key] = value
	}
	return env
}
