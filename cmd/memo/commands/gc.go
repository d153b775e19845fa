package commands

import (
	"time"

	"github.com/spf13/cobra"
)

func (c *CLI) newGCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Destroy old local cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxAge, _ := cmd.Flags().GetDuration("max-age")
			maxBytes, _ := cmd.Flags().GetInt64("max-size")
			return c.app.GC(maxAge, maxBytes)
		},
	}
	cmd.Flags().Duration("max-age", 7*24*time.Hour, "Remove entries older than this (0 disables)")
	cmd.Flags().Int64("max-size", 0, "Evict oldest entries until the store fits in this many bytes (0 disables)")
	return cmd
}
