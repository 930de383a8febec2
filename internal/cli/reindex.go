package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/poimirror/poimirror/internal/index"
	"github.com/poimirror/poimirror/internal/store"
)

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the entity-to-area membership cache from scratch",
		Long: `Discard all cached memberships and recompute them by testing every
located entity against every area boundary. Safe to run at any time;
membership is a derived cache, never source data.

Example:
  poimirror reindex --db mirror.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer closeStore(st)

			stats, err := index.New(st).RebuildAll(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "rebuild failed", err)
			}

			text := fmt.Sprintf("reindexed %d entities against %d areas: %d memberships, %d broken areas",
				stats.Entities, stats.Areas, stats.Memberships, stats.BrokenAreas)
			return formatter(cmd, rootOpts).Print(stats, text)
		},
	}
	return cmd
}
