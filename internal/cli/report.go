package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/poimirror/poimirror/internal/query"
	"github.com/poimirror/poimirror/internal/report"
	"github.com/poimirror/poimirror/internal/store"
)

// NewReportCommand creates the report command group.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate and inspect daily area snapshots",
	}
	cmd.AddCommand(newReportGenerateCommand(rootOpts))
	cmd.AddCommand(newReportListCommand(rootOpts))
	return cmd
}

func newReportGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		areaID int64
		date   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compute snapshots for today (or backfill one area and date)",
		Long: `Without flags, compute today's snapshot for every area; today's rows
are replaced, so rerunning refreshes them. With --area and --date a
single past snapshot is backfilled; if that row already exists it is
left untouched.

Example:
  poimirror report generate --db mirror.db
  poimirror report generate --db mirror.db --area 3 --date 2026-08-01`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if (areaID == 0) != (date == "") {
				return WrapExitError(ExitCommandError, "--area and --date must be given together", nil)
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer closeStore(st)

			agg := report.New(st,
				report.WithUpToDateWindow(cfg.UpToDateWindow()),
				report.WithActivityWindow(cfg.ActivityWindow()),
			)
			out := formatter(cmd, rootOpts)

			if areaID != 0 {
				snap, err := agg.ComputeSnapshot(cmd.Context(), areaID, date)
				if err != nil {
					return WrapExitError(ExitFailure, "snapshot failed", err)
				}
				text := fmt.Sprintf("area %d %s: %d members, %d up to date",
					snap.AreaID, snap.Date, snap.Counts.TotalMembers, snap.Counts.UpToDate)
				return out.Print(snap, text)
			}

			snaps, err := agg.ComputeAll(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "snapshots failed", err)
			}
			return out.Print(snaps, fmt.Sprintf("wrote %d snapshots for %s",
				len(snaps), time.Now().UTC().Format("2006-01-02")))
		},
	}

	cmd.Flags().Int64Var(&areaID, "area", 0, "area id to snapshot")
	cmd.Flags().StringVar(&date, "date", "", "snapshot date (2006-01-02)")

	return cmd
}

func newReportListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		areaID   int64
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an area's stored snapshots",
		Long: `List snapshots for one area, oldest first. --from and --to bound the
date range; either may be omitted.

Example:
  poimirror report list --db mirror.db --area 3 --from 2026-08-01`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if areaID == 0 {
				return WrapExitError(ExitCommandError, "--area is required", nil)
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer closeStore(st)

			views, err := query.New(st).Reports(cmd.Context(), areaID, from, to)
			if err != nil {
				return WrapExitError(ExitFailure, "list failed", err)
			}

			out := formatter(cmd, rootOpts)
			if rootOpts.Format == "json" {
				return out.Print(views, "")
			}
			for _, v := range views {
				line := fmt.Sprintf("%s  members=%d up_to_date=%d outdated=%d legacy=%d",
					v.Date, v.Counts.TotalMembers, v.Counts.UpToDate, v.Counts.Outdated, v.Counts.Legacy)
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&areaID, "area", 0, "area id (required)")
	cmd.Flags().StringVar(&from, "from", "", "earliest date, inclusive (2006-01-02)")
	cmd.Flags().StringVar(&to, "to", "", "latest date, inclusive (2006-01-02)")

	return cmd
}
