package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/query"
	"github.com/poimirror/poimirror/internal/store"
)

// NewEntityCommand creates the entity command group.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Inspect mirrored entities",
	}
	cmd.AddCommand(newEntityGetCommand(rootOpts))
	cmd.AddCommand(newEntityChangedCommand(rootOpts))
	cmd.AddCommand(newEntityAreasCommand(rootOpts))
	return cmd
}

// resolveEntity accepts either an internal id or a source identifier in
// "type:id" form.
func resolveEntity(cmd *cobra.Command, svc *query.Service, arg string) (query.EntityView, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return svc.Entity(cmd.Context(), id)
	}
	ext, err := domain.ParseExternalID(arg)
	if err != nil {
		return query.EntityView{}, err
	}
	return svc.EntityByExternalID(cmd.Context(), ext)
}

func newEntityGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id | type:id>",
		Short: "Show one entity by internal or source identifier",
		Long: `Show one entity. The argument is an internal numeric id or a source
identifier like "node:42". Deleted entities are shown too.

Example:
  poimirror entity get --db mirror.db 17
  poimirror entity get --db mirror.db node:240109189`,
		Args:          cobra.ExactArgs(1),
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

			view, err := resolveEntity(cmd, query.New(st), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "entity not found", err)
			}

			text := fmt.Sprintf("%d\t%s\trev %d\tdeleted=%t", view.ID, view.ExternalID, view.Revision, view.Deleted)
			return formatter(cmd, rootOpts).Print(view, text)
		},
	}
	return cmd
}

func newEntityChangedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		since string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "changed",
		Short: "List entities touched by sync since a given time",
		Long: `List entities whose last sync touch is after --since, oldest
first. Includes deletions, so a downstream mirror can follow along.
Pages are fetched internally; --limit caps the total.

Example:
  poimirror entity changed --db mirror.db --since 2026-08-01T00:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			sinceAt, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return WrapExitError(ExitCommandError, "--since must be RFC 3339", err)
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer closeStore(st)

			svc := query.New(st)
			out := formatter(cmd, rootOpts)

			var (
				cursor    *query.Cursor
				collected []query.EntityView
			)
			for {
				page, err := svc.ChangedSince(cmd.Context(), sinceAt, cursor, query.DefaultPageSize)
				if err != nil {
					return WrapExitError(ExitFailure, "query failed", err)
				}
				for _, v := range page.Entities {
					if limit > 0 && len(collected) >= limit {
						break
					}
					collected = append(collected, v)
				}
				if page.Next == nil || (limit > 0 && len(collected) >= limit) {
					break
				}
				cursor = page.Next
			}

			if rootOpts.Format == "json" {
				return out.Print(collected, "")
			}
			for _, v := range collected {
				line := fmt.Sprintf("%s\t%s\trev %d\tdeleted=%t", v.LastSyncedAt.Format(time.RFC3339), v.ExternalID, v.Revision, v.Deleted)
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "lower bound, RFC 3339 (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entities to list (0 = all)")
	_ = cmd.MarkFlagRequired("since")

	return cmd
}

func newEntityAreasCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "areas <id | type:id>",
		Short:         "Show which areas an entity falls inside",
		Args:          cobra.ExactArgs(1),
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

			svc := query.New(st)
			view, err := resolveEntity(cmd, svc, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "entity not found", err)
			}

			areas, err := svc.AreasOf(cmd.Context(), view.ID)
			if err != nil {
				return WrapExitError(ExitFailure, "query failed", err)
			}

			out := formatter(cmd, rootOpts)
			if rootOpts.Format == "json" {
				return out.Print(areas, "")
			}
			for _, a := range areas {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", a.ID, a.Name); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}
