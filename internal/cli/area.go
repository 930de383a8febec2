package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/geo"
	"github.com/poimirror/poimirror/internal/index"
	"github.com/poimirror/poimirror/internal/query"
	"github.com/poimirror/poimirror/internal/store"
)

// NewAreaCommand creates the area command group.
func NewAreaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "area",
		Short: "Manage area boundaries",
	}
	cmd.AddCommand(newAreaAddCommand(rootOpts))
	cmd.AddCommand(newAreaListCommand(rootOpts))
	cmd.AddCommand(newAreaDeleteCommand(rootOpts))
	return cmd
}

func newAreaAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name     string
		geomPath string
		tags     []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new area from a GeoJSON boundary",
		Long: `Register an area. The boundary file must contain polygonal GeoJSON
(a Geometry, Feature or FeatureCollection); it is validated before
anything is written. Entities inside the boundary become members on
the next reindex, which runs automatically for the new area.

Example:
  poimirror area add --db mirror.db --name Berlin --geometry berlin.geojson
  poimirror area add --db mirror.db --name Berlin --geometry berlin.geojson --tag type=community`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if name == "" || geomPath == "" {
				return WrapExitError(ExitCommandError, "--name and --geometry are required", nil)
			}

			raw, err := os.ReadFile(geomPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read geometry file", err)
			}
			// Reject unusable boundaries at ingestion, not at reindex time.
			if _, err := geo.Parse(raw); err != nil {
				return WrapExitError(ExitCommandError, "invalid boundary geometry", err)
			}

			tagMap, err := parseTags(tags)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --tag", err)
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer closeStore(st)

			res, err := st.AppendEvent(cmd.Context(), domain.Event{
				Subject:  domain.SubjectArea,
				Kind:     domain.EventCreated,
				Name:     name,
				Geometry: raw,
				Tags:     tagMap,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to record area", err)
			}
			if err := index.New(st).ReindexArea(cmd.Context(), res.SubjectID); err != nil {
				return WrapExitError(ExitFailure, "area recorded but reindex failed", err)
			}

			return formatter(cmd, rootOpts).Print(res,
				fmt.Sprintf("area %d (%s) registered", res.SubjectID, name))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "area name (required)")
	cmd.Flags().StringVar(&geomPath, "geometry", "", "path to GeoJSON boundary (required)")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "area tag as key=value (repeatable)")

	return cmd
}

func newAreaListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List registered areas",
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

			views, err := query.New(st).Areas(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "list failed", err)
			}

			out := formatter(cmd, rootOpts)
			if rootOpts.Format == "json" {
				return out.Print(views, "")
			}
			for _, v := range views {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\trev %d\n", v.ID, v.Name, v.Revision); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func newAreaDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <area-id>",
		Short: "Mark an area deleted and drop its memberships",
		Long: `Mark an area deleted. Like every change this is recorded as an event;
the boundary stays in the log, only the projection and the membership
cache forget it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			areaID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid area id", err)
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer closeStore(st)

			area, err := st.Area(cmd.Context(), areaID)
			if err != nil {
				return WrapExitError(ExitCommandError, "unknown area", err)
			}

			// Carry the last known payload so the event alone reconstructs
			// the final state on replay.
			res, err := st.AppendEvent(cmd.Context(), domain.Event{
				Subject:   domain.SubjectArea,
				SubjectID: area.ID,
				Kind:      domain.EventDeleted,
				Name:      area.Name,
				Geometry:  area.Geometry,
				Tags:      area.Tags,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to record deletion", err)
			}
			if err := index.New(st).ReindexArea(cmd.Context(), area.ID); err != nil {
				return WrapExitError(ExitFailure, "deletion recorded but reindex failed", err)
			}

			return formatter(cmd, rootOpts).Print(res,
				fmt.Sprintf("area %d (%s) deleted at revision %d", area.ID, area.Name, res.Revision))
		},
	}
	return cmd
}

func parseTags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		tags[k] = v
	}
	return tags, nil
}
